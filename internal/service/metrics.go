package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	questionsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questions_submitted_total",
		Help: "Total number of submitted questions",
	})

	questionsTriageTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "questions_triage_total",
		Help: "Questions routed to human triage because no eligible expert existed",
	})

	assignmentsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assignments_expired_total",
		Help: "Assignments expired by the acceptance deadline",
	})

	reportsFiledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reports_filed_total",
		Help: "Content reports accepted at intake",
	}, []string{"outcome"}) // created, corroborated, duplicate

	moderationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moderation_queue_depth",
		Help: "Reports currently pending review",
	})

	reputationRetriesParked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reputation_retries_parked_total",
		Help: "Ledger applications parked because the user was unknown to the directory",
	})
)
