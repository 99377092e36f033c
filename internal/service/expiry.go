package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/config"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
	"github.com/veritasapp/qna-router-service/pkg/logger/sl"
)

// Worker drives the durable timers (acceptance deadlines, idle-close
// policies) and retries parked reputation entries. Multiple worker processes
// may run concurrently; the SKIP LOCKED claims keep them from double-firing.
type Worker struct {
	BaseService
	cfg       config.Engine
	timers    repository.TimerRepository
	messages  repository.MessageRepository
	questions repository.QuestionRepository
	engine    *AssignmentEngineImpl
	ledger    *ReputationLedgerImpl
	notifier  external.Notifier
}

func NewWorker(
	db Transactor,
	log *slog.Logger,
	cfg config.Engine,
	timers repository.TimerRepository,
	messages repository.MessageRepository,
	questions repository.QuestionRepository,
	engine *AssignmentEngineImpl,
	ledger *ReputationLedgerImpl,
	notifier external.Notifier,
) *Worker {
	return &Worker{
		BaseService: NewBaseService(db, log),
		cfg:         cfg,
		timers:      timers,
		messages:    messages,
		questions:   questions,
		engine:      engine,
		ledger:      ledger,
		notifier:    notifier,
	}
}

// Run polls until the context is cancelled. Errors are logged and the next
// tick retries; the worker never stops on its own.
func (w *Worker) Run(ctx context.Context) {
	const op = "internal.service.expiry.Run"
	log := w.log.With(slog.String("op", op))

	log.Info("timer worker started", slog.Duration("poll_interval", w.cfg.TimerPollInterval))

	ticker := time.NewTicker(w.cfg.TimerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("timer worker stopped")
			return
		case <-ticker.C:
			if err := w.fireDueTimers(ctx); err != nil {
				log.Error("timer pass failed", sl.Err(err))
			}

			if err := w.drainRetries(ctx); err != nil {
				log.Error("retry pass failed", sl.Err(err))
			}
		}
	}
}

// timerEffect is what a fired timer wants announced after commit.
type timerEffect struct {
	expired *domain.Assignment
	next    *domain.Assignment
	closed  *domain.Question
}

func (w *Worker) fireDueTimers(ctx context.Context) error {
	const op = "internal.service.expiry.fireDueTimers"

	now := time.Now().UTC()

	var effects []timerEffect

	err := w.transaction(ctx, op, func(tx *sqlx.Tx) error {
		due, err := w.timers.DueTimers(ctx, tx, w.cfg.TimerBatchSize, now)
		if err != nil {
			return err
		}

		for _, timer := range due {
			effect, err := w.fireTimer(ctx, tx, timer, now)
			if err != nil {
				return fmt.Errorf("%s: timer '%d' (%s): %w", op, timer.ID, timer.Kind, err)
			}

			if effect != nil {
				effects = append(effects, *effect)
			}

			if err := w.timers.DeleteTimer(ctx, tx, timer.ID); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, effect := range effects {
		w.announce(ctx, effect)
	}

	return nil
}

func (w *Worker) fireTimer(ctx context.Context, tx *sqlx.Tx, timer domain.Timer, now time.Time) (*timerEffect, error) {
	switch timer.Kind {
	case domain.TimerAssignmentAccept:
		if timer.AssignmentID == nil {
			return nil, nil
		}

		expired, next, err := w.engine.expireAssignmentTx(ctx, tx, *timer.AssignmentID, now)
		if err != nil {
			return nil, err
		}

		if expired == nil {
			return nil, nil
		}

		return &timerEffect{expired: expired, next: next}, nil

	case domain.TimerAnsweredIdleClose:
		// Conversation since the answer resets the clock.
		latest, err := w.messages.LatestMessageAt(ctx, tx, timer.QuestionID)
		if err != nil {
			return nil, err
		}

		if !latest.IsZero() && latest.Add(w.cfg.AnsweredIdleClose).After(now) {
			err := w.timers.Schedule(ctx, tx, &domain.Timer{
				Kind:       domain.TimerAnsweredIdleClose,
				QuestionID: timer.QuestionID,
				FireAt:     latest.Add(w.cfg.AnsweredIdleClose),
				CreatedAt:  now,
			})

			return nil, err
		}

		return w.closeIdle(ctx, tx, timer, now)

	case domain.TimerQuestionIdleClose:
		return w.closeIdle(ctx, tx, timer, now)
	}

	w.log.Warn("unknown timer kind skipped",
		slog.Int64("timer_id", timer.ID), slog.String("kind", string(timer.Kind)))

	return nil, nil
}

func (w *Worker) closeIdle(ctx context.Context, tx *sqlx.Tx, timer domain.Timer, now time.Time) (*timerEffect, error) {
	closed, err := w.engine.autoCloseQuestionTx(ctx, tx, timer.QuestionID, timer.Kind, now)
	if err != nil {
		return nil, err
	}

	if !closed {
		return nil, nil
	}

	question, err := w.questions.GetQuestionByID(ctx, tx, timer.QuestionID)
	if err != nil {
		return nil, err
	}

	return &timerEffect{closed: question}, nil
}

func (w *Worker) announce(ctx context.Context, effect timerEffect) {
	if effect.expired != nil {
		external.LogError(w.log, w.notifier.Notify(ctx, effect.expired.AssignedTo, external.EventAssignmentExpired, map[string]any{
			"question_id":   effect.expired.QuestionID,
			"assignment_id": effect.expired.ID,
		}))
	}

	if effect.next != nil {
		external.LogError(w.log, w.notifier.Notify(ctx, effect.next.AssignedTo, external.EventAssignmentOffered, map[string]any{
			"question_id":   effect.next.QuestionID,
			"assignment_id": effect.next.ID,
			"deadline":      effect.next.Deadline,
		}))
	}

	if effect.closed != nil {
		external.LogError(w.log, w.notifier.Notify(ctx, effect.closed.AskerID, external.EventQuestionClosed, map[string]any{
			"question_id": effect.closed.ID,
		}))
	}
}

// drainRetries replays parked reputation entries whose users were unknown to
// the directory at apply time. Still-unknown users are rescheduled with a
// bumped attempt counter.
func (w *Worker) drainRetries(ctx context.Context) error {
	const op = "internal.service.expiry.drainRetries"

	now := time.Now().UTC()

	return w.transaction(ctx, op, func(tx *sqlx.Tx) error {
		retries, err := w.ledger.repo.DueRetries(ctx, tx, w.cfg.TimerBatchSize, now)
		if err != nil {
			return err
		}

		for _, retry := range retries {
			var ref *ContentRef
			if retry.ContentType != nil && retry.ContentID != nil {
				ref = &ContentRef{Type: *retry.ContentType, ID: *retry.ContentID}
			}

			_, err := w.ledger.applyDirectTx(ctx, tx, retry.UserID, retry.Reason, ref, retry.SourceEventID)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnknownUser) {
					if err := w.ledger.repo.BumpRetry(ctx, tx, retry.ID, now.Add(w.cfg.RetryBackoff)); err != nil {
						return err
					}

					continue
				}

				return fmt.Errorf("%s: retry '%d': %w", op, retry.ID, err)
			}

			if err := w.ledger.repo.DeleteRetry(ctx, tx, retry.ID); err != nil {
				return err
			}
		}

		return nil
	})
}
