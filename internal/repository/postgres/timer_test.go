//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

func seedTimer(t *testing.T, kind domain.TimerKind, questionID int64, assignmentID *int64, fireAt time.Time) {
	t.Helper()

	repo := NewTimerRepository(testDB, logger)

	tx := mustBegin(t)
	require.NoError(t, repo.Schedule(context.Background(), tx, &domain.Timer{
		Kind:         kind,
		QuestionID:   questionID,
		AssignmentID: assignmentID,
		FireAt:       fireAt,
		CreatedAt:    time.Now().UTC(),
	}))
	mustCommit(t, tx)
}

func countTimers(t *testing.T) int {
	t.Helper()

	var n int
	require.NoError(t, testDB.Get(&n, `SELECT COUNT(*) FROM timers`))

	return n
}

func TestTimerRepository_DueTimers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	truncateTables(t, testDB)
	repo := NewTimerRepository(testDB, logger)
	ctx := context.Background()
	now := time.Now().UTC()

	areaID, _ := seedTaxonomy(t)
	questionID := seedQuestion(t, areaID, domain.QuestionStatusRouted)

	seedTimer(t, domain.TimerQuestionIdleClose, questionID, nil, now.Add(-2*time.Hour))
	seedTimer(t, domain.TimerAnsweredIdleClose, questionID, nil, now.Add(-time.Hour))
	seedTimer(t, domain.TimerQuestionIdleClose, questionID, nil, now.Add(time.Hour))

	// Only overdue timers are claimed, oldest first.
	tx := mustBegin(t)
	due, err := repo.DueTimers(ctx, tx, 10, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, domain.TimerQuestionIdleClose, due[0].Kind)
	assert.Equal(t, domain.TimerAnsweredIdleClose, due[1].Kind)

	// A concurrent worker skips the locked rows instead of blocking.
	other := mustBegin(t)
	skipped, err := repo.DueTimers(ctx, other, 10, now)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.NoError(t, other.Rollback())

	require.NoError(t, tx.Rollback())

	// The batch size caps how many rows one pass claims.
	tx = mustBegin(t)
	defer tx.Rollback()

	due, err = repo.DueTimers(ctx, tx, 1, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].FireAt.Before(now.Add(-90*time.Minute)))
}

func TestTimerRepository_CancelByAssignment(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	truncateTables(t, testDB)
	repo := NewTimerRepository(testDB, logger)
	ctx := context.Background()
	now := time.Now().UTC()

	areaID, _ := seedTaxonomy(t)
	questionID := seedQuestion(t, areaID, domain.QuestionStatusRouted)
	assignmentID := seedAssignment(t, questionID, "expert-1", domain.AssignmentStatusAssigned, now)

	seedTimer(t, domain.TimerAssignmentAccept, questionID, &assignmentID, now.Add(48*time.Hour))
	seedTimer(t, domain.TimerQuestionIdleClose, questionID, nil, now.Add(336*time.Hour))

	tx := mustBegin(t)
	require.NoError(t, repo.CancelByAssignment(ctx, tx, assignmentID))
	mustCommit(t, tx)

	// The question-level timer is untouched.
	require.Equal(t, 1, countTimers(t))

	var kind string
	require.NoError(t, testDB.Get(&kind, `SELECT kind FROM timers LIMIT 1`))
	assert.Equal(t, string(domain.TimerQuestionIdleClose), kind)
}

func TestTimerRepository_CancelByQuestion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	truncateTables(t, testDB)
	repo := NewTimerRepository(testDB, logger)
	ctx := context.Background()
	now := time.Now().UTC()

	areaID, _ := seedTaxonomy(t)
	questionID := seedQuestion(t, areaID, domain.QuestionStatusAnswered)

	seedTimer(t, domain.TimerAnsweredIdleClose, questionID, nil, now.Add(72*time.Hour))
	seedTimer(t, domain.TimerQuestionIdleClose, questionID, nil, now.Add(336*time.Hour))

	// Cancelling a specific kind leaves the other timers in place.
	tx := mustBegin(t)
	require.NoError(t, repo.CancelByQuestion(ctx, tx, questionID, domain.TimerAnsweredIdleClose))
	mustCommit(t, tx)
	require.Equal(t, 1, countTimers(t))

	// An empty kind cancels everything scheduled for the question.
	seedTimer(t, domain.TimerAnsweredIdleClose, questionID, nil, now.Add(72*time.Hour))

	tx = mustBegin(t)
	require.NoError(t, repo.CancelByQuestion(ctx, tx, questionID, ""))
	mustCommit(t, tx)
	assert.Equal(t, 0, countTimers(t))
}

func TestTimerRepository_DeleteTimer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	truncateTables(t, testDB)
	repo := NewTimerRepository(testDB, logger)
	now := time.Now().UTC()

	areaID, _ := seedTaxonomy(t)
	questionID := seedQuestion(t, areaID, domain.QuestionStatusRouted)

	seedTimer(t, domain.TimerQuestionIdleClose, questionID, nil, now.Add(-time.Minute))

	var id int64
	require.NoError(t, testDB.Get(&id, `SELECT id FROM timers LIMIT 1`))

	tx := mustBegin(t)
	require.NoError(t, repo.DeleteTimer(context.Background(), tx, id))
	mustCommit(t, tx)

	assert.Equal(t, 0, countTimers(t))
}
