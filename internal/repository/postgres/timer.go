package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

// TimerRepository stores deferred jobs durably so deadlines survive process
// restarts and can be fired by any engine replica.
type TimerRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewTimerRepository(db *sqlx.DB, log *slog.Logger) *TimerRepository {
	return &TimerRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *TimerRepository) Schedule(ctx context.Context, tx *sqlx.Tx, t *domain.Timer) error {
	const op = "internal.repository.postgres.ScheduleTimer"

	query, args, err := r.sq.Insert("timers").
		Columns("kind", "question_id", "assignment_id", "fire_at", "created_at").
		Values(t.Kind, t.QuestionID, t.AssignmentID, t.FireAt, t.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}

func (r *TimerRepository) CancelByAssignment(ctx context.Context, tx *sqlx.Tx, assignmentID int64) error {
	const op = "internal.repository.postgres.CancelTimerByAssignment"

	query, args, err := r.sq.Delete("timers").
		Where(sq.Eq{"assignment_id": assignmentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute delete: %w", op, err)
	}

	return nil
}

func (r *TimerRepository) CancelByQuestion(ctx context.Context, tx *sqlx.Tx, questionID int64, kind domain.TimerKind) error {
	const op = "internal.repository.postgres.CancelTimerByQuestion"

	deleteBuilder := r.sq.Delete("timers").
		Where(sq.Eq{"question_id": questionID})

	if kind != "" {
		deleteBuilder = deleteBuilder.Where(sq.Eq{"kind": kind})
	}

	query, args, err := deleteBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute delete: %w", op, err)
	}

	return nil
}

func (r *TimerRepository) DueTimers(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.Timer, error) {
	const op = "internal.repository.postgres.DueTimers"

	query, args, err := r.sq.Select("id", "kind", "question_id", "assignment_id", "fire_at", "created_at").
		From("timers").
		Where(sq.LtOrEq{"fire_at": now}).
		OrderBy("fire_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var timers []domain.Timer
	if err := tx.SelectContext(ctx, &timers, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to select due timers: %w", op, err)
	}

	return timers, nil
}

func (r *TimerRepository) DeleteTimer(ctx context.Context, tx *sqlx.Tx, id int64) error {
	const op = "internal.repository.postgres.DeleteTimer"

	query, args, err := r.sq.Delete("timers").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute delete: %w", op, err)
	}

	return nil
}
