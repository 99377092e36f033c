package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

const reputationColumns = "user_id, score, total_reports, valid_reports, false_reports, helpful_flags, warnings, suspensions, last_violation_at, created_at, updated_at"

type ReputationRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewReputationRepository(db *sqlx.DB, log *slog.Logger) *ReputationRepository {
	return &ReputationRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *ReputationRepository) EnsureRecord(ctx context.Context, tx *sqlx.Tx, userID string, at time.Time) error {
	const op = "internal.repository.postgres.EnsureRecord"

	query, args, err := r.sq.Insert("reputation_records").
		Columns("user_id", "score", "created_at", "updated_at").
		Values(userID, domain.DefaultScore, at, at).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}

func (r *ReputationRepository) GetRecord(ctx context.Context, ext sqlx.ExtContext, userID string) (*domain.ReputationRecord, error) {
	const op = "internal.repository.postgres.GetRecord"

	query, args, err := r.sq.Select(reputationColumns).
		From("reputation_records").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var rec domain.ReputationRecord
	if err := sqlx.GetContext(ctx, ext, &rec, query, args...); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s: %w: reputation record for user '%s'", op, apperrors.ErrNotFound, userID)
		}

		return nil, fmt.Errorf("%s: failed to get record: %w", op, err)
	}

	return &rec, nil
}

func (r *ReputationRepository) GetScoreWithLock(ctx context.Context, tx *sqlx.Tx, userID string) (int, error) {
	const op = "internal.repository.postgres.GetScoreWithLock"

	query, args, err := r.sq.Select("score").
		From("reputation_records").
		Where(sq.Eq{"user_id": userID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var score int
	if err := tx.GetContext(ctx, &score, query, args...); err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("%s: %w: reputation record for user '%s'", op, apperrors.ErrNotFound, userID)
		}

		return 0, fmt.Errorf("%s: failed to get score: %w", op, err)
	}

	return score, nil
}

func (r *ReputationRepository) InsertEntry(ctx context.Context, tx *sqlx.Tx, e *domain.ReputationEntry) (bool, error) {
	const op = "internal.repository.postgres.InsertEntry"

	query, args, err := r.sq.Insert("reputation_history").
		Columns("user_id", "delta", "reason", "content_type", "content_id", "source_event_id", "created_at").
		Values(e.UserID, e.Delta, e.Reason, e.ContentType, e.ContentID, e.SourceEventID, e.CreatedAt).
		Suffix("ON CONFLICT (source_event_id, reason) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}

	return rowsAffected == 1, nil
}

// counterUpdates adds the counter bumps a ledger reason implies alongside the
// score change. Violations also stamp last_violation_at.
func counterUpdates(builder sq.UpdateBuilder, reason domain.ReputationReason, at time.Time) sq.UpdateBuilder {
	switch reason {
	case domain.ReasonContentRemoved:
		builder = builder.
			Set("last_violation_at", at)
	case domain.ReasonHelpfulFlagConfirmed:
		builder = builder.
			Set("helpful_flags", sq.Expr("helpful_flags + 1")).
			Set("valid_reports", sq.Expr("valid_reports + 1")).
			Set("total_reports", sq.Expr("total_reports + 1"))
	case domain.ReasonFalseReportFiled:
		builder = builder.
			Set("false_reports", sq.Expr("false_reports + 1")).
			Set("total_reports", sq.Expr("total_reports + 1"))
	case domain.ReasonWarningIssued:
		builder = builder.
			Set("warnings", sq.Expr("warnings + 1")).
			Set("last_violation_at", at)
	case domain.ReasonSuspensionIssued:
		builder = builder.
			Set("suspensions", sq.Expr("suspensions + 1")).
			Set("last_violation_at", at)
	}

	return builder
}

func (r *ReputationRepository) ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID string, delta int, reason domain.ReputationReason, at time.Time) (int, error) {
	const op = "internal.repository.postgres.ApplyDelta"

	updateBuilder := r.sq.Update("reputation_records").
		Set("score", sq.Expr("score + ?", delta)).
		Set("updated_at", at).
		Where(sq.Eq{"user_id": userID}).
		Suffix("RETURNING score")

	updateBuilder = counterUpdates(updateBuilder, reason, at)

	query, args, err := updateBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	var newScore int
	if err := tx.GetContext(ctx, &newScore, query, args...); err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("%s: %w: reputation record for user '%s'", op, apperrors.ErrNotFound, userID)
		}

		return 0, fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	return newScore, nil
}

func (r *ReputationRepository) SumHistory(ctx context.Context, ext sqlx.ExtContext, userID string) (int, error) {
	const op = "internal.repository.postgres.SumHistory"

	query, args, err := r.sq.Select("COALESCE(SUM(delta), 0)").
		From("reputation_history").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var sum int
	if err := sqlx.GetContext(ctx, ext, &sum, query, args...); err != nil {
		return 0, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	// The default score is the ledger's starting point, not an entry.
	return domain.DefaultScore + sum, nil
}

func (r *ReputationRepository) ParkRetry(ctx context.Context, tx *sqlx.Tx, retry *domain.ReputationRetry) error {
	const op = "internal.repository.postgres.ParkRetry"

	query, args, err := r.sq.Insert("reputation_retries").
		Columns("user_id", "reason", "content_type", "content_id", "source_event_id", "attempts", "created_at", "next_attempt_at").
		Values(retry.UserID, retry.Reason, retry.ContentType, retry.ContentID, retry.SourceEventID, retry.Attempts, retry.CreatedAt, retry.NextAttemptAt).
		Suffix("ON CONFLICT (source_event_id, reason) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return nil
}

func (r *ReputationRepository) DueRetries(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.ReputationRetry, error) {
	const op = "internal.repository.postgres.DueRetries"

	query, args, err := r.sq.Select("id, user_id, reason, content_type, content_id, source_event_id, attempts, created_at, next_attempt_at").
		From("reputation_retries").
		Where(sq.LtOrEq{"next_attempt_at": now}).
		OrderBy("next_attempt_at ASC").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var retries []domain.ReputationRetry
	if err := tx.SelectContext(ctx, &retries, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	return retries, nil
}

func (r *ReputationRepository) DeleteRetry(ctx context.Context, tx *sqlx.Tx, id int64) error {
	const op = "internal.repository.postgres.DeleteRetry"

	query, args, err := r.sq.Delete("reputation_retries").
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

func (r *ReputationRepository) BumpRetry(ctx context.Context, tx *sqlx.Tx, id int64, nextAttemptAt time.Time) error {
	const op = "internal.repository.postgres.BumpRetry"

	query, args, err := r.sq.Update("reputation_retries").
		Set("attempts", sq.Expr("attempts + 1")).
		Set("next_attempt_at", nextAttemptAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	return nil
}
