package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

const questionColumns = "id, asker_id, domain, area_id, tag_id, text, status, needs_triage, created_at, updated_at, answered_at, closed_at"

type QuestionRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewQuestionRepository(db *sqlx.DB, log *slog.Logger) *QuestionRepository {
	return &QuestionRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *QuestionRepository) CreateQuestion(ctx context.Context, tx *sqlx.Tx, q *domain.Question) (int64, error) {
	const op = "internal.repository.postgres.CreateQuestion"

	query, args, err := r.sq.Insert("questions").
		Columns("asker_id", "domain", "area_id", "tag_id", "text", "status", "needs_triage", "created_at", "updated_at").
		Values(q.AskerID, q.Domain, q.AreaID, q.TagID, q.Text, q.Status, q.NeedsTriage, q.CreatedAt, q.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return 0, fmt.Errorf("%s: %w: area '%d' or tag not found", op, apperrors.ErrNotFound, q.AreaID)
		}

		return 0, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return id, nil
}

func (r *QuestionRepository) GetQuestionByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Question, error) {
	const op = "internal.repository.postgres.GetQuestionByID"

	query, args, err := r.sq.Select(questionColumns).
		From("questions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var q domain.Question
	if err := sqlx.GetContext(ctx, ext, &q, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, id)
		}

		return nil, fmt.Errorf("%s: failed to get question: %w", op, err)
	}

	return &q, nil
}

func (r *QuestionRepository) GetQuestionByIDWithLock(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Question, error) {
	const op = "internal.repository.postgres.GetQuestionByIDWithLock"

	query, args, err := r.sq.Select(questionColumns).
		From("questions").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var q domain.Question
	if err := tx.GetContext(ctx, &q, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, id)
		}

		return nil, fmt.Errorf("%s: failed to get question with lock: %w", op, err)
	}

	return &q, nil
}

func (r *QuestionRepository) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.QuestionStatus, next domain.QuestionStatus, at time.Time) (bool, error) {
	const op = "internal.repository.postgres.TransitionQuestionStatus"

	updateBuilder := r.sq.Update("questions").
		Set("status", next).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "status": expected})

	switch next {
	case domain.QuestionStatusAnswered:
		updateBuilder = updateBuilder.Set("answered_at", at)
	case domain.QuestionStatusClosed:
		updateBuilder = updateBuilder.Set("closed_at", at)
	}

	query, args, err := updateBuilder.ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: failed to read rows affected: %w", op, err)
	}

	return rowsAffected == 1, nil
}

func (r *QuestionRepository) SetNeedsTriage(ctx context.Context, tx *sqlx.Tx, id int64, needsTriage bool) error {
	const op = "internal.repository.postgres.SetNeedsTriage"

	query, args, err := r.sq.Update("questions").
		Set("needs_triage", needsTriage).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to execute update: %w", op, err)
	}

	if rowsAffected, err := res.RowsAffected(); err == nil && rowsAffected == 0 {
		return fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, id)
	}

	return nil
}
