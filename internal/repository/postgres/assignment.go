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

const assignmentColumns = "id, question_id, assigned_to, assigned_by, status, reason, deadline, offered_at, accepted_at, responded_at"

// activeStatuses are the assignment states that count as an open offer. The
// partial unique index uq_assignments_active guards the one-active-per-question
// invariant at the storage level as well.
var activeStatuses = []domain.AssignmentStatus{domain.AssignmentStatusAssigned, domain.AssignmentStatusAccepted}

type AssignmentRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewAssignmentRepository(db *sqlx.DB, log *slog.Logger) *AssignmentRepository {
	return &AssignmentRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *AssignmentRepository) CreateAssignment(ctx context.Context, tx *sqlx.Tx, a *domain.Assignment) (int64, error) {
	const op = "internal.repository.postgres.CreateAssignment"

	query, args, err := r.sq.Insert("assignments").
		Columns("question_id", "assigned_to", "assigned_by", "status", "deadline", "offered_at").
		Values(a.QuestionID, a.AssignedTo, a.AssignedBy, a.Status, a.Deadline, a.OfferedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				// uq_assignments_active: another active assignment landed first.
				return 0, fmt.Errorf("%s: %w: question '%d' already has an active assignment", op, apperrors.ErrConflict, a.QuestionID)
			}

			if pqErr.Code == "23503" {
				return 0, fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, a.QuestionID)
			}
		}

		return 0, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return id, nil
}

func (r *AssignmentRepository) GetAssignmentByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Assignment, error) {
	const op = "internal.repository.postgres.GetAssignmentByID"

	query, args, err := r.sq.Select(assignmentColumns).
		From("assignments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var a domain.Assignment
	if err := sqlx.GetContext(ctx, ext, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: assignment with id '%d'", op, apperrors.ErrNotFound, id)
		}

		return nil, fmt.Errorf("%s: failed to get assignment: %w", op, err)
	}

	return &a, nil
}

func (r *AssignmentRepository) GetActiveAssignment(ctx context.Context, ext sqlx.ExtContext, questionID int64) (*domain.Assignment, error) {
	const op = "internal.repository.postgres.GetActiveAssignment"

	query, args, err := r.sq.Select(assignmentColumns).
		From("assignments").
		Where(sq.Eq{"question_id": questionID, "status": activeStatuses}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var a domain.Assignment
	if err := sqlx.GetContext(ctx, ext, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w: active assignment for question '%d'", op, apperrors.ErrNotFound, questionID)
		}

		return nil, fmt.Errorf("%s: failed to get active assignment: %w", op, err)
	}

	return &a, nil
}

func (r *AssignmentRepository) GetTriedUserIDs(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error) {
	const op = "internal.repository.postgres.GetTriedUserIDs"

	query, args, err := r.sq.Select("assigned_to").
		From("assignments").
		Where(sq.Eq{"question_id": questionID}).
		OrderBy("offered_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var userIDs []string
	if err := sqlx.SelectContext(ctx, ext, &userIDs, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to select tried users: %w", op, err)
	}

	return userIDs, nil
}

func (r *AssignmentRepository) TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.AssignmentStatus, next domain.AssignmentStatus, reason *string, at time.Time) (bool, error) {
	const op = "internal.repository.postgres.TransitionAssignmentStatus"

	updateBuilder := r.sq.Update("assignments").
		Set("status", next).
		Set("responded_at", at).
		Where(sq.Eq{"id": id, "status": expected})

	if reason != nil {
		updateBuilder = updateBuilder.Set("reason", *reason)
	}

	// accepted_at marks the expert as an ever-accepted participant even if
	// the assignment later leaves the accepted state.
	if next == domain.AssignmentStatusAccepted {
		updateBuilder = updateBuilder.Set("accepted_at", at)
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
