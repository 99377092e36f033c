package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

type MessageRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	sq  sq.StatementBuilderType
}

func NewMessageRepository(db *sqlx.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{
		db:  db,
		log: log,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *MessageRepository) InsertMessage(ctx context.Context, tx *sqlx.Tx, m *domain.Message) (int64, error) {
	const op = "internal.repository.postgres.InsertMessage"

	query, args, err := r.sq.Insert("messages").
		Columns("question_id", "sender_id", "body", "is_answer", "created_at").
		Values(m.QuestionID, m.SenderID, m.Body, m.IsAnswer, m.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return 0, fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, m.QuestionID)
		}

		return 0, fmt.Errorf("%s: failed to execute insert: %w", op, err)
	}

	return id, nil
}

func (r *MessageRepository) MessagesOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]domain.Message, error) {
	const op = "internal.repository.postgres.MessagesOf"

	query, args, err := r.sq.Select("id", "question_id", "sender_id", "body", "is_answer", "created_at").
		From("messages").
		Where(sq.Eq{"question_id": questionID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var messages []domain.Message
	if err := sqlx.SelectContext(ctx, ext, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to select messages: %w", op, err)
	}

	return messages, nil
}

func (r *MessageRepository) LatestMessageAt(ctx context.Context, ext sqlx.ExtContext, questionID int64) (time.Time, error) {
	const op = "internal.repository.postgres.LatestMessageAt"

	query, args, err := r.sq.Select("COALESCE(MAX(created_at), 'epoch'::timestamptz)").
		From("messages").
		Where(sq.Eq{"question_id": questionID}).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var latest time.Time
	if err := sqlx.GetContext(ctx, ext, &latest, query, args...); err != nil {
		return time.Time{}, fmt.Errorf("%s: failed to execute query: %w", op, err)
	}

	if latest.Unix() == 0 {
		return time.Time{}, nil
	}

	return latest, nil
}

func (r *MessageRepository) ParticipantsOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error) {
	const op = "internal.repository.postgres.ParticipantsOf"

	// The asker plus every expert whose assignment ever reached accepted
	// (including those who later answered or declined after accepting).
	query, args, err := r.sq.Select("q.asker_id AS user_id").
		From("questions q").
		Where(sq.Eq{"q.id": questionID}).
		Suffix(`UNION
			SELECT a.assigned_to AS user_id
			FROM assignments a
			WHERE a.question_id = ? AND a.accepted_at IS NOT NULL`, questionID).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var participants []string
	if err := sqlx.SelectContext(ctx, ext, &participants, query, args...); err != nil {
		return nil, fmt.Errorf("%s: failed to select participants: %w", op, err)
	}

	if len(participants) == 0 {
		return nil, fmt.Errorf("%s: %w: question with id '%d'", op, apperrors.ErrNotFound, questionID)
	}

	return participants, nil
}
