package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/config"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
)

// ConversationThread is the per-question message log. Posting is restricted
// to participants (the asker and experts who ever accepted); an answer post
// flips the question to answered and starts the idle-close clock.
type ConversationThread interface {
	PostMessage(ctx context.Context, questionID int64, senderID, body string, isAnswer bool) (*domain.Message, error)

	MessagesOf(ctx context.Context, questionID int64) ([]domain.Message, error)

	ParticipantsOf(ctx context.Context, questionID int64) ([]string, error)
}

type ConversationThreadImpl struct {
	BaseService
	ext         sqlx.ExtContext
	cfg         config.Engine
	messages    repository.MessageRepository
	questions   repository.QuestionRepository
	assignments repository.AssignmentRepository
	timers      repository.TimerRepository
	notifier    external.Notifier
}

func NewConversationThread(
	db Transactor,
	ext sqlx.ExtContext,
	log *slog.Logger,
	cfg config.Engine,
	messages repository.MessageRepository,
	questions repository.QuestionRepository,
	assignments repository.AssignmentRepository,
	timers repository.TimerRepository,
	notifier external.Notifier,
) *ConversationThreadImpl {
	return &ConversationThreadImpl{
		BaseService: NewBaseService(db, log),
		ext:         ext,
		cfg:         cfg,
		messages:    messages,
		questions:   questions,
		assignments: assignments,
		timers:      timers,
		notifier:    notifier,
	}
}

func (s *ConversationThreadImpl) PostMessage(ctx context.Context, questionID int64, senderID, body string, isAnswer bool) (*domain.Message, error) {
	const op = "internal.service.thread.PostMessage"
	log := s.log.With(slog.String("op", op),
		slog.Int64("question_id", questionID), slog.String("sender_id", senderID))

	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%s: %w: message body is empty", op, apperrors.ErrValidation)
	}

	var (
		message  *domain.Message
		question *domain.Question
		answered bool
	)

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var err error

		question, err = s.questions.GetQuestionByIDWithLock(ctx, tx, questionID)
		if err != nil {
			return err
		}

		if question.Status == domain.QuestionStatusClosed {
			return fmt.Errorf("%s: %w: question '%d' is closed", op, apperrors.ErrQuestionClosed, questionID)
		}

		participants, err := s.messages.ParticipantsOf(ctx, tx, questionID)
		if err != nil {
			return err
		}

		if !slices.Contains(participants, senderID) {
			return fmt.Errorf("%s: %w: user '%s' is not a participant of question '%d'", op, apperrors.ErrNotParticipant, senderID, questionID)
		}

		now := time.Now().UTC()

		if isAnswer {
			answered, err = s.markAnswered(ctx, tx, question, senderID, now)
			if err != nil {
				return err
			}
		}

		message = &domain.Message{
			QuestionID: questionID,
			SenderID:   senderID,
			Body:       body,
			IsAnswer:   isAnswer && answered,
			CreatedAt:  now,
		}

		messageID, err := s.messages.InsertMessage(ctx, tx, message)
		if err != nil {
			return err
		}

		message.ID = messageID

		return nil
	})
	if err != nil {
		return nil, err
	}

	if answered {
		log.Info("question answered")

		external.LogError(s.log, s.notifier.Notify(ctx, question.AskerID, external.EventQuestionAnswered, map[string]any{
			"question_id": questionID,
		}))
	}

	return message, nil
}

// markAnswered flips routed -> answered when the currently accepted expert
// posts an answer. Answer posts by anyone else, or on a question not in
// routed state, fall back to plain messages rather than failing the post.
func (s *ConversationThreadImpl) markAnswered(ctx context.Context, tx *sqlx.Tx, question *domain.Question, senderID string, now time.Time) (bool, error) {
	const op = "internal.service.thread.markAnswered"

	if question.Status != domain.QuestionStatusRouted {
		return false, nil
	}

	active, err := s.assignments.GetActiveAssignment(ctx, tx, question.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	if active.AssignedTo != senderID || active.Status != domain.AssignmentStatusAccepted {
		return false, nil
	}

	ok, err := s.assignments.TransitionStatus(ctx, tx, active.ID,
		[]domain.AssignmentStatus{domain.AssignmentStatusAccepted}, domain.AssignmentStatusAnswered, nil, now)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, nil
	}

	ok, err = s.questions.TransitionStatus(ctx, tx, question.ID,
		[]domain.QuestionStatus{domain.QuestionStatusRouted}, domain.QuestionStatusAnswered, now)
	if err != nil {
		return false, err
	}

	if !ok {
		return false, fmt.Errorf("%s: %w: question '%d' left routed state mid-answer", op, apperrors.ErrConflict, question.ID)
	}

	question.Status = domain.QuestionStatusAnswered
	question.AnsweredAt = &now

	err = s.timers.Schedule(ctx, tx, &domain.Timer{
		Kind:       domain.TimerAnsweredIdleClose,
		QuestionID: question.ID,
		FireAt:     now.Add(s.cfg.AnsweredIdleClose),
		CreatedAt:  now,
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *ConversationThreadImpl) MessagesOf(ctx context.Context, questionID int64) ([]domain.Message, error) {
	const op = "internal.service.thread.MessagesOf"

	if _, err := s.questions.GetQuestionByID(ctx, s.ext, questionID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	messages, err := s.messages.MessagesOf(ctx, s.ext, questionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return messages, nil
}

func (s *ConversationThreadImpl) ParticipantsOf(ctx context.Context, questionID int64) ([]string, error) {
	const op = "internal.service.thread.ParticipantsOf"

	participants, err := s.messages.ParticipantsOf(ctx, s.ext, questionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return participants, nil
}
