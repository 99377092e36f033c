package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/apperrors"
	"github.com/veritasapp/qna-router-service/internal/config"
	"github.com/veritasapp/qna-router-service/internal/domain"
	"github.com/veritasapp/qna-router-service/internal/external"
	"github.com/veritasapp/qna-router-service/internal/repository"
	"github.com/veritasapp/qna-router-service/pkg/logger/sl"
)

type AssignmentDecision string

const (
	DecisionAccept  AssignmentDecision = "accept"
	DecisionDecline AssignmentDecision = "decline"
)

const reasonWithdrawnByAsker = "withdrawn_by_asker"

// AssignmentEngine routes questions to experts and drives the question and
// assignment state machines. All status transitions are conditional writes;
// a lost race is resolved in favor of whichever transition landed first.
type AssignmentEngine interface {
	SubmitQuestion(ctx context.Context, askerID string, qDomain domain.QuestionDomain, areaID int64, tagID *int64, text string) (*domain.Question, error)
	RespondToAssignment(ctx context.Context, assignmentID int64, expertID string, decision AssignmentDecision, reason *string) (*domain.Assignment, error)
	CloseQuestion(ctx context.Context, questionID int64, byUserID string) (*domain.Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
}

type AssignmentEngineImpl struct {
	BaseService
	ext         sqlx.ExtContext
	cfg         config.Engine
	questions   repository.QuestionRepository
	assignments repository.AssignmentRepository
	timers      repository.TimerRepository
	index       ExpertiseIndex
	expertise   repository.ExpertiseRepository
	directory   external.Directory
	notifier    external.Notifier
}

func NewAssignmentEngine(
	db Transactor,
	ext sqlx.ExtContext,
	log *slog.Logger,
	cfg config.Engine,
	questions repository.QuestionRepository,
	assignments repository.AssignmentRepository,
	timers repository.TimerRepository,
	index ExpertiseIndex,
	expertise repository.ExpertiseRepository,
	directory external.Directory,
	notifier external.Notifier,
) *AssignmentEngineImpl {
	return &AssignmentEngineImpl{
		BaseService: NewBaseService(db, log),
		ext:         ext,
		cfg:         cfg,
		questions:   questions,
		assignments: assignments,
		timers:      timers,
		index:       index,
		expertise:   expertise,
		directory:   directory,
		notifier:    notifier,
	}
}

func (s *AssignmentEngineImpl) SubmitQuestion(ctx context.Context, askerID string, qDomain domain.QuestionDomain, areaID int64, tagID *int64, text string) (*domain.Question, error) {
	const op = "internal.service.assignment.SubmitQuestion"
	log := s.log.With(slog.String("op", op), slog.String("asker_id", askerID))

	if err := s.validateSubmission(ctx, qDomain, areaID, tagID, text); err != nil {
		return nil, err
	}

	if _, err := s.directory.GetUser(ctx, askerID); err != nil {
		return nil, fmt.Errorf("%s: asker lookup failed: %w", op, err)
	}

	candidates, err := s.index.Candidates(ctx, areaID, tagID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get candidates: %w", op, err)
	}

	now := time.Now().UTC()

	question := &domain.Question{
		AskerID:   askerID,
		Domain:    qDomain,
		AreaID:    areaID,
		TagID:     tagID,
		Text:      text,
		Status:    domain.QuestionStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var assignment *domain.Assignment

	err = s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		questionID, err := s.questions.CreateQuestion(ctx, tx, question)
		if err != nil {
			return err
		}

		question.ID = questionID

		// No eligible expert: the question stays new and is surfaced to
		// human triage; submission still succeeds for the asker.
		if len(candidates) == 0 {
			question.NeedsTriage = true

			if err := s.questions.SetNeedsTriage(ctx, tx, questionID, true); err != nil {
				return err
			}

			return s.timers.Schedule(ctx, tx, &domain.Timer{
				Kind:       domain.TimerQuestionIdleClose,
				QuestionID: questionID,
				FireAt:     now.Add(s.cfg.QuestionIdleClose),
				CreatedAt:  now,
			})
		}

		assignment, err = s.offerTo(ctx, tx, question, candidates[0], now)
		if err != nil {
			return err
		}

		ok, err := s.questions.TransitionStatus(ctx, tx, questionID,
			[]domain.QuestionStatus{domain.QuestionStatusNew}, domain.QuestionStatusRouted, now)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%s: %w: question '%d' left new state during submit", op, apperrors.ErrConflict, questionID)
		}

		question.Status = domain.QuestionStatusRouted

		return nil
	})
	if err != nil {
		return nil, err
	}

	questionsSubmittedTotal.Inc()

	if assignment == nil {
		questionsTriageTotal.Inc()
		log.Warn("question flagged for triage",
			sl.Err(apperrors.ErrNoEligibleExpert),
			slog.Int64("question_id", question.ID))

		s.notifyTriage(ctx, question)
	} else {
		log.Info("question routed",
			slog.Int64("question_id", question.ID),
			slog.String("expert_id", assignment.AssignedTo))

		s.notifyOffer(ctx, question, assignment)
	}

	return question, nil
}

func (s *AssignmentEngineImpl) validateSubmission(ctx context.Context, qDomain domain.QuestionDomain, areaID int64, tagID *int64, text string) error {
	const op = "internal.service.assignment.validateSubmission"

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s: %w: question text is empty", op, apperrors.ErrValidation)
	}

	if qDomain != domain.DomainApologetics && qDomain != domain.DomainPolemics {
		return fmt.Errorf("%s: %w: unknown domain '%s'", op, apperrors.ErrValidation, qDomain)
	}

	areaOK, err := s.expertise.AreaExists(ctx, areaID)
	if err != nil {
		return fmt.Errorf("%s: failed to check area: %w", op, err)
	}

	if !areaOK {
		return fmt.Errorf("%s: %w: unknown area '%d'", op, apperrors.ErrValidation, areaID)
	}

	if tagID != nil {
		tagOK, err := s.expertise.TagExists(ctx, areaID, *tagID)
		if err != nil {
			return fmt.Errorf("%s: failed to check tag: %w", op, err)
		}

		if !tagOK {
			return fmt.Errorf("%s: %w: tag '%d' does not belong to area '%d'", op, apperrors.ErrValidation, *tagID, areaID)
		}
	}

	return nil
}

// offerTo creates the active assignment and its acceptance deadline timer.
func (s *AssignmentEngineImpl) offerTo(ctx context.Context, tx *sqlx.Tx, question *domain.Question, expertID string, now time.Time) (*domain.Assignment, error) {
	const op = "internal.service.assignment.offerTo"

	assignment := &domain.Assignment{
		QuestionID: question.ID,
		AssignedTo: expertID,
		Status:     domain.AssignmentStatusAssigned,
		Deadline:   now.Add(s.cfg.AcceptTimeout),
		OfferedAt:  now,
	}

	assignmentID, err := s.assignments.CreateAssignment(ctx, tx, assignment)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create assignment: %w", op, err)
	}

	assignment.ID = assignmentID

	err = s.timers.Schedule(ctx, tx, &domain.Timer{
		Kind:         domain.TimerAssignmentAccept,
		QuestionID:   question.ID,
		AssignmentID: &assignmentID,
		FireAt:       assignment.Deadline,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to schedule acceptance timer: %w", op, err)
	}

	return assignment, nil
}

func (s *AssignmentEngineImpl) RespondToAssignment(ctx context.Context, assignmentID int64, expertID string, decision AssignmentDecision, reason *string) (*domain.Assignment, error) {
	const op = "internal.service.assignment.RespondToAssignment"
	log := s.log.With(slog.String("op", op),
		slog.Int64("assignment_id", assignmentID), slog.String("expert_id", expertID))

	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, fmt.Errorf("%s: %w: unknown decision '%s'", op, apperrors.ErrValidation, decision)
	}

	var (
		result *domain.Assignment
		next   *domain.Assignment
	)

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		assignment, err := s.assignments.GetAssignmentByID(ctx, tx, assignmentID)
		if err != nil {
			return err
		}

		if assignment.AssignedTo != expertID {
			return fmt.Errorf("%s: %w: assignment '%d' belongs to another expert", op, apperrors.ErrForbidden, assignmentID)
		}

		switch decision {
		case DecisionAccept:
			result, err = s.acceptTx(ctx, tx, assignment)
		case DecisionDecline:
			result, next, err = s.declineTx(ctx, tx, assignment, reason)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	if next != nil {
		question, err := s.questions.GetQuestionByID(ctx, s.ext, result.QuestionID)
		if err != nil {
			log.Error("failed to load question for requeue notification", sl.Err(err))
		} else {
			s.notifyOffer(ctx, question, next)
		}
	}

	log.Info("assignment responded", slog.String("status", string(result.Status)))

	return result, nil
}

// acceptTx moves assigned -> accepted. Repeating an accept on an already
// accepted assignment is a no-op; accepting a terminal assignment is a
// conflict resolved in favor of the earlier transition.
func (s *AssignmentEngineImpl) acceptTx(ctx context.Context, tx *sqlx.Tx, assignment *domain.Assignment) (*domain.Assignment, error) {
	const op = "internal.service.assignment.acceptTx"

	if assignment.Status == domain.AssignmentStatusAccepted {
		return assignment, nil
	}

	if assignment.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: %w", op, &apperrors.AssignmentConflictError{
			AssignmentID: assignment.ID,
			Current:      string(assignment.Status),
		})
	}

	now := time.Now().UTC()

	ok, err := s.assignments.TransitionStatus(ctx, tx, assignment.ID,
		[]domain.AssignmentStatus{domain.AssignmentStatusAssigned}, domain.AssignmentStatusAccepted, nil, now)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%s: %w", op, &apperrors.AssignmentConflictError{
			AssignmentID: assignment.ID,
			Current:      string(assignment.Status),
		})
	}

	// The acceptance deadline no longer applies.
	if err := s.timers.CancelByAssignment(ctx, tx, assignment.ID); err != nil {
		return nil, err
	}

	assignment.Status = domain.AssignmentStatusAccepted
	assignment.AcceptedAt = &now
	assignment.RespondedAt = &now

	return assignment, nil
}

// declineTx moves the assignment to declined and immediately offers the
// question to the next untried candidate. Exhausted candidate lists flag the
// question for human triage; it stays routed with no active assignment.
func (s *AssignmentEngineImpl) declineTx(ctx context.Context, tx *sqlx.Tx, assignment *domain.Assignment, reason *string) (*domain.Assignment, *domain.Assignment, error) {
	const op = "internal.service.assignment.declineTx"

	if assignment.Status == domain.AssignmentStatusDeclined {
		return assignment, nil, nil
	}

	if assignment.Status.IsTerminal() {
		return nil, nil, fmt.Errorf("%s: %w", op, &apperrors.AssignmentConflictError{
			AssignmentID: assignment.ID,
			Current:      string(assignment.Status),
		})
	}

	now := time.Now().UTC()

	ok, err := s.assignments.TransitionStatus(ctx, tx, assignment.ID,
		[]domain.AssignmentStatus{domain.AssignmentStatusAssigned, domain.AssignmentStatusAccepted},
		domain.AssignmentStatusDeclined, reason, now)
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", op, &apperrors.AssignmentConflictError{
			AssignmentID: assignment.ID,
			Current:      string(assignment.Status),
		})
	}

	if err := s.timers.CancelByAssignment(ctx, tx, assignment.ID); err != nil {
		return nil, nil, err
	}

	assignment.Status = domain.AssignmentStatusDeclined
	assignment.Reason = reason
	assignment.RespondedAt = &now

	question, err := s.questions.GetQuestionByIDWithLock(ctx, tx, assignment.QuestionID)
	if err != nil {
		return nil, nil, err
	}

	// Withdrawn or already closed questions are not requeued.
	if question.Status != domain.QuestionStatusRouted {
		return assignment, nil, nil
	}

	next, err := s.requeueTx(ctx, tx, question, now)
	if err != nil {
		return nil, nil, err
	}

	return assignment, next, nil
}

// requeueTx offers the question to the best untried candidate, or flags it
// for triage when every candidate has been tried.
func (s *AssignmentEngineImpl) requeueTx(ctx context.Context, tx *sqlx.Tx, question *domain.Question, now time.Time) (*domain.Assignment, error) {
	const op = "internal.service.assignment.requeueTx"

	tried, err := s.assignments.GetTriedUserIDs(ctx, tx, question.ID)
	if err != nil {
		return nil, err
	}

	triedSet := make(map[string]struct{}, len(tried))
	for _, id := range tried {
		triedSet[id] = struct{}{}
	}

	candidates, err := s.index.Candidates(ctx, question.AreaID, question.TagID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get candidates: %w", op, err)
	}

	for _, candidate := range candidates {
		if _, ok := triedSet[candidate]; ok {
			continue
		}

		return s.offerTo(ctx, tx, question, candidate, now)
	}

	if err := s.questions.SetNeedsTriage(ctx, tx, question.ID, true); err != nil {
		return nil, err
	}

	questionsTriageTotal.Inc()

	s.log.Warn("question flagged for triage",
		sl.Err(apperrors.ErrNoEligibleExpert),
		slog.Int64("question_id", question.ID))

	return nil, nil
}

func (s *AssignmentEngineImpl) CloseQuestion(ctx context.Context, questionID int64, byUserID string) (*domain.Question, error) {
	const op = "internal.service.assignment.CloseQuestion"
	log := s.log.With(slog.String("op", op), slog.Int64("question_id", questionID))

	var (
		question  *domain.Question
		withdrawn *domain.Assignment
	)

	err := s.transaction(ctx, op, func(tx *sqlx.Tx) error {
		var err error

		question, err = s.questions.GetQuestionByIDWithLock(ctx, tx, questionID)
		if err != nil {
			return err
		}

		// Closed is terminal and closing again is a no-op.
		if question.Status == domain.QuestionStatusClosed {
			return nil
		}

		if question.AskerID != byUserID {
			user, err := s.directory.GetUser(ctx, byUserID)
			if err != nil {
				return fmt.Errorf("%s: closer lookup failed: %w", op, err)
			}

			if !user.IsAdmin {
				return fmt.Errorf("%s: %w: only the asker or an admin may close question '%d'", op, apperrors.ErrForbidden, questionID)
			}
		}

		now := time.Now().UTC()

		// Withdrawal cancels the pending offer and frees the expert's slot.
		active, err := s.assignments.GetActiveAssignment(ctx, tx, questionID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if active != nil {
			reason := reasonWithdrawnByAsker

			ok, err := s.assignments.TransitionStatus(ctx, tx, active.ID,
				[]domain.AssignmentStatus{domain.AssignmentStatusAssigned, domain.AssignmentStatusAccepted},
				domain.AssignmentStatusDeclined, &reason, now)
			if err != nil {
				return err
			}

			if ok {
				active.Status = domain.AssignmentStatusDeclined
				active.Reason = &reason
				withdrawn = active
			}
		}

		ok, err := s.questions.TransitionStatus(ctx, tx, questionID,
			[]domain.QuestionStatus{domain.QuestionStatusNew, domain.QuestionStatusRouted, domain.QuestionStatusAnswered},
			domain.QuestionStatusClosed, now)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%s: %w: question '%d' changed state during close", op, apperrors.ErrConflict, questionID)
		}

		question.Status = domain.QuestionStatusClosed
		question.ClosedAt = &now

		return s.timers.CancelByQuestion(ctx, tx, questionID, "")
	})
	if err != nil {
		return nil, err
	}

	log.Info("question closed", slog.String("by_user_id", byUserID))

	if withdrawn != nil {
		external.LogError(s.log, s.notifier.Notify(ctx, withdrawn.AssignedTo, external.EventAssignmentDeclined, map[string]any{
			"question_id": question.ID,
			"reason":      reasonWithdrawnByAsker,
		}))
	}

	return question, nil
}

func (s *AssignmentEngineImpl) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	const op = "internal.service.assignment.GetQuestion"

	question, err := s.questions.GetQuestionByID(ctx, s.ext, questionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return question, nil
}

// expireAssignmentTx is the timer-fire path: it re-validates the current
// status before acting so a stale timer on a resolved assignment is a no-op.
// It returns the follow-up offer, if any, for post-commit notification.
func (s *AssignmentEngineImpl) expireAssignmentTx(ctx context.Context, tx *sqlx.Tx, assignmentID int64, now time.Time) (*domain.Assignment, *domain.Assignment, error) {
	const op = "internal.service.assignment.expireAssignmentTx"

	assignment, err := s.assignments.GetAssignmentByID(ctx, tx, assignmentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, nil
		}

		return nil, nil, err
	}

	if assignment.Status != domain.AssignmentStatusAssigned || assignment.Deadline.After(now) {
		return nil, nil, nil
	}

	ok, err := s.assignments.TransitionStatus(ctx, tx, assignmentID,
		[]domain.AssignmentStatus{domain.AssignmentStatusAssigned}, domain.AssignmentStatusExpired, nil, now)
	if err != nil {
		return nil, nil, err
	}

	if !ok {
		// A concurrent accept or decline won the race.
		return nil, nil, nil
	}

	assignmentsExpiredTotal.Inc()

	assignment.Status = domain.AssignmentStatusExpired
	assignment.RespondedAt = &now

	question, err := s.questions.GetQuestionByIDWithLock(ctx, tx, assignment.QuestionID)
	if err != nil {
		return nil, nil, err
	}

	if question.Status != domain.QuestionStatusRouted {
		return assignment, nil, nil
	}

	next, err := s.requeueTx(ctx, tx, question, now)
	if err != nil {
		return nil, nil, err
	}

	return assignment, next, nil
}

// autoCloseQuestionTx closes idle questions fired by close timers. The
// current status is re-validated so engagement since scheduling wins.
func (s *AssignmentEngineImpl) autoCloseQuestionTx(ctx context.Context, tx *sqlx.Tx, questionID int64, kind domain.TimerKind, now time.Time) (bool, error) {
	question, err := s.questions.GetQuestionByIDWithLock(ctx, tx, questionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	var expected domain.QuestionStatus

	switch kind {
	case domain.TimerAnsweredIdleClose:
		expected = domain.QuestionStatusAnswered
	case domain.TimerQuestionIdleClose:
		expected = domain.QuestionStatusNew
	default:
		return false, nil
	}

	if question.Status != expected {
		return false, nil
	}

	ok, err := s.questions.TransitionStatus(ctx, tx, questionID,
		[]domain.QuestionStatus{expected}, domain.QuestionStatusClosed, now)
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (s *AssignmentEngineImpl) notifyOffer(ctx context.Context, question *domain.Question, assignment *domain.Assignment) {
	external.LogError(s.log, s.notifier.Notify(ctx, assignment.AssignedTo, external.EventAssignmentOffered, map[string]any{
		"question_id":   question.ID,
		"assignment_id": assignment.ID,
		"deadline":      assignment.Deadline,
	}))

	external.LogError(s.log, s.notifier.Notify(ctx, question.AskerID, external.EventQuestionRouted, map[string]any{
		"question_id": question.ID,
	}))
}

func (s *AssignmentEngineImpl) notifyTriage(ctx context.Context, question *domain.Question) {
	if s.cfg.TriageModeratorID == "" {
		return
	}

	external.LogError(s.log, s.notifier.Notify(ctx, s.cfg.TriageModeratorID, external.EventQuestionTriage, map[string]any{
		"question_id": question.ID,
		"area_id":     question.AreaID,
	}))
}
