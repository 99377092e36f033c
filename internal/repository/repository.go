// package repository defines the interfaces for the data persistence layer.
// These interfaces abstract the underlying database implementation from the
// service layer. Status transitions are conditional writes: the CAS methods
// report false when the expected current status did not match, and callers
// treat that as a lost race, not a storage failure.
package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/veritasapp/qna-router-service/internal/domain"
)

// QuestionRepository manages question rows and their guarded transitions.
type QuestionRepository interface {
	// CreateQuestion inserts a new question and returns its generated id.
	CreateQuestion(ctx context.Context, tx *sqlx.Tx, q *domain.Question) (int64, error)

	// GetQuestionByID returns apperrors.ErrNotFound if the question does not exist.
	GetQuestionByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Question, error)

	// GetQuestionByIDWithLock acquires a row lock (FOR UPDATE) for the
	// duration of the transaction.
	GetQuestionByIDWithLock(ctx context.Context, tx *sqlx.Tx, id int64) (*domain.Question, error)

	// TransitionStatus updates status only when the current status is one of
	// expected. Returns false without error when the guard did not match.
	TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.QuestionStatus, next domain.QuestionStatus, at time.Time) (bool, error)

	// SetNeedsTriage flips the human-triage flag.
	SetNeedsTriage(ctx context.Context, tx *sqlx.Tx, id int64, needsTriage bool) error
}

// AssignmentRepository manages assignment rows. At most one assignment per
// question may be active ({assigned, accepted}); the engine enforces this
// through the CAS transition plus the partial unique index on active rows.
type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, tx *sqlx.Tx, a *domain.Assignment) (int64, error)

	GetAssignmentByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.Assignment, error)

	// GetActiveAssignment returns the single {assigned, accepted} assignment
	// of a question, or apperrors.ErrNotFound when none is active.
	GetActiveAssignment(ctx context.Context, ext sqlx.ExtContext, questionID int64) (*domain.Assignment, error)

	// GetTriedUserIDs returns every user who ever held an assignment for the
	// question, in offer order. Used to skip exhausted candidates on requeue.
	GetTriedUserIDs(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error)

	// TransitionStatus is the CAS guard for accept/decline/answer/expire.
	// Returns false without error when the row was not in expected status.
	TransitionStatus(ctx context.Context, tx *sqlx.Tx, id int64, expected []domain.AssignmentStatus, next domain.AssignmentStatus, reason *string, at time.Time) (bool, error)
}

// ExpertiseRepository serves the expertise index and the topic taxonomy.
type ExpertiseRepository interface {
	// Candidates ranks experts for (areaID, tagID): primary-tag, primary-area,
	// secondary-tag, secondary-area; within a tier by trust level descending,
	// then open-assignment load ascending. The ranking is computed fresh on
	// every call. Verification gating happens in the service layer against
	// the user directory.
	Candidates(ctx context.Context, areaID int64, tagID *int64) ([]domain.Candidate, error)

	// AreaExists reports whether the area id is part of the taxonomy.
	AreaExists(ctx context.Context, areaID int64) (bool, error)

	// TagExists reports whether the tag id belongs to the given area.
	TagExists(ctx context.Context, areaID, tagID int64) (bool, error)

	UpsertExpertise(ctx context.Context, tx *sqlx.Tx, e *domain.Expertise) error
}

// ReputationRepository persists the append-only ledger and the cached
// running score derived from it.
type ReputationRepository interface {
	// EnsureRecord creates the record with the default score when the user
	// has no reputation yet.
	EnsureRecord(ctx context.Context, tx *sqlx.Tx, userID string, at time.Time) error

	// GetRecord returns apperrors.ErrNotFound when no record exists.
	GetRecord(ctx context.Context, ext sqlx.ExtContext, userID string) (*domain.ReputationRecord, error)

	// GetScoreWithLock reads the cached score under a row lock (FOR UPDATE)
	// so the caller can clamp a delta and append it atomically.
	GetScoreWithLock(ctx context.Context, tx *sqlx.Tx, userID string) (int, error)

	// InsertEntry appends a ledger row. Returns false when an entry with the
	// same (source_event_id, reason) already exists, making replay a no-op.
	InsertEntry(ctx context.Context, tx *sqlx.Tx, e *domain.ReputationEntry) (bool, error)

	// ApplyDelta adds delta to the cached score and bumps the counters implied
	// by reason. Returns the new score. The caller clamps delta against the
	// soft cap before both the history insert and this call, keeping the
	// cached score equal to the replayed history at all times.
	ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID string, delta int, reason domain.ReputationReason, at time.Time) (int, error)

	// SumHistory recomputes the score from the ledger, for audit checks.
	SumHistory(ctx context.Context, ext sqlx.ExtContext, userID string) (int, error)

	// ParkRetry stores a ledger application that failed on an unknown user.
	ParkRetry(ctx context.Context, tx *sqlx.Tx, r *domain.ReputationRetry) error

	// DueRetries claims parked entries ready for another attempt
	// (FOR UPDATE SKIP LOCKED).
	DueRetries(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.ReputationRetry, error)

	DeleteRetry(ctx context.Context, tx *sqlx.Tx, id int64) error

	// BumpRetry increments the attempt counter and reschedules.
	BumpRetry(ctx context.Context, tx *sqlx.Tx, id int64, nextAttemptAt time.Time) error
}

// ReportRepository manages content reports, corroborations and the claim queue.
type ReportRepository interface {
	GetReportByID(ctx context.Context, ext sqlx.ExtContext, id int64) (*domain.ContentReport, error)

	// GetOpenReportWithLock returns the open (pending) report for the content
	// pair with a row lock, or apperrors.ErrNotFound.
	GetOpenReportWithLock(ctx context.Context, tx *sqlx.Tx, contentType domain.ContentType, contentID int64) (*domain.ContentReport, error)

	CreateReport(ctx context.Context, tx *sqlx.Tx, r *domain.ContentReport) (int64, error)

	// AddCorroborator records a reporter against the report. Returns false
	// when this reporter already corroborated it.
	AddCorroborator(ctx context.Context, tx *sqlx.Tx, reportID int64, reporterID string) (bool, error)

	CorroboratorsOf(ctx context.Context, ext sqlx.ExtContext, reportID int64) ([]string, error)

	// Corroborate bumps the corroboration count and rewrites the priority.
	Corroborate(ctx context.Context, tx *sqlx.Tx, reportID int64, priority int) error

	// ClaimNext atomically claims the highest-priority pending report
	// (priority desc, created_at asc) for the moderator using
	// FOR UPDATE SKIP LOCKED, so concurrent moderators never claim the same
	// row. Returns apperrors.ErrNotFound when the queue is empty.
	ClaimNext(ctx context.Context, tx *sqlx.Tx, moderatorID string) (*domain.ContentReport, error)

	// ResolveCAS finishes a reviewing report claimed by this moderator.
	// Returns false when the report is not reviewing or owned by another
	// moderator.
	ResolveCAS(ctx context.Context, tx *sqlx.Tx, reportID int64, moderatorID string, decision domain.ReportStatus, at time.Time) (bool, error)

	// QueueDepth counts reports awaiting review.
	QueueDepth(ctx context.Context, ext sqlx.ExtContext) (int, error)
}

// MessageRepository is the append-only conversation log.
type MessageRepository interface {
	InsertMessage(ctx context.Context, tx *sqlx.Tx, m *domain.Message) (int64, error)

	MessagesOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]domain.Message, error)

	// LatestMessageAt returns the timestamp of the newest message of a
	// question, or zero time when the thread is empty.
	LatestMessageAt(ctx context.Context, ext sqlx.ExtContext, questionID int64) (time.Time, error)

	// ParticipantsOf returns the asker plus every expert whose assignment
	// ever reached accepted, for the authorization collaborator.
	ParticipantsOf(ctx context.Context, ext sqlx.ExtContext, questionID int64) ([]string, error)
}

// TimerRepository is the durable deferred-job store backing acceptance
// deadlines and idle-close policies.
type TimerRepository interface {
	Schedule(ctx context.Context, tx *sqlx.Tx, t *domain.Timer) error

	// CancelByAssignment removes pending timers of an assignment.
	CancelByAssignment(ctx context.Context, tx *sqlx.Tx, assignmentID int64) error

	// CancelByQuestion removes pending timers of a question, optionally
	// narrowed to one kind (empty kind cancels all).
	CancelByQuestion(ctx context.Context, tx *sqlx.Tx, questionID int64, kind domain.TimerKind) error

	// DueTimers claims fired timers with FOR UPDATE SKIP LOCKED so multiple
	// worker processes never double-fire.
	DueTimers(ctx context.Context, tx *sqlx.Tx, limit int, now time.Time) ([]domain.Timer, error)

	DeleteTimer(ctx context.Context, tx *sqlx.Tx, id int64) error
}
