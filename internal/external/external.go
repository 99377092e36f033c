// package external holds the clients for the collaborator services the
// engine consumes: the user directory, the content store and the
// notification sink. The engine only ever sees the three interfaces here;
// HTTP details stay in this package.
package external

import (
	"context"

	"github.com/veritasapp/qna-router-service/internal/domain"
)

// User is the directory's view of an account. Verification is the single
// authoritative capability check for expert eligibility; no other flag
// competes with it.
type User struct {
	ID       string `json:"id"`
	Verified bool   `json:"verified"`
	IsAdmin  bool   `json:"is_admin"`
}

// Directory resolves user ids to capability attributes.
type Directory interface {
	// GetUser returns apperrors.ErrUnknownUser when the directory has no
	// record for the id.
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Content describes a stored content item as far as moderation needs it.
type Content struct {
	OwnerID string `json:"owner_id"`
}

// ContentStore validates report targets before intake.
type ContentStore interface {
	// Resolve returns the content's owner, or apperrors.ErrContentNotFound
	// when no such content exists.
	Resolve(ctx context.Context, contentType domain.ContentType, contentID int64) (*Content, error)
}

// Notifier is the fire-and-forget notification sink. Failures must be logged
// by the caller and never block the transition that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userID string, eventKind string, payload map[string]any) error
}

// Event kinds emitted by the engine.
const (
	EventQuestionRouted     = "question_routed"
	EventQuestionAnswered   = "question_answered"
	EventQuestionClosed     = "question_closed"
	EventQuestionTriage     = "question_needs_triage"
	EventAssignmentOffered  = "assignment_offered"
	EventAssignmentExpired  = "assignment_expired"
	EventAssignmentDeclined = "assignment_declined"
	EventReportResolved     = "report_resolved"
)
