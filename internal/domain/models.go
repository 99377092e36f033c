// package domain defines the core entities of the expert-routing and
// moderation engine, shared by the repository and service layers.
package domain

import "time"

type QuestionDomain string

const (
	DomainApologetics QuestionDomain = "apologetics"
	DomainPolemics    QuestionDomain = "polemics"
)

type QuestionStatus string

const (
	QuestionStatusNew      QuestionStatus = "new"
	QuestionStatusRouted   QuestionStatus = "routed"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusClosed   QuestionStatus = "closed"
)

type AssignmentStatus string

const (
	AssignmentStatusAssigned AssignmentStatus = "assigned"
	AssignmentStatusAccepted AssignmentStatus = "accepted"
	AssignmentStatusDeclined AssignmentStatus = "declined"
	AssignmentStatusAnswered AssignmentStatus = "answered"
	AssignmentStatusExpired  AssignmentStatus = "expired"
)

// IsTerminal reports whether the assignment can no longer change state.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusDeclined || s == AssignmentStatusAnswered || s == AssignmentStatusExpired
}

type ExpertiseLevel string

const (
	ExpertiseLevelPrimary   ExpertiseLevel = "primary"
	ExpertiseLevelSecondary ExpertiseLevel = "secondary"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusReviewing ReportStatus = "reviewing"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

type ReportReason string

const (
	ReportReasonSpam           ReportReason = "spam"
	ReportReasonAbuse          ReportReason = "abuse"
	ReportReasonMisinformation ReportReason = "misinformation"
	ReportReasonOffTopic       ReportReason = "off_topic"
	ReportReasonOther          ReportReason = "other"
)

// reasonSeverity weights report reasons for queue priority. Unknown reasons
// are rejected at intake, so the zero value never reaches the queue.
var reasonSeverity = map[ReportReason]int{
	ReportReasonAbuse:          5,
	ReportReasonMisinformation: 4,
	ReportReasonSpam:           3,
	ReportReasonOffTopic:       2,
	ReportReasonOther:          1,
}

func (r ReportReason) Severity() int { return reasonSeverity[r] }

func (r ReportReason) Valid() bool {
	_, ok := reasonSeverity[r]
	return ok
}

type ContentType string

const (
	ContentTypeQuestion        ContentType = "question"
	ContentTypeQuestionMessage ContentType = "question_message"
	ContentTypePost            ContentType = "post"
	ContentTypeComment         ContentType = "comment"
	ContentTypeUserProfile     ContentType = "user_profile"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeQuestion, ContentTypeQuestionMessage, ContentTypePost, ContentTypeComment, ContentTypeUserProfile:
		return true
	}
	return false
}

// ReputationReason identifies the system event behind a ledger entry. Score
// deltas are keyed by reason and never supplied by callers.
type ReputationReason string

const (
	ReasonContentRemoved       ReputationReason = "content_removed"
	ReasonHelpfulFlagConfirmed ReputationReason = "helpful_flag_confirmed"
	ReasonFalseReportFiled     ReputationReason = "false_report_filed"
	ReasonWarningIssued        ReputationReason = "warning_issued"
	ReasonSuspensionIssued     ReputationReason = "suspension_issued"
)

var reasonDeltas = map[ReputationReason]int{
	ReasonContentRemoved:       -15,
	ReasonHelpfulFlagConfirmed: 5,
	ReasonFalseReportFiled:     -5,
	ReasonWarningIssued:        -10,
	ReasonSuspensionIssued:     -25,
}

// DeltaFor returns the fixed score delta for a reason. The bool is false for
// reasons the ledger does not know, which must be rejected before persisting.
func DeltaFor(reason ReputationReason) (int, bool) {
	d, ok := reasonDeltas[reason]
	return d, ok
}

const (
	DefaultScore = 100
	// ScoreSoftCap bounds the running score from above; deltas that would
	// push past it are clamped. There is no lower bound.
	ScoreSoftCap = 500
)

// TrustLevelOf is the step function mapping a score to a 1..5 trust tier.
// It is always derived from the score, never stored.
func TrustLevelOf(score int) int {
	switch {
	case score < 40:
		return 1
	case score < 70:
		return 2
	case score < 100:
		return 3
	case score < 150:
		return 4
	default:
		return 5
	}
}

type Question struct {
	ID          int64          `db:"id" json:"id"`
	AskerID     string         `db:"asker_id" json:"asker_id"`
	Domain      QuestionDomain `db:"domain" json:"domain"`
	AreaID      int64          `db:"area_id" json:"area_id"`
	TagID       *int64         `db:"tag_id" json:"tag_id,omitempty"`
	Text        string         `db:"text" json:"text"`
	Status      QuestionStatus `db:"status" json:"status"`
	NeedsTriage bool           `db:"needs_triage" json:"needs_triage"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	AnsweredAt  *time.Time     `db:"answered_at" json:"answered_at,omitempty"`
	ClosedAt    *time.Time     `db:"closed_at" json:"closed_at,omitempty"`
}

type Assignment struct {
	ID          int64            `db:"id" json:"id"`
	QuestionID  int64            `db:"question_id" json:"question_id"`
	AssignedTo  string           `db:"assigned_to" json:"assigned_to"`
	AssignedBy  *string          `db:"assigned_by" json:"assigned_by,omitempty"`
	Status      AssignmentStatus `db:"status" json:"status"`
	Reason      *string          `db:"reason" json:"reason,omitempty"`
	Deadline    time.Time        `db:"deadline" json:"deadline"`
	OfferedAt   time.Time        `db:"offered_at" json:"offered_at"`
	AcceptedAt  *time.Time       `db:"accepted_at" json:"accepted_at,omitempty"`
	RespondedAt *time.Time       `db:"responded_at" json:"responded_at,omitempty"`
}

type Expertise struct {
	UserID string         `db:"user_id"`
	AreaID int64          `db:"area_id"`
	TagID  *int64         `db:"tag_id"`
	Level  ExpertiseLevel `db:"level"`
}

// Candidate is one row of the expertise index ranking: an expert together
// with the tier they matched on and their current open-assignment load.
type Candidate struct {
	UserID     string `db:"user_id"`
	Tier       int    `db:"tier"`
	TrustLevel int    `db:"trust_level"`
	OpenLoad   int    `db:"open_load"`
}

type ReputationRecord struct {
	UserID          string     `db:"user_id"`
	Score           int        `db:"score"`
	TotalReports    int        `db:"total_reports"`
	ValidReports    int        `db:"valid_reports"`
	FalseReports    int        `db:"false_reports"`
	HelpfulFlags    int        `db:"helpful_flags"`
	Warnings        int        `db:"warnings"`
	Suspensions     int        `db:"suspensions"`
	LastViolationAt *time.Time `db:"last_violation_at"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r *ReputationRecord) TrustLevel() int { return TrustLevelOf(r.Score) }

// ReputationEntry is one immutable row of the append-only ledger. The
// (SourceEventID, Reason) pair is unique so at-least-once retries of the same
// business event cannot double-apply.
type ReputationEntry struct {
	ID            int64            `db:"id"`
	UserID        string           `db:"user_id"`
	Delta         int              `db:"delta"`
	Reason        ReputationReason `db:"reason"`
	ContentType   *ContentType     `db:"content_type"`
	ContentID     *int64           `db:"content_id"`
	SourceEventID string           `db:"source_event_id"`
	CreatedAt     time.Time        `db:"created_at"`
}

type ContentReport struct {
	ID                 int64        `db:"id" json:"id"`
	ReporterID         string       `db:"reporter_id" json:"reporter_id"`
	ContentType        ContentType  `db:"content_type" json:"content_type"`
	ContentID          int64        `db:"content_id" json:"content_id"`
	ContentOwnerID     string       `db:"content_owner_id" json:"content_owner_id"`
	Reason             ReportReason `db:"reason" json:"reason"`
	Status             ReportStatus `db:"status" json:"status"`
	CorroborationCount int          `db:"corroboration_count" json:"corroboration_count"`
	Priority           int          `db:"priority" json:"priority"`
	ModeratorID        *string      `db:"moderator_id" json:"moderator_id,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ResolvedAt         *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
}

type Message struct {
	ID         int64     `db:"id" json:"id"`
	QuestionID int64     `db:"question_id" json:"question_id"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	Body       string    `db:"body" json:"body"`
	IsAnswer   bool      `db:"is_answer" json:"is_answer"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type TimerKind string

const (
	TimerAssignmentAccept  TimerKind = "assignment_accept"
	TimerAnsweredIdleClose TimerKind = "answered_idle_close"
	TimerQuestionIdleClose TimerKind = "question_idle_close"
)

// Timer is a durable deferred job. Firing a timer never acts directly: the
// worker re-validates the current assignment/question status first, so a
// stale timer on an already-resolved row is a no-op.
type Timer struct {
	ID           int64     `db:"id"`
	Kind         TimerKind `db:"kind"`
	QuestionID   int64     `db:"question_id"`
	AssignmentID *int64    `db:"assignment_id"`
	FireAt       time.Time `db:"fire_at"`
	CreatedAt    time.Time `db:"created_at"`
}

// ReputationRetry parks a ledger entry whose user the directory did not know
// at apply time. The worker re-attempts it until the directory catches up.
type ReputationRetry struct {
	ID            int64            `db:"id"`
	UserID        string           `db:"user_id"`
	Reason        ReputationReason `db:"reason"`
	ContentType   *ContentType     `db:"content_type"`
	ContentID     *int64           `db:"content_id"`
	SourceEventID string           `db:"source_event_id"`
	Attempts      int              `db:"attempts"`
	CreatedAt     time.Time        `db:"created_at"`
	NextAttemptAt time.Time        `db:"next_attempt_at"`
}
