package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")

	ErrInvalidRequest = errors.New("invalid request body")
	ErrValidation     = errors.New("validation failed")

	// ErrConflict signals a lost compare-and-swap race on a status
	// transition. Callers may refetch and retry once.
	ErrConflict = errors.New("state transition conflict")

	ErrUnknownUser      = errors.New("user not known to directory")
	ErrContentNotFound  = errors.New("reported content does not exist")
	ErrForbidden        = errors.New("operation not permitted for this user")
	ErrQuestionClosed   = errors.New("question is closed")
	ErrNotParticipant   = errors.New("sender is not a participant of this question")
	ErrSelfReport       = errors.New("cannot report own content")
	ErrNoEligibleExpert = errors.New("no eligible expert for this area and tag")
)

type AssignmentConflictError struct {
	AssignmentID int64
	Current      string
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("assignment %d was already resolved as '%s'", e.AssignmentID, e.Current)
}
func (e *AssignmentConflictError) Is(target error) bool { return target == ErrConflict }

type ReportConflictError struct {
	ReportID int64
	Current  string
}

func (e *ReportConflictError) Error() string {
	return fmt.Sprintf("report %d is no longer claimable, current status '%s'", e.ReportID, e.Current)
}
func (e *ReportConflictError) Is(target error) bool { return target == ErrConflict }

type UnknownUserError struct{ UserID string }

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("user '%s' not known to directory", e.UserID)
}
func (e *UnknownUserError) Is(target error) bool { return target == ErrUnknownUser }
