package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

// ErrNotFound is returned when the referenced activity or subtask does not
// exist (or is not visible to the caller).
var ErrNotFound = errors.New("not found")

// InvalidTransitionError reports a status change that is not legal from the
// activity's current status, including the case where a concurrent request
// already moved the activity away from the status the caller observed.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// AlreadyActiveError reports a violation of the one-in-progress-activity-
// per-collaborator invariant. ActiveID is the conflicting activity, so the
// caller can offer a pause-then-start compound action.
type AlreadyActiveError struct {
	OwnerID  int
	ActiveID int
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("collaborator %d already has activity %d in progress", e.OwnerID, e.ActiveID)
}

// IncompleteSubtasksError reports a completion attempt on a checklist
// activity with unfinished subtasks.
type IncompleteSubtasksError struct {
	Remaining int
}

func (e *IncompleteSubtasksError) Error() string {
	return fmt.Sprintf("checklist has %d incomplete subtask(s)", e.Remaining)
}

// InsufficientTimeError reports a subtraction that would drive the
// accumulated total below zero. Never clamped; the caller must correct the
// amount.
type InsufficientTimeError struct {
	Requested int64
	Available int64
}

func (e *InsufficientTimeError) Error() string {
	return fmt.Sprintf("cannot subtract %ds: only %ds accumulated", e.Requested, e.Available)
}

// InvalidRetroactiveRangeError reports a retroactive creation whose range is
// empty, inverted, or ends in the future.
type InvalidRetroactiveRangeError struct {
	Start  time.Time
	End    time.Time
	Detail string
}

func (e *InvalidRetroactiveRangeError) Error() string {
	return fmt.Sprintf("invalid retroactive range [%s, %s]: %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Detail)
}

// InvalidIntervalError reports a session that would close before it
// started, which can only happen when the wall clock moves backwards.
type InvalidIntervalError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("session interval [%s, %s] has negative length",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// AdjustmentNotAllowedError reports a manual time adjustment attempted
// outside the paused or completed statuses.
type AdjustmentNotAllowedError struct {
	Status models.Status
}

func (e *AdjustmentNotAllowedError) Error() string {
	return fmt.Sprintf("time can only be adjusted while paused or completed, not %s", e.Status)
}

// ActivityLockedError reports an edit attempt on an activity in a terminal
// status.
type ActivityLockedError struct {
	Status models.Status
}

func (e *ActivityLockedError) Error() string {
	return fmt.Sprintf("activity is %s and no longer editable", e.Status)
}

// ValidationError reports malformed caller input before any state is touched.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}
