package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

// Store-level sentinel errors. These describe what the persistence layer
// observed; the engine translates them into the domain error types callers
// see.
var (
	// ErrStatusChanged means the compare-and-swap on status matched no row:
	// a concurrent request already transitioned the activity.
	ErrStatusChanged = errors.New("activity status changed concurrently")

	// ErrStaleTotal means the compare-and-swap on the accumulated total
	// matched no row: a concurrent mutation changed the total.
	ErrStaleTotal = errors.New("activity total changed concurrently")

	// ErrSubtasksIncomplete means the completion gate failed at commit
	// time: the checklist still had an unfinished subtask when the status
	// write was attempted.
	ErrSubtasksIncomplete = errors.New("checklist subtasks incomplete")

	// ErrSessionAlreadyOpen and ErrNoOpenSession indicate a session-ledger
	// inconsistency. The atomic transition guard normally makes them
	// unreachable; if observed they are surfaced as internal errors, never
	// silently resolved.
	ErrSessionAlreadyOpen = errors.New("session already open for activity")
	ErrNoOpenSession      = errors.New("no open session for activity")
)

// OwnerBusyError is returned by the store when a transition into
// in_progress would violate the one-active-activity-per-owner constraint.
// ActiveID is the activity currently holding the slot.
type OwnerBusyError struct {
	OwnerID  int
	ActiveID int
}

func (e *OwnerBusyError) Error() string {
	return "owner already has an in-progress activity"
}

// ActivityPatch is the set of field writes a transition applies. Nil
// pointer fields are left untouched.
type ActivityPatch struct {
	Status          models.Status
	TotalTime       *int64
	StartedAt       *time.Time
	PausedAt        *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
	CompletionNotes *string
	EvidenceID      *string
}

// TransitionPlan describes one status change as a single atomic unit: the
// compare-and-swap on status, the field patch, the session open or close,
// and the log append must all commit together or not at all.
type TransitionPlan struct {
	ActivityID int
	OwnerID    int

	// From is the status the engine observed; the store must apply the
	// plan only if the stored status still equals it (ErrStatusChanged
	// otherwise).
	From  models.Status
	Patch ActivityPatch

	// EnforceSingleOwner is set when Patch.Status is in_progress; the store
	// must fail with OwnerBusyError if the owner already holds an
	// in-progress activity, atomically with the status write.
	EnforceSingleOwner bool

	// RequireSubtasksDone is set when Patch.Status is completed on a
	// checklist activity; the store must fail with ErrSubtasksIncomplete
	// if any subtask is still incomplete, atomically with the status
	// write. Checking before the write is not enough: a subtask may flip
	// back between the read and the commit.
	RequireSubtasksDone bool

	OpenSessionAt  *time.Time
	CloseSessionAt *time.Time

	// Log, when non-nil, is appended in the same atomic unit. The revert
	// transition carries no log entry.
	Log *models.ActivityLogEntry
}

// Store is the persistence contract the engine requires: atomic
// check-and-mutate for transitions and adjustments, append-only inserts for
// the two ledgers, and plain reads. Implementations must make each Apply*
// method a single atomic unit with respect to concurrent callers, which may
// live in other processes; the engine never relies on in-process locking.
type Store interface {
	// CreateActivity inserts the activity, its subtasks, the optional
	// initial open session, and the creation log entry atomically. When the
	// initial status is in_progress the single-owner constraint applies as
	// in ApplyTransition. The stored activity (with assigned IDs) is
	// returned.
	CreateActivity(ctx context.Context, a *models.Activity, subtasks []string, openSessionAt *time.Time, log *models.ActivityLogEntry) (*models.Activity, error)

	// GetActivity returns ErrNotFound when no such activity exists.
	GetActivity(ctx context.Context, id int) (*models.Activity, error)
	ListByOwner(ctx context.Context, ownerID int) ([]*models.Activity, error)
	ListBySector(ctx context.Context, sectorID int) ([]*models.Activity, error)
	ListAll(ctx context.Context) ([]*models.Activity, error)

	// UpdateActivityDetails writes the mutable fields only while the stored
	// status still permits editing; ErrStatusChanged when the activity moved
	// to a terminal status concurrently.
	UpdateActivityDetails(ctx context.Context, id int, title string, priority models.Priority, plant string) (*models.Activity, error)

	// SetActivityEvidence records the evidence object reference.
	SetActivityEvidence(ctx context.Context, id int, evidenceID string) (*models.Activity, error)

	// ApplyTransition applies the plan atomically and returns the
	// activity as stored after the commit.
	ApplyTransition(ctx context.Context, plan *TransitionPlan) (*models.Activity, error)

	// ApplyAdjustment sets the activity's total to entry.NewTime and
	// appends the ledger entry, atomically, only if the stored total still
	// equals entry.PreviousTime (ErrStaleTotal otherwise).
	ApplyAdjustment(ctx context.Context, entry *models.TimeAdjustmentLogEntry) (*models.Activity, error)

	GetSubtask(ctx context.Context, id int) (*models.Subtask, error)
	ListSubtasks(ctx context.Context, activityID int) ([]*models.Subtask, error)

	// SetSubtaskCompleted flips the checklist item only while its owning
	// activity is still editable; ErrStatusChanged when the activity
	// reached a terminal status concurrently.
	SetSubtaskCompleted(ctx context.Context, id int, completed bool) (*models.Subtask, error)

	// GetOpenSession returns the open session for the activity, or nil.
	GetOpenSession(ctx context.Context, activityID int) (*models.Session, error)
	ListSessions(ctx context.Context, activityID int) ([]*models.Session, error)

	ListActivityLog(ctx context.Context, activityID int) ([]*models.ActivityLogEntry, error)
	ListTimeAdjustments(ctx context.Context, activityID int) ([]*models.TimeAdjustmentLogEntry, error)
}
