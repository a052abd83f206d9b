package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rafaaw/ActivityPro-sub000/models"
)

// Notifier receives the post-commit snapshot of every successful mutation.
// Delivery is best-effort and must never block or fail the mutation.
type Notifier interface {
	ActivityChanged(a *models.Activity, action string)
}

type noopNotifier struct{}

func (noopNotifier) ActivityChanged(*models.Activity, string) {}

// Broadcast action tags, in addition to the lifecycle actions.
const (
	EventCreated        = "created"
	EventUpdated        = "updated"
	EventReverted       = "reverted"
	EventSubtaskUpdated = "subtask_updated"
	EventTimeAdjusted   = "time_adjusted"
)

// adjustRetries bounds the compare-and-swap retry loop in AdjustTime when
// concurrent mutations keep moving the total.
const adjustRetries = 3

// Engine is the activity lifecycle and time-accounting core. All status
// changes, session accounting, and audit writes go through it; the HTTP
// layer never touches the store directly for mutations.
type Engine struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// New creates an Engine over the given store. A nil notifier disables
// broadcasting.
func New(store Store, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Engine{store: store, notifier: notifier, now: time.Now}
}

// WithClock overrides the time source. Tests use this to make session
// durations deterministic.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateParams describes a new activity. Exactly one of the three entry
// points applies: plain creation in next, StartNow for immediate timing, or
// RetroStart/RetroEnd for a backfilled completed activity.
type CreateParams struct {
	Title    string
	Kind     models.Kind
	Priority models.Priority
	Plant    string
	OwnerID  int
	SectorID int
	ActorID  int
	Subtasks []string

	StartNow bool

	RetroStart      *time.Time
	RetroEnd        *time.Time
	CompletionNotes *string
}

// CreateActivity validates the params and inserts the activity together
// with its subtasks, optional initial session, and creation log entry as
// one atomic unit.
func (e *Engine) CreateActivity(ctx context.Context, p CreateParams) (*models.Activity, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, &ValidationError{Field: "title", Detail: "must not be empty"}
	}
	if p.Kind == "" {
		p.Kind = models.KindSimple
	}
	if !p.Kind.Valid() {
		return nil, &ValidationError{Field: "kind", Detail: fmt.Sprintf("unknown kind %q", p.Kind)}
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, &ValidationError{Field: "priority", Detail: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	if p.Kind != models.KindChecklist && len(p.Subtasks) > 0 {
		return nil, &ValidationError{Field: "subtasks", Detail: "only checklist activities carry subtasks"}
	}
	retro := p.RetroStart != nil || p.RetroEnd != nil
	if retro && p.StartNow {
		return nil, &ValidationError{Field: "startNow", Detail: "retroactive creation cannot also start now"}
	}

	now := e.now()
	a := &models.Activity{
		Title:      strings.TrimSpace(p.Title),
		Kind:       p.Kind,
		Priority:   p.Priority,
		Plant:      strings.TrimSpace(p.Plant),
		Status:     models.StatusNext,
		OwnerID:    p.OwnerID,
		SectorID:   p.SectorID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	log := &models.ActivityLogEntry{
		UserID:    p.ActorID,
		Action:    models.ActionCreated,
		Title:     a.Title,
		CreatedAt: now,
	}
	var openAt *time.Time
	action := EventCreated

	switch {
	case retro:
		if p.RetroStart == nil || p.RetroEnd == nil {
			return nil, &ValidationError{Field: "retroactive", Detail: "both start and end are required"}
		}
		start, end := *p.RetroStart, *p.RetroEnd
		if !end.After(start) {
			return nil, &InvalidRetroactiveRangeError{Start: start, End: end, Detail: "end must be after start"}
		}
		if end.After(now) {
			return nil, &InvalidRetroactiveRangeError{Start: start, End: end, Detail: "end must not be in the future"}
		}
		total := int64(end.Sub(start).Seconds())
		a.Status = models.StatusCompleted
		a.TotalTime = total
		a.StartedAt = &start
		a.CompletedAt = &end
		a.CompletionNotes = p.CompletionNotes
		log.Action = models.ActionCompleted
		log.TimeSpent = &total
		action = string(models.ActionCompleted)
	case p.StartNow:
		a.Status = models.StatusInProgress
		a.StartedAt = &now
		openAt = &now
		log.Action = models.ActionStarted
		action = string(models.ActionStarted)
	}

	created, err := e.store.CreateActivity(ctx, a, p.Subtasks, openAt, log)
	if err != nil {
		var busy *OwnerBusyError
		if errors.As(err, &busy) {
			return nil, &AlreadyActiveError{OwnerID: p.OwnerID, ActiveID: busy.ActiveID}
		}
		return nil, fmt.Errorf("create activity: %w", err)
	}
	e.notifier.ActivityChanged(created, action)
	return created, nil
}

// TransitionExtra carries the target-status-specific payload: completion
// notes and evidence for completed, the mandatory reason for cancelled.
type TransitionExtra struct {
	CompletionNotes *string
	EvidenceID      *string
	CancelReason    string
}

// Transition moves the activity to the target status, enforcing the state
// machine, the single-active guard, and the checklist gate. The status
// write, session open/close, total-time update, and log append commit as
// one atomic unit; the broadcast fires only after the commit.
func (e *Engine) Transition(ctx context.Context, activityID, actorID int, target models.Status, extra TransitionExtra) (*models.Activity, error) {
	if !target.Valid() {
		return nil, &ValidationError{Field: "status", Detail: fmt.Sprintf("unknown status %q", target)}
	}
	a, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, target) {
		return nil, &InvalidTransitionError{From: a.Status, To: target}
	}

	now := e.now()
	plan := &TransitionPlan{
		ActivityID: a.ID,
		OwnerID:    a.OwnerID,
		From:       a.Status,
		Patch:      ActivityPatch{Status: target},
	}
	action := string(actionFor(target))

	// Revert is status-only: no session, no time change, no log entry.
	if a.Status == models.StatusCompleted && target == models.StatusPaused {
		updated, err := e.apply(ctx, plan, target)
		if err != nil {
			return nil, err
		}
		e.notifier.ActivityChanged(updated, EventReverted)
		return updated, nil
	}

	plan.Log = &models.ActivityLogEntry{
		ActivityID: a.ID,
		UserID:     actorID,
		Action:     actionFor(target),
		Title:      a.Title,
		CreatedAt:  now,
	}

	switch target {
	case models.StatusInProgress:
		plan.EnforceSingleOwner = true
		plan.OpenSessionAt = &now
		if a.StartedAt == nil {
			plan.Patch.StartedAt = &now
		}
	case models.StatusPaused:
		total, err := e.closedTotal(ctx, a, now, target)
		if err != nil {
			return nil, err
		}
		plan.Patch.TotalTime = &total
		plan.Patch.PausedAt = &now
		plan.CloseSessionAt = &now
	case models.StatusCompleted:
		// The checklist gate is enforced by the store inside the atomic
		// unit; a pre-check here could pass and still see a subtask flip
		// back before the commit.
		plan.RequireSubtasksDone = a.Kind == models.KindChecklist
		final := a.TotalTime
		if a.Status == models.StatusInProgress {
			total, err := e.closedTotal(ctx, a, now, target)
			if err != nil {
				return nil, err
			}
			final = total
			plan.Patch.TotalTime = &total
			plan.CloseSessionAt = &now
		}
		plan.Patch.CompletedAt = &now
		plan.Patch.CompletionNotes = extra.CompletionNotes
		plan.Patch.EvidenceID = extra.EvidenceID
		plan.Log.TimeSpent = &final
	case models.StatusCancelled:
		reason := strings.TrimSpace(extra.CancelReason)
		if reason == "" {
			return nil, &ValidationError{Field: "cancelReason", Detail: "must not be empty"}
		}
		if a.Status == models.StatusInProgress {
			total, err := e.closedTotal(ctx, a, now, target)
			if err != nil {
				return nil, err
			}
			plan.Patch.TotalTime = &total
			plan.CloseSessionAt = &now
		}
		plan.Patch.CancelledAt = &now
		plan.Patch.CancelReason = &reason
	}

	updated, err := e.apply(ctx, plan, target)
	if err != nil {
		return nil, err
	}
	e.notifier.ActivityChanged(updated, action)
	return updated, nil
}

// closedTotal computes the accumulated total after closing the activity's
// open session at the given instant.
func (e *Engine) closedTotal(ctx context.Context, a *models.Activity, at time.Time, target models.Status) (int64, error) {
	sess, err := e.store.GetOpenSession(ctx, a.ID)
	if err != nil {
		return 0, fmt.Errorf("get open session: %w", err)
	}
	if sess == nil {
		// A concurrent transition may have closed the session between our
		// read of the activity and this point; that surfaces as an invalid
		// transition, not a ledger bug.
		if cur, gerr := e.store.GetActivity(ctx, a.ID); gerr == nil && cur.Status != a.Status {
			return 0, &InvalidTransitionError{From: cur.Status, To: target}
		}
		return 0, fmt.Errorf("activity %d in progress with no open session: %w", a.ID, ErrNoOpenSession)
	}
	dur := at.Sub(sess.StartedAt)
	if dur < 0 {
		return 0, &InvalidIntervalError{Start: sess.StartedAt, End: at}
	}
	return a.TotalTime + int64(dur.Seconds()), nil
}

// apply runs the plan through the store and maps store-level conflicts onto
// domain errors.
func (e *Engine) apply(ctx context.Context, plan *TransitionPlan, target models.Status) (*models.Activity, error) {
	updated, err := e.store.ApplyTransition(ctx, plan)
	if err == nil {
		return updated, nil
	}
	var busy *OwnerBusyError
	switch {
	case errors.As(err, &busy):
		return nil, &AlreadyActiveError{OwnerID: plan.OwnerID, ActiveID: busy.ActiveID}
	case errors.Is(err, ErrStatusChanged):
		from := plan.From
		if cur, gerr := e.store.GetActivity(ctx, plan.ActivityID); gerr == nil {
			from = cur.Status
		}
		return nil, &InvalidTransitionError{From: from, To: target}
	case errors.Is(err, ErrSubtasksIncomplete):
		remaining := 0
		if subtasks, lerr := e.store.ListSubtasks(ctx, plan.ActivityID); lerr == nil {
			for _, st := range subtasks {
				if !st.Completed {
					remaining++
				}
			}
		}
		return nil, &IncompleteSubtasksError{Remaining: remaining}
	case errors.Is(err, ErrSessionAlreadyOpen), errors.Is(err, ErrNoOpenSession):
		return nil, fmt.Errorf("session ledger inconsistency on activity %d: %w", plan.ActivityID, err)
	}
	return nil, fmt.Errorf("apply transition: %w", err)
}

// Direction selects whether a manual adjustment adds to or subtracts from
// the accumulated total.
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
)

func (d Direction) Valid() bool {
	return d == DirectionAdd || d == DirectionSubtract
}

// AdjustTime applies a manual correction to the activity's accumulated
// time and appends the audit ledger entry atomically with it. Subtractions
// below zero are rejected, never clamped. Permitted only while paused or
// completed.
func (e *Engine) AdjustTime(ctx context.Context, activityID, actorID int, amount int64, direction Direction, reason string) (*models.Activity, error) {
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Detail: "must be a positive number of seconds"}
	}
	if !direction.Valid() {
		return nil, &ValidationError{Field: "direction", Detail: fmt.Sprintf("unknown direction %q", direction)}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Detail: "must not be empty"}
	}

	var lastErr error
	for attempt := 0; attempt < adjustRetries; attempt++ {
		a, err := e.store.GetActivity(ctx, activityID)
		if err != nil {
			return nil, err
		}
		if a.Status != models.StatusPaused && a.Status != models.StatusCompleted {
			return nil, &AdjustmentNotAllowedError{Status: a.Status}
		}
		newTotal := a.TotalTime + amount
		if direction == DirectionSubtract {
			if amount > a.TotalTime {
				return nil, &InsufficientTimeError{Requested: amount, Available: a.TotalTime}
			}
			newTotal = a.TotalTime - amount
		}
		entry := &models.TimeAdjustmentLogEntry{
			ActivityID:   activityID,
			UserID:       actorID,
			PreviousTime: a.TotalTime,
			NewTime:      newTotal,
			Reason:       reason,
			CreatedAt:    e.now(),
		}
		updated, err := e.store.ApplyAdjustment(ctx, entry)
		if err == nil {
			e.notifier.ActivityChanged(updated, EventTimeAdjusted)
			return updated, nil
		}
		if !errors.Is(err, ErrStaleTotal) {
			return nil, fmt.Errorf("apply adjustment: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("adjust time on activity %d: %w", activityID, lastErr)
}

// ToggleSubtask flips a checklist item. Rejected once the owning activity
// reaches a terminal status.
func (e *Engine) ToggleSubtask(ctx context.Context, subtaskID, actorID int, completed bool) (*models.Subtask, error) {
	st, err := e.store.GetSubtask(ctx, subtaskID)
	if err != nil {
		return nil, err
	}
	a, err := e.store.GetActivity(ctx, st.ActivityID)
	if err != nil {
		return nil, err
	}
	if !a.Editable() {
		return nil, &ActivityLockedError{Status: a.Status}
	}
	// The store re-checks editability atomically with the write; the
	// activity may reach a terminal status between the read above and here.
	updated, err := e.store.SetSubtaskCompleted(ctx, subtaskID, completed)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			if cur, gerr := e.store.GetActivity(ctx, st.ActivityID); gerr == nil {
				return nil, &ActivityLockedError{Status: cur.Status}
			}
			return nil, &ActivityLockedError{Status: a.Status}
		}
		return nil, fmt.Errorf("set subtask completed: %w", err)
	}
	e.notifier.ActivityChanged(a, EventSubtaskUpdated)
	return updated, nil
}

// UpdateDetails edits the mutable fields while the activity is not in a
// terminal status.
func (e *Engine) UpdateDetails(ctx context.Context, activityID, actorID int, title string, priority models.Priority, plant string) (*models.Activity, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Detail: "must not be empty"}
	}
	if !priority.Valid() {
		return nil, &ValidationError{Field: "priority", Detail: fmt.Sprintf("unknown priority %q", priority)}
	}
	a, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !a.Editable() {
		return nil, &ActivityLockedError{Status: a.Status}
	}
	updated, err := e.store.UpdateActivityDetails(ctx, activityID, title, priority, strings.TrimSpace(plant))
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			if cur, gerr := e.store.GetActivity(ctx, activityID); gerr == nil {
				return nil, &ActivityLockedError{Status: cur.Status}
			}
			return nil, &ActivityLockedError{Status: a.Status}
		}
		return nil, fmt.Errorf("update details: %w", err)
	}
	e.notifier.ActivityChanged(updated, EventUpdated)
	return updated, nil
}

// AttachEvidence links an uploaded evidence object to the activity. Allowed
// while the activity is editable or already completed, since evidence is
// usually uploaded during or right after completion.
func (e *Engine) AttachEvidence(ctx context.Context, activityID, actorID int, evidenceID string) (*models.Activity, error) {
	if strings.TrimSpace(evidenceID) == "" {
		return nil, &ValidationError{Field: "evidenceId", Detail: "must not be empty"}
	}
	a, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a.Status == models.StatusCancelled {
		return nil, &ActivityLockedError{Status: a.Status}
	}
	updated, err := e.store.SetActivityEvidence(ctx, activityID, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("set evidence: %w", err)
	}
	e.notifier.ActivityChanged(updated, EventUpdated)
	return updated, nil
}

// Read accessors. Authorization (who may list what) is the caller's
// concern; the engine only scopes by the requested key.

func (e *Engine) GetActivity(ctx context.Context, id int) (*models.Activity, error) {
	return e.store.GetActivity(ctx, id)
}

func (e *Engine) GetOpenSession(ctx context.Context, activityID int) (*models.Session, error) {
	return e.store.GetOpenSession(ctx, activityID)
}

func (e *Engine) ListByCollaborator(ctx context.Context, ownerID int) ([]*models.Activity, error) {
	return e.store.ListByOwner(ctx, ownerID)
}

func (e *Engine) ListBySector(ctx context.Context, sectorID int) ([]*models.Activity, error) {
	return e.store.ListBySector(ctx, sectorID)
}

func (e *Engine) ListAll(ctx context.Context) ([]*models.Activity, error) {
	return e.store.ListAll(ctx)
}

func (e *Engine) ListSubtasks(ctx context.Context, activityID int) ([]*models.Subtask, error) {
	return e.store.ListSubtasks(ctx, activityID)
}

func (e *Engine) ListSessions(ctx context.Context, activityID int) ([]*models.Session, error) {
	return e.store.ListSessions(ctx, activityID)
}

func (e *Engine) ListActivityLog(ctx context.Context, activityID int) ([]*models.ActivityLogEntry, error) {
	return e.store.ListActivityLog(ctx, activityID)
}

func (e *Engine) ListTimeAdjustments(ctx context.Context, activityID int) ([]*models.TimeAdjustmentLogEntry, error) {
	return e.store.ListTimeAdjustments(ctx, activityID)
}
