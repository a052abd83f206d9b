package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/models"
	"github.com/rafaaw/ActivityPro-sub000/repository/memory"
)

// testClock is a controllable time source so session durations are exact.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingNotifier captures post-commit events in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) ActivityChanged(a *models.Activity, action string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fmt.Sprintf("%s:%d", action, a.ID))
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	copy(out, n.events)
	return out
}

func newTestEngine() (*engine.Engine, *memory.Store, *testClock, *recordingNotifier) {
	store := memory.NewStore()
	clock := newTestClock()
	notifier := &recordingNotifier{}
	eng := engine.New(store, notifier).WithClock(clock.Now)
	return eng, store, clock, notifier
}

func createSimple(t *testing.T, eng *engine.Engine, owner int) *models.Activity {
	t.Helper()
	a, err := eng.CreateActivity(context.Background(), engine.CreateParams{
		Title:    "inspect pump",
		Priority: models.PriorityHigh,
		OwnerID:  owner,
		SectorID: 1,
		ActorID:  owner,
	})
	require.NoError(t, err)
	return a
}

func TestCreateActivityDefaults(t *testing.T) {
	eng, store, _, notifier := newTestEngine()
	ctx := context.Background()

	a := createSimple(t, eng, 1)
	assert.Equal(t, models.StatusNext, a.Status)
	assert.Equal(t, models.KindSimple, a.Kind)
	assert.Equal(t, int64(0), a.TotalTime)
	assert.Nil(t, a.StartedAt)

	log, err := store.ListActivityLog(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.ActionCreated, log[0].Action)
	assert.Equal(t, a.Title, log[0].Title)

	assert.Equal(t, []string{fmt.Sprintf("created:%d", a.ID)}, notifier.actions())
}

func TestCreateActivityValidation(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	var validation *engine.ValidationError
	_, err := eng.CreateActivity(ctx, engine.CreateParams{Title: "  ", OwnerID: 1})
	require.ErrorAs(t, err, &validation)

	_, err = eng.CreateActivity(ctx, engine.CreateParams{
		Title: "x", OwnerID: 1, Kind: models.KindSimple, Subtasks: []string{"a"},
	})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "subtasks", validation.Field)
}

func TestSessionTotalConsistency(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	steps := []time.Duration{10 * time.Minute, 5 * time.Minute, 150 * time.Second}
	for i, d := range steps {
		_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
		require.NoError(t, err)
		clock.Advance(d)
		if i < len(steps)-1 {
			_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
			require.NoError(t, err)
		}
	}
	final, err := eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, int64(1050), final.TotalTime)
	require.NotNil(t, final.CompletedAt)

	sessions, err := eng.ListSessions(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	var sum int64
	for _, s := range sessions {
		require.NotNil(t, s.EndedAt, "all sessions must be closed")
		sum += s.Duration
	}
	assert.Equal(t, final.TotalTime, sum)

	open, err := eng.GetOpenSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestAuditCompleteness(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.NoError(t, err)

	log, err := eng.ListActivityLog(ctx, a.ID)
	require.NoError(t, err)
	var got []models.Action
	for _, entry := range log {
		got = append(got, entry.Action)
	}
	assert.Equal(t, []models.Action{
		models.ActionCreated,
		models.ActionStarted,
		models.ActionPaused,
		models.ActionStarted,
		models.ActionCompleted,
	}, got)

	completed := log[len(log)-1]
	require.NotNil(t, completed.TimeSpent)
	assert.Equal(t, int64(120), *completed.TimeSpent)
}

func TestSingleActiveInvariantConcurrent(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	const n = 8
	ids := make([]int, n)
	for i := range ids {
		ids[i] = createSimple(t, eng, 1).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Transition(ctx, ids[i], 1, models.StatusInProgress, engine.TransitionExtra{})
		}(i)
	}
	wg.Wait()

	var winners int
	var winnerID int
	for i, err := range errs {
		if err == nil {
			winners++
			winnerID = ids[i]
		}
	}
	require.Equal(t, 1, winners, "exactly one start must succeed")

	for _, err := range errs {
		if err == nil {
			continue
		}
		var active *engine.AlreadyActiveError
		require.ErrorAs(t, err, &active)
		assert.Equal(t, winnerID, active.ActiveID)
	}

	all, err := eng.ListByCollaborator(ctx, 1)
	require.NoError(t, err)
	inProgress := 0
	for _, a := range all {
		if a.Status == models.StatusInProgress {
			inProgress++
		}
	}
	assert.Equal(t, 1, inProgress)
}

func TestPauseThenStartCompound(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	first := createSimple(t, eng, 1)
	second := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, first.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)

	var active *engine.AlreadyActiveError
	_, err = eng.Transition(ctx, second.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.ID, active.ActiveID)

	// The compound action is two ordinary transitions in sequence.
	clock.Advance(time.Minute)
	_, err = eng.Transition(ctx, first.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)
	started, err := eng.Transition(ctx, second.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
}

func TestConcurrentPauseOneWins(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)
	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var invalid *engine.InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
	}
	assert.Equal(t, 1, winners)

	got, err := eng.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, got.Status)
	assert.Equal(t, int64(60), got.TotalTime)
}

func TestChecklistGate(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title:    "commissioning checks",
		Kind:     models.KindChecklist,
		OwnerID:  1,
		SectorID: 1,
		ActorID:  1,
		Subtasks: []string{"verify wiring", "test relays"},
	})
	require.NoError(t, err)

	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)

	var incomplete *engine.IncompleteSubtasksError
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.Remaining)

	subtasks, err := eng.ListSubtasks(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, subtasks, 2)

	_, err = eng.ToggleSubtask(ctx, subtasks[0].ID, 1, true)
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 1, incomplete.Remaining)

	_, err = eng.ToggleSubtask(ctx, subtasks[1].ID, 1, true)
	require.NoError(t, err)
	done, err := eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
}

func TestRetroactiveCreation(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	now := clock.Now()

	start := now.Add(-2 * time.Hour)
	end := start.Add(5400 * time.Second)
	notes := "backfilled from paper log"
	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title:           "valve replacement",
		OwnerID:         1,
		SectorID:        1,
		ActorID:         1,
		RetroStart:      &start,
		RetroEnd:        &end,
		CompletionNotes: &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, a.Status)
	assert.Equal(t, int64(5400), a.TotalTime)
	require.NotNil(t, a.StartedAt)
	require.NotNil(t, a.CompletedAt)

	open, err := eng.GetOpenSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open)

	log, err := eng.ListActivityLog(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.ActionCompleted, log[0].Action)
	require.NotNil(t, log[0].TimeSpent)
	assert.Equal(t, int64(5400), *log[0].TimeSpent)
}

func TestRetroactiveRangeRejected(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	now := clock.Now()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"end equals start", now.Add(-time.Hour), now.Add(-time.Hour)},
		{"end before start", now.Add(-time.Hour), now.Add(-2 * time.Hour)},
		{"end in future", now.Add(-time.Hour), now.Add(time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var retro *engine.InvalidRetroactiveRangeError
			_, err := eng.CreateActivity(ctx, engine.CreateParams{
				Title: "x", OwnerID: 1, SectorID: 1, ActorID: 1,
				RetroStart: &tc.start, RetroEnd: &tc.end,
			})
			require.ErrorAs(t, err, &retro)
		})
	}
}

func TestStartNowCreation(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title: "urgent fix", OwnerID: 1, SectorID: 1, ActorID: 1, StartNow: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, a.Status)
	require.NotNil(t, a.StartedAt)

	open, err := eng.GetOpenSession(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, open)

	var active *engine.AlreadyActiveError
	_, err = eng.CreateActivity(ctx, engine.CreateParams{
		Title: "second", OwnerID: 1, SectorID: 1, ActorID: 1, StartNow: true,
	})
	require.ErrorAs(t, err, &active)
	assert.Equal(t, a.ID, active.ActiveID)
}

func TestCancelFromInProgressClosesSession(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(90 * time.Second)

	var validation *engine.ValidationError
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCancelled, engine.TransitionExtra{})
	require.ErrorAs(t, err, &validation, "cancellation requires a reason")

	cancelled, err := eng.Transition(ctx, a.ID, 1, models.StatusCancelled,
		engine.TransitionExtra{CancelReason: "duplicate request"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(90), cancelled.TotalTime)
	require.NotNil(t, cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	open, err := eng.GetOpenSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestInvalidTransitions(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	var invalid *engine.InvalidTransitionError
	_, err := eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.ErrorAs(t, err, &invalid)

	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.ErrorAs(t, err, &invalid)

	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.ErrorAs(t, err, &invalid, "same-state transition is rejected")
}

func TestAdjustTime(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)

	// Subtracting more than accumulated is a hard error, never a clamp.
	var insufficient *engine.InsufficientTimeError
	_, err = eng.AdjustTime(ctx, a.ID, 2, 601, engine.DirectionSubtract, "typo fix")
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(600), insufficient.Available)

	got, err := eng.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.TotalTime)
	entries, err := eng.ListTimeAdjustments(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed adjustment must not write the ledger")

	adjusted, err := eng.AdjustTime(ctx, a.ID, 2, 300, engine.DirectionAdd, "forgot to start the timer")
	require.NoError(t, err)
	assert.Equal(t, int64(900), adjusted.TotalTime)

	entries, err = eng.ListTimeAdjustments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(600), entries[0].PreviousTime)
	assert.Equal(t, int64(900), entries[0].NewTime)
	assert.Equal(t, 2, entries[0].UserID)

	// Subtracting the exact total down to zero is allowed.
	zeroed, err := eng.AdjustTime(ctx, a.ID, 2, 900, engine.DirectionSubtract, "wrong activity")
	require.NoError(t, err)
	assert.Equal(t, int64(0), zeroed.TotalTime)
}

func TestAdjustTimeValidation(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	var validation *engine.ValidationError
	_, err := eng.AdjustTime(ctx, a.ID, 1, 0, engine.DirectionAdd, "r")
	require.ErrorAs(t, err, &validation)
	_, err = eng.AdjustTime(ctx, a.ID, 1, 60, "sideways", "r")
	require.ErrorAs(t, err, &validation)
	_, err = eng.AdjustTime(ctx, a.ID, 1, 60, engine.DirectionAdd, "   ")
	require.ErrorAs(t, err, &validation)

	// Status gate: adjustment only while paused or completed.
	var notAllowed *engine.AdjustmentNotAllowedError
	_, err = eng.AdjustTime(ctx, a.ID, 1, 60, engine.DirectionAdd, "reason")
	require.ErrorAs(t, err, &notAllowed)
	assert.Equal(t, models.StatusNext, notAllowed.Status)

	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	_, err = eng.AdjustTime(ctx, a.ID, 1, 60, engine.DirectionAdd, "reason")
	require.ErrorAs(t, err, &notAllowed)
}

func TestRevertCompletedToPaused(t *testing.T) {
	eng, _, clock, notifier := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	notes := "done"
	completed, err := eng.Transition(ctx, a.ID, 1, models.StatusCompleted,
		engine.TransitionExtra{CompletionNotes: &notes})
	require.NoError(t, err)

	logBefore, err := eng.ListActivityLog(ctx, a.ID)
	require.NoError(t, err)
	sessionsBefore, err := eng.ListSessions(ctx, a.ID)
	require.NoError(t, err)

	reverted, err := eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, reverted.Status)
	assert.Equal(t, completed.TotalTime, reverted.TotalTime, "revert must not alter total time")
	require.NotNil(t, reverted.CompletionNotes, "revert keeps notes, it is status-only")

	open, err := eng.GetOpenSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, open, "revert must not fabricate a session")

	logAfter, err := eng.ListActivityLog(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, logAfter, len(logBefore), "revert writes no timeline entry")
	sessionsAfter, err := eng.ListSessions(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, sessionsAfter, len(sessionsBefore))

	events := notifier.actions()
	assert.Equal(t, fmt.Sprintf("reverted:%d", a.ID), events[len(events)-1])

	// After the revert the activity is adjustable and resumable again.
	_, err = eng.AdjustTime(ctx, a.ID, 1, 60, engine.DirectionAdd, "post-revert fix")
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
}

func TestEditLockedInTerminalStatus(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title: "doc update", Kind: models.KindChecklist, OwnerID: 1, SectorID: 1, ActorID: 1,
		Subtasks: []string{"draft"},
	})
	require.NoError(t, err)

	subtasks, err := eng.ListSubtasks(ctx, a.ID)
	require.NoError(t, err)
	_, err = eng.ToggleSubtask(ctx, subtasks[0].ID, 1, true)
	require.NoError(t, err)

	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCancelled,
		engine.TransitionExtra{CancelReason: "superseded"})
	require.NoError(t, err)

	var locked *engine.ActivityLockedError
	_, err = eng.UpdateDetails(ctx, a.ID, 1, "new title", models.PriorityLow, "")
	require.ErrorAs(t, err, &locked)
	_, err = eng.ToggleSubtask(ctx, subtasks[0].ID, 1, false)
	require.ErrorAs(t, err, &locked)

	var invalid *engine.InvalidTransitionError
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.ErrorAs(t, err, &invalid, "cancelled is terminal")
}

func TestUpdateDetailsWhileEditable(t *testing.T) {
	eng, _, _, notifier := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	updated, err := eng.UpdateDetails(ctx, a.ID, 1, "inspect pump B", models.PriorityLow, "plant 2")
	require.NoError(t, err)
	assert.Equal(t, "inspect pump B", updated.Title)
	assert.Equal(t, models.PriorityLow, updated.Priority)
	assert.Equal(t, "plant 2", updated.Plant)

	events := notifier.actions()
	assert.Equal(t, fmt.Sprintf("updated:%d", a.ID), events[len(events)-1])
}

func TestNotFound(t *testing.T) {
	eng, _, _, _ := newTestEngine()
	ctx := context.Background()

	_, err := eng.GetActivity(ctx, 404)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.Transition(ctx, 404, 1, models.StatusInProgress, engine.TransitionExtra{})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.AdjustTime(ctx, 404, 1, 60, engine.DirectionAdd, "r")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = eng.ToggleSubtask(ctx, 404, 1, true)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// interposeStore wraps a Store and runs an armed callback just before the
// next atomic write, simulating a mutation that lands between the engine's
// reads and the commit.
type interposeStore struct {
	engine.Store
	mu     sync.Mutex
	before func()
}

func (s *interposeStore) arm(f func()) {
	s.mu.Lock()
	s.before = f
	s.mu.Unlock()
}

func (s *interposeStore) fire() {
	s.mu.Lock()
	f := s.before
	s.before = nil
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

func (s *interposeStore) ApplyTransition(ctx context.Context, plan *engine.TransitionPlan) (*models.Activity, error) {
	s.fire()
	return s.Store.ApplyTransition(ctx, plan)
}

func (s *interposeStore) SetSubtaskCompleted(ctx context.Context, id int, completed bool) (*models.Subtask, error) {
	s.fire()
	return s.Store.SetSubtaskCompleted(ctx, id, completed)
}

func TestChecklistGateHoldsAtCommit(t *testing.T) {
	inner := memory.NewStore()
	store := &interposeStore{Store: inner}
	eng := engine.New(store, nil)
	ctx := context.Background()

	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title:    "lockout checks",
		Kind:     models.KindChecklist,
		OwnerID:  1,
		SectorID: 1,
		ActorID:  1,
		Subtasks: []string{"isolate power"},
	})
	require.NoError(t, err)
	subtasks, err := eng.ListSubtasks(ctx, a.ID)
	require.NoError(t, err)
	_, err = eng.ToggleSubtask(ctx, subtasks[0].ID, 1, true)
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)

	// The subtask flips back to incomplete after the engine has read it
	// but before the status write commits.
	store.arm(func() {
		_, ferr := inner.SetSubtaskCompleted(ctx, subtasks[0].ID, false)
		require.NoError(t, ferr)
	})
	var incomplete *engine.IncompleteSubtasksError
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusCompleted, engine.TransitionExtra{})
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 1, incomplete.Remaining)

	got, err := eng.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, got.Status, "an unfinished checklist must never commit as completed")
}

func TestToggleSubtaskChecksStatusAtWrite(t *testing.T) {
	inner := memory.NewStore()
	store := &interposeStore{Store: inner}
	eng := engine.New(store, nil)
	ctx := context.Background()

	a, err := eng.CreateActivity(ctx, engine.CreateParams{
		Title:    "handover list",
		Kind:     models.KindChecklist,
		OwnerID:  1,
		SectorID: 1,
		ActorID:  1,
		Subtasks: []string{"sign off"},
	})
	require.NoError(t, err)
	subtasks, err := eng.ListSubtasks(ctx, a.ID)
	require.NoError(t, err)

	// The activity reaches a terminal status between the engine's
	// editability read and the subtask write.
	reason := "superseded"
	store.arm(func() {
		_, ferr := inner.ApplyTransition(ctx, &engine.TransitionPlan{
			ActivityID: a.ID,
			OwnerID:    1,
			From:       models.StatusNext,
			Patch:      engine.ActivityPatch{Status: models.StatusCancelled, CancelReason: &reason},
		})
		require.NoError(t, ferr)
	})
	var locked *engine.ActivityLockedError
	_, err = eng.ToggleSubtask(ctx, subtasks[0].ID, 1, true)
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, models.StatusCancelled, locked.Status)

	subtasks, err = eng.ListSubtasks(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, subtasks[0].Completed, "locked activities must not gain subtask edits")
}

func TestClockRegressionRejectedOnClose(t *testing.T) {
	eng, _, clock, _ := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(-time.Minute)

	var interval *engine.InvalidIntervalError
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.ErrorAs(t, err, &interval)

	got, err := eng.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, int64(0), got.TotalTime)
}

func TestNotifierEventOrdering(t *testing.T) {
	eng, _, clock, notifier := newTestEngine()
	ctx := context.Background()
	a := createSimple(t, eng, 1)

	_, err := eng.Transition(ctx, a.ID, 1, models.StatusInProgress, engine.TransitionExtra{})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = eng.Transition(ctx, a.ID, 1, models.StatusPaused, engine.TransitionExtra{})
	require.NoError(t, err)
	_, err = eng.AdjustTime(ctx, a.ID, 1, 30, engine.DirectionAdd, "calibration")
	require.NoError(t, err)

	assert.Equal(t, []string{
		fmt.Sprintf("created:%d", a.ID),
		fmt.Sprintf("started:%d", a.ID),
		fmt.Sprintf("paused:%d", a.ID),
		fmt.Sprintf("time_adjusted:%d", a.ID),
	}, notifier.actions())
}
