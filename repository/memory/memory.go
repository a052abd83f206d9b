// Package memory provides an in-memory engine.Store used by tests and
// local development runs. Every Apply* method takes the store mutex for its
// whole critical section, giving the same atomicity the Postgres
// implementation gets from transactions and partial unique indexes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rafaaw/ActivityPro-sub000/engine"
	"github.com/rafaaw/ActivityPro-sub000/models"
)

type Store struct {
	mu          sync.Mutex
	nextID      int
	activities  map[int]*models.Activity
	subtasks    map[int]*models.Subtask
	sessions    map[int]*models.Session
	activityLog []*models.ActivityLogEntry
	adjustments []*models.TimeAdjustmentLogEntry
}

var _ engine.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		activities: make(map[int]*models.Activity),
		subtasks:   make(map[int]*models.Subtask),
		sessions:   make(map[int]*models.Session),
	}
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func (s *Store) activeActivityFor(ownerID int) *models.Activity {
	for _, a := range s.activities {
		if a.OwnerID == ownerID && a.Status == models.StatusInProgress {
			return a
		}
	}
	return nil
}

func (s *Store) openSessionFor(activityID int) *models.Session {
	for _, sess := range s.sessions {
		if sess.ActivityID == activityID && sess.EndedAt == nil {
			return sess
		}
	}
	return nil
}

func clone(a *models.Activity) *models.Activity {
	c := *a
	return &c
}

func (s *Store) CreateActivity(ctx context.Context, a *models.Activity, subtasks []string, openSessionAt *time.Time, log *models.ActivityLogEntry) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Status == models.StatusInProgress {
		if active := s.activeActivityFor(a.OwnerID); active != nil {
			return nil, &engine.OwnerBusyError{OwnerID: a.OwnerID, ActiveID: active.ID}
		}
	}

	stored := clone(a)
	stored.ID = s.id()
	s.activities[stored.ID] = stored

	for _, title := range subtasks {
		st := &models.Subtask{
			ID:         s.id(),
			ActivityID: stored.ID,
			Title:      title,
			CreatedAt:  stored.CreatedAt,
			ModifiedAt: stored.CreatedAt,
		}
		s.subtasks[st.ID] = st
	}
	if openSessionAt != nil {
		sess := &models.Session{ID: s.id(), ActivityID: stored.ID, StartedAt: *openSessionAt}
		s.sessions[sess.ID] = sess
	}
	if log != nil {
		entry := *log
		entry.ID = s.id()
		entry.ActivityID = stored.ID
		s.activityLog = append(s.activityLog, &entry)
	}
	return clone(stored), nil
}

func (s *Store) GetActivity(ctx context.Context, id int) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return clone(a), nil
}

func (s *Store) listWhere(match func(*models.Activity) bool) []*models.Activity {
	var out []*models.Activity
	for _, a := range s.activities {
		if match(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListByOwner(ctx context.Context, ownerID int) ([]*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(func(a *models.Activity) bool { return a.OwnerID == ownerID }), nil
}

func (s *Store) ListBySector(ctx context.Context, sectorID int) ([]*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(func(a *models.Activity) bool { return a.SectorID == sectorID }), nil
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listWhere(func(*models.Activity) bool { return true }), nil
}

func (s *Store) UpdateActivityDetails(ctx context.Context, id int, title string, priority models.Priority, plant string) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if !a.Editable() {
		return nil, engine.ErrStatusChanged
	}
	a.Title = title
	a.Priority = priority
	a.Plant = plant
	a.ModifiedAt = time.Now()
	return clone(a), nil
}

func (s *Store) SetActivityEvidence(ctx context.Context, id int, evidenceID string) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	a.EvidenceID = &evidenceID
	a.ModifiedAt = time.Now()
	return clone(a), nil
}

func (s *Store) ApplyTransition(ctx context.Context, plan *engine.TransitionPlan) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[plan.ActivityID]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if a.Status != plan.From {
		return nil, engine.ErrStatusChanged
	}
	if plan.EnforceSingleOwner {
		if active := s.activeActivityFor(a.OwnerID); active != nil && active.ID != a.ID {
			return nil, &engine.OwnerBusyError{OwnerID: a.OwnerID, ActiveID: active.ID}
		}
	}
	if plan.RequireSubtasksDone {
		for _, st := range s.subtasks {
			if st.ActivityID == a.ID && !st.Completed {
				return nil, engine.ErrSubtasksIncomplete
			}
		}
	}
	if plan.OpenSessionAt != nil && s.openSessionFor(a.ID) != nil {
		return nil, engine.ErrSessionAlreadyOpen
	}
	var closing *models.Session
	if plan.CloseSessionAt != nil {
		closing = s.openSessionFor(a.ID)
		if closing == nil {
			return nil, engine.ErrNoOpenSession
		}
	}

	p := plan.Patch
	a.Status = p.Status
	if p.TotalTime != nil {
		a.TotalTime = *p.TotalTime
	}
	if p.StartedAt != nil {
		a.StartedAt = p.StartedAt
	}
	if p.PausedAt != nil {
		a.PausedAt = p.PausedAt
	}
	if p.CompletedAt != nil {
		a.CompletedAt = p.CompletedAt
	}
	if p.CancelledAt != nil {
		a.CancelledAt = p.CancelledAt
	}
	if p.CancelReason != nil {
		a.CancelReason = p.CancelReason
	}
	if p.CompletionNotes != nil {
		a.CompletionNotes = p.CompletionNotes
	}
	if p.EvidenceID != nil {
		a.EvidenceID = p.EvidenceID
	}
	a.ModifiedAt = time.Now()

	if plan.OpenSessionAt != nil {
		sess := &models.Session{ID: s.id(), ActivityID: a.ID, StartedAt: *plan.OpenSessionAt}
		s.sessions[sess.ID] = sess
	}
	if closing != nil {
		at := *plan.CloseSessionAt
		closing.EndedAt = &at
		closing.Duration = int64(at.Sub(closing.StartedAt).Seconds())
	}
	if plan.Log != nil {
		entry := *plan.Log
		entry.ID = s.id()
		s.activityLog = append(s.activityLog, &entry)
	}
	return clone(a), nil
}

func (s *Store) ApplyAdjustment(ctx context.Context, entry *models.TimeAdjustmentLogEntry) (*models.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[entry.ActivityID]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if a.TotalTime != entry.PreviousTime {
		return nil, engine.ErrStaleTotal
	}
	a.TotalTime = entry.NewTime
	a.ModifiedAt = time.Now()
	stored := *entry
	stored.ID = s.id()
	s.adjustments = append(s.adjustments, &stored)
	return clone(a), nil
}

func (s *Store) GetSubtask(ctx context.Context, id int) (*models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subtasks[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	c := *st
	return &c, nil
}

func (s *Store) ListSubtasks(ctx context.Context, activityID int) ([]*models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subtask
	for _, st := range s.subtasks {
		if st.ActivityID == activityID {
			c := *st
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetSubtaskCompleted(ctx context.Context, id int, completed bool) (*models.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subtasks[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	if a, ok := s.activities[st.ActivityID]; ok && !a.Editable() {
		return nil, engine.ErrStatusChanged
	}
	st.Completed = completed
	st.ModifiedAt = time.Now()
	c := *st
	return &c, nil
}

func (s *Store) GetOpenSession(ctx context.Context, activityID int) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.openSessionFor(activityID)
	if sess == nil {
		return nil, nil
	}
	c := *sess
	return &c, nil
}

func (s *Store) ListSessions(ctx context.Context, activityID int) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.ActivityID == activityID {
			c := *sess
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListActivityLog(ctx context.Context, activityID int) ([]*models.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ActivityLogEntry
	for _, entry := range s.activityLog {
		if entry.ActivityID == activityID {
			c := *entry
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) ListTimeAdjustments(ctx context.Context, activityID int) ([]*models.TimeAdjustmentLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TimeAdjustmentLogEntry
	for _, entry := range s.adjustments {
		if entry.ActivityID == activityID {
			c := *entry
			out = append(out, &c)
		}
	}
	return out, nil
}
