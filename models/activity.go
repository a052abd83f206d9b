package models

import "time"

// Status is the closed set of lifecycle states an activity can be in.
// Transitions between statuses are owned by the engine package; nothing
// else writes this field.
type Status string

const (
	StatusNext       Status = "next"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNext, StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s normally accepts no further transitions.
// Completed is terminal except for the administrative revert to paused.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Kind distinguishes plain activities from checklist activities, whose
// subtasks gate completion.
type Kind string

const (
	KindSimple    Kind = "simple"
	KindChecklist Kind = "checklist"
)

func (k Kind) Valid() bool {
	return k == KindSimple || k == KindChecklist
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Activity is the trackable unit of work, owned by one collaborator.
// TotalTime is the durable accumulated seconds across closed sessions and
// manual adjustments; live elapsed display is computed client-side from
// TotalTime plus the open session, never stored.
type Activity struct {
	ID              int        `json:"id"`
	Title           string     `json:"title"`
	Kind            Kind       `json:"kind"`
	Priority        Priority   `json:"priority"`
	Plant           string     `json:"plant,omitempty"`
	Status          Status     `json:"status"`
	TotalTime       int64      `json:"totalTime"`
	OwnerID         int        `json:"ownerId"`
	SectorID        int        `json:"sectorId"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	PausedAt        *time.Time `json:"pausedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CancelReason    *string    `json:"cancelReason,omitempty"`
	CompletionNotes *string    `json:"completionNotes,omitempty"`
	EvidenceID      *string    `json:"evidenceId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ModifiedAt      time.Time  `json:"modifiedAt"`
}

// Editable reports whether mutable fields (title, priority, plant) may
// still change. Terminal statuses lock the activity.
func (a *Activity) Editable() bool {
	switch a.Status {
	case StatusNext, StatusInProgress, StatusPaused:
		return true
	}
	return false
}
