package models

import "time"

// Action tags a lifecycle event in the activity log.
type Action string

const (
	ActionCreated   Action = "created"
	ActionStarted   Action = "started"
	ActionPaused    Action = "paused"
	ActionCompleted Action = "completed"
	ActionCancelled Action = "cancelled"
)

// ActivityLogEntry is an immutable timeline record of a lifecycle event.
// Title is a snapshot taken at log time so the feed survives later edits.
type ActivityLogEntry struct {
	ID         int       `json:"id"`
	ActivityID int       `json:"activityId"`
	UserID     int       `json:"userId"`
	Action     Action    `json:"action"`
	Title      string    `json:"title"`
	TimeSpent  *int64    `json:"timeSpent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TimeAdjustmentLogEntry is an immutable audit record of a manual correction
// to an activity's accumulated time. Never mutated or deleted.
type TimeAdjustmentLogEntry struct {
	ID           int       `json:"id"`
	ActivityID   int       `json:"activityId"`
	UserID       int       `json:"userId"`
	PreviousTime int64     `json:"previousTime"`
	NewTime      int64     `json:"newTime"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}
