package models

import "time"

// Subtask is a checklist item owned by one checklist activity.
type Subtask struct {
	ID         int       `json:"id"`
	ActivityID int       `json:"activityId"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
