package models

import "time"

// Session is one contiguous timing interval for an activity. At most one
// session per activity may be open (EndedAt nil) at any time; the engine
// opens a session entering in_progress and closes it on the way out.
type Session struct {
	ID         int        `json:"id"`
	ActivityID int        `json:"activityId"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
	Duration   int64      `json:"duration"`
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.EndedAt == nil
}
