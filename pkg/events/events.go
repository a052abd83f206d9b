package events

import "github.com/rafaaw/ActivityPro-sub000/models"

// ActivityChanged is the payload pushed to subscribers after any successful
// mutation. This struct is intentionally small and versionable; changes
// should be additive.
type ActivityChanged struct {
	Type     string           `json:"type"`
	Action   string           `json:"action"`
	Activity *models.Activity `json:"activity"`
}

// NewActivityChanged builds the event envelope for a snapshot.
func NewActivityChanged(a *models.Activity, action string) ActivityChanged {
	return ActivityChanged{Type: "activity", Action: action, Activity: a}
}
