package engine

import "github.com/rafaaw/ActivityPro-sub000/models"

// legalTransitions is the single source of truth for the state machine.
// A transition into in_progress is additionally subject to the
// single-active-activity guard, and a transition into completed to the
// checklist guard; those are enforced by the engine, not encoded here.
var legalTransitions = map[models.Status][]models.Status{
	models.StatusNext:       {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusPaused, models.StatusCompleted, models.StatusCancelled},
	models.StatusPaused:     {models.StatusInProgress, models.StatusCompleted, models.StatusCancelled},
	// Administrative revert only; status change with no session or time effect.
	models.StatusCompleted: {models.StatusPaused},
	models.StatusCancelled: {},
}

// CanTransition reports whether the state machine permits moving from one
// status to another. A same-status "transition" is never legal.
func CanTransition(from, to models.Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// actionFor maps a target status to the activity-log action tag recorded
// when the transition commits.
func actionFor(to models.Status) models.Action {
	switch to {
	case models.StatusInProgress:
		return models.ActionStarted
	case models.StatusPaused:
		return models.ActionPaused
	case models.StatusCompleted:
		return models.ActionCompleted
	case models.StatusCancelled:
		return models.ActionCancelled
	}
	return ""
}
