package notify

import (
	"encoding/json"
	"log/slog"

	"github.com/rafaaw/ActivityPro-sub000/broadcast"
	"github.com/rafaaw/ActivityPro-sub000/models"
	"github.com/rafaaw/ActivityPro-sub000/pkg/events"
)

// BroadcastNotifier implements engine.Notifier over a broadcast.Broadcaster,
// serializing each snapshot as JSON and scoping delivery by the activity's
// sector.
type BroadcastNotifier struct {
	Hub *broadcast.Broadcaster
}

func (n *BroadcastNotifier) ActivityChanged(a *models.Activity, action string) {
	if n == nil || n.Hub == nil {
		return
	}
	payload, err := json.Marshal(events.NewActivityChanged(a, action))
	if err != nil {
		slog.Error("failed to marshal activity event", "err", err)
		return
	}
	n.Hub.Publish(a.SectorID, payload)
}
