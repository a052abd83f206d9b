// Package broadcast fans state-change events out to live subscribers scoped
// by sector or by the unscoped administrator channel. It is a notification
// mechanism, not a source of truth: delivery is at-most-once and subscribers
// reconcile by re-fetching.
package broadcast

import "log/slog"

// Scope selects which events a subscription receives: every event for one
// sector, or every event regardless of sector for administrators.
type Scope struct {
	SectorID int
	Admin    bool
}

// Subscription is a live receiver. Payloads arrive on C; a subscription
// whose receiver falls behind is dropped rather than allowed to block the
// hub.
type Subscription struct {
	scope Scope
	ch    chan []byte
}

// C returns the receive channel. It is closed when the subscription is
// removed, either explicitly or by backpressure.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) Scope() Scope {
	return s.scope
}

type envelope struct {
	sectorID int
	payload  []byte
}

// Broadcaster owns the subscriber registry and the fan-out loop. All
// registry mutation happens on the single run goroutine, so registration
// and removal never block publishes in progress. Events published for the
// same activity flow through the loop in call order, preserving per-activity
// ordering.
type Broadcaster struct {
	register   chan *Subscription
	unregister chan *Subscription
	events     chan envelope
	quit       chan struct{}

	bySector map[int]map[*Subscription]bool
	admins   map[*Subscription]bool
}

const (
	subscriberBuffer = 64
	publishBuffer    = 256
)

// New creates and starts a Broadcaster.
func New() *Broadcaster {
	b := &Broadcaster{
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		events:     make(chan envelope, publishBuffer),
		quit:       make(chan struct{}),
		bySector:   make(map[int]map[*Subscription]bool),
		admins:     make(map[*Subscription]bool),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	for {
		select {
		case sub := <-b.register:
			if sub.scope.Admin {
				b.admins[sub] = true
				continue
			}
			set, ok := b.bySector[sub.scope.SectorID]
			if !ok {
				set = make(map[*Subscription]bool)
				b.bySector[sub.scope.SectorID] = set
			}
			set[sub] = true
		case sub := <-b.unregister:
			b.remove(sub)
		case ev := <-b.events:
			for sub := range b.bySector[ev.sectorID] {
				b.deliver(sub, ev.payload)
			}
			for sub := range b.admins {
				b.deliver(sub, ev.payload)
			}
		case <-b.quit:
			for sub := range b.admins {
				b.remove(sub)
			}
			for _, set := range b.bySector {
				for sub := range set {
					b.remove(sub)
				}
			}
			return
		}
	}
}

func (b *Broadcaster) deliver(sub *Subscription, payload []byte) {
	select {
	case sub.ch <- payload:
	default:
		// Backpressure: drop and disconnect slow subscribers.
		b.remove(sub)
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	if sub.scope.Admin {
		if b.admins[sub] {
			delete(b.admins, sub)
			close(sub.ch)
		}
		return
	}
	if set, ok := b.bySector[sub.scope.SectorID]; ok {
		if set[sub] {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(b.bySector, sub.scope.SectorID)
		}
	}
}

// Subscribe registers a new subscription for the scope.
func (b *Broadcaster) Subscribe(scope Scope) *Subscription {
	sub := &Subscription{scope: scope, ch: make(chan []byte, subscriberBuffer)}
	select {
	case b.register <- sub:
	case <-b.quit:
		close(sub.ch)
	}
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	select {
	case b.unregister <- sub:
	case <-b.quit:
	}
}

// Publish fans the payload out to the sector's subscribers and to every
// administrator subscription. It never blocks the caller: if the event
// buffer is full the payload is dropped with a warning, since subscribers
// reconcile by re-fetching state.
func (b *Broadcaster) Publish(sectorID int, payload []byte) {
	select {
	case b.events <- envelope{sectorID: sectorID, payload: payload}:
	default:
		slog.Warn("broadcast buffer full, dropping event", "sectorId", sectorID)
	}
}

// Close stops the run loop and closes all subscriptions.
func (b *Broadcaster) Close() {
	close(b.quit)
}
