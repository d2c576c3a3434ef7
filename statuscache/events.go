/*
events.go - Typed publish/subscribe channel for cache events

PURPOSE:
  Views subscribe to hear about fresh ledger data; the coordinator
  publishes after every successful fetch. Subscribers own an explicit
  lifetime: Subscribe returns a cancel func, and delivery never blocks
  the publisher. A subscriber that stopped draining simply misses events
  instead of wedging the coordinator.

SEE ALSO:
  - coordinator.go: Publishes these events
*/
package statuscache

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventLedgerUpdated    EventType = "ledger_updated"
	EventAggregateUpdated EventType = "aggregate_updated"
	EventPaymentLate      EventType = "payment_late"
	EventPaymentDueSoon   EventType = "payment_due_soon"
)

type Event struct {
	Type       EventType
	Key        string
	ResidentID string
	Payload    any
	At         time.Time
}

// =============================================================================
// BUS
// =============================================================================

type bus struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	closed bool
}

func newBus() *bus {
	return &bus{subs: make(map[string]chan Event)}
}

// subscribe registers a buffered subscriber channel and returns it with a
// cancel func. Cancel is idempotent.
func (b *bus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	token := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[token] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[token]; ok {
				delete(b.subs, token)
				close(c)
			}
		})
	}
	return ch, cancel
}

// publish fans out to every subscriber without blocking. Full buffers
// drop the event for that subscriber.
func (b *bus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for token, ch := range b.subs {
		delete(b.subs, token)
		close(ch)
	}
}
