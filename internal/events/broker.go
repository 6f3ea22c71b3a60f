package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ipcviz/backend/internal/shared/types"
)

const defaultBufferSize = 256

// Subscription is a handle to a broker subscription.
type Subscription struct {
	ID string
	C  <-chan types.Event

	ch chan types.Event
}

// Broker fans simulation events out to subscribers.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	history []types.Event
	maxHist int
	dropped uint64
}

// NewBroker creates an event broker retaining the last maxHistory events
// for late subscribers. maxHistory <= 0 disables retention.
func NewBroker(maxHistory int) *Broker {
	return &Broker{
		subs:    make(map[string]*Subscription),
		maxHist: maxHistory,
	}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan types.Event, defaultBufferSize)
	sub := &Subscription{
		ID: uuid.New().String(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers an event to all subscribers. Slow subscribers whose
// buffers are full have the event dropped.
func (b *Broker) Publish(event types.Event) {
	b.mu.Lock()
	if b.maxHist > 0 {
		b.history = append(b.history, event)
		if len(b.history) > b.maxHist {
			b.history = b.history[len(b.history)-b.maxHist:]
		}
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			b.mu.Lock()
			b.dropped++
			b.mu.Unlock()
		}
	}
}

// History returns a copy of the retained events, oldest first.
func (b *Broker) History() []types.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Event, len(b.history))
	copy(out, b.history)
	return out
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the number of events dropped due to full buffers.
func (b *Broker) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close unsubscribes everyone.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
}
