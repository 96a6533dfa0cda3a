// Package broadcast fans progress events out to live observers subscribed to
// a batch id. Delivery is at-most-once and best-effort: there is no replay
// log, and a sink that cannot keep up loses events rather than stalling the
// processing loop.
package broadcast

import (
	"sync"

	"github.com/cembakir/veriflow/internal/domain"
)

// SinkBuffer is the recommended channel capacity for subscriber sinks.
const SinkBuffer = 16

type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan domain.ProgressEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[chan domain.ProgressEvent]struct{}),
	}
}

// Subscribe attaches a sink to a batch id. The sink only sees events published
// from this point forward.
func (b *Broadcaster) Subscribe(batchID string, sink chan domain.ProgressEvent) {
	if sink == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sinks, ok := b.subs[batchID]
	if !ok {
		sinks = make(map[chan domain.ProgressEvent]struct{})
		b.subs[batchID] = sinks
	}
	sinks[sink] = struct{}{}
}

// Unsubscribe detaches a sink. The caller owns the channel and closes it.
func (b *Broadcaster) Unsubscribe(batchID string, sink chan domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sinks, ok := b.subs[batchID]
	if !ok {
		return
	}

	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(b.subs, batchID)
	}
}

// Publish delivers an event to every currently connected sink. A full sink is
// skipped; a publish with zero subscribers is a no-op.
func (b *Broadcaster) Publish(batchID string, ev domain.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sink := range b.subs[batchID] {
		select {
		case sink <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of live sinks for a batch.
func (b *Broadcaster) SubscriberCount(batchID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[batchID])
}
