package broadcast

import (
	"testing"

	"github.com/cembakir/veriflow/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()

	first := make(chan domain.ProgressEvent, SinkBuffer)
	second := make(chan domain.ProgressEvent, SinkBuffer)
	b.Subscribe("batch-1", first)
	b.Subscribe("batch-1", second)

	ev := domain.ProgressEvent{BatchID: "batch-1", Processed: 10, Total: 100, Status: domain.ProgressStatusProcessing}
	b.Publish("batch-1", ev)

	for i, sink := range []chan domain.ProgressEvent{first, second} {
		select {
		case got := <-sink:
			if got != ev {
				t.Errorf("sink %d event = %+v, want %+v", i, got, ev)
			}
		default:
			t.Errorf("sink %d received nothing", i)
		}
	}
}

func TestPublishIsScopedToBatch(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()

	sink := make(chan domain.ProgressEvent, SinkBuffer)
	b.Subscribe("batch-1", sink)

	b.Publish("batch-2", domain.ProgressEvent{BatchID: "batch-2"})

	select {
	case ev := <-sink:
		t.Errorf("received event for another batch: %+v", ev)
	default:
	}
}

func TestPublishSkipsFullSink(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()

	full := make(chan domain.ProgressEvent, 1)
	full <- domain.ProgressEvent{BatchID: "stale"}
	b.Subscribe("batch-1", full)

	healthy := make(chan domain.ProgressEvent, 1)
	b.Subscribe("batch-1", healthy)

	// Must not block even though one sink has no capacity left.
	b.Publish("batch-1", domain.ProgressEvent{BatchID: "batch-1", Processed: 1})

	select {
	case got := <-healthy:
		if got.Processed != 1 {
			t.Errorf("healthy sink event = %+v", got)
		}
	default:
		t.Error("healthy sink should still receive the event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()

	sink := make(chan domain.ProgressEvent, SinkBuffer)
	b.Subscribe("batch-1", sink)
	if got := b.SubscriberCount("batch-1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	b.Unsubscribe("batch-1", sink)
	if got := b.SubscriberCount("batch-1"); got != 0 {
		t.Fatalf("SubscriberCount after unsubscribe = %d, want 0", got)
	}

	b.Publish("batch-1", domain.ProgressEvent{BatchID: "batch-1"})
	select {
	case ev := <-sink:
		t.Errorf("received event after unsubscribe: %+v", ev)
	default:
	}
}

func TestSubscribeNilSinkIsNoop(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster()
	b.Subscribe("batch-1", nil)

	if got := b.SubscriberCount("batch-1"); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}
