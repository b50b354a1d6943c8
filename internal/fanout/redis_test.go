package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"cartsync/internal/model"
	"cartsync/internal/pubsub"
)

// fakePublisher records published payloads.
type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.([]byte))

	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) events(t *testing.T) []Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Event, 0, len(f.payloads))
	for _, p := range f.payloads {
		var ev Event
		if err := json.Unmarshal(p, &ev); err != nil {
			t.Fatalf("payload is not an Event: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

// fakeSource exposes topics the way the reconciler and store do.
type fakeSource struct {
	stock  pubsub.Topic[model.StockChange]
	counts *pubsub.Topic[int]
}

func (s *fakeSource) SubscribeStockChanges(h func(model.StockChange)) func() {
	return s.stock.Subscribe(h)
}

func (s *fakeSource) SubscribeCount(h func(int)) func() {
	return s.counts.Subscribe(h)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisBridge_ForwardsEvents(t *testing.T) {
	pub := &fakePublisher{}
	b := NewRedisBridge(pub, "", testLogger())

	src := &fakeSource{counts: pubsub.NewReplayTopic(0)}
	detach := b.Attach(src, src)

	src.stock.Publish(model.StockChange{HasStockChanges: true, ChangedItems: []string{"Amber"}})
	src.counts.Publish(3)
	detach()
	src.counts.Publish(9) // after detach, not forwarded

	b.Close()

	events := pub.events(t)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3 (replayed count, stock, count)", len(events))
	}
	if events[0].Type != EventCount || *events[0].Count != 0 {
		t.Errorf("events[0] = %+v, want replayed count 0", events[0])
	}
	if events[1].Type != EventStock || !events[1].StockChange.HasStockChanges {
		t.Errorf("events[1] = %+v, want stock change", events[1])
	}
	if events[2].Type != EventCount || *events[2].Count != 3 {
		t.Errorf("events[2] = %+v, want count 3", events[2])
	}
	for _, ch := range pub.channels {
		if ch != DefaultChannel {
			t.Errorf("channel = %q, want %q", ch, DefaultChannel)
		}
	}
}

func TestRedisBridge_PublishFailureIsLoggedNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	b := NewRedisBridge(pub, "custom", testLogger())

	if !b.Enqueue(Event{Type: EventStock}) {
		t.Fatal("Enqueue = false on open bridge")
	}
	b.Close()

	if len(pub.channels) != 1 || pub.channels[0] != "custom" {
		t.Errorf("channels = %v, want [custom]", pub.channels)
	}
}

func TestRedisBridge_EnqueueAfterClose(t *testing.T) {
	b := NewRedisBridge(&fakePublisher{}, "", testLogger())
	b.Close()
	b.Close() // idempotent

	if b.Enqueue(Event{Type: EventCount}) {
		t.Error("Enqueue after Close = true, want false")
	}
}
