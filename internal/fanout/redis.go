// Package fanout relays cart notifications to other processes over Redis
// pub/sub, so storefront instances other than the one that detected drift can
// warn their users too.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cartsync/internal/model"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "cartsync:events"

// Event types.
const (
	EventStock = "stock"
	EventCount = "count"
)

// Event is the JSON message published on the channel.
type Event struct {
	Type        string             `json:"type"`
	StockChange *model.StockChange `json:"stockChange,omitempty"`
	Count       *int               `json:"count,omitempty"`
	At          time.Time          `json:"at"`
}

// Publisher is the subset of redis.Client used by the bridge.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Source publishes stock-change notifications. Satisfied by *cart.Reconciler.
type Source interface {
	SubscribeStockChanges(handler func(model.StockChange)) (unsubscribe func())
}

// CountSource publishes the distinct line count. Satisfied by *cart.Store.
type CountSource interface {
	SubscribeCount(handler func(int)) (unsubscribe func())
}

// RedisBridge forwards events to Redis from a single worker goroutine.
// Store handlers only enqueue, so a slow Redis never stalls cart mutations.
// When the queue is full, events are dropped and logged.
type RedisBridge struct {
	client  Publisher
	channel string
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

// NewRedisBridge starts the publishing worker. Call Close to stop it.
func NewRedisBridge(client Publisher, channel string, logger *slog.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &RedisBridge{
		client:  client,
		channel: channel,
		logger:  logger,
		timeout: 2 * time.Second,
		events:  make(chan Event, 64),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Attach subscribes the bridge to stock changes and counts.
// The count replayed on subscribe is forwarded too.
func (b *RedisBridge) Attach(stock Source, counts CountSource) (detach func()) {
	unsubStock := stock.SubscribeStockChanges(func(sc model.StockChange) {
		b.Enqueue(Event{Type: EventStock, StockChange: &sc, At: time.Now().UTC()})
	})
	unsubCount := counts.SubscribeCount(func(n int) {
		b.Enqueue(Event{Type: EventCount, Count: &n, At: time.Now().UTC()})
	})
	return func() {
		unsubStock()
		unsubCount()
	}
}

// Enqueue queues ev for publishing. Returns false if the queue is full or
// the bridge is closed.
func (b *RedisBridge) Enqueue(ev Event) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	select {
	case b.events <- ev:
		return true
	default:
		b.logger.Warn("fanout queue full, dropping event", "type", ev.Type)
		return false
	}
}

// Close stops accepting events, flushes the queue and waits for the worker.
func (b *RedisBridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	b.mu.Unlock()

	<-b.done
}

func (b *RedisBridge) run() {
	defer close(b.done)

	for ev := range b.events {
		if err := b.publish(ev); err != nil {
			b.logger.Warn("fanout publish failed", "type", ev.Type, "error", err)
		}
	}
}

func (b *RedisBridge) publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe delivers events from channel to handler until ctx ends.
// Malformed messages are skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string, handler func(Event)) error {
	if channel == "" {
		channel = DefaultChannel
	}

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for confirmation so callers know the subscription is live
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handler(ev)
		}
	}
}
