package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cartsync/internal/model"
)

// SSE event names.
const (
	eventSnapshot = "snapshot"
	eventCount    = "count"
	eventStock    = "stock"
)

// maxPendingEvents bounds a slow client's backlog. On overflow the stream
// ends; the client reconnects and gets the current snapshot replayed.
const maxPendingEvents = 256

type sseEvent struct {
	name string
	data []byte
}

// eventQueue is filled by store handlers, which must never block, and
// drained by the response writer.
type eventQueue struct {
	mu       sync.Mutex
	pending  []sseEvent
	overflow bool
	notify   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	q.mu.Lock()
	if len(q.pending) >= maxPendingEvents {
		q.overflow = true
	} else {
		q.pending = append(q.pending, sseEvent{name: name, data: data})
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() ([]sseEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out, q.overflow
}

// handleEvents streams cart changes as Server-Sent Events.
// The current snapshot and count are sent first; stock changes follow as they occur.
// GET /cart/events
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, fmt.Errorf("response writer does not support flushing"))
		return
	}

	q := newEventQueue()
	store := h.rec.Store()
	unsubSnapshot := store.SubscribeSnapshot(func(snap model.Snapshot) { q.push(eventSnapshot, snap) })
	unsubCount := store.SubscribeCount(func(n int) { q.push(eventCount, n) })
	unsubStock := h.rec.SubscribeStockChanges(func(sc model.StockChange) { q.push(eventStock, sc) })
	defer func() {
		unsubSnapshot()
		unsubCount()
		unsubStock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.DebugContext(ctx, "event stream opened")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.DebugContext(ctx, "event stream closed")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-q.notify:
			events, overflow := q.drain()
			for _, ev := range events {
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
					return
				}
			}
			flusher.Flush()
			if overflow {
				h.logger.WarnContext(ctx, "event stream backlog exceeded, closing",
					slog.Int("limit", maxPendingEvents))
				return
			}
		}
	}
}
