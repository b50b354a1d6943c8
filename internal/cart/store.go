// Package cart owns the client's belief of cart state and keeps it
// consistent with the authoritative server cart.
//
// The Store is the single piece of mutable shared state. Only the Reconciler
// mutates it; UI surfaces read it and subscribe to its streams.
package cart

import (
	"sync"

	"cartsync/internal/model"
	"cartsync/internal/pubsub"
	"cartsync/internal/reconcile"
)

// Store is the in-memory cart snapshot plus its change streams.
//
// Locking: mu guards lines and is the only lock readers take. publishMu
// serializes mutate-then-publish sequences so subscribers observe snapshots in
// the order they were applied. Subscribers may read the store from a handler
// but must not mutate it.
type Store struct {
	mu    sync.RWMutex
	lines model.Snapshot

	publishMu sync.Mutex
	snapshots *pubsub.Topic[model.Snapshot]
	counts    *pubsub.Topic[int]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		lines:     model.Snapshot{},
		snapshots: pubsub.NewReplayTopic(model.Snapshot{}),
		counts:    pubsub.NewReplayTopic(0),
	}
}

// Current returns a copy of the snapshot. Mutating it does not affect the store.
func (s *Store) Current() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines.Clone()
}

// Replace swaps the whole snapshot, used after a full fetch.
func (s *Store) Replace(lines []model.CartLine) {
	s.mutate(func(model.Snapshot) model.Snapshot {
		return model.Snapshot(lines).Clone()
	})
}

// Upsert inserts line or overwrites the line with the same ProductID.
// A line with a non-positive quantity is removed instead.
func (s *Store) Upsert(line model.CartLine) {
	s.mutate(func(cur model.Snapshot) model.Snapshot {
		return reconcile.Upsert(cur, line)
	})
}

// Patch copies the fields an update-quantity response is authoritative for
// (quantity, totalPrice, availableStock) onto the existing line, keeping its
// display metadata. A line not yet held is inserted whole.
func (s *Store) Patch(line model.CartLine) {
	s.mutate(func(cur model.Snapshot) model.Snapshot {
		existing, ok := cur.Find(line.ProductID)
		if !ok {
			return reconcile.Upsert(cur, line)
		}
		existing.Quantity = line.Quantity
		existing.TotalPrice = line.TotalPrice
		existing.AvailableStock = line.AvailableStock
		return reconcile.Upsert(cur, existing)
	})
}

// RemoveByID drops the line for productID.
func (s *Store) RemoveByID(productID int64) {
	s.mutate(func(cur model.Snapshot) model.Snapshot {
		return reconcile.Without(cur, productID)
	})
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mutate(func(model.Snapshot) model.Snapshot {
		return model.Snapshot{}
	})
}

// Merge folds incoming into the store with replace-by-id semantics.
func (s *Store) Merge(incoming []model.CartLine) {
	s.mutate(func(cur model.Snapshot) model.Snapshot {
		return reconcile.Merge(cur, incoming)
	})
}

// Reconcile diffs incoming against the held snapshot and, when anything
// changed, merges and publishes. Diff and merge run under one lock so no
// other mutation can slip between them.
func (s *Store) Reconcile(incoming []model.CartLine) *reconcile.ChangeReport {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	report := reconcile.Diff(s.lines, incoming)
	if !report.HasChanges {
		s.mu.Unlock()
		return report
	}
	s.lines = withoutEmpty(reconcile.Merge(s.lines, incoming))
	snap := s.lines.Clone()
	s.mu.Unlock()

	s.publish(snap)
	return report
}

// CountDistinct returns the number of lines. This is the cart count shown to
// the rest of the app, not the sum of quantities.
func (s *Store) CountDistinct() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// CountTotalQuantity returns the sum of line quantities.
func (s *Store) CountTotalQuantity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total
}

// SumTotalPrice returns the sum of the server-provided line totals.
// Summed in minor units to keep float drift out of displayed totals.
func (s *Store) SumTotalPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var minor int64
	for _, line := range s.lines {
		minor += model.ToMinorUnits(line.TotalPrice)
	}
	return model.FromMinorUnits(minor)
}

// ItemQuantity returns the held quantity for productID, or 0.
func (s *Store) ItemQuantity(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if line, ok := s.lines.Find(productID); ok {
		return line.Quantity
	}
	return 0
}

// AvailableStock returns the last known stock for productID, or 0 when not held.
func (s *Store) AvailableStock(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if line, ok := s.lines.Find(productID); ok {
		return line.AvailableStock
	}
	return 0
}

// IsOutOfStock reports whether a held line has no stock left.
// Products not in the cart are unknown and reported as in stock.
func (s *Store) IsOutOfStock(productID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines.Find(productID)
	return ok && line.AvailableStock <= 0
}

// CanAdd reports whether adding quantity more of productID stays within the
// last known stock. Products not in the cart are always addable; the server
// makes the final call.
func (s *Store) CanAdd(productID int64, quantity int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines.Find(productID)
	if !ok {
		return true
	}
	return line.Quantity+quantity <= line.AvailableStock
}

// SubscribeSnapshot registers handler for snapshot changes. The current
// snapshot is delivered immediately. Must not be called from a handler.
func (s *Store) SubscribeSnapshot(handler func(model.Snapshot)) (unsubscribe func()) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	return s.snapshots.Subscribe(func(snap model.Snapshot) {
		handler(snap.Clone())
	})
}

// SubscribeCount registers handler for distinct-count changes. The current
// count is delivered immediately. Must not be called from a handler.
func (s *Store) SubscribeCount(handler func(int)) (unsubscribe func()) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	return s.counts.Subscribe(handler)
}

// mutate applies fn to the held snapshot and publishes the result.
func (s *Store) mutate(fn func(model.Snapshot) model.Snapshot) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.lines = withoutEmpty(fn(s.lines))
	snap := s.lines.Clone()
	s.mu.Unlock()

	s.publish(snap)
}

// publish emits snap and its distinct count. Caller holds publishMu.
func (s *Store) publish(snap model.Snapshot) {
	s.snapshots.Publish(snap)
	s.counts.Publish(len(snap))
}

// withoutEmpty drops lines with a non-positive quantity; such a line is a removal.
func withoutEmpty(lines model.Snapshot) model.Snapshot {
	out := make(model.Snapshot, 0, len(lines))
	for _, line := range lines {
		if line.Quantity > 0 {
			out = append(out, line)
		}
	}
	return out
}
