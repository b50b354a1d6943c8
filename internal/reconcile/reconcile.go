// Package reconcile provides diff and merge logic for cart snapshots.
// Used by the cart reconciler to compare the locally held snapshot against a
// freshly fetched server snapshot and decide what drifted, what the user must
// be told about, and which quantities the server adjusted on its own.
package reconcile

import (
	"cartsync/internal/model"
)

// ChangeReport describes the drift between two cart snapshots.
type ChangeReport struct {
	HasChanges      bool // Any difference on a line known to both snapshots, or a dropped line
	HasStockChanges bool // Material change the user must be told about
	// ChangedItems holds display names, de-duplicated, in order of first detection.
	ChangedItems []string
	// QuantityAdjusted holds the incoming lines whose quantity differs from previous.
	// These are the push-back candidates.
	QuantityAdjusted []model.CartLine
}

// StockChange returns the notification payload published to subscribers.
func (r *ChangeReport) StockChange() model.StockChange {
	items := make([]string, len(r.ChangedItems))
	copy(items, r.ChangedItems)
	return model.StockChange{
		HasStockChanges: r.HasStockChanges,
		ChangedItems:    items,
	}
}

// NeedsPushBack reports whether server-adjusted quantities should be written back.
func (r *ChangeReport) NeedsPushBack() bool {
	return r.HasStockChanges && len(r.QuantityAdjusted) > 0
}

// Diff compares previous against incoming. Matching is by ProductID.
//
// Algorithm:
//  1. For each incoming line known to previous: a quantity difference is always
//     a stock change; an availableStock difference is a change, and a stock
//     change only when the new stock cannot cover the previous quantity.
//  2. For each previous line missing from incoming: stock change.
//  3. Lines only present in incoming are not reported.
//
// Diff never mutates its arguments.
func Diff(previous, incoming model.Snapshot) *ChangeReport {
	report := &ChangeReport{}

	previousByID := make(map[int64]model.CartLine, len(previous))
	for _, line := range previous {
		previousByID[line.ProductID] = line
	}

	incomingIDs := make(map[int64]bool, len(incoming))
	for _, line := range incoming {
		incomingIDs[line.ProductID] = true

		old, exists := previousByID[line.ProductID]
		if !exists {
			continue
		}

		if line.Quantity != old.Quantity {
			report.HasChanges = true
			report.HasStockChanges = true
			report.addName(line.ProductName)
			report.QuantityAdjusted = append(report.QuantityAdjusted, line)
		}

		if line.AvailableStock != old.AvailableStock {
			report.HasChanges = true
			if line.AvailableStock < old.Quantity {
				report.HasStockChanges = true
				report.addName(line.ProductName)
			}
		}
	}

	// Walk previous in order so dropped names keep a stable position.
	for _, old := range previous {
		if !incomingIDs[old.ProductID] {
			report.HasChanges = true
			report.HasStockChanges = true
			report.addName(old.ProductName)
		}
	}

	return report
}

func (r *ChangeReport) addName(name string) {
	for _, existing := range r.ChangedItems {
		if existing == name {
			return
		}
	}
	r.ChangedItems = append(r.ChangedItems, name)
}

// Merge folds incoming into current with replace-by-id semantics:
// lines missing from incoming are dropped, known lines are overwritten in
// place with the incoming copy, new lines are appended in incoming order.
// The result is a fresh slice; neither argument is modified.
func Merge(current, incoming model.Snapshot) model.Snapshot {
	incomingByID := make(map[int64]model.CartLine, len(incoming))
	for _, line := range incoming {
		incomingByID[line.ProductID] = line
	}

	merged := make(model.Snapshot, 0, len(incoming))
	seen := make(map[int64]bool, len(incoming))
	for _, line := range current {
		fresh, ok := incomingByID[line.ProductID]
		if !ok || seen[line.ProductID] {
			continue
		}
		merged = append(merged, fresh)
		seen[line.ProductID] = true
	}

	for _, line := range incoming {
		if seen[line.ProductID] {
			continue
		}
		merged = append(merged, line)
		seen[line.ProductID] = true
	}

	return merged
}

// Upsert returns a copy of current with line inserted, or overwriting the
// line with the same ProductID in place.
func Upsert(current model.Snapshot, line model.CartLine) model.Snapshot {
	next := current.Clone()
	for i := range next {
		if next[i].ProductID == line.ProductID {
			next[i] = line
			return next
		}
	}
	return append(next, line)
}

// Without returns a copy of current lacking the line for productID.
func Without(current model.Snapshot, productID int64) model.Snapshot {
	next := make(model.Snapshot, 0, len(current))
	for _, line := range current {
		if line.ProductID != productID {
			next = append(next, line)
		}
	}
	return next
}
