package cart

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cartsync/internal/model"
	"cartsync/internal/reconcile"
)

// Sync fetches the server cart and corrects drift. Both the poller and the
// explicit sync-before-checkout action run through here.
//
// On drift the store is merged and published, server-adjusted quantities are
// pushed back in the background, and a stock-change notification is emitted.
// A fetch failure changes nothing and returns the error with an empty
// notification; callers treat it as "no change this cycle".
func (r *Reconciler) Sync(ctx context.Context) (model.StockChange, error) {
	if !r.Authenticated() {
		return noStockChange(), nil
	}

	data, err := r.gw.FetchCart(ctx)
	if err != nil {
		return noStockChange(), err
	}

	report := r.correct(data.Items)
	return report.StockChange(), nil
}

// correct applies a fetched snapshot to the store. No drift means no publish.
func (r *Reconciler) correct(incoming []model.CartLine) *reconcile.ChangeReport {
	report := r.store.Reconcile(incoming)
	if !report.HasChanges {
		return report
	}

	r.logger.Debug("cart drift corrected",
		"stock_changes", report.HasStockChanges,
		"changed_items", report.ChangedItems,
		slog.Int("quantity_adjusted", len(report.QuantityAdjusted)),
	)

	if report.NeedsPushBack() {
		r.pushBack(report.QuantityAdjusted)
	}

	r.stock.Publish(report.StockChange())
	return report
}

// pushBack writes each server-adjusted quantity back to the server so the
// clamp persists. Runs in the background; the caller of Sync never waits and
// never sees a failure. Failures are logged per line; the local merge is kept.
func (r *Reconciler) pushBack(lines []model.CartLine) {
	adjusted := make([]model.CartLine, len(lines))
	copy(adjusted, lines)

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()

		ctx, cancel := context.WithTimeout(r.bgCtx, r.requestTimeout)
		defer cancel()

		// One request per line; completes when all have answered.
		var g errgroup.Group
		var failed atomic.Int32
		for _, line := range adjusted {
			g.Go(func() error {
				var err error
				if line.Quantity <= 0 {
					_, err = r.gw.RemoveItem(ctx, line.ProductID)
				} else {
					_, err = r.gw.UpdateQuantity(ctx, line.ProductID, line.Quantity)
				}
				if err != nil {
					failed.Add(1)
					r.logger.Warn("quantity push-back failed",
						slog.Int64("product_id", line.ProductID),
						slog.Int("quantity", line.Quantity),
						"error", err,
					)
				}
				return nil
			})
		}
		g.Wait()

		if n := failed.Load(); n > 0 {
			r.logger.Warn("some quantity changes were not synced",
				slog.Int("failed", int(n)),
				slog.Int("total", len(adjusted)),
			)
			return
		}
		r.logger.Debug("quantity changes synced", slog.Int("total", len(adjusted)))
	}()
}

func noStockChange() model.StockChange {
	return model.StockChange{ChangedItems: []string{}}
}
