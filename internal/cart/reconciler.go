package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/pubsub"
)

// Authenticator reports whether a session is active.
// Satisfied by *session.Session.
type Authenticator interface {
	Authenticated() bool
}

// SessionSource is an Authenticator that also publishes login/logout transitions.
type SessionSource interface {
	Authenticator
	Subscribe(handler func(authenticated bool)) (unsubscribe func())
}

// Options configures a Reconciler.
type Options struct {
	Logger *slog.Logger
	// RequestTimeout bounds background calls (push-back, login load).
	// Default 30s.
	RequestTimeout time.Duration
}

// Reconciler is the single owner of the cart Store. All mutations go through
// its operations, which call the gateway first and apply the server's
// authoritative response only on success.
//
// Overlapping completions are not serialized: when a mutation response and a
// poll response touch the same line, whichever applies last wins. The next
// poll converges because the server stays the source of truth.
type Reconciler struct {
	gw     gateway.Gateway
	auth   Authenticator
	store  *Store
	stock  pubsub.Topic[model.StockChange]
	logger *slog.Logger

	requestTimeout time.Duration

	// Background work (push-backs, login loads) runs on bgCtx so it outlives
	// the request that triggered it; Close cancels it.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewReconciler creates a Reconciler with an empty store.
func NewReconciler(gw gateway.Gateway, auth Authenticator, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		gw:             gw,
		auth:           auth,
		store:          NewStore(),
		logger:         logger,
		requestTimeout: timeout,
		bgCtx:          ctx,
		bgCancel:       cancel,
	}
}

// Store returns the read side of the cart. Callers must not mutate it directly.
func (r *Reconciler) Store() *Store {
	return r.store
}

// Authenticated reports whether the bound session is logged in.
func (r *Reconciler) Authenticated() bool {
	return r.auth != nil && r.auth.Authenticated()
}

// SubscribeStockChanges registers handler for stock-change notifications.
// Unlike the snapshot and count streams, nothing is replayed on subscribe.
func (r *Reconciler) SubscribeStockChanges(handler func(model.StockChange)) (unsubscribe func()) {
	return r.stock.Subscribe(handler)
}

// AddItem adds quantity of productID and upserts the line the server returned.
// The stored quantity is always the server's, never existing+quantity.
// Keeping existing+quantity within availableStock is the caller's job (see Store.CanAdd).
func (r *Reconciler) AddItem(ctx context.Context, productID int64, quantity int) error {
	if !r.Authenticated() {
		return model.NewUnauthenticatedError()
	}
	if quantity < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}

	data, err := r.gw.AddItem(ctx, productID, quantity)
	if err != nil {
		r.logger.Debug("add item failed", slog.Int64("product_id", productID), "error", err)
		return err
	}

	if line, ok := model.Snapshot(data.Items).Find(productID); ok {
		r.store.Upsert(line)
	}
	return nil
}

// UpdateItemQuantity sets the quantity for productID. A non-positive quantity
// is a removal. On success only quantity, totalPrice and availableStock are
// taken from the response.
func (r *Reconciler) UpdateItemQuantity(ctx context.Context, productID int64, quantity int) error {
	if !r.Authenticated() {
		return model.NewUnauthenticatedError()
	}
	if quantity <= 0 {
		return r.RemoveItem(ctx, productID)
	}

	data, err := r.gw.UpdateQuantity(ctx, productID, quantity)
	if err != nil {
		r.logger.Debug("update quantity failed",
			slog.Int64("product_id", productID),
			slog.Int("quantity", quantity),
			"error", err,
		)
		return err
	}

	if line, ok := model.Snapshot(data.Items).Find(productID); ok {
		r.store.Patch(line)
	}
	return nil
}

// RemoveItem removes productID and drops the local line on success.
func (r *Reconciler) RemoveItem(ctx context.Context, productID int64) error {
	if !r.Authenticated() {
		return model.NewUnauthenticatedError()
	}

	if _, err := r.gw.RemoveItem(ctx, productID); err != nil {
		r.logger.Debug("remove item failed", slog.Int64("product_id", productID), "error", err)
		return err
	}

	r.store.RemoveByID(productID)
	return nil
}

// BulkAdd sends all lines in one request and merges the returned item set
// by product id.
func (r *Reconciler) BulkAdd(ctx context.Context, lines []model.LineRequest) error {
	if !r.Authenticated() {
		return model.NewUnauthenticatedError()
	}
	if len(lines) == 0 {
		return model.NewValidationError("items", "at least one item is required")
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			return model.NewValidationError("quantity", "must be at least 1")
		}
	}

	data, err := r.gw.BulkAdd(ctx, lines)
	if err != nil {
		r.logger.Debug("bulk add failed", slog.Int("lines", len(lines)), "error", err)
		return err
	}

	r.store.Merge(data.Items)
	return nil
}

// ClearCart empties the server cart. The local cart is emptied whatever the
// outcome, and immediately when unauthenticated; the server error, if any,
// is still returned.
func (r *Reconciler) ClearCart(ctx context.Context) error {
	if !r.Authenticated() {
		r.store.Clear()
		return nil
	}

	err := r.gw.ClearCart(ctx)
	r.store.Clear()
	if err != nil {
		r.logger.Debug("clear cart failed", "error", err)
	}
	return err
}

// Load fetches the full cart and replaces the snapshot. Used on login and
// explicit refresh. A failed load leaves an empty cart rather than a stale one.
func (r *Reconciler) Load(ctx context.Context) error {
	if !r.Authenticated() {
		r.store.Clear()
		return nil
	}

	data, err := r.gw.FetchCart(ctx)
	if err != nil {
		r.store.Clear()
		return err
	}

	// A logout while the fetch was in flight already cleared the cart
	if !r.Authenticated() {
		return nil
	}

	r.store.Replace(data.Items)
	return nil
}

// ServerCount asks the server for its line count. Returns 0 when unauthenticated.
func (r *Reconciler) ServerCount(ctx context.Context) (int, error) {
	if !r.Authenticated() {
		return 0, nil
	}
	return r.gw.FetchCount(ctx)
}

// Bind ties the cart to a session: login loads the cart in the background,
// logout clears it. The cart is loaded right away if already logged in.
func (r *Reconciler) Bind(s SessionSource) (unbind func()) {
	unbind = s.Subscribe(func(authenticated bool) {
		if authenticated {
			r.loadInBackground()
			return
		}
		r.store.Clear()
	})

	if s.Authenticated() {
		r.loadInBackground()
	}
	return unbind
}

func (r *Reconciler) loadInBackground() {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()

		ctx, cancel := context.WithTimeout(r.bgCtx, r.requestTimeout)
		defer cancel()

		if err := r.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("loading cart after login failed", "error", err)
		}
	}()
}

// Wait blocks until background loads and push-backs have finished.
func (r *Reconciler) Wait() {
	r.bg.Wait()
}

// Close cancels background work and waits for it to exit.
func (r *Reconciler) Close() {
	r.bgCancel()
	r.bg.Wait()
}
