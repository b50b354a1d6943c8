package handler

import (
	"context"
	"log/slog"
	"net/http"

	"cartsync/internal/cart"
	"cartsync/internal/model"
)

// cartView is the response body of cart reads and mutations.
type cartView struct {
	Items         model.Snapshot `json:"items"`
	Count         int            `json:"count"`
	TotalQuantity int            `json:"totalQuantity"`
	TotalPrice    float64        `json:"totalPrice"`
	Authenticated bool           `json:"authenticated"`
}

// syncResult is the response body of an explicit sync.
type syncResult struct {
	Synced      bool              `json:"synced"`
	StockChange model.StockChange `json:"stockChange"`
	Readiness   cart.Readiness    `json:"readiness"`
	Cart        cartView          `json:"cart"`
}

type loginRequest struct {
	Token string `json:"token"`
}

type addItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type countResponse struct {
	Count  int    `json:"count"`
	Source string `json:"source"`
}

// view builds the current cartView from the store.
func (h *Handler) view() cartView {
	store := h.rec.Store()
	return cartView{
		Items:         store.Current(),
		Count:         store.CountDistinct(),
		TotalQuantity: store.CountTotalQuantity(),
		TotalPrice:    store.SumTotalPrice(),
		Authenticated: h.rec.Authenticated(),
	}
}

// handleLogin signals a login. The cart loads in the background; watch
// /cart/events for the resulting snapshot.
// POST /session
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Token == "" {
		h.writeError(w, model.NewValidationError("token", "required"))
		return
	}

	h.session.Login(req.Token)
	h.logger.InfoContext(r.Context(), "session login")

	h.writeJSON(w, http.StatusAccepted, healthResponse{Status: "loading", Authenticated: true})
}

// handleLogout signals a logout, which clears the local cart.
// DELETE /session
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	h.logger.InfoContext(r.Context(), "session logout")

	w.WriteHeader(http.StatusNoContent)
}

// handleGetCart returns the local snapshot and derived totals.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.view())
}

// handleCount returns the distinct line count. With ?source=server the
// server is asked instead of the local store.
// GET /cart/count
func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	switch source := r.URL.Query().Get("source"); source {
	case "", "local":
		h.writeJSON(w, http.StatusOK, countResponse{Count: h.rec.Store().CountDistinct(), Source: "local"})
	case "server":
		n, err := h.rec.ServerCount(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, countResponse{Count: n, Source: "server"})
	default:
		h.writeError(w, model.NewValidationError("source", "must be local or server"))
	}
}

// handleAddItem adds a product to the cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ProductID <= 0 {
		h.writeError(w, model.NewValidationError("productId", "must be a positive integer"))
		return
	}

	h.logger.InfoContext(ctx, "adding item",
		slog.Int64("product_id", req.ProductID),
		slog.Int("quantity", req.Quantity),
	)

	if err := h.rec.AddItem(ctx, req.ProductID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.view())
}

// handleUpdateItem sets a line's quantity. Zero or less removes the line.
// PUT /cart/items/{productId}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "updating item",
		slog.Int64("product_id", productID),
		slog.Int("quantity", req.Quantity),
	)

	if err := h.rec.UpdateItemQuantity(ctx, productID, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.view())
}

// handleRemoveItem removes a line.
// DELETE /cart/items/{productId}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "removing item", slog.Int64("product_id", productID))

	if err := h.rec.RemoveItem(ctx, productID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.view())
}

// handleBulkAdd adds several products in one request.
// POST /cart/bulk
func (h *Handler) handleBulkAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var lines []model.LineRequest
	if err := decodeJSON(r, &lines); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "bulk adding items", slog.Int("lines", len(lines)))

	if err := h.rec.BulkAdd(ctx, lines); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.view())
}

// handleClearCart empties the cart. The local cart is cleared even when the
// server call fails; the failure is still reported.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.InfoContext(ctx, "clearing cart")

	if err := h.rec.ClearCart(ctx); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.view())
}

// handleSync reconciles with the server and evaluates checkout readiness.
// A failed fetch is not an error for the caller: it reports synced=false
// with no stock change, and readiness is computed on the local cart.
// POST /cart/sync
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sync(r.Context()))
}

func (h *Handler) sync(ctx context.Context) syncResult {
	sc, err := h.rec.Sync(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "sync failed", "error", err)
	}

	v := h.view()
	return syncResult{
		Synced:      err == nil && v.Authenticated,
		StockChange: sc,
		Readiness:   cart.CheckReadiness(v.Items),
		Cart:        v,
	}
}

// handleRefresh reloads the whole cart from the server, replacing the local
// snapshot. This is the recovery path after a failed load on login, which
// leaves the cart empty: syncing cannot restore lines it never held.
// POST /cart/refresh
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v, err := h.refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *Handler) refresh(ctx context.Context) (cartView, error) {
	if !h.rec.Authenticated() {
		return cartView{}, model.NewUnauthenticatedError()
	}

	h.logger.InfoContext(ctx, "refreshing cart")

	if err := h.rec.Load(ctx); err != nil {
		h.logger.WarnContext(ctx, "refresh failed", "error", err)
		return cartView{}, err
	}
	return h.view(), nil
}
