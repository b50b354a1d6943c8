// Package model defines the cart wire types shared by the gateway, the
// reconciler, and the local HTTP surface.
package model

// CartLine is one product's presence in the cart.
// Quantity, AvailableStock, prices and display metadata are server-authoritative.
type CartLine struct {
	UserID         int64   `json:"userId,omitempty"`
	ProductID      int64   `json:"productId"`
	Quantity       int     `json:"quantity"`
	AddedAt        string  `json:"addedAt,omitempty"` // Informational only
	ProductName    string  `json:"productName"`
	ProductPhoto   string  `json:"productPhoto,omitempty"`
	ProductPrice   float64 `json:"productPrice"`
	AvailableStock int     `json:"availableStock"`
	TotalPrice     float64 `json:"totalPrice"` // Sourced from the server, never recomputed
}

// Snapshot is the full set of lines at one instant, keyed by ProductID.
// Order is stable for display but carries no meaning.
type Snapshot []CartLine

// Find returns the line for productID and whether it exists.
func (s Snapshot) Find(productID int64) (CartLine, bool) {
	for _, line := range s {
		if line.ProductID == productID {
			return line, true
		}
	}
	return CartLine{}, false
}

// Clone returns an independent copy. CartLine holds no reference types,
// so a shallow slice copy is a deep copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// CartData is the data payload of cart responses.
type CartData struct {
	Items      []CartLine `json:"items"`
	TotalItems int        `json:"totalItems"`
	TotalPrice float64    `json:"totalPrice"`
}

// Envelope is the uniform response wrapper used by the commerce API.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// LineRequest is one product/quantity pair in a bulk add.
type LineRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// StockChange is the notification emitted after a reconciliation found drift.
type StockChange struct {
	HasStockChanges bool     `json:"hasStockChanges"`
	ChangedItems    []string `json:"changedItems"`
}
