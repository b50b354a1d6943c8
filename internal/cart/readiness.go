package cart

import (
	"cartsync/internal/model"
)

// Readiness is the checkout gate evaluated after a sync.
type Readiness struct {
	Ready bool `json:"ready"`
	Empty bool `json:"empty"`
	// Blocking lists lines that are sold out or whose quantity exceeds stock.
	Blocking []string `json:"blocking"`
}

// CheckReadiness decides whether snap may proceed to checkout: the cart must
// be non-empty and every line must be coverable by its available stock.
func CheckReadiness(snap model.Snapshot) Readiness {
	r := Readiness{Blocking: []string{}}
	if len(snap) == 0 {
		r.Empty = true
		return r
	}

	for _, line := range snap {
		if line.AvailableStock == 0 || line.AvailableStock < line.Quantity {
			r.Blocking = append(r.Blocking, line.ProductName)
		}
	}
	r.Ready = len(r.Blocking) == 0
	return r
}
