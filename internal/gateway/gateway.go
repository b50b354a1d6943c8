// Package gateway defines the Remote Cart Gateway: the contract the cart
// reconciler uses to talk to the server-side cart.
package gateway

import (
	"context"

	"cartsync/internal/model"
)

// Gateway abstracts the server cart API.
// Implementations translate the {success, message, data} envelope into
// (value, error): success=false and transport failures both return a non-nil
// error, typically a *model.APIError.
type Gateway interface {
	// FetchCart returns the full server cart.
	FetchCart(ctx context.Context) (*model.CartData, error)

	// AddItem adds quantity of productID and returns the updated cart.
	// The returned lines are authoritative; callers must not compute quantities locally.
	AddItem(ctx context.Context, productID int64, quantity int) (*model.CartData, error)

	// UpdateQuantity sets the target quantity for productID.
	UpdateQuantity(ctx context.Context, productID int64, quantity int) (*model.CartData, error)

	// RemoveItem drops productID from the cart.
	RemoveItem(ctx context.Context, productID int64) (*model.CartData, error)

	// BulkAdd adds several product/quantity pairs in a single request.
	BulkAdd(ctx context.Context, lines []model.LineRequest) (*model.CartData, error)

	// ClearCart empties the server cart.
	ClearCart(ctx context.Context) error

	// FetchCount returns the server's line count, used for verification.
	FetchCount(ctx context.Context) (int, error)
}
