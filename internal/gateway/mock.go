package gateway

import (
	"context"

	"cartsync/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchCartFunc      func(ctx context.Context) (*model.CartData, error)
	AddItemFunc        func(ctx context.Context, productID int64, quantity int) (*model.CartData, error)
	UpdateQuantityFunc func(ctx context.Context, productID int64, quantity int) (*model.CartData, error)
	RemoveItemFunc     func(ctx context.Context, productID int64) (*model.CartData, error)
	BulkAddFunc        func(ctx context.Context, lines []model.LineRequest) (*model.CartData, error)
	ClearCartFunc      func(ctx context.Context) error
	FetchCountFunc     func(ctx context.Context) (int, error)
}

// FetchCart calls the configured FetchCartFunc or returns an empty cart.
func (m *Mock) FetchCart(ctx context.Context) (*model.CartData, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx)
	}
	return &model.CartData{Items: []model.CartLine{}}, nil
}

// AddItem calls the configured AddItemFunc or returns an error.
func (m *Mock) AddItem(ctx context.Context, productID int64, quantity int) (*model.CartData, error) {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, productID, quantity)
	}
	return nil, model.NewInternalError(nil)
}

// UpdateQuantity calls the configured UpdateQuantityFunc or returns an error.
func (m *Mock) UpdateQuantity(ctx context.Context, productID int64, quantity int) (*model.CartData, error) {
	if m.UpdateQuantityFunc != nil {
		return m.UpdateQuantityFunc(ctx, productID, quantity)
	}
	return nil, model.NewNotFoundError("cart line")
}

// RemoveItem calls the configured RemoveItemFunc or returns an error.
func (m *Mock) RemoveItem(ctx context.Context, productID int64) (*model.CartData, error) {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("cart line")
}

// BulkAdd calls the configured BulkAddFunc or returns an error.
func (m *Mock) BulkAdd(ctx context.Context, lines []model.LineRequest) (*model.CartData, error) {
	if m.BulkAddFunc != nil {
		return m.BulkAddFunc(ctx, lines)
	}
	return nil, model.NewInternalError(nil)
}

// ClearCart calls the configured ClearCartFunc or succeeds.
func (m *Mock) ClearCart(ctx context.Context) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx)
	}
	return nil
}

// FetchCount calls the configured FetchCountFunc or returns zero.
func (m *Mock) FetchCount(ctx context.Context) (int, error) {
	if m.FetchCountFunc != nil {
		return m.FetchCountFunc(ctx)
	}
	return 0, nil
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
