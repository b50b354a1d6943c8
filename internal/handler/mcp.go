// MCP transport handler using the official MCP Go SDK.
// Exposes the cart operations as MCP tools so agents can manage the cart.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cartsync/internal/model"
)

// === MCP Tool Input Types ===

// GetCartInput is the input schema for get_cart. It takes no arguments.
type GetCartInput struct{}

// AddItemInput is the input schema for add_item.
type AddItemInput struct {
	ProductID int64 `json:"product_id" jsonschema:"product ID,required"`
	Quantity  int   `json:"quantity" jsonschema:"quantity to add (at least 1),required"`
}

// UpdateQuantityInput is the input schema for update_quantity.
type UpdateQuantityInput struct {
	ProductID int64 `json:"product_id" jsonschema:"product ID,required"`
	Quantity  int   `json:"quantity" jsonschema:"new quantity; 0 removes the line,required"`
}

// RemoveItemInput is the input schema for remove_item.
type RemoveItemInput struct {
	ProductID int64 `json:"product_id" jsonschema:"product ID,required"`
}

// SyncCartInput is the input schema for sync_cart. It takes no arguments.
type SyncCartInput struct{}

// RefreshCartInput is the input schema for refresh_cart. It takes no arguments.
type RefreshCartInput struct{}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartsync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Shopping cart kept in sync with the store. " +
				"Quantities and stock are server-authoritative; call sync_cart before checkout.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart lines, distinct count and totals.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add a quantity of a product to the cart.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_quantity",
		Description: "Set the quantity of a cart line. A quantity of 0 removes it.",
	}, h.mcpUpdateQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_cart",
		Description: "Reconcile the cart with the store and report stock changes and checkout readiness.",
	}, h.mcpSyncCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_cart",
		Description: "Reload the whole cart from the store, replacing the local copy.",
	}, h.mcpRefreshCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, cartView, error) {
	return nil, h.view(), nil
}

func (h *Handler) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, cartView, error) {
	if err := h.rec.AddItem(ctx, input.ProductID, input.Quantity); err != nil {
		return nil, cartView{}, h.mcpError(err)
	}
	return nil, h.view(), nil
}

func (h *Handler) mcpUpdateQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateQuantityInput,
) (*mcp.CallToolResult, cartView, error) {
	if err := h.rec.UpdateItemQuantity(ctx, input.ProductID, input.Quantity); err != nil {
		return nil, cartView{}, h.mcpError(err)
	}
	return nil, h.view(), nil
}

func (h *Handler) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, cartView, error) {
	if err := h.rec.RemoveItem(ctx, input.ProductID); err != nil {
		return nil, cartView{}, h.mcpError(err)
	}
	return nil, h.view(), nil
}

func (h *Handler) mcpSyncCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SyncCartInput,
) (*mcp.CallToolResult, syncResult, error) {
	return nil, h.sync(ctx), nil
}

func (h *Handler) mcpRefreshCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RefreshCartInput,
) (*mcp.CallToolResult, cartView, error) {
	v, err := h.refresh(ctx)
	if err != nil {
		return nil, cartView{}, h.mcpError(err)
	}
	return nil, v, nil
}

// mcpError converts reconciler errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
