// Package storeapi implements gateway.Gateway against the commerce cart API.
//
// Every endpoint answers with the envelope {success, message, data}. The
// client treats success=false exactly like a transport failure: both surface
// as a non-nil error and the caller applies no local change.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cartsync/internal/gateway"
	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// cartPath is the base path for cart endpoints.
const cartPath = "/cart"

// userAgent identifies this client to the cart API.
const userAgent = "cartsync/1.0"

// serviceName labels upstream errors.
const serviceName = "cart API"

// Config holds cart API client configuration.
type Config struct {
	BaseURL   string        // e.g. http://localhost:8085
	Timeout   time.Duration // Per-request timeout; default 30s
	ChromeTLS bool          // Present a Chrome TLS fingerprint (see internal/transport)
	Tokens    transport.TokenSource
	Logger    *slog.Logger
}

// Client talks to the cart API over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a cart API client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var base http.RoundTripper = http.DefaultTransport
	if cfg.ChromeTLS {
		base = transport.NewChromeTransport(transport.ChromeOptions{DialTimeout: timeout})
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &transport.BearerTransport{Source: cfg.Tokens, Base: base},
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// FetchCart returns the full server cart (GET /cart).
func (c *Client) FetchCart(ctx context.Context) (*model.CartData, error) {
	data, err := doEnvelope[model.CartData](c, ctx, http.MethodGet, cartPath, nil, nil)
	if err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// AddItem adds quantity of productID (POST /cart/add?productId=&quantity=).
func (c *Client) AddItem(ctx context.Context, productID int64, quantity int) (*model.CartData, error) {
	data, err := doEnvelope[model.CartData](c, ctx, http.MethodPost, cartPath+"/add", lineQuery(productID, quantity), nil)
	if err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// UpdateQuantity sets the quantity for productID (PUT /cart/update?productId=&quantity=).
func (c *Client) UpdateQuantity(ctx context.Context, productID int64, quantity int) (*model.CartData, error) {
	data, err := doEnvelope[model.CartData](c, ctx, http.MethodPut, cartPath+"/update", lineQuery(productID, quantity), nil)
	if err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// RemoveItem drops productID (DELETE /cart/remove?productId=).
func (c *Client) RemoveItem(ctx context.Context, productID int64) (*model.CartData, error) {
	q := url.Values{"productId": {strconv.FormatInt(productID, 10)}}
	data, err := doEnvelope[model.CartData](c, ctx, http.MethodDelete, cartPath+"/remove", q, nil)
	if err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// BulkAdd posts all lines in one request (POST /cart/bulk-add, JSON array body).
func (c *Client) BulkAdd(ctx context.Context, lines []model.LineRequest) (*model.CartData, error) {
	if lines == nil {
		lines = []model.LineRequest{}
	}
	data, err := doEnvelope[model.CartData](c, ctx, http.MethodPost, cartPath+"/bulk-add", nil, lines)
	if err != nil {
		return nil, err
	}
	return normalize(data), nil
}

// ClearCart empties the server cart (DELETE /cart/clear).
// The data field is a status string and is ignored.
func (c *Client) ClearCart(ctx context.Context) error {
	_, err := doEnvelope[json.RawMessage](c, ctx, http.MethodDelete, cartPath+"/clear", nil, nil)
	return err
}

// FetchCount returns the server line count (GET /cart/count).
func (c *Client) FetchCount(ctx context.Context) (int, error) {
	return doEnvelope[int](c, ctx, http.MethodGet, cartPath+"/count", nil, nil)
}

// doEnvelope performs one request and unwraps the {success, message, data} envelope.
func doEnvelope[T any](c *Client, ctx context.Context, method, path string, query url.Values, body any) (T, error) {
	var zero T

	resp, requestID, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := parseErrorResponse(resp.StatusCode, resp.Header, respBody)
		c.logger.Debug("cart API error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"error", apiErr,
		)
		return zero, apiErr
	}

	var env model.Envelope[T]
	if err := json.Unmarshal(respBody, &env); err != nil {
		return zero, model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
	}
	if !env.Success {
		c.logger.Debug("cart API rejected request",
			"method", method,
			"path", path,
			"request_id", requestID,
			"message", env.Message,
		)
		return zero, model.NewRejectedError(env.Message)
	}

	return env.Data, nil
}

// do builds and sends a request. The caller closes the response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, string, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestID, model.NewUpstreamError(serviceName, err)
	}

	c.logger.Debug("cart API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)

	return resp, requestID, nil
}

// parseErrorResponse converts a non-2xx cart API response to APIError.
func parseErrorResponse(statusCode int, header http.Header, body []byte) error {
	var env model.Envelope[json.RawMessage]
	json.Unmarshal(body, &env) // Best effort parse

	switch statusCode {
	case http.StatusNotFound:
		return model.NewNotFoundError("cart line")
	case http.StatusUnauthorized, http.StatusForbidden:
		msg := env.Message
		if msg == "" {
			msg = "cart API authentication failed"
		}
		return model.NewUnauthorizedError(msg)
	case http.StatusBadRequest:
		// Business failures such as insufficient stock come back as 400 with a message
		if env.Message != "" {
			return model.NewRejectedError(env.Message)
		}
		return model.NewValidationError("request", "invalid request")
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return model.NewRejectedError(env.Message)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName, retryAfter(header))
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s", statusCode, env.Message))
	}
}

// lineQuery encodes the productId/quantity query parameters.
func lineQuery(productID int64, quantity int) url.Values {
	return url.Values{
		"productId": {strconv.FormatInt(productID, 10)},
		"quantity":  {strconv.Itoa(quantity)},
	}
}

// normalize guarantees a non-nil Items slice.
func normalize(data model.CartData) *model.CartData {
	if data.Items == nil {
		data.Items = []model.CartLine{}
	}
	return &data
}

// Verify Client implements Gateway interface at compile time.
var _ gateway.Gateway = (*Client)(nil)
