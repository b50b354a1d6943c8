package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstreamError   = errors.New("upstream error")
	ErrRateLimited     = errors.New("rate limited")
	ErrRejected        = errors.New("rejected by server")
	ErrUnauthenticated = errors.New("no authenticated session")
)

// APIError represents a structured error from the commerce API or the local surface.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"-"` // HTTP status, not serialized
	RetryAfter time.Duration `json:"-"` // Set for RATE_LIMITED when the server says when to come back
	Err        error         `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures reported by the server.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUnauthenticatedError is returned when a cart operation runs without a session.
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:       "UNAUTHENTICATED",
		Message:    "login required",
		StatusCode: 401,
		Err:        ErrUnauthenticated,
	}
}

// NewUpstreamError creates a 502 error for transport or backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRejectedError wraps a success=false envelope. The server message is kept
// verbatim (e.g. "Insufficient stock") so callers can show it.
func NewRejectedError(message string) *APIError {
	if message == "" {
		message = "request rejected"
	}
	return &APIError{
		Code:       "REJECTED",
		Message:    message,
		StatusCode: 409,
		Err:        ErrRejected,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
// retryAfter is zero when the server did not say.
func NewRateLimitError(service string, retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		RetryAfter: retryAfter,
		Err:        ErrRateLimited,
	}
}

// RetryAfter extracts the server-advised wait from an error chain.
// Returns zero when err is not a rate limit with a known reset.
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && errors.Is(apiErr, ErrRateLimited) {
		return apiErr.RetryAfter
	}
	return 0
}
