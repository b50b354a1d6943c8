package storeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

// RateLimit is the parsed RateLimit response header.
// Format: limit=100, remaining=0, reset=30 (RFC 8941 Dictionary).
type RateLimit struct {
	Limit     int64
	Remaining int64
	Reset     time.Duration // Time until the window resets
}

// ParseRateLimitHeader parses a RateLimit header value.
//
// Examples:
//   - limit=100, remaining=0, reset=30 → {100, 0, 30s}
//   - reset=5                           → {0, 0, 5s}
//
// Returns error if the header is empty, malformed, or has no reset key.
func ParseRateLimitHeader(header string) (RateLimit, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return RateLimit{}, errors.New("empty RateLimit header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return RateLimit{}, fmt.Errorf("invalid RateLimit header: %w", err)
	}

	var rl RateLimit
	if v, ok := dictInt(dict, "limit"); ok {
		rl.Limit = v
	}
	if v, ok := dictInt(dict, "remaining"); ok {
		rl.Remaining = v
	}

	reset, ok := dictInt(dict, "reset")
	if !ok {
		return RateLimit{}, errors.New("reset key not found in RateLimit header")
	}
	if reset < 0 {
		return RateLimit{}, errors.New("reset must not be negative")
	}
	rl.Reset = time.Duration(reset) * time.Second

	return rl, nil
}

// dictInt returns the integer value of an item member.
func dictInt(dict *httpsfv.Dictionary, key string) (int64, bool) {
	member, ok := dict.Get(key)
	if !ok {
		return 0, false
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return 0, false
	}
	v, ok := item.Value.(int64)
	return v, ok
}

// retryAfter derives the server-advised wait from a 429 response.
// Prefers the structured RateLimit header, then Retry-After seconds.
// Returns zero when neither is usable.
func retryAfter(header http.Header) time.Duration {
	if rl, err := ParseRateLimitHeader(header.Get("RateLimit")); err == nil {
		return rl.Reset
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
