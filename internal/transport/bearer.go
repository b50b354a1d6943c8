package transport

import (
	"net/http"
)

// TokenSource supplies the current session token.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// BearerTransport attaches "Authorization: Bearer <token>" to every request
// whose Authorization header is not already set. The token is read per
// request so logins and logouts take effect without rebuilding the client.
type BearerTransport struct {
	Source TokenSource
	Base   http.RoundTripper // nil means http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := ""
	if t.Source != nil {
		token = t.Source.Token()
	}

	if token != "" && req.Header.Get("Authorization") == "" {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return t.base().RoundTrip(req)
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *BearerTransport) CloseIdleConnections() {
	if c, ok := t.base().(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
