// Package session holds the authenticated session the cart is bound to.
// Login and logout are external signals; subscribers (the cart reconciler)
// react by loading or clearing the cart.
package session

import (
	"sync"

	"cartsync/internal/pubsub"
)

// Session stores the bearer token for the cart API and publishes
// authentication transitions. Safe for concurrent use.
type Session struct {
	mu    sync.RWMutex
	token string

	changes pubsub.Topic[bool]
}

// New returns an unauthenticated session.
func New() *Session {
	return &Session{}
}

// Login stores token and publishes true. An empty token is a logout.
// Logging in again with a different token re-publishes true so the cart reloads.
func (s *Session) Login(token string) {
	if token == "" {
		s.Logout()
		return
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.changes.Publish(true)
}

// Logout drops the token and publishes false. Logging out twice publishes once.
func (s *Session) Logout() {
	s.mu.Lock()
	was := s.token != ""
	s.token = ""
	s.mu.Unlock()

	if was {
		s.changes.Publish(false)
	}
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the current token, or "" when logged out.
// Implements transport.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe registers handler for authentication transitions.
// handler receives true on login and false on logout.
func (s *Session) Subscribe(handler func(authenticated bool)) (unsubscribe func()) {
	return s.changes.Subscribe(handler)
}
