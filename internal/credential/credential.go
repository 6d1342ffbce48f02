// Package credential holds the lock-free-to-read handle providers use to
// fetch the currently valid access token for an external API, and the
// signal path a provider uses to demand an out-of-cycle refresh.
package credential

import (
	"sync"
	"sync/atomic"
)

// Token is the pair a provider client needs on every outbound request.
type Token struct {
	AccessToken string
	ClientID    string
}

// Handle is shared between the credential supervisor (writer) and any
// number of provider clients (readers). Reads never block on a refresh in
// progress; a client simply sees the token it had until the supervisor
// swaps in a new one.
type Handle struct {
	current atomic.Pointer[Token]

	mu      sync.Mutex
	waiters []chan struct{}
}

// New constructs an empty handle with no token set.
func New() *Handle {
	h := &Handle{}
	h.current.Store(&Token{})
	return h
}

// Load returns the current token and whether one is actually present.
func (h *Handle) Load() (Token, bool) {
	tok := h.current.Load()
	if tok == nil || tok.AccessToken == "" {
		return Token{}, false
	}
	return *tok, true
}

// Set installs a new token, replacing whatever was there.
func (h *Handle) Set(accessToken, clientID string) {
	h.current.Store(&Token{AccessToken: accessToken, ClientID: clientID})
}

// Clear removes the current token, as if the connection had been revoked.
func (h *Handle) Clear() {
	h.current.Store(&Token{})
}

// ForceRefresh signals every waiter blocked in WaitForRefresh that an
// out-of-cycle refresh has been requested, typically because a provider
// client received an authorization error from the remote API.
func (h *Handle) ForceRefresh() {
	h.mu.Lock()
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Listen returns a channel that closes the next time ForceRefresh is
// called. Callers that need to keep waiting after it fires must call
// Listen again to re-arm.
func (h *Handle) Listen() <-chan struct{} {
	ch := make(chan struct{})
	h.mu.Lock()
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()
	return ch
}

// WaitForRefresh blocks until ForceRefresh is called, or done is closed.
func (h *Handle) WaitForRefresh(done <-chan struct{}) {
	select {
	case <-h.Listen():
	case <-done:
	}
}
