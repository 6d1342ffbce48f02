// Package credsup supervises one OAuth2 connection per provider: it keeps
// the persisted grant, the in-memory credential handle providers read from,
// and the injector slot downstream components watch all in sync, rotating
// the access token before it expires and backing off when a refresh fails.
package credsup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Connection is the durable record of one provider's authorization. It is
// what gets persisted under "<provider>/connection" in the settings store.
type Connection struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ClientID     string    `json:"client_id"`
	Scopes       []string  `json:"scopes"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// hash identifies the shape of a connection independent of its access
// token, which rotates constantly. Downstream components should only be
// disrupted when the client id or scope set actually changes.
func (c Connection) hash() string {
	scopes := append([]string(nil), c.Scopes...)
	sort.Strings(scopes)
	sum := sha256.Sum256([]byte(c.ClientID + "|" + strings.Join(scopes, ",")))
	return hex.EncodeToString(sum[:])
}

// expiresWithin reports whether the access token will expire before d has
// elapsed. A connection with no known expiry is treated as not expiring
// and reports false.
func (c Connection) expiresWithin(d time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Until(c.ExpiresAt) < d
}

// sameConnection reports whether a and b carry the same authorization,
// including the access token: a settings-stream update that changes
// nothing should not trigger a fan-out, but one that delivers a new token
// (e.g. a re-authorization) must, regardless of how far it is from expiry.
func sameConnection(a, b *Connection) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.AccessToken != b.AccessToken || a.RefreshToken != b.RefreshToken || a.ClientID != b.ClientID || !a.ExpiresAt.Equal(b.ExpiresAt) {
		return false
	}
	if len(a.Scopes) != len(b.Scopes) {
		return false
	}
	for i := range a.Scopes {
		if a.Scopes[i] != b.Scopes[i] {
			return false
		}
	}
	return true
}
