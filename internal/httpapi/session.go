// Package httpapi exposes the process's only inbound HTTP surface: the
// OAuth begin/callback pair that drives the credential supervisor's
// connection records, and a read-only JSON dashboard over the Player Core.
package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sessionSalt       = "songbot-dashboard-session"
	sessionIterations = 100_000
	sessionKeyLength  = 32
)

var errSessionInvalid = errors.New("httpapi: session cookie invalid or expired")

// SessionManager issues and verifies dashboard session cookies without
// server-side state: the cookie itself carries the user and expiry, signed
// with a key derived from the configured secret.
type SessionManager struct {
	key []byte
	ttl time.Duration
}

// NewSessionManager derives a signing key from secret. secret should be a
// long, random operator-configured value; it is never stored verbatim.
func NewSessionManager(secret string, ttl time.Duration) (*SessionManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("httpapi: session secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := pbkdf2.Key([]byte(secret), []byte(sessionSalt), sessionIterations, sessionKeyLength, sha256.New)
	return &SessionManager{key: key, ttl: ttl}, nil
}

// Issue returns a signed cookie value identifying user, valid for the
// manager's TTL.
func (m *SessionManager) Issue(user string) string {
	expires := time.Now().Add(m.ttl).Unix()
	payload := fmt.Sprintf("%s|%d", user, expires)
	return encodeSegment(payload) + "." + encodeSegment(string(m.sign([]byte(payload))))
}

// Verify checks the cookie value's signature and expiry, returning the
// user it identifies on success.
func (m *SessionManager) Verify(cookie string) (string, error) {
	parts := strings.SplitN(cookie, ".", 2)
	if len(parts) != 2 {
		return "", errSessionInvalid
	}
	payload, err := decodeSegment(parts[0])
	if err != nil {
		return "", errSessionInvalid
	}
	signature, err := decodeSegment(parts[1])
	if err != nil {
		return "", errSessionInvalid
	}
	expected := m.sign([]byte(payload))
	if subtle.ConstantTimeCompare(expected, []byte(signature)) != 1 {
		return "", errSessionInvalid
	}

	fields := strings.SplitN(payload, "|", 2)
	if len(fields) != 2 {
		return "", errSessionInvalid
	}
	expiresUnix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", errSessionInvalid
	}
	if time.Now().Unix() > expiresUnix {
		return "", errSessionInvalid
	}
	return fields[0], nil
}

func (m *SessionManager) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func encodeSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func decodeSegment(s string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
