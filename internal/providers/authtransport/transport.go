// Package authtransport adapts a credential.Handle into an http.RoundTripper
// so provider clients built on net/http authorize every outbound request
// with the current access token and signal the credential supervisor on a
// 401 without the caller having to know anything about token refresh.
package authtransport

import (
	"fmt"
	"net/http"

	"github.com/ashspire/songbot/internal/credential"
)

// Transport wraps an underlying RoundTripper, injecting a bearer token on
// every request and forcing a credential refresh on any 401 response.
type Transport struct {
	Handle *credential.Handle
	Base   http.RoundTripper
}

// New builds a Transport around base, or http.DefaultTransport if base is
// nil.
func New(handle *credential.Handle, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Handle: handle, Base: base}
}

// Client is a convenience constructor for an *http.Client using this
// transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := t.Handle.Load()
	if !ok {
		return nil, fmt.Errorf("authtransport: no credential available")
	}

	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.Handle.ForceRefresh()
	}
	return resp, nil
}
