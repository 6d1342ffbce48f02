package authtransport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashspire/songbot/internal/credential"
)

func TestTransportInjectsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handle := credential.New()
	handle.Set("token-123", "client-1")

	client := New(handle, nil).Client()
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "Bearer token-123", gotAuth)
}

func TestTransportForcesRefreshOn401(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	handle := credential.New()
	handle.Set("stale-token", "client-1")

	listening := handle.Listen()
	client := New(handle, nil).Client()
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	select {
	case <-listening:
	default:
		t.Fatal("expected ForceRefresh to be signalled after a 401")
	}
}

func TestTransportErrorsWithoutCredential(t *testing.T) {
	handle := credential.New()
	client := New(handle, nil).Client()
	_, err := client.Get("http://example.invalid")
	require.Error(t, err)
}
