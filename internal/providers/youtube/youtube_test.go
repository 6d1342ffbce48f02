package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/trackid"
)

func TestParseISO8601Duration(t *testing.T) {
	cases := map[string]int64{
		"PT4M13S":   253000,
		"PT1H2M3S":  3723000,
		"PT45S":     45000,
		"PT3M":      180000,
	}
	for input, wantMS := range cases {
		d, err := parseISO8601Duration(input)
		require.NoError(t, err, input)
		require.Equal(t, wantMS, d.Milliseconds(), input)
	}
}

func TestParseISO8601DurationRejectsGarbage(t *testing.T) {
	_, err := parseISO8601Duration("not-a-duration")
	require.Error(t, err)
}

func TestDeviceMethodsReturnErrNoDevice(t *testing.T) {
	c := &Client{}
	_, err := c.DevicePlay(nil, "", nil, 0)
	require.ErrorIs(t, err, errNoDevice)
	_, err = c.DevicePause(nil, "")
	require.ErrorIs(t, err, errNoDevice)
	_, err = c.DeviceVolume(nil, "", 50)
	require.ErrorIs(t, err, errNoDevice)
	_, err = c.DeviceNext(nil, "")
	require.ErrorIs(t, err, errNoDevice)

	state, ok, err := c.DeviceState(nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "", state.TrackID.ID)
}

func TestServiceIsYouTube(t *testing.T) {
	c := &Client{}
	require.Equal(t, trackid.ServiceYouTube, c.Service())
}

func TestGetJSONSendsBearerAndDecodes(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	handle := credential.New()
	handle.Set("token-abc", "client-1")
	c := New(handle, nil)
	c.baseURL = server.URL + "/"

	var dest struct {
		OK bool `json:"ok"`
	}
	err := c.getJSON(context.Background(), "videos", nil, &dest)
	require.NoError(t, err)
	require.True(t, dest.OK)
	require.Equal(t, "/videos", gotPath)
	require.Equal(t, "Bearer token-abc", gotAuth)
}

func TestGetJSONReturnsErrorOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("quota exceeded"))
	}))
	defer server.Close()

	handle := credential.New()
	handle.Set("token-abc", "client-1")
	c := New(handle, nil)
	c.baseURL = server.URL + "/"

	var dest struct{}
	err := c.getJSON(context.Background(), "search", nil, &dest)
	require.Error(t, err)
}
