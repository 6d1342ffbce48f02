package credsup

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/injector"
	"github.com/ashspire/songbot/internal/settingsstore"
)

func newTestSupervisor(t *testing.T, refresher Refresher) (*Supervisor, *settingsstore.Scoped, *credential.Handle) {
	t.Helper()
	store := settingsstore.NewMemoryStore(nil)
	scoped := settingsstore.NewScoped(store, "spotify")
	inj := injector.New()
	handle := credential.New()

	sup := &Supervisor{
		Provider:      "spotify",
		Settings:      scoped,
		Injector:      inj,
		Key:           injector.NewKey[credential.Token]("spotify"),
		Handle:        handle,
		Refresher:     refresher,
		ExpiresWithin: time.Hour,
		CheckInterval: 10 * time.Millisecond,
		Backoff:       NewBackoff(time.Millisecond, 20*time.Millisecond),
	}
	return sup, scoped, handle
}

func seedConnection(t *testing.T, scoped *settingsstore.Scoped, conn Connection) {
	t.Helper()
	raw, err := json.Marshal(conn)
	require.NoError(t, err)
	require.NoError(t, scoped.Set(context.Background(), connectionSettingName, raw))
}

func TestSupervisorAppliesStoredConnectionOnStartup(t *testing.T) {
	sup, scoped, handle := newTestSupervisor(t, RefresherFunc(func(ctx context.Context, c Connection) (Connection, error) {
		return c, nil
	}))
	seedConnection(t, scoped, Connection{AccessToken: "at-1", ClientID: "client-1", ExpiresAt: time.Now().Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sup.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		tok, ok := handle.Load()
		return ok && tok.AccessToken == "at-1"
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestSupervisorForceRefreshRotatesToken(t *testing.T) {
	var refreshes int32
	sup, scoped, handle := newTestSupervisor(t, RefresherFunc(func(ctx context.Context, c Connection) (Connection, error) {
		atomic.AddInt32(&refreshes, 1)
		next := c
		next.AccessToken = "rotated"
		next.ExpiresAt = time.Now().Add(time.Hour)
		return next, nil
	}))
	seedConnection(t, scoped, Connection{AccessToken: "at-1", RefreshToken: "rt-1", ClientID: "client-1", ExpiresAt: time.Now().Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sup.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		tok, ok := handle.Load()
		return ok && tok.AccessToken == "at-1"
	}, time.Second, time.Millisecond)

	sup.ForceRefresh()

	require.Eventually(t, func() bool {
		tok, ok := handle.Load()
		return ok && tok.AccessToken == "rotated"
	}, time.Second, time.Millisecond)
	require.GreaterOrEqual(t, atomic.LoadInt32(&refreshes), int32(1))

	cancel()
	<-done
}

func TestSupervisorClearFromSettingsClearsHandle(t *testing.T) {
	sup, scoped, handle := newTestSupervisor(t, RefresherFunc(func(ctx context.Context, c Connection) (Connection, error) {
		return c, nil
	}))
	seedConnection(t, scoped, Connection{AccessToken: "at-1", ClientID: "client-1", ExpiresAt: time.Now().Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sup.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		_, ok := handle.Load()
		return ok
	}, time.Second, time.Millisecond)

	require.NoError(t, scoped.Clear(context.Background(), connectionSettingName))

	require.Eventually(t, func() bool {
		_, ok := handle.Load()
		return !ok
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestSupervisorSettingsDeliversNewConnectionFansOutImmediately(t *testing.T) {
	sup, scoped, handle := newTestSupervisor(t, RefresherFunc(func(ctx context.Context, c Connection) (Connection, error) {
		return c, nil
	}))
	seedConnection(t, scoped, Connection{AccessToken: "at-1", ClientID: "client-1", ExpiresAt: time.Now().Add(24 * time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sup.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		tok, ok := handle.Load()
		return ok && tok.AccessToken == "at-1"
	}, time.Second, time.Millisecond)

	// A re-authorization delivered through the settings store, far from
	// expiry, must still fan out: evaluate()'s expiry check alone would
	// report validationKeep and silently drop it.
	seedConnection(t, scoped, Connection{AccessToken: "at-2", ClientID: "client-1", ExpiresAt: time.Now().Add(24 * time.Hour)})

	require.Eventually(t, func() bool {
		tok, ok := handle.Load()
		return ok && tok.AccessToken == "at-2"
	}, time.Second, time.Millisecond)

	injected, ok := injector.Var(sup.Injector, sup.Key).Load()
	require.True(t, ok)
	require.Equal(t, "at-2", injected.AccessToken)

	cancel()
	<-done
}

func TestSupervisorRefreshFailureBacksOff(t *testing.T) {
	var attempts int32
	sup, scoped, _ := newTestSupervisor(t, RefresherFunc(func(ctx context.Context, c Connection) (Connection, error) {
		atomic.AddInt32(&attempts, 1)
		return Connection{}, errors.New("provider unavailable")
	}))
	seedConnection(t, scoped, Connection{AccessToken: "at-1", RefreshToken: "rt-1", ClientID: "client-1", ExpiresAt: time.Now().Add(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sup.Run(ctx); close(done) }()

	sup.ForceRefresh()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
}
