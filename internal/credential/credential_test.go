package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandleSetAndLoad(t *testing.T) {
	h := New()
	_, ok := h.Load()
	require.False(t, ok)

	h.Set("token-1", "client-1")
	tok, ok := h.Load()
	require.True(t, ok)
	require.Equal(t, "token-1", tok.AccessToken)
	require.Equal(t, "client-1", tok.ClientID)

	h.Clear()
	_, ok = h.Load()
	require.False(t, ok)
}

func TestHandleForceRefreshWakesWaiters(t *testing.T) {
	h := New()
	done := make(chan struct{})
	defer close(done)

	woke := make(chan struct{})
	go func() {
		h.WaitForRefresh(done)
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	h.ForceRefresh()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by ForceRefresh")
	}
}

func TestHandleWaitForRefreshRespectsDone(t *testing.T) {
	h := New()
	done := make(chan struct{})
	close(done)

	finished := make(chan struct{})
	go func() {
		h.WaitForRefresh(done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("WaitForRefresh did not return when done was closed")
	}
}
