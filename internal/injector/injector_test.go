package injector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id string
}

func TestInjectorUpdateAndVar(t *testing.T) {
	inj := New()
	key := NewKey[*fakeClient](nil)

	handle := Var(inj, key)
	_, ok := handle.Load()
	require.False(t, ok)

	Update(inj, key, &fakeClient{id: "a"})
	value, ok := handle.Load()
	require.True(t, ok)
	require.Equal(t, "a", value.id)

	Clear(inj, key)
	_, ok = handle.Load()
	require.False(t, ok)
}

func TestInjectorTagsAreIndependentSlots(t *testing.T) {
	inj := New()
	spotify := NewKey[string]("spotify")
	youtube := NewKey[string]("youtube")

	Update(inj, spotify, "spotify-token")
	Update(inj, youtube, "youtube-token")

	v, ok := Var(inj, spotify).Load()
	require.True(t, ok)
	require.Equal(t, "spotify-token", v)

	v, ok = Var(inj, youtube).Load()
	require.True(t, ok)
	require.Equal(t, "youtube-token", v)
}

func TestInjectorStreamDeliversSnapshotThenUpdates(t *testing.T) {
	inj := New()
	key := NewKey[int](nil)
	Update(inj, key, 1)

	initial, stream := Stream(inj, key)
	defer stream.Close()
	require.True(t, initial.Present)
	require.Equal(t, 1, initial.Value)

	Update(inj, key, 2)

	select {
	case u := <-stream.Updates():
		require.True(t, u.Present)
		require.Equal(t, 2, u.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}

	Clear(inj, key)
	select {
	case u := <-stream.Updates():
		require.False(t, u.Present)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear")
	}
}
