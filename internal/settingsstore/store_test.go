package settingsstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetClear(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "player/volume")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "player/volume", json.RawMessage(`50`)))
	raw, ok, err := store.Get(ctx, "player/volume")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, "50", string(raw))

	require.NoError(t, store.Clear(ctx, "player/volume"))
	_, ok, err = store.Get(ctx, "player/volume")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreSchemaValidation(t *testing.T) {
	schema, err := NewSchemaSet(Schema{Key: "player/volume", Type: TypeNumber})
	require.NoError(t, err)
	store := NewMemoryStore(schema)
	ctx := context.Background()

	err = store.Set(ctx, "player/volume", json.RawMessage(`"loud"`))
	require.Error(t, err)

	require.NoError(t, store.Set(ctx, "player/volume", json.RawMessage(`75`)))
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "player/volume", json.RawMessage(`1`)))
	require.NoError(t, store.Set(ctx, "player/max-queue-length", json.RawMessage(`2`)))
	require.NoError(t, store.Set(ctx, "auth/admin", json.RawMessage(`3`)))

	keys, err := store.ListByPrefix(ctx, "player")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"player/volume", "player/max-queue-length"}, keys)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestMemoryStoreStreamDeliversSetAndClear(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "player/volume", json.RawMessage(`10`)))

	raw, ok, sub, err := store.Stream(ctx, "player/volume")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, "10", string(raw))
	defer sub.Close()

	require.NoError(t, store.Set(ctx, "player/volume", json.RawMessage(`20`)))
	select {
	case ev := <-sub.C():
		require.Equal(t, EventSet, ev.Kind)
		require.JSONEq(t, "20", string(ev.Value))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for set event")
	}

	require.NoError(t, store.Clear(ctx, "player/volume"))
	select {
	case ev := <-sub.C():
		require.Equal(t, EventClear, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear event")
	}
}

func TestMemoryStoreSetSilentDoesNotPublish(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_, _, sub, err := store.Stream(ctx, "player/volume")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.SetSilent(ctx, "player/volume", json.RawMessage(`99`)))

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	raw, ok, err := store.Get(ctx, "player/volume")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, "99", string(raw))
}

func TestScopedNarrowsKeys(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	scoped := NewScoped(store, "player")

	require.NoError(t, scoped.Set(ctx, "volume", json.RawMessage(`42`)))
	raw, ok, err := store.Get(ctx, "player/volume")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, "42", string(raw))

	keys, err := scoped.ListByPrefix(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"player/volume"}, keys)
}
