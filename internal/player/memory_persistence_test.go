package player

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashspire/songbot/internal/trackid"
)

func TestMemoryPersistenceRoundTrip(t *testing.T) {
	m := NewMemoryPersistence()
	ctx := context.Background()

	item := newTestItem("a")
	require.NoError(t, m.PushBack(ctx, item))

	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "a", active[0].TrackID.ID)

	require.NoError(t, m.RemoveSong(ctx, trackid.TrackId{Service: trackid.ServiceSpotify, ID: "a"}, true))

	active, err = m.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestMemoryPersistencePurge(t *testing.T) {
	m := NewMemoryPersistence()
	ctx := context.Background()

	require.NoError(t, m.PushBack(ctx, newTestItem("a")))
	require.NoError(t, m.PushBack(ctx, newTestItem("b")))
	require.NoError(t, m.Purge(ctx))

	active, err := m.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}
