package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashspire/songbot/internal/trackid"
)

func newTestItem(id string) Item {
	return Item{TrackID: trackid.TrackId{Service: trackid.ServiceSpotify, ID: id}, Duration: time.Minute}
}

func TestMixerQueueIsFIFO(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()

	require.NoError(t, m.PushBack(ctx, newTestItem("a")))
	require.NoError(t, m.PushBack(ctx, newTestItem("b")))
	require.NoError(t, m.PushBack(ctx, newTestItem("c")))

	first, err := m.NextSong(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.TrackID.ID)

	second, err := m.NextSong(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.TrackID.ID)

	require.Equal(t, 1, m.Len())
}

func TestMixerPromoteSongMovesToFront(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	require.NoError(t, m.PushBack(ctx, newTestItem("a")))
	require.NoError(t, m.PushBack(ctx, newTestItem("b")))
	require.NoError(t, m.PushBack(ctx, newTestItem("c")))

	user := "alice"
	item, ok, err := m.PromoteSong(ctx, &user, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c", item.TrackID.ID)

	list := m.List()
	require.Equal(t, []string{"c", "a", "b"}, []string{list[0].TrackID.ID, list[1].TrackID.ID, list[2].TrackID.ID})
}

func TestMixerPromoteSongOutOfRange(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	require.NoError(t, m.PushBack(ctx, newTestItem("a")))

	user := "alice"
	_, ok, err := m.PromoteSong(ctx, &user, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMixerDuplicatePositionLookup(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	require.NoError(t, m.PushBack(ctx, newTestItem("a")))
	require.NoError(t, m.PushBack(ctx, newTestItem("b")))

	require.Equal(t, 1, m.PositionOf(trackid.TrackId{Service: trackid.ServiceSpotify, ID: "b"}))
	require.Equal(t, -1, m.PositionOf(trackid.TrackId{Service: trackid.ServiceSpotify, ID: "z"}))
}

func TestMixerCountByUser(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	alice := "alice"
	bob := "bob"

	a1 := newTestItem("a1")
	a1.User = &alice
	a2 := newTestItem("a2")
	a2.User = &alice
	b1 := newTestItem("b1")
	b1.User = &bob

	require.NoError(t, m.PushBack(ctx, a1))
	require.NoError(t, m.PushBack(ctx, a2))
	require.NoError(t, m.PushBack(ctx, b1))

	require.Equal(t, 2, m.CountByUser("alice"))
	require.Equal(t, 1, m.CountByUser("bob"))
	require.Equal(t, 0, m.CountByUser("carol"))
}

func TestMixerRemoveLastByUser(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	alice := "alice"
	bob := "bob"

	a1 := newTestItem("a1")
	a1.User = &alice
	b1 := newTestItem("b1")
	b1.User = &bob
	a2 := newTestItem("a2")
	a2.User = &alice

	require.NoError(t, m.PushBack(ctx, a1))
	require.NoError(t, m.PushBack(ctx, b1))
	require.NoError(t, m.PushBack(ctx, a2))

	removed, ok, err := m.RemoveLastByUser(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a2", removed.TrackID.ID)
	require.Equal(t, 2, m.Len())
}

func TestMixerSidelinedTakesPriorityOverQueue(t *testing.T) {
	m := NewMixer(nil)
	ctx := context.Background()
	require.NoError(t, m.PushBack(ctx, newTestItem("queued")))

	theme := NewSong(newTestItem("theme"))
	m.PushSidelined(*theme)

	next, err := m.NextSong(ctx)
	require.NoError(t, err)
	require.Equal(t, "theme", next.TrackID.ID)

	after, err := m.NextSong(ctx)
	require.NoError(t, err)
	require.Equal(t, "queued", after.TrackID.ID)
}

func TestMixerFallbackShuffleDrawsEveryItem(t *testing.T) {
	m := NewMixer(nil)
	m.SetMinFallbackSize(3)
	m.UpdateFallbackItems([]Item{newTestItem("x"), newTestItem("y"), newTestItem("z")})

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		song, err := m.NextSong(context.Background())
		require.NoError(t, err)
		require.NotNil(t, song)
		seen[song.TrackID.ID] = true
	}
	require.True(t, seen["x"])
	require.True(t, seen["y"])
	require.True(t, seen["z"])
}

func TestMixerNextSongNilWhenEmpty(t *testing.T) {
	m := NewMixer(nil)
	song, err := m.NextSong(context.Background())
	require.NoError(t, err)
	require.Nil(t, song)
}

func TestMixerPersistenceFailureLeavesQueueUntouched(t *testing.T) {
	persistence := &failingPersistence{}
	m := NewMixer(persistence)
	err := m.PushBack(context.Background(), newTestItem("a"))
	require.Error(t, err)
	require.Equal(t, 0, m.Len())
}

func TestMixerPromoteSongPersistenceFailureLeavesQueueUntouched(t *testing.T) {
	persistence := &failingPromotePersistence{}
	m := NewMixer(persistence)
	ctx := context.Background()
	require.NoError(t, m.PushBack(ctx, newTestItem("a")))
	require.NoError(t, m.PushBack(ctx, newTestItem("b")))
	require.NoError(t, m.PushBack(ctx, newTestItem("c")))

	user := "alice"
	_, ok, err := m.PromoteSong(ctx, &user, 2)
	require.Error(t, err)
	require.False(t, ok)

	list := m.List()
	require.Equal(t, []string{"a", "b", "c"}, []string{list[0].TrackID.ID, list[1].TrackID.ID, list[2].TrackID.ID})
}

type failingPersistence struct{}

func (failingPersistence) ListActive(ctx context.Context) ([]Item, error) { return nil, nil }
func (failingPersistence) PushBack(ctx context.Context, item Item) error {
	return context.DeadlineExceeded
}
func (failingPersistence) RemoveSong(ctx context.Context, trackID trackid.TrackId, popped bool) error {
	return nil
}
func (failingPersistence) Purge(ctx context.Context) error { return nil }
func (failingPersistence) PromoteSong(ctx context.Context, user *string, trackID trackid.TrackId) error {
	return nil
}

type failingPromotePersistence struct{}

func (failingPromotePersistence) ListActive(ctx context.Context) ([]Item, error) { return nil, nil }
func (failingPromotePersistence) PushBack(ctx context.Context, item Item) error  { return nil }
func (failingPromotePersistence) RemoveSong(ctx context.Context, trackID trackid.TrackId, popped bool) error {
	return nil
}
func (failingPromotePersistence) Purge(ctx context.Context) error { return nil }
func (failingPromotePersistence) PromoteSong(ctx context.Context, user *string, trackID trackid.TrackId) error {
	return context.DeadlineExceeded
}
