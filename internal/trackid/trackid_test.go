package trackid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBareID(t *testing.T) {
	id, err := Parse("6rqhFgbbKwnb9MLmUQDhG6", ServiceSpotify)
	require.NoError(t, err)
	require.Equal(t, TrackId{Service: ServiceSpotify, ID: "6rqhFgbbKwnb9MLmUQDhG6"}, id)

	_, err = Parse("some-id", ServiceUnknown)
	require.Error(t, err)
}

func TestParseURI(t *testing.T) {
	id, err := Parse("spotify:track:6rqhFgbbKwnb9MLmUQDhG6", ServiceUnknown)
	require.NoError(t, err)
	require.Equal(t, ServiceSpotify, id.Service)
	require.Equal(t, "6rqhFgbbKwnb9MLmUQDhG6", id.ID)

	_, err = Parse("spotify:album:xyz", ServiceUnknown)
	require.Error(t, err)
}

func TestParseSpotifyURL(t *testing.T) {
	id, err := Parse("https://open.spotify.com/track/6rqhFgbbKwnb9MLmUQDhG6", ServiceUnknown)
	require.NoError(t, err)
	require.Equal(t, TrackId{Service: ServiceSpotify, ID: "6rqhFgbbKwnb9MLmUQDhG6"}, id)
}

func TestParseYouTubeURLs(t *testing.T) {
	id, err := Parse("https://www.youtube.com/watch?v=dQw4w9WgXcQ", ServiceUnknown)
	require.NoError(t, err)
	require.Equal(t, TrackId{Service: ServiceYouTube, ID: "dQw4w9WgXcQ"}, id)

	id, err = Parse("https://youtu.be/dQw4w9WgXcQ", ServiceUnknown)
	require.NoError(t, err)
	require.Equal(t, TrackId{Service: ServiceYouTube, ID: "dQw4w9WgXcQ"}, id)
}

func TestStringRoundTrip(t *testing.T) {
	id := TrackId{Service: ServiceSpotify, ID: "abc123"}
	require.Equal(t, "spotify:track:abc123", id.String())
}
