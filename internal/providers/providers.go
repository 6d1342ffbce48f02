// Package providers defines the contract the player core uses to talk to a
// music service (Spotify, YouTube) and playback device, independent of
// which concrete provider backs it.
package providers

import (
	"context"

	"github.com/ashspire/songbot/internal/trackid"
)

// TrackMetadata is what the player needs to admit a track into the queue.
type TrackMetadata struct {
	TrackID  trackid.TrackId
	Duration int64 // milliseconds
	Playable bool
}

// DeviceState is a snapshot of the external playback device.
type DeviceState struct {
	TrackID    trackid.TrackId
	HasTrack   bool
	IsPlaying  bool
	ElapsedMS  int64
	VolumePct  int
}

// Client is one provider's playback and search surface. Implementations
// hold their own credential handle and rate limiter; every method is
// expected to trigger a force-refresh on the credential handle when the
// remote API answers 401, and to return an error rather than panic on any
// other failure.
type Client interface {
	Service() trackid.Service

	// Search returns the first matching track, or ok=false if none.
	Search(ctx context.Context, query string) (id trackid.TrackId, ok bool, err error)

	// TrackMetadata resolves a track id to playable metadata in the given
	// market (an ISO country code, or "" for no market restriction).
	TrackMetadata(ctx context.Context, id trackid.TrackId, market string) (TrackMetadata, error)

	DeviceState(ctx context.Context) (DeviceState, bool, error)
	DevicePlay(ctx context.Context, deviceID string, id *trackid.TrackId, positionMS int64) (bool, error)
	DevicePause(ctx context.Context, deviceID string) (bool, error)
	DeviceVolume(ctx context.Context, deviceID string, percent int) (bool, error)
	DeviceNext(ctx context.Context, deviceID string) (bool, error)
}
