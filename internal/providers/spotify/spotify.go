// Package spotify implements the providers.Client contract against the
// Spotify Web API.
package spotify

import (
	"context"
	"fmt"

	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/providers"
	"github.com/ashspire/songbot/internal/providers/authtransport"
	"github.com/ashspire/songbot/internal/trackid"

	"golang.org/x/time/rate"
)

// Client wraps the Spotify Web API client with the rate limiting and
// credential-driven authorization the player core expects of every
// provider.
type Client struct {
	api     *spotifyapi.Client
	limiter *rate.Limiter
}

// New constructs a Spotify provider client. handle supplies the current
// access token; limiter bounds outbound request rate (the Spotify Web API
// enforces a rolling rate limit per app).
func New(handle *credential.Handle, limiter *rate.Limiter) *Client {
	httpClient := authtransport.New(handle, nil).Client()
	return &Client{
		api:     spotifyapi.New(httpClient),
		limiter: limiter,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) Service() trackid.Service { return trackid.ServiceSpotify }

func (c *Client) Search(ctx context.Context, query string) (trackid.TrackId, bool, error) {
	if err := c.wait(ctx); err != nil {
		return trackid.TrackId{}, false, err
	}
	result, err := c.api.Search(ctx, query, spotifyapi.SearchTypeTrack, spotifyapi.Limit(1))
	if err != nil {
		return trackid.TrackId{}, false, fmt.Errorf("spotify: search: %w", err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return trackid.TrackId{}, false, nil
	}
	track := result.Tracks.Tracks[0]
	return trackid.TrackId{Service: trackid.ServiceSpotify, ID: string(track.ID)}, true, nil
}

func (c *Client) TrackMetadata(ctx context.Context, id trackid.TrackId, market string) (providers.TrackMetadata, error) {
	if err := c.wait(ctx); err != nil {
		return providers.TrackMetadata{}, err
	}
	opts := []spotifyapi.RequestOption{}
	if market != "" {
		opts = append(opts, spotifyapi.Market(market))
	}
	track, err := c.api.GetTrack(ctx, spotifyapi.ID(id.ID), opts...)
	if err != nil {
		return providers.TrackMetadata{}, fmt.Errorf("spotify: get track: %w", err)
	}
	return providers.TrackMetadata{
		TrackID:  id,
		Duration: int64(track.SimpleTrack.Duration),
		Playable: isPlayableInMarket(track.SimpleTrack.AvailableMarkets, market),
	}, nil
}

func (c *Client) DeviceState(ctx context.Context) (providers.DeviceState, bool, error) {
	if err := c.wait(ctx); err != nil {
		return providers.DeviceState{}, false, err
	}
	state, err := c.api.PlayerState(ctx)
	if err != nil {
		return providers.DeviceState{}, false, fmt.Errorf("spotify: player state: %w", err)
	}
	if state == nil || state.Item == nil {
		return providers.DeviceState{}, false, nil
	}
	return providers.DeviceState{
		TrackID:   trackid.TrackId{Service: trackid.ServiceSpotify, ID: string(state.Item.ID)},
		HasTrack:  true,
		IsPlaying: state.Playing,
		ElapsedMS: int64(state.Progress),
		VolumePct: int(state.Device.Volume),
	}, true, nil
}

func (c *Client) DevicePlay(ctx context.Context, deviceID string, id *trackid.TrackId, positionMS int64) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	opt := &spotifyapi.PlayOptions{}
	if deviceID != "" {
		did := spotifyapi.ID(deviceID)
		opt.DeviceID = &did
	}
	if id != nil {
		uri := spotifyapi.URI(fmt.Sprintf("spotify:track:%s", id.ID))
		opt.URIs = []spotifyapi.URI{uri}
		opt.PositionMs = spotifyapi.Numeric(positionMS)
	}
	if err := c.api.PlayOpt(ctx, opt); err != nil {
		return false, fmt.Errorf("spotify: play: %w", err)
	}
	return true, nil
}

func (c *Client) DevicePause(ctx context.Context, deviceID string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	opt := &spotifyapi.PlayOptions{}
	if deviceID != "" {
		did := spotifyapi.ID(deviceID)
		opt.DeviceID = &did
	}
	if err := c.api.PauseOpt(ctx, opt); err != nil {
		return false, fmt.Errorf("spotify: pause: %w", err)
	}
	return true, nil
}

func (c *Client) DeviceVolume(ctx context.Context, deviceID string, percent int) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	opt := &spotifyapi.PlayOptions{}
	if deviceID != "" {
		did := spotifyapi.ID(deviceID)
		opt.DeviceID = &did
	}
	if err := c.api.VolumeOpt(ctx, percent, opt); err != nil {
		return false, fmt.Errorf("spotify: volume: %w", err)
	}
	return true, nil
}

func (c *Client) DeviceNext(ctx context.Context, deviceID string) (bool, error) {
	if err := c.wait(ctx); err != nil {
		return false, err
	}
	opt := &spotifyapi.PlayOptions{}
	if deviceID != "" {
		did := spotifyapi.ID(deviceID)
		opt.DeviceID = &did
	}
	if err := c.api.NextOpt(ctx, opt); err != nil {
		return false, fmt.Errorf("spotify: next: %w", err)
	}
	return true, nil
}

func isPlayableInMarket(availableMarkets []string, market string) bool {
	if market == "" || len(availableMarkets) == 0 {
		return true
	}
	for _, m := range availableMarkets {
		if m == market {
			return true
		}
	}
	return false
}

var _ providers.Client = (*Client)(nil)
