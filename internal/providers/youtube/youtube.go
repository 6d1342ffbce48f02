// Package youtube implements the providers.Client contract against the
// YouTube Data API v3. The API has no authenticated "active device" concept
// comparable to Spotify Connect, so DevicePlay, DevicePause, DeviceVolume
// and DeviceNext return errNoDevice rather than attempting a no-op, and
// DeviceState reports that no device is present (ok=false, nil error).
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/providers"
	"github.com/ashspire/songbot/internal/providers/authtransport"
	"github.com/ashspire/songbot/internal/trackid"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3/"

var errNoDevice = fmt.Errorf("youtube: provider has no playback device")

// Client talks to the YouTube Data API v3 over plain REST calls, the way
// the rest of this codebase talks to services that don't ship a Go client
// library of their own.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// New constructs a YouTube provider client. handle supplies the current
// access token; limiter bounds outbound request rate.
func New(handle *credential.Handle, limiter *rate.Limiter) *Client {
	return &Client{
		httpClient: authtransport.New(handle, nil).Client(),
		limiter:    limiter,
		baseURL:    defaultBaseURL,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) Service() trackid.Service { return trackid.ServiceYouTube }

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

func (c *Client) Search(ctx context.Context, query string) (trackid.TrackId, bool, error) {
	if err := c.wait(ctx); err != nil {
		return trackid.TrackId{}, false, err
	}
	v := url.Values{}
	v.Set("part", "id")
	v.Set("type", "video")
	v.Set("videoCategoryId", "10") // Music
	v.Set("maxResults", "1")
	v.Set("q", query)

	var resp searchResponse
	if err := c.getJSON(ctx, "search", v, &resp); err != nil {
		return trackid.TrackId{}, false, fmt.Errorf("youtube: search: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].ID.VideoID == "" {
		return trackid.TrackId{}, false, nil
	}
	return trackid.TrackId{Service: trackid.ServiceYouTube, ID: resp.Items[0].ID.VideoID}, true, nil
}

type videosResponse struct {
	Items []struct {
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Status struct {
			UploadStatus string `json:"uploadStatus"`
		} `json:"status"`
	} `json:"items"`
}

func (c *Client) TrackMetadata(ctx context.Context, id trackid.TrackId, market string) (providers.TrackMetadata, error) {
	if err := c.wait(ctx); err != nil {
		return providers.TrackMetadata{}, err
	}
	v := url.Values{}
	v.Set("part", "contentDetails,status")
	v.Set("id", id.ID)

	var resp videosResponse
	if err := c.getJSON(ctx, "videos", v, &resp); err != nil {
		return providers.TrackMetadata{}, fmt.Errorf("youtube: videos: %w", err)
	}
	if len(resp.Items) == 0 {
		return providers.TrackMetadata{}, fmt.Errorf("youtube: unknown video %q", id.ID)
	}
	item := resp.Items[0]
	duration, err := parseISO8601Duration(item.ContentDetails.Duration)
	if err != nil {
		return providers.TrackMetadata{}, fmt.Errorf("youtube: duration: %w", err)
	}
	return providers.TrackMetadata{
		TrackID:  id,
		Duration: duration.Milliseconds(),
		Playable: item.Status.UploadStatus == "processed",
	}, nil
}

func (c *Client) DeviceState(ctx context.Context) (providers.DeviceState, bool, error) {
	return providers.DeviceState{}, false, nil
}

func (c *Client) DevicePlay(ctx context.Context, deviceID string, id *trackid.TrackId, positionMS int64) (bool, error) {
	return false, errNoDevice
}

func (c *Client) DevicePause(ctx context.Context, deviceID string) (bool, error) {
	return false, errNoDevice
}

func (c *Client) DeviceVolume(ctx context.Context, deviceID string, percent int) (bool, error) {
	return false, errNoDevice
}

func (c *Client) DeviceNext(ctx context.Context, deviceID string) (bool, error) {
	return false, errNoDevice
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseISO8601Duration parses the subset of ISO 8601 durations the YouTube
// Data API returns for video lengths, e.g. "PT4M13S" or "PT1H2M3S".
func parseISO8601Duration(s string) (time.Duration, error) {
	if !strings.HasPrefix(s, "PT") {
		return 0, fmt.Errorf("malformed duration %q", s)
	}
	s = s[2:]

	var total time.Duration
	var num strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			num.WriteRune(r)
			continue
		}
		n, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, fmt.Errorf("malformed duration %q", s)
		}
		num.Reset()
		switch r {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("malformed duration %q", s)
		}
	}
	return total, nil
}

var _ providers.Client = (*Client)(nil)
