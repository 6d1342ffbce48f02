// Package trackid parses and renders the track identifiers the song-request
// system understands: a bare provider-native id, a "service:track:id" URI,
// or a web URL pointing at the track on the provider's own site.
package trackid

import (
	"fmt"
	"net/url"
	"strings"
)

// Service names the provider a TrackId belongs to.
type Service int

const (
	ServiceUnknown Service = iota
	ServiceSpotify
	ServiceYouTube
)

func (s Service) String() string {
	switch s {
	case ServiceSpotify:
		return "spotify"
	case ServiceYouTube:
		return "youtube"
	default:
		return "unknown"
	}
}

// TrackId identifies one track on one provider.
type TrackId struct {
	Service Service
	ID      string
}

// String renders the canonical "service:track:id" form.
func (t TrackId) String() string {
	return fmt.Sprintf("%s:track:%s", t.Service, t.ID)
}

// Parse accepts a bare id (ambiguous, requires a default service), a
// "service:track:id" URI, or an "https://" URL from either provider's site.
func Parse(input string, defaultService Service) (TrackId, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return TrackId{}, fmt.Errorf("trackid: empty input")
	}

	if strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://") {
		return parseURL(input)
	}

	if strings.Contains(input, ":") {
		return parseURI(input)
	}

	if defaultService == ServiceUnknown {
		return TrackId{}, fmt.Errorf("trackid: ambiguous bare id %q requires a default service", input)
	}
	return TrackId{Service: defaultService, ID: input}, nil
}

func parseURI(input string) (TrackId, error) {
	parts := strings.SplitN(input, ":", 3)
	if len(parts) != 3 || parts[1] != "track" {
		return TrackId{}, fmt.Errorf("trackid: malformed uri %q", input)
	}
	service := serviceFromName(parts[0])
	if service == ServiceUnknown {
		return TrackId{}, fmt.Errorf("trackid: unknown service in uri %q", input)
	}
	if parts[2] == "" {
		return TrackId{}, fmt.Errorf("trackid: missing id in uri %q", input)
	}
	return TrackId{Service: service, ID: parts[2]}, nil
}

func parseURL(input string) (TrackId, error) {
	u, err := url.Parse(input)
	if err != nil {
		return TrackId{}, fmt.Errorf("trackid: invalid url %q: %w", input, err)
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")

	switch {
	case host == "open.spotify.com":
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) != 2 || segments[0] != "track" || segments[1] == "" {
			return TrackId{}, fmt.Errorf("trackid: unrecognized spotify url %q", input)
		}
		return TrackId{Service: ServiceSpotify, ID: segments[1]}, nil

	case host == "youtube.com" || host == "m.youtube.com":
		id := u.Query().Get("v")
		if id == "" {
			return TrackId{}, fmt.Errorf("trackid: youtube url %q missing video id", input)
		}
		return TrackId{Service: ServiceYouTube, ID: id}, nil

	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return TrackId{}, fmt.Errorf("trackid: youtube short url %q missing video id", input)
		}
		return TrackId{Service: ServiceYouTube, ID: id}, nil

	default:
		return TrackId{}, fmt.Errorf("trackid: unrecognized host %q", host)
	}
}

func serviceFromName(name string) Service {
	switch strings.ToLower(name) {
	case "spotify":
		return ServiceSpotify
	case "youtube":
		return ServiceYouTube
	default:
		return ServiceUnknown
	}
}
