package player

import "fmt"

// Sentinel errors returned by the public operations. Callers format these
// directly into chat responses; wrap with %w only for diagnostics.
var (
	ErrNotPlayable             = fmt.Errorf("player: track is not playable")
	ErrMissingAuth             = fmt.Errorf("player: no credential available for this provider")
	ErrUnsupportedPlaybackMode = fmt.Errorf("player: provider does not support this operation")
	ErrNoSuchTheme             = fmt.Errorf("player: no such theme")
	ErrNotConfigured           = fmt.Errorf("player: no playback provider configured")
	ErrNoActiveDevice          = fmt.Errorf("player: no active playback device")
	ErrQueueFull               = fmt.Errorf("player: queue is full")
)

// DuplicateError reports that the requested track is already queued or
// currently playing, at the given position (-1 means "currently playing").
type DuplicateError struct {
	Position int
}

func (e *DuplicateError) Error() string {
	if e.Position < 0 {
		return "player: track is already playing"
	}
	return fmt.Sprintf("player: track is already queued at position %d", e.Position)
}

// TooManyUserTracksError reports that the requester already has n items
// queued, at or above the configured per-user cap.
type TooManyUserTracksError struct {
	Count int
}

func (e *TooManyUserTracksError) Error() string {
	return fmt.Sprintf("player: you already have %d songs queued", e.Count)
}

// ErrRecentlyPlayed reports that the track was played too recently to be
// re-queued.
var ErrRecentlyPlayed = fmt.Errorf("player: track was played too recently")
