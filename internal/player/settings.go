package player

import (
	"context"
	"encoding/json"

	"github.com/ashspire/songbot/internal/durationx"
	"github.com/ashspire/songbot/internal/settingsstore"
)

// Tunable key names under the "player" settings feature. Every one of these
// is read on demand rather than cached, so an operator's change takes
// effect on the very next operation without the player needing its own
// settings-watching goroutine.
const (
	settingMaxQueueLength      = "max-queue-length"
	settingMaxSongsPerUser     = "max-songs-per-user"
	settingRecentlyPlayed      = "recently-played-window"
	settingSyncInterval        = "sync-interval"
	settingSyncDriftThreshold  = "sync-drift-threshold"
	settingSyncDriftTicks      = "sync-drift-ticks"
	settingFallbackQueueSize   = "fallback-queue-size"
	settingMarket              = "market"
)

func getNumberSetting(ctx context.Context, scoped *settingsstore.Scoped, key string, def int) int {
	if scoped == nil {
		return def
	}
	raw, ok, err := scoped.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return def
	}
	return int(f)
}

func getStringSetting(ctx context.Context, scoped *settingsstore.Scoped, key, def string) string {
	if scoped == nil {
		return def
	}
	raw, ok, err := scoped.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return def
	}
	return s
}

func getDurationSetting(ctx context.Context, scoped *settingsstore.Scoped, key string, def durationx.Duration) durationx.Duration {
	if scoped == nil {
		return def
	}
	raw, ok, err := scoped.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	var d durationx.Duration
	if err := json.Unmarshal(raw, &d); err != nil {
		return def
	}
	return d
}
