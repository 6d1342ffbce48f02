// Package player implements the queue, mixer, current-song state machine,
// and device synchronizer behind the song-request feature: the subsystem
// that decides what plays next and keeps an external playback device (e.g.
// a Spotify Connect device) in sync with that decision.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashspire/songbot/internal/broadcast"
	"github.com/ashspire/songbot/internal/durationx"
	"github.com/ashspire/songbot/internal/lrucache"
	"github.com/ashspire/songbot/internal/providers"
	"github.com/ashspire/songbot/internal/settingsstore"
	"github.com/ashspire/songbot/internal/trackid"
)

// Defaults used when a tunable is absent from the settings store.
const (
	defaultMaxQueueLength  = 50
	defaultMaxSongsPerUser = 2
)

var (
	defaultRecentlyPlayedWindow = durationx.Duration(4 * time.Hour)
	defaultSyncInterval         = durationx.Duration(time.Second)
	defaultSyncDriftThreshold   = durationx.Duration(2 * time.Second)
)

const defaultSyncDriftTicks = 3

// ThemeLookup resolves a theme name to its queueable item; themes
// themselves are opaque configuration (the `themes` table in §6) the
// player core doesn't own.
type ThemeLookup interface {
	Theme(ctx context.Context, channel, name string) (Item, bool, error)
}

// VolumeMode selects how Volume interprets its n argument.
type VolumeMode int

const (
	VolumeSet VolumeMode = iota
	VolumeUp
	VolumeDown
)

// Config holds everything Player needs at construction. Provider, Settings,
// and Persistence are required; the rest have workable defaults.
type Config struct {
	Provider    providers.Client
	Settings    *settingsstore.Scoped
	Persistence Persistence
	Themes      ThemeLookup
	Currency    CurrencyBackend
	Logger      *slog.Logger
	DeviceID    string
}

// Player ties the Mixer to a live playback provider, exposing the public
// operation set the chat frontend and HTTP dashboard drive.
type Player struct {
	mixer    *Mixer
	provider providers.Client
	settings *settingsstore.Scoped
	themes   ThemeLookup
	currency CurrencyBackend
	logger   *slog.Logger

	events         *broadcast.Feed[Event]
	recentlyPlayed *lrucache.Cache[string, struct{}]
	search         singleflight.Group

	mu       sync.RWMutex
	current  *Song
	deviceID string
	volume   int

	driftMu    sync.Mutex
	driftTicks int
}

// New constructs a Player around cfg. The queue is not yet loaded from
// persistence; call LoadQueue once before serving traffic.
func New(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	currency := cfg.Currency
	if currency == nil {
		currency = NoopCurrencyBackend{}
	}
	return &Player{
		mixer:          NewMixer(cfg.Persistence),
		provider:       cfg.Provider,
		settings:       cfg.Settings,
		themes:         cfg.Themes,
		currency:       currency,
		logger:         logger,
		events:         newEventFeed(),
		recentlyPlayed: lrucache.New[string, struct{}](1024, defaultRecentlyPlayedWindow.Std()),
		deviceID:       cfg.DeviceID,
		volume:         100,
	}
}

// LoadQueue recovers the in-memory queue from persistence at startup.
func (p *Player) LoadQueue(ctx context.Context) error {
	return p.mixer.InitializeQueue(ctx)
}

// Events returns a live subscription to Playing/Paused/Modified/
// NotConfigured notifications.
func (p *Player) Events() broadcast.Subscription[Event] {
	return p.events.Subscribe()
}

// Current returns a snapshot of the currently playing (or paused) song, if
// any.
func (p *Player) Current() *Song {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.clone()
}

// List returns a snapshot of the request queue.
func (p *Player) List() []Item {
	return p.mixer.List()
}

// Length is the O(1) queue length.
func (p *Player) Length() int {
	return p.mixer.Len()
}

// Find locates the first queued item matching predicate and reports how
// long until it plays, accounting for the currently playing song's
// remaining time.
func (p *Player) Find(predicate func(Item) bool) (Item, time.Duration, bool) {
	item, ok, precedingCount := p.mixer.Find(predicate)
	if !ok {
		return Item{}, 0, false
	}

	p.mu.RLock()
	current := p.current.clone()
	p.mu.RUnlock()

	var wait time.Duration
	if current != nil {
		wait += current.Duration - current.EffectiveElapsed(time.Now())
	}

	queued := p.mixer.List()
	for i := 0; i < precedingCount && i < len(queued); i++ {
		wait += queued[i].Duration
	}
	return item, wait, true
}

// SearchTrack delegates to the provider, collapsing concurrent identical
// queries into one upstream call.
func (p *Player) SearchTrack(ctx context.Context, query string) (trackid.TrackId, bool, error) {
	if p.provider == nil {
		return trackid.TrackId{}, false, ErrNotConfigured
	}
	type result struct {
		id trackid.TrackId
		ok bool
	}
	v, err, _ := p.search.Do(query, func() (any, error) {
		id, ok, err := p.provider.Search(ctx, query)
		return result{id: id, ok: ok}, err
	})
	if err != nil {
		return trackid.TrackId{}, false, err
	}
	r := v.(result)
	return r.id, r.ok, nil
}

// AddTrack runs admission control (§4.E.3) and, on success, enqueues the
// track — or makes it the current song, if nothing was playing.
func (p *Player) AddTrack(ctx context.Context, user string, trackID trackid.TrackId, bypassLimits bool, maxDuration time.Duration) (*int, Item, error) {
	if p.provider == nil {
		return nil, Item{}, ErrNotConfigured
	}

	market := getStringSetting(ctx, p.settings, settingMarket, "")
	metadata, err := p.provider.TrackMetadata(ctx, trackID, market)
	if err != nil {
		return nil, Item{}, err
	}
	if !metadata.Playable {
		return nil, Item{}, ErrNotPlayable
	}

	duration := time.Duration(metadata.Duration) * time.Millisecond
	if maxDuration > 0 && duration > maxDuration {
		return nil, Item{}, ErrNotPlayable
	}

	p.mu.RLock()
	current := p.current.clone()
	p.mu.RUnlock()
	if current != nil && current.TrackID == trackID {
		return nil, Item{}, &DuplicateError{Position: -1}
	}
	if pos := p.mixer.PositionOf(trackID); pos >= 0 {
		return nil, Item{}, &DuplicateError{Position: pos}
	}

	if !bypassLimits {
		maxSongs := getNumberSetting(ctx, p.settings, settingMaxSongsPerUser, defaultMaxSongsPerUser)
		count := p.mixer.CountByUser(user)
		if current != nil && current.RequestedBy(user) {
			count++
		}
		if count >= maxSongs {
			return nil, Item{}, &TooManyUserTracksError{Count: count}
		}
		maxQueue := getNumberSetting(ctx, p.settings, settingMaxQueueLength, defaultMaxQueueLength)
		if p.mixer.Len() >= maxQueue {
			return nil, Item{}, ErrQueueFull
		}
	}

	window := getDurationSetting(ctx, p.settings, settingRecentlyPlayed, defaultRecentlyPlayedWindow)
	if window.Std() > 0 && p.recentlyPlayed.Contains(trackID.String()) {
		return nil, Item{}, ErrRecentlyPlayed
	}

	item := Item{TrackID: trackID, Duration: duration, User: &user, AddedAt: time.Now()}
	if err := p.mixer.PushBack(ctx, item); err != nil {
		return nil, Item{}, err
	}

	p.rewardBestEffort(ctx, user)

	p.mu.Lock()
	becomesCurrent := p.current == nil
	p.mu.Unlock()

	if becomesCurrent {
		if err := p.advance(ctx); err != nil {
			p.logger.Warn("player: advance after empty-queue add_track failed", "error", err)
		}
		return nil, item, nil
	}

	pos := p.mixer.Len() - 1
	return &pos, item, nil
}

func (p *Player) rewardBestEffort(ctx context.Context, user string) {
	reward := getNumberSetting(ctx, p.settings, "request-reward", 0)
	if reward <= 0 {
		return
	}
	if err := p.currency.Reward(ctx, "", user, reward); err != nil {
		p.logger.Warn("player: currency reward failed", "user", user, "error", err)
	}
}

// PromoteSong moves queue[pos] to the front.
func (p *Player) PromoteSong(ctx context.Context, user string, pos int) (Item, bool, error) {
	return p.mixer.PromoteSong(ctx, &user, pos)
}

// RemoveAt removes the item at position pos.
func (p *Player) RemoveAt(ctx context.Context, pos int) (Item, bool, error) {
	item, ok, err := p.mixer.RemoveAt(ctx, pos)
	if ok {
		p.emitModified()
	}
	return item, ok, err
}

// RemoveLast removes the most recently queued item.
func (p *Player) RemoveLast(ctx context.Context) (Item, bool, error) {
	item, ok, err := p.mixer.RemoveLast(ctx)
	if ok {
		p.emitModified()
	}
	return item, ok, err
}

// RemoveLastByUser removes the most recently queued item belonging to user.
func (p *Player) RemoveLastByUser(ctx context.Context, user string) (Item, bool, error) {
	item, ok, err := p.mixer.RemoveLastByUser(ctx, user)
	if ok {
		p.emitModified()
	}
	return item, ok, err
}

// Purge clears the queue.
func (p *Player) Purge(ctx context.Context) ([]Item, error) {
	purged, err := p.mixer.Purge(ctx)
	if err != nil {
		return nil, err
	}
	if len(purged) > 0 {
		p.emitModified()
	}
	return purged, nil
}

// Play starts or resumes playback.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	if current == nil {
		p.mu.Unlock()
		return p.advance(ctx)
	}
	if current.State == StatePlaying {
		p.mu.Unlock()
		return nil
	}
	current.play(time.Now())
	snapshot := current.clone()
	p.mu.Unlock()

	p.issueDevicePlay(ctx, snapshot)
	p.events.Publish(Event{Kind: EventPlaying, Current: snapshot})
	return nil
}

// Pause freezes the currently playing song.
func (p *Player) Pause(ctx context.Context) error {
	p.mu.Lock()
	current := p.current
	if current == nil || current.State != StatePlaying {
		p.mu.Unlock()
		return nil
	}
	current.pause(time.Now())
	snapshot := current.clone()
	p.mu.Unlock()

	if p.provider != nil {
		if _, err := p.provider.DevicePause(ctx, p.deviceIDSnapshot()); err != nil {
			p.logger.Warn("player: device pause failed", "error", err)
		}
	}
	p.events.Publish(Event{Kind: EventPaused, Current: snapshot})
	return nil
}

// Toggle plays if paused/empty, pauses if playing.
func (p *Player) Toggle(ctx context.Context) error {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()
	if current == nil || current.State != StatePlaying {
		return p.Play(ctx)
	}
	return p.Pause(ctx)
}

// Skip ends the current song immediately and advances to the next one.
func (p *Player) Skip(ctx context.Context) error {
	p.emitModified()
	return p.advance(ctx)
}

// Volume sets, raises, or lowers the device volume, clamped to [0, 100].
func (p *Player) Volume(ctx context.Context, mode VolumeMode, n int) (int, error) {
	if p.provider == nil {
		return 0, ErrNotConfigured
	}
	p.mu.Lock()
	next := p.volume
	switch mode {
	case VolumeSet:
		next = n
	case VolumeUp:
		next += n
	case VolumeDown:
		next -= n
	}
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	p.volume = next
	deviceID := p.deviceID
	p.mu.Unlock()

	ok, err := p.provider.DeviceVolume(ctx, deviceID, next)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoActiveDevice
	}
	return next, nil
}

// PlayTheme pre-empts the current song with a theme track, sidelining it
// to resume once the theme ends.
func (p *Player) PlayTheme(ctx context.Context, channel, name string) error {
	if p.themes == nil {
		return ErrNotConfigured
	}
	if p.provider == nil {
		return ErrNotConfigured
	}
	item, ok, err := p.themes.Theme(ctx, channel, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchTheme
	}

	now := time.Now()
	p.mu.Lock()
	if p.current != nil {
		sidelined := *p.current
		sidelined.pause(now)
		p.mixer.PushSidelined(sidelined)
	}
	theme := NewSong(item)
	theme.play(now)
	p.current = theme
	snapshot := theme.clone()
	p.mu.Unlock()

	p.issueDevicePlay(ctx, snapshot)
	p.events.Publish(Event{Kind: EventPlaying, Current: snapshot})

	go p.waitForThemeEnd(ctx, theme, item.Duration)
	return nil
}

func (p *Player) waitForThemeEnd(ctx context.Context, theme *Song, duration time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(duration):
	}
	p.mu.RLock()
	stillPlayingTheme := p.current == theme
	p.mu.RUnlock()
	if !stillPlayingTheme {
		return
	}
	if err := p.advance(ctx); err != nil {
		p.logger.Warn("player: advance after theme end failed", "error", err)
	}
}

// advance invokes the mixer's next_song and transitions into it, or into
// None if nothing is available. Callers must not hold p.mu.
func (p *Player) advance(ctx context.Context) error {
	p.mixer.SetMinFallbackSize(getNumberSetting(ctx, p.settings, settingFallbackQueueSize, DefaultFallbackQueueSize))
	song, err := p.mixer.NextSong(ctx)
	if err != nil {
		p.logger.Warn("player: next_song failed", "error", err)
		p.events.Publish(Event{Kind: EventPaused})
		return err
	}

	now := time.Now()
	p.mu.Lock()
	previous := p.current
	if previous != nil {
		p.recentlyPlayed.Put(previous.TrackID.String(), struct{}{})
	}
	if song == nil {
		p.current = nil
		p.mu.Unlock()
		p.events.Publish(Event{Kind: EventPaused})
		return nil
	}
	song.play(now)
	p.current = song
	snapshot := song.clone()
	p.mu.Unlock()

	p.issueDevicePlay(ctx, snapshot)
	p.events.Publish(Event{Kind: EventPlaying, Current: snapshot})
	return nil
}

func (p *Player) issueDevicePlay(ctx context.Context, song *Song) {
	if p.provider == nil || song == nil {
		return
	}
	id := song.TrackID
	positionMS := song.EffectiveElapsed(time.Now()).Milliseconds()
	deviceID := p.deviceIDSnapshot()
	if _, err := p.provider.DevicePlay(ctx, deviceID, &id, positionMS); err != nil {
		p.logger.Warn("player: device play failed", "track", id.String(), "error", err)
	}
}

func (p *Player) emitModified() {
	p.events.Publish(Event{Kind: EventModified})
}

func (p *Player) deviceIDSnapshot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deviceID
}

// SetDeviceID updates which device subsequent play/pause/volume commands
// target.
func (p *Player) SetDeviceID(id string) {
	p.mu.Lock()
	p.deviceID = id
	p.mu.Unlock()
}

// RunDeviceSync polls the external device on an interval and reconciles its
// reported state against what the player believes is current, per three
// rules: a track-id mismatch while playing is logged and best-effort
// corrected without adopting the device's idea of what's current; an
// is_playing mismatch that persists across consecutive ticks is adopted;
// and elapsed drift beyond a threshold is adopted and announced as a
// Modified event. It runs until ctx is cancelled.
func (p *Player) RunDeviceSync(ctx context.Context) error {
	if p.provider == nil {
		return ErrNotConfigured
	}

	interval := getDurationSetting(ctx, p.settings, settingSyncInterval, defaultSyncInterval).Std()
	if interval <= 0 {
		interval = defaultSyncInterval.Std()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.syncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn("player: device sync tick failed", "error", err)
			}
		}
	}
}

func (p *Player) syncOnce(ctx context.Context) error {
	state, ok, err := p.provider.DeviceState(ctx)
	if err != nil {
		return fmt.Errorf("player: device state: %w", err)
	}

	p.mu.RLock()
	current := p.current.clone()
	p.mu.RUnlock()

	if !ok || !state.HasTrack {
		p.resetDriftTicks()
		return nil
	}
	if current == nil {
		p.resetDriftTicks()
		return nil
	}

	driftThreshold := getDurationSetting(ctx, p.settings, settingSyncDriftThreshold, defaultSyncDriftThreshold).Std()
	driftTicksLimit := getNumberSetting(ctx, p.settings, settingSyncDriftTicks, defaultSyncDriftTicks)

	// Rule 1: track mismatch while we believe playback is underway. Never
	// adopt the device's track; it's the mixer's job to decide what plays.
	if current.State == StatePlaying && state.TrackID != current.TrackID {
		p.logger.Warn("player: device playing unexpected track", "want", current.TrackID.String(), "got", state.TrackID.String())
		p.issueDevicePlay(ctx, current)
		p.resetDriftTicks()
		return nil
	}

	// Rule 2: is_playing mismatch must persist N consecutive ticks before
	// we trust it over our own state machine.
	expectedPlaying := current.State == StatePlaying
	if state.IsPlaying != expectedPlaying {
		if p.bumpDriftTicks() < driftTicksLimit {
			return nil
		}
		p.resetDriftTicks()
		p.mu.Lock()
		now := time.Now()
		if state.IsPlaying {
			current.play(now)
		} else {
			current.pause(now)
		}
		p.current = current
		snapshot := current.clone()
		p.mu.Unlock()
		if state.IsPlaying {
			p.events.Publish(Event{Kind: EventPlaying, Current: snapshot})
		} else {
			p.events.Publish(Event{Kind: EventPaused, Current: snapshot})
		}
		return nil
	}
	p.resetDriftTicks()

	// Rule 3: elapsed drift beyond the threshold is adopted outright.
	if driftThreshold <= 0 {
		return nil
	}
	reported := time.Duration(state.ElapsedMS) * time.Millisecond
	drift := reported - current.EffectiveElapsed(time.Now())
	if drift < 0 {
		drift = -drift
	}
	if drift <= driftThreshold {
		return nil
	}

	p.mu.Lock()
	current.Elapsed = reported
	if current.State == StatePlaying {
		now := time.Now()
		current.StartedAt = &now
	}
	p.current = current
	snapshot := current.clone()
	p.mu.Unlock()
	p.events.Publish(Event{Kind: EventModified, Current: snapshot})
	return nil
}

func (p *Player) bumpDriftTicks() int {
	p.driftMu.Lock()
	defer p.driftMu.Unlock()
	p.driftTicks++
	return p.driftTicks
}

func (p *Player) resetDriftTicks() {
	p.driftMu.Lock()
	p.driftTicks = 0
	p.driftMu.Unlock()
}
