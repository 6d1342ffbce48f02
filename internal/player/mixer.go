package player

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/ashspire/songbot/internal/trackid"
)

// DefaultFallbackQueueSize is how many shuffled fallback entries the mixer
// keeps pre-drawn before it needs to reshuffle.
const DefaultFallbackQueueSize = 10

type fallback struct {
	items    []Item
	shuffled []Item
}

// Mixer owns the three ordered collections that decide what plays next: the
// user-request queue, songs sidelined by a theme, and a shuffled fallback
// playlist. Every mutation holds a single lock, per the spec's directive
// that queue mutation and next-song advancement never interleave.
type Mixer struct {
	mu          sync.Mutex
	queue       []Item
	sidelined   []Song
	fallback    fallback
	length      atomic.Int64
	minFallback int

	persistence Persistence
}

// NewMixer constructs an empty Mixer. persistence may be nil, in which case
// queue mutations are in-memory only (used by tests).
func NewMixer(persistence Persistence) *Mixer {
	return &Mixer{persistence: persistence, minFallback: DefaultFallbackQueueSize}
}

// SetMinFallbackSize overrides the shuffle-refill threshold (default 10).
func (m *Mixer) SetMinFallbackSize(n int) {
	if n <= 0 {
		n = DefaultFallbackQueueSize
	}
	m.mu.Lock()
	m.minFallback = n
	m.mu.Unlock()
}

// Len returns the current request-queue length without locking (atomic
// mirror), for cheap reads from UI threads.
func (m *Mixer) Len() int {
	return int(m.length.Load())
}

// List returns a snapshot of the request queue.
func (m *Mixer) List() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, len(m.queue))
	copy(out, m.queue)
	return out
}

// InitializeQueue replaces the in-memory queue with items loaded from
// persistence at startup.
func (m *Mixer) InitializeQueue(ctx context.Context) error {
	if m.persistence == nil {
		return nil
	}
	items, err := m.persistence.ListActive(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.queue = items
	m.length.Store(int64(len(items)))
	m.mu.Unlock()
	return nil
}

// Find locates the first queued item matching predicate and returns its
// queue index, which is also the number of items that play before it. When
// nothing matches, the third result is the queue length. It does not sum
// durations; Player.Find turns the count into a wait time.
func (m *Mixer) Find(predicate func(Item) bool) (Item, bool, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var accumulated int
	for i, item := range m.queue {
		if predicate(item) {
			return item, true, i
		}
		accumulated++
	}
	return Item{}, false, accumulated
}

// PositionOf returns the index of a track already in the queue, or -1.
func (m *Mixer) PositionOf(id trackid.TrackId) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.queue {
		if item.TrackID == id {
			return i
		}
	}
	return -1
}

// CountByUser returns how many queued items belong to user.
func (m *Mixer) CountByUser(user string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, item := range m.queue {
		if item.RequestedBy(user) {
			n++
		}
	}
	return n
}

// PushBack appends item to the queue, persisting first: persistence is the
// commit point, so a failure there leaves the in-memory queue untouched.
func (m *Mixer) PushBack(ctx context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistence != nil {
		if err := m.persistence.PushBack(ctx, item); err != nil {
			return err
		}
	}
	m.queue = append(m.queue, item)
	m.length.Add(1)
	return nil
}

// Purge clears the queue and reports what was removed.
func (m *Mixer) Purge(ctx context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, nil
	}
	if m.persistence != nil {
		if err := m.persistence.Purge(ctx); err != nil {
			return nil, err
		}
	}
	purged := m.queue
	m.queue = nil
	m.length.Store(0)
	return purged, nil
}

// RemoveAt removes the item at position n.
func (m *Mixer) RemoveAt(ctx context.Context, n int) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.queue) {
		return Item{}, false, nil
	}
	item := m.queue[n]
	if m.persistence != nil {
		if err := m.persistence.RemoveSong(ctx, item.TrackID, false); err != nil {
			return Item{}, false, err
		}
	}
	m.queue = append(m.queue[:n], m.queue[n+1:]...)
	m.length.Add(-1)
	return item, true, nil
}

// RemoveLast removes the most recently queued item.
func (m *Mixer) RemoveLast(ctx context.Context) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Item{}, false, nil
	}
	last := len(m.queue) - 1
	item := m.queue[last]
	if m.persistence != nil {
		if err := m.persistence.RemoveSong(ctx, item.TrackID, false); err != nil {
			return Item{}, false, err
		}
	}
	m.queue = m.queue[:last]
	m.length.Add(-1)
	return item, true, nil
}

// RemoveLastByUser removes the most recently queued item belonging to user.
func (m *Mixer) RemoveLastByUser(ctx context.Context, user string) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := -1
	for i := len(m.queue) - 1; i >= 0; i-- {
		if m.queue[i].RequestedBy(user) {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Item{}, false, nil
	}
	item := m.queue[pos]
	if m.persistence != nil {
		if err := m.persistence.RemoveSong(ctx, item.TrackID, false); err != nil {
			return Item{}, false, err
		}
	}
	m.queue = append(m.queue[:pos], m.queue[pos+1:]...)
	m.length.Add(-1)
	return item, true, nil
}

// PromoteSong moves the item at position n to the front of the queue.
func (m *Mixer) PromoteSong(ctx context.Context, user *string, n int) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 || n >= len(m.queue) || n < 0 {
		return Item{}, false, nil
	}
	item := m.queue[n]
	if m.persistence != nil {
		if err := m.persistence.PromoteSong(ctx, user, item.TrackID); err != nil {
			return Item{}, false, err
		}
	}
	m.queue = append(m.queue[:n], m.queue[n+1:]...)
	m.queue = append([]Item{item}, m.queue...)
	return item, true, nil
}

// PushSidelined enqueues a song pre-empted by a theme, to be resumed once
// the theme finishes.
func (m *Mixer) PushSidelined(song Song) {
	m.mu.Lock()
	m.sidelined = append(m.sidelined, song)
	m.mu.Unlock()
}

// UpdateFallbackItems replaces the fallback playlist and clears the current
// shuffled draw so the new items take effect immediately.
func (m *Mixer) UpdateFallbackItems(items []Item) {
	m.mu.Lock()
	m.fallback.items = append([]Item(nil), items...)
	m.fallback.shuffled = nil
	m.mu.Unlock()
}

// NextSong returns, in priority order: the head of the sidelined queue, the
// front of the request queue, or a fallback draw. Returns nil if nothing is
// available anywhere.
func (m *Mixer) NextSong(ctx context.Context) (*Song, error) {
	m.mu.Lock()
	if len(m.sidelined) > 0 {
		song := m.sidelined[0]
		m.sidelined = m.sidelined[1:]
		m.mu.Unlock()
		return &song, nil
	}
	m.mu.Unlock()

	item, ok, err := m.popFront(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return NewSong(item), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok = m.nextFallbackItemLocked()
	if !ok {
		return nil, nil
	}
	return NewSong(item), nil
}

func (m *Mixer) popFront(ctx context.Context) (Item, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Item{}, false, nil
	}
	item := m.queue[0]
	if m.persistence != nil {
		if err := m.persistence.RemoveSong(ctx, item.TrackID, true); err != nil {
			return Item{}, false, err
		}
	}
	m.queue = m.queue[1:]
	m.length.Add(-1)
	return item, true, nil
}

// nextFallbackItemLocked must be called with m.mu held. It refills the
// shuffled draw by Fisher-Yates-shuffling the full fallback list until it
// holds at least minFallback entries, matching the original mixer's
// shuffle-refill so the same track doesn't repeat back-to-back across a
// refill boundary any more often than chance allows.
func (m *Mixer) nextFallbackItemLocked() (Item, bool) {
	for len(m.fallback.shuffled) < m.minFallback && len(m.fallback.items) > 0 {
		extension := make([]Item, len(m.fallback.items))
		copy(extension, m.fallback.items)
		rand.Shuffle(len(extension), func(i, j int) {
			extension[i], extension[j] = extension[j], extension[i]
		})
		m.fallback.shuffled = append(m.fallback.shuffled, extension...)
	}
	if len(m.fallback.shuffled) == 0 {
		return Item{}, false
	}
	item := m.fallback.shuffled[0]
	m.fallback.shuffled = m.fallback.shuffled[1:]
	return item, true
}
