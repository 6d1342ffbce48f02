// Package settingsstore implements a schema-checked key/value configuration
// store whose keys observers can subscribe to: a setting change must reach
// every interested long-lived task without that task polling for it.
package settingsstore

import (
	"context"
	"encoding/json"

	"github.com/ashspire/songbot/internal/broadcast"
)

// Separator divides a key into its hierarchical segments, e.g.
// "player/max-queue-length" belongs to the "player" feature.
const Separator = "/"

// EventKind distinguishes a value being set from a key being cleared.
type EventKind int

const (
	EventSet EventKind = iota
	EventClear
)

// Event is what a per-key subscription feed delivers.
type Event struct {
	Kind  EventKind
	Key   string
	Value json.RawMessage
}

// Store is the schema-checked key/value store. Keys are opaque byte strings
// as far as persistence is concerned; JSON validity and schema compatibility
// are enforced on write.
type Store interface {
	// Get fetches the raw JSON value for key. ok is false if unset.
	Get(ctx context.Context, key string) (raw json.RawMessage, ok bool, err error)

	// Set stores value for key, validates it against any registered schema,
	// persists it, and publishes an Event to subscribers.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// SetSilent behaves like Set but does not publish an Event. It exists
	// for components that need to seed or correct a value without causing
	// every subscriber to treat it as a fresh user-driven change.
	SetSilent(ctx context.Context, key string, value json.RawMessage) error

	// Clear removes key and publishes an Event of kind EventClear.
	Clear(ctx context.Context, key string) error

	// List returns every key currently set.
	List(ctx context.Context) ([]string, error)

	// ListByPrefix returns every key currently set whose key equals prefix
	// or begins with prefix+Separator.
	ListByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Stream subscribes to every Set/Clear event for key, returning the
	// current value (if any) first so the pair is never inconsistent with
	// a write that landed between the snapshot and the subscription.
	Stream(ctx context.Context, key string) (raw json.RawMessage, ok bool, sub broadcast.Subscription[Event], err error)
}

// Scoped narrows a Store to one feature's keys, matching the convention
// where a feature owns every key under "<feature>/...".
type Scoped struct {
	store   Store
	feature string
}

// NewScoped returns a view of store restricted to keys under feature.
func NewScoped(store Store, feature string) *Scoped {
	return &Scoped{store: store, feature: feature}
}

func (s *Scoped) key(name string) string {
	if name == "" {
		return s.feature
	}
	return s.feature + Separator + name
}

func (s *Scoped) Get(ctx context.Context, name string) (json.RawMessage, bool, error) {
	return s.store.Get(ctx, s.key(name))
}

func (s *Scoped) Set(ctx context.Context, name string, value json.RawMessage) error {
	return s.store.Set(ctx, s.key(name), value)
}

func (s *Scoped) SetSilent(ctx context.Context, name string, value json.RawMessage) error {
	return s.store.SetSilent(ctx, s.key(name), value)
}

func (s *Scoped) Clear(ctx context.Context, name string) error {
	return s.store.Clear(ctx, s.key(name))
}

func (s *Scoped) ListByPrefix(ctx context.Context) ([]string, error) {
	return s.store.ListByPrefix(ctx, s.feature)
}

func (s *Scoped) Stream(ctx context.Context, name string) (json.RawMessage, bool, broadcast.Subscription[Event], error) {
	return s.store.Stream(ctx, s.key(name))
}
