package settingsstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/ashspire/songbot/internal/broadcast"
)

// MemoryStore is an in-process Store, suitable for tests and for running
// without a database.
type MemoryStore struct {
	schema *SchemaSet

	mu     sync.RWMutex
	values map[string]json.RawMessage
	feeds  map[string]*broadcast.Feed[Event]
}

// NewMemoryStore constructs an empty MemoryStore. schema may be nil, in
// which case writes are validated only for well-formed JSON.
func NewMemoryStore(schema *SchemaSet) *MemoryStore {
	return &MemoryStore{
		schema: schema,
		values: make(map[string]json.RawMessage),
		feeds:  make(map[string]*broadcast.Feed[Event]),
	}
}

func (m *MemoryStore) feedFor(key string) *broadcast.Feed[Event] {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed, ok := m.feeds[key]
	if !ok {
		feed = broadcast.NewFeed[Event](8)
		m.feeds[key] = feed
	}
	return feed
}

func (m *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.values[key]
	return raw, ok, nil
}

func (m *MemoryStore) set(key string, value json.RawMessage, publish bool) error {
	if m.schema != nil {
		if err := m.schema.Validate(key, value); err != nil {
			return err
		}
	} else {
		var probe any
		if err := json.Unmarshal(value, &probe); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	if publish {
		m.feedFor(key).Publish(Event{Kind: EventSet, Key: key, Value: value})
	}
	return nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value json.RawMessage) error {
	return m.set(key, value, true)
}

func (m *MemoryStore) SetSilent(_ context.Context, key string, value json.RawMessage) error {
	return m.set(key, value, false)
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	m.feedFor(key).Publish(Event{Kind: EventClear, Key: key})
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) ListByPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for key := range m.values {
		if key == prefix || strings.HasPrefix(key, prefix+Separator) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Stream(_ context.Context, key string) (json.RawMessage, bool, broadcast.Subscription[Event], error) {
	feed := m.feedFor(key)
	sub := feed.Subscribe()
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	return raw, ok, sub, nil
}
