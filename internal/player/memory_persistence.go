package player

import (
	"context"
	"sync"

	"github.com/ashspire/songbot/internal/trackid"
)

type memoryRow struct {
	item    Item
	deleted bool
}

// MemoryPersistence is an in-process Persistence used by tests and by any
// deployment that accepts losing the queue across restarts.
type MemoryPersistence struct {
	mu   sync.Mutex
	rows []memoryRow
}

// NewMemoryPersistence constructs an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

func (m *MemoryPersistence) ListActive(ctx context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, row := range m.rows {
		if !row.deleted {
			out = append(out, row.item)
		}
	}
	return out, nil
}

func (m *MemoryPersistence) PushBack(ctx context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, memoryRow{item: item})
	return nil
}

func (m *MemoryPersistence) RemoveSong(ctx context.Context, trackID trackid.TrackId, popped bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if !m.rows[i].deleted && m.rows[i].item.TrackID == trackID {
			m.rows[i].deleted = true
			return nil
		}
	}
	return nil
}

func (m *MemoryPersistence) Purge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		m.rows[i].deleted = true
	}
	return nil
}

func (m *MemoryPersistence) PromoteSong(ctx context.Context, user *string, trackID trackid.TrackId) error {
	return nil
}

var _ Persistence = (*MemoryPersistence)(nil)
