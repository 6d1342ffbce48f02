package authstore

import (
	"context"
	"sync"
)

// MemoryPersistence is an in-process Persistence, suitable for tests and
// for running without a database.
type MemoryPersistence struct {
	mu         sync.Mutex
	grants     map[GrantRecord]struct{}
	versions   map[Scope]string
}

// NewMemoryPersistence constructs an empty MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		grants:   make(map[GrantRecord]struct{}),
		versions: make(map[Scope]string),
	}
}

func (m *MemoryPersistence) LoadGrants(context.Context) ([]GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GrantRecord, 0, len(m.grants))
	for record := range m.grants {
		out = append(out, record)
	}
	return out, nil
}

func (m *MemoryPersistence) InsertGrant(_ context.Context, scope Scope, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[GrantRecord{Scope: scope, Role: role}] = struct{}{}
	return nil
}

func (m *MemoryPersistence) DeleteGrant(_ context.Context, scope Scope, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, GrantRecord{Scope: scope, Role: role})
	return nil
}

func (m *MemoryPersistence) LoadInitializedVersions(context.Context) (map[Scope]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Scope]string, len(m.versions))
	for scope, version := range m.versions {
		out[scope] = version
	}
	return out, nil
}

func (m *MemoryPersistence) MarkInitialized(_ context.Context, scope Scope, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[scope] = version
	return nil
}
