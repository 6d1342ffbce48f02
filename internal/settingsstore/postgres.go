package settingsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashspire/songbot/internal/broadcast"
)

const defaultPostgresSettingsTimeout = 5 * time.Second

// PostgresStore persists settings to a single Postgres table so every bot
// replica shares configuration state, while keeping the same in-process
// subscription feeds MemoryStore offers: a write from replica A is only
// visible to replica B's subscribers once B reloads, but within one process
// Stream behaves identically to MemoryStore.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  *SchemaSet
	timeout time.Duration

	mu    sync.Mutex
	feeds map[string]*broadcast.Feed[Event]
}

// PostgresStoreOption configures a PostgresStore.
type PostgresStoreOption func(*PostgresStore)

// WithPostgresTimeout bounds how long a single operation waits.
func WithPostgresTimeout(timeout time.Duration) PostgresStoreOption {
	return func(s *PostgresStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewPostgresStore opens a Postgres-backed store using dsn. The caller is
// responsible for running migrations (see Migrate) before first use.
func NewPostgresStore(ctx context.Context, dsn string, schema *SchemaSet, opts ...PostgresStoreOption) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("settingsstore: postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("settingsstore: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("settingsstore: open postgres pool: %w", err)
	}
	store := &PostgresStore{
		pool:    pool,
		schema:  schema,
		timeout: defaultPostgresSettingsTimeout,
		feeds:   make(map[string]*broadcast.Feed[Event]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Migrate creates the settings table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL
)`)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PostgresStore) feedFor(key string) *broadcast.Feed[Event] {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[key]
	if !ok {
		feed = broadcast.NewFeed[Event](8)
		s.feeds[key] = feed
	}
	return feed
}

func (s *PostgresStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *PostgresStore) write(ctx context.Context, key string, value json.RawMessage, publish bool) error {
	if s.schema != nil {
		if err := s.schema.Validate(key, value); err != nil {
			return err
		}
	} else {
		var probe any
		if err := json.Unmarshal(value, &probe); err != nil {
			return err
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO settings (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
`, key, value)
	if err != nil {
		return err
	}
	if publish {
		s.feedFor(key).Publish(Event{Kind: EventSet, Key: key, Value: value})
	}
	return nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.write(ctx, key, value, true)
}

func (s *PostgresStore) SetSilent(ctx context.Context, key string, value json.RawMessage) error {
	return s.write(ctx, key, value, false)
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	if err != nil {
		return err
	}
	s.feedFor(key).Publish(Event{Kind: EventClear, Key: key})
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT key FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

func (s *PostgresStore) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT key FROM settings WHERE key = $1 OR key LIKE $2`, prefix, prefix+Separator+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key == prefix || strings.HasPrefix(key, prefix+Separator) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, rows.Err()
}

func (s *PostgresStore) Stream(ctx context.Context, key string) (json.RawMessage, bool, broadcast.Subscription[Event], error) {
	sub := s.feedFor(key).Subscribe()
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		sub.Close()
		return nil, false, nil, err
	}
	return raw, ok, sub, nil
}
