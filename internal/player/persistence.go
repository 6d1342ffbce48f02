package player

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashspire/songbot/internal/trackid"
)

// Persistence is the queue's source of truth: every mutation the Mixer
// makes to its in-memory queue is committed here first. If persistence
// fails, the in-memory queue is left untouched so a retry is safe.
type Persistence interface {
	// ListActive loads every non-deleted queued item, in queue order, for
	// startup recovery.
	ListActive(ctx context.Context) ([]Item, error)

	// PushBack records a newly queued item.
	PushBack(ctx context.Context, item Item) error

	// RemoveSong marks the row for trackID deleted. popped distinguishes a
	// removal driven by next_song advancing the queue from an explicit
	// remove_at/remove_last/remove_last_by_user call, for diagnostics only.
	RemoveSong(ctx context.Context, trackID trackid.TrackId, popped bool) error

	// Purge marks every queued row deleted.
	Purge(ctx context.Context) error

	// PromoteSong records which user promoted trackID and when.
	PromoteSong(ctx context.Context, user *string, trackID trackid.TrackId) error
}

const defaultPostgresPlayerTimeout = 5 * time.Second

// PostgresPersistence backs the queue with the songs table from the
// external-interfaces schema.
type PostgresPersistence struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresPersistence opens a Postgres-backed queue persistence layer.
// The caller is responsible for running Migrate before first use.
func NewPostgresPersistence(ctx context.Context, dsn string) (*PostgresPersistence, error) {
	if dsn == "" {
		return nil, fmt.Errorf("player: postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("player: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("player: open postgres pool: %w", err)
	}
	return &PostgresPersistence{pool: pool, timeout: defaultPostgresPlayerTimeout}, nil
}

// Migrate creates the songs table if absent.
func (p *PostgresPersistence) Migrate(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS songs (
	id SERIAL PRIMARY KEY,
	track_id TEXT NOT NULL,
	added_at TIMESTAMPTZ NOT NULL,
	"user" TEXT,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	promoted_at TIMESTAMPTZ,
	promoted_by TEXT
)`)
	return err
}

// Close releases the underlying connection pool.
func (p *PostgresPersistence) Close(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *PostgresPersistence) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *PostgresPersistence) ListActive(ctx context.Context) ([]Item, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	rows, err := p.pool.Query(ctx, `
SELECT track_id, added_at, "user" FROM songs
WHERE NOT deleted
ORDER BY promoted_at DESC NULLS LAST, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var rawTrackID string
		var addedAt time.Time
		var user *string
		if err := rows.Scan(&rawTrackID, &addedAt, &user); err != nil {
			return nil, err
		}
		id, err := trackid.Parse(rawTrackID, trackid.ServiceUnknown)
		if err != nil {
			continue
		}
		out = append(out, Item{TrackID: id, User: user, AddedAt: addedAt})
	}
	return out, rows.Err()
}

func (p *PostgresPersistence) PushBack(ctx context.Context, item Item) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
INSERT INTO songs (track_id, added_at, "user") VALUES ($1, $2, $3)
`, item.TrackID.String(), item.AddedAt, item.User)
	return err
}

func (p *PostgresPersistence) RemoveSong(ctx context.Context, trackID trackid.TrackId, popped bool) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
UPDATE songs SET deleted = TRUE
WHERE id = (SELECT id FROM songs WHERE track_id = $1 AND NOT deleted ORDER BY id ASC LIMIT 1)
`, trackID.String())
	return err
}

func (p *PostgresPersistence) Purge(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `UPDATE songs SET deleted = TRUE WHERE NOT deleted`)
	return err
}

func (p *PostgresPersistence) PromoteSong(ctx context.Context, user *string, trackID trackid.TrackId) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
UPDATE songs SET promoted_at = now(), promoted_by = $2
WHERE id = (SELECT id FROM songs WHERE track_id = $1 AND NOT deleted ORDER BY id ASC LIMIT 1)
`, trackID.String(), user)
	return err
}

var _ Persistence = (*PostgresPersistence)(nil)
