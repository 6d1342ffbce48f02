package authstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresAuthTimeout = 5 * time.Second

// PostgresPersistence persists grants and schema-version bookkeeping to
// Postgres, mirroring the two-table layout the scope schema was designed
// around: one row per assignment, one row per scope's applied version.
type PostgresPersistence struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresPersistence opens a Postgres-backed persistence layer. The
// caller is responsible for running Migrate before first use.
func NewPostgresPersistence(ctx context.Context, dsn string) (*PostgresPersistence, error) {
	if dsn == "" {
		return nil, fmt.Errorf("authstore: postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("authstore: parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("authstore: open postgres pool: %w", err)
	}
	return &PostgresPersistence{pool: pool, timeout: defaultPostgresAuthTimeout}, nil
}

// Migrate creates the grants and initialized_grants tables if absent.
func (p *PostgresPersistence) Migrate(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS grants (
	scope TEXT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (scope, role)
);
CREATE TABLE IF NOT EXISTS initialized_grants (
	scope TEXT PRIMARY KEY,
	version TEXT NOT NULL
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

func (p *PostgresPersistence) LoadGrants(ctx context.Context) ([]GrantRecord, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	rows, err := p.pool.Query(ctx, `SELECT scope, role FROM grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GrantRecord
	for rows.Next() {
		var scope, role string
		if err := rows.Scan(&scope, &role); err != nil {
			return nil, err
		}
		out = append(out, GrantRecord{Scope: ParseScope(scope), Role: ParseRole(role)})
	}
	return out, rows.Err()
}

func (p *PostgresPersistence) InsertGrant(ctx context.Context, scope Scope, role Role) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
INSERT INTO grants (scope, role) VALUES ($1, $2)
ON CONFLICT (scope, role) DO NOTHING
`, scope.String(), role.String())
	return err
}

func (p *PostgresPersistence) DeleteGrant(ctx context.Context, scope Scope, role Role) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `DELETE FROM grants WHERE scope = $1 AND role = $2`, scope.String(), role.String())
	return err
}

func (p *PostgresPersistence) LoadInitializedVersions(ctx context.Context) (map[Scope]string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	rows, err := p.pool.Query(ctx, `SELECT scope, version FROM initialized_grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Scope]string)
	for rows.Next() {
		var scope, version string
		if err := rows.Scan(&scope, &version); err != nil {
			return nil, err
		}
		out[ParseScope(scope)] = version
	}
	return out, rows.Err()
}

func (p *PostgresPersistence) MarkInitialized(ctx context.Context, scope Scope, version string) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
INSERT INTO initialized_grants (scope, version) VALUES ($1, $2)
ON CONFLICT (scope) DO UPDATE SET version = EXCLUDED.version
`, scope.String(), version)
	return err
}
