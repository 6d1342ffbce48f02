package authstore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// GrantKind distinguishes a temporary permit from a temporary revocation.
type GrantKind int

const (
	GrantAllow GrantKind = iota
	GrantDeny
)

// GrantRecord is one persisted (scope, role) assignment.
type GrantRecord struct {
	Scope Scope
	Role  Role
}

// TemporaryGrant is an in-memory, expiring permit or revocation, never
// persisted: a restart clears every outstanding temporary grant.
type TemporaryGrant struct {
	Scope     Scope
	Principal RoleOrUser
	ExpiresAt time.Time
	Kind      GrantKind
}

func (g TemporaryGrant) isExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

func (g TemporaryGrant) matches(scope Scope, candidates []RoleOrUser) bool {
	if g.Scope != scope {
		return false
	}
	for _, c := range candidates {
		if c.IsRole == g.Principal.IsRole && c.Role == g.Principal.Role && c.User == g.Principal.User {
			return true
		}
	}
	return false
}

// Persistence is the durable half of the grant store: the (scope, role)
// assignment set plus the per-scope schema version bookkeeping used to
// apply default grants exactly once per schema revision.
type Persistence interface {
	LoadGrants(ctx context.Context) ([]GrantRecord, error)
	InsertGrant(ctx context.Context, scope Scope, role Role) error
	DeleteGrant(ctx context.Context, scope Scope, role Role) error
	LoadInitializedVersions(ctx context.Context) (map[Scope]string, error)
	MarkInitialized(ctx context.Context, scope Scope, version string) error
}

// Auth is the authorization store: persisted grants plus in-memory
// temporary permits, evaluated together by TestAny.
type Auth struct {
	persistence Persistence
	schema      *Schema

	grantsMu sync.RWMutex
	grants   map[GrantRecord]struct{}

	temporaryMu sync.RWMutex
	temporary   []TemporaryGrant
}

// New loads the persisted grant set and applies any outstanding
// schema-default migrations.
func New(ctx context.Context, persistence Persistence, schema *Schema) (*Auth, error) {
	records, err := persistence.LoadGrants(ctx)
	if err != nil {
		return nil, fmt.Errorf("authstore: load grants: %w", err)
	}
	grants := make(map[GrantRecord]struct{}, len(records))
	for _, r := range records {
		grants[r] = struct{}{}
	}

	auth := &Auth{persistence: persistence, schema: schema, grants: grants}
	if err := auth.insertDefaultGrants(ctx); err != nil {
		return nil, err
	}
	return auth, nil
}

// insertDefaultGrants is a forward-only migration: a scope whose recorded
// version differs from (or is absent from) the schema's declared version
// gets its default allow-list inserted and the new version recorded. A
// default already superseded by an administrator's explicit delete is
// never reapplied, because only the version bookkeeping — not the grant
// itself — determines whether this runs again.
func (a *Auth) insertDefaultGrants(ctx context.Context) error {
	if a.schema == nil {
		return nil
	}
	versions, err := a.persistence.LoadInitializedVersions(ctx)
	if err != nil {
		return fmt.Errorf("authstore: load initialized grants: %w", err)
	}

	for scope, data := range a.schema.Scopes {
		if versions[scope] == data.Version {
			continue
		}
		for _, role := range data.Allow {
			if err := a.Insert(ctx, scope, role); err != nil {
				return err
			}
		}
		if err := a.persistence.MarkInitialized(ctx, scope, data.Version); err != nil {
			return fmt.Errorf("authstore: mark initialized %s: %w", scope, err)
		}
	}
	return nil
}

// Insert persists a (scope, role) assignment.
func (a *Auth) Insert(ctx context.Context, scope Scope, role Role) error {
	if err := a.persistence.InsertGrant(ctx, scope, role); err != nil {
		return err
	}
	a.grantsMu.Lock()
	a.grants[GrantRecord{Scope: scope, Role: role}] = struct{}{}
	a.grantsMu.Unlock()
	return nil
}

// Delete removes a (scope, role) assignment, if present.
func (a *Auth) Delete(ctx context.Context, scope Scope, role Role) error {
	key := GrantRecord{Scope: scope, Role: role}
	a.grantsMu.Lock()
	_, existed := a.grants[key]
	if existed {
		delete(a.grants, key)
	}
	a.grantsMu.Unlock()
	if !existed {
		return nil
	}
	return a.persistence.DeleteGrant(ctx, scope, role)
}

// InsertTemporary installs a temporary permit or revocation, replacing any
// existing temporary entry for the same (scope, principal).
func (a *Auth) InsertTemporary(scope Scope, principal RoleOrUser, expiresAt time.Time, kind GrantKind) {
	a.temporaryMu.Lock()
	defer a.temporaryMu.Unlock()
	for i, g := range a.temporary {
		if g.Scope == scope && g.Principal == principal {
			a.temporary[i] = TemporaryGrant{Scope: scope, Principal: principal, ExpiresAt: expiresAt, Kind: kind}
			return
		}
	}
	a.temporary = append(a.temporary, TemporaryGrant{Scope: scope, Principal: principal, ExpiresAt: expiresAt, Kind: kind})
}

func (a *Auth) testTemporary(now time.Time, scope Scope, candidates []RoleOrUser) (allow, deny, dirty bool) {
	a.temporaryMu.RLock()
	defer a.temporaryMu.RUnlock()
	for _, g := range a.temporary {
		if g.isExpired(now) {
			dirty = true
			continue
		}
		if !g.matches(scope, candidates) {
			continue
		}
		if g.Kind == GrantDeny {
			deny = true
		} else {
			allow = true
		}
	}
	return allow, deny, dirty
}

func (a *Auth) compactExpired(now time.Time) {
	a.temporaryMu.Lock()
	defer a.temporaryMu.Unlock()
	kept := a.temporary[:0]
	for _, g := range a.temporary {
		if !g.isExpired(now) {
			kept = append(kept, g)
		}
	}
	a.temporary = kept
}

// Test reports whether user, holding role, may invoke scope.
func (a *Auth) Test(scope Scope, user string, role Role) bool {
	return a.TestAny(scope, user, []Role{role})
}

// TestAny reports whether user, holding any of roles, may invoke scope.
// Evaluation order: a live Deny always wins; otherwise a persisted grant or
// a live Allow permits. Expired temporaries are compacted as a side effect.
func (a *Auth) TestAny(scope Scope, user string, roles []Role) bool {
	candidates := make([]RoleOrUser, 0, len(roles)+1)
	candidates = append(candidates, RoleOrUser{User: normalizeUser(user)})
	for _, role := range roles {
		candidates = append(candidates, RoleOrUser{Role: role, IsRole: true})
	}

	now := time.Now()
	allow, deny, dirty := a.testTemporary(now, scope, candidates)
	if dirty {
		a.compactExpired(now)
	}
	if deny {
		return false
	}

	a.grantsMu.RLock()
	persisted := false
	for _, role := range roles {
		if _, ok := a.grants[GrantRecord{Scope: scope, Role: role}]; ok {
			persisted = true
			break
		}
	}
	a.grantsMu.RUnlock()

	return persisted || allow
}

// ScopesForUser enumerates temporary scopes currently granted to user.
func (a *Auth) ScopesForUser(user string) []Scope {
	now := time.Now()
	principal := RoleOrUser{User: normalizeUser(user)}
	var out []Scope
	a.temporaryMu.RLock()
	defer a.temporaryMu.RUnlock()
	for _, g := range a.temporary {
		if g.Kind == GrantAllow && !g.isExpired(now) && g.Principal == principal {
			out = append(out, g.Scope)
		}
	}
	return out
}

// ScopesForRole enumerates persisted and temporary scopes granted to role.
func (a *Auth) ScopesForRole(role Role) []Scope {
	now := time.Now()
	principal := RoleOrUser{Role: role, IsRole: true}
	var out []Scope

	a.temporaryMu.RLock()
	for _, g := range a.temporary {
		if g.Kind == GrantAllow && !g.isExpired(now) && g.Principal == principal {
			out = append(out, g.Scope)
		}
	}
	a.temporaryMu.RUnlock()

	a.grantsMu.RLock()
	for record := range a.grants {
		if record.Role == role {
			out = append(out, record.Scope)
		}
	}
	a.grantsMu.RUnlock()
	return out
}

// ScopeCooldowns exposes the schema's declared per-scope cooldowns.
func (a *Auth) ScopeCooldowns() map[Scope]time.Duration {
	if a.schema == nil {
		return nil
	}
	return a.schema.Cooldowns()
}
