package authstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseScopeAndRole(t *testing.T) {
	require.Equal(t, ScopeSongTheme, ParseScope("song/theme"))
	require.Equal(t, ScopeUnknown, ParseScope("not-a-real-scope"))

	require.Equal(t, RoleModerator, ParseRole("moderator"))
	require.Equal(t, RoleUnknown, ParseRole("nope"))
}

func TestParseRoleOrUser(t *testing.T) {
	p, err := ParseRoleOrUser("@moderator")
	require.NoError(t, err)
	require.True(t, p.IsRole)
	require.Equal(t, RoleModerator, p.Role)

	p, err = ParseRoleOrUser("SomeUser")
	require.NoError(t, err)
	require.False(t, p.IsRole)
	require.Equal(t, "someuser", p.User)

	_, err = ParseRoleOrUser("@not-a-role")
	require.Error(t, err)
}

func TestAuthPersistedGrantAllows(t *testing.T) {
	ctx := context.Background()
	auth, err := New(ctx, NewMemoryPersistence(), nil)
	require.NoError(t, err)

	require.False(t, auth.Test(ScopeSong, "alice", RoleSubscriber))
	require.NoError(t, auth.Insert(ctx, ScopeSong, RoleSubscriber))
	require.True(t, auth.Test(ScopeSong, "alice", RoleSubscriber))

	require.NoError(t, auth.Delete(ctx, ScopeSong, RoleSubscriber))
	require.False(t, auth.Test(ScopeSong, "alice", RoleSubscriber))
}

func TestAuthTemporaryAllowGrantsAccess(t *testing.T) {
	ctx := context.Background()
	auth, err := New(ctx, NewMemoryPersistence(), nil)
	require.NoError(t, err)

	principal := RoleOrUser{User: "alice"}
	auth.InsertTemporary(ScopeSongTheme, principal, time.Now().Add(time.Minute), GrantAllow)
	require.True(t, auth.TestAny(ScopeSongTheme, "alice", []Role{RoleEveryone}))
	require.False(t, auth.TestAny(ScopeSongTheme, "bob", []Role{RoleEveryone}))
}

func TestAuthTemporaryDenyOverridesPersistedGrant(t *testing.T) {
	ctx := context.Background()
	auth, err := New(ctx, NewMemoryPersistence(), nil)
	require.NoError(t, err)

	require.NoError(t, auth.Insert(ctx, ScopeSong, RoleEveryone))
	require.True(t, auth.TestAny(ScopeSong, "alice", []Role{RoleEveryone}))

	auth.InsertTemporary(ScopeSong, RoleOrUser{User: "alice"}, time.Now().Add(time.Minute), GrantDeny)
	require.False(t, auth.TestAny(ScopeSong, "alice", []Role{RoleEveryone}))
	require.True(t, auth.TestAny(ScopeSong, "bob", []Role{RoleEveryone}))
}

func TestAuthTemporaryGrantExpires(t *testing.T) {
	ctx := context.Background()
	auth, err := New(ctx, NewMemoryPersistence(), nil)
	require.NoError(t, err)

	auth.InsertTemporary(ScopeSongTheme, RoleOrUser{User: "alice"}, time.Now().Add(-time.Second), GrantAllow)
	require.False(t, auth.TestAny(ScopeSongTheme, "alice", []Role{RoleEveryone}))
}

func TestAuthInsertTemporaryReplacesExisting(t *testing.T) {
	ctx := context.Background()
	auth, err := New(ctx, NewMemoryPersistence(), nil)
	require.NoError(t, err)

	principal := RoleOrUser{User: "alice"}
	auth.InsertTemporary(ScopeSongTheme, principal, time.Now().Add(time.Minute), GrantAllow)
	auth.InsertTemporary(ScopeSongTheme, principal, time.Now().Add(time.Minute), GrantDeny)
	require.Len(t, auth.temporary, 1)
	require.False(t, auth.TestAny(ScopeSongTheme, "alice", []Role{RoleEveryone}))
}

func TestAuthDefaultGrantsAppliedOncePerSchemaVersion(t *testing.T) {
	ctx := context.Background()
	schema := &Schema{Scopes: map[Scope]ScopeData{
		ScopeUptime: {Version: "v1", Allow: []Role{RoleEveryone}},
	}}
	persistence := NewMemoryPersistence()

	auth, err := New(ctx, persistence, schema)
	require.NoError(t, err)
	require.True(t, auth.Test(ScopeUptime, "anyone", RoleEveryone))

	require.NoError(t, auth.Delete(ctx, ScopeUptime, RoleEveryone))

	// Re-opening against the same schema version must not reapply the
	// default the administrator just revoked.
	auth2, err := New(ctx, persistence, schema)
	require.NoError(t, err)
	require.False(t, auth2.Test(ScopeUptime, "anyone", RoleEveryone))

	// A schema version bump reapplies the default.
	schema.Scopes[ScopeUptime] = ScopeData{Version: "v2", Allow: []Role{RoleEveryone}}
	auth3, err := New(ctx, persistence, schema)
	require.NoError(t, err)
	require.True(t, auth3.Test(ScopeUptime, "anyone", RoleEveryone))
}

func TestScopeCooldowns(t *testing.T) {
	ctx := context.Background()
	schema := &Schema{Scopes: map[Scope]ScopeData{
		ScopeSong: {Version: "v1", Cooldown: 5 * time.Second},
	}}
	auth, err := New(ctx, NewMemoryPersistence(), schema)
	require.NoError(t, err)

	cooldowns := auth.ScopeCooldowns()
	require.Equal(t, 5*time.Second, cooldowns[ScopeSong])
}
