package rbac

import (
	"context"
	"database/sql"
	"testing"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory SQLite database with the RBAC schema
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db, nil))
	return db
}

type testEnv struct {
	db          *sql.DB
	store       *Store
	cache       *MemoryCache
	audit       *audit.MemoryLogger
	opts        Options
	permissions *PermissionRegistry
	roles       *RoleRegistry
	resolver    *Resolver
	sidebar     *SidebarOrderStore
	directory   *Directory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	store := NewStore(db)
	cache := NewMemoryCache(DefaultCacheConfig())
	auditLog := audit.NewMemoryLogger()
	opts := Options{Cache: cache, Audit: auditLog}

	return &testEnv{
		db:          db,
		store:       store,
		cache:       cache,
		audit:       auditLog,
		opts:        opts,
		permissions: NewPermissionRegistry(store, opts),
		roles:       NewRoleRegistry(store, opts),
		resolver:    NewResolver(store, opts),
		sidebar:     NewSidebarOrderStore(store, opts),
		directory:   NewDirectory(store, opts),
	}
}

func (e *testEnv) permission(t *testing.T, slug, module string, sortOrder int) *Permission {
	t.Helper()
	p, err := e.permissions.Create(context.Background(), PermissionInput{
		Slug:      slug,
		Name:      slug,
		Module:    module,
		SortOrder: sortOrder,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) role(t *testing.T, slug string, grants ...RoleGrant) *Role {
	t.Helper()
	role, err := e.roles.Create(context.Background(), RoleInput{
		Name:   slug,
		Slug:   slug,
		Grants: grants,
	})
	require.NoError(t, err)
	return role
}

func (e *testEnv) actor(t *testing.T, userID, roleID string, active bool) Actor {
	t.Helper()
	ctx := context.Background()
	_, err := e.directory.UpsertUser(ctx, AdminUserInput{UserID: userID, RoleID: roleID, IsActive: active})
	require.NoError(t, err)
	actor, err := e.directory.ResolveActor(ctx, userID)
	require.NoError(t, err)
	return actor
}

func grant(p *Permission, actions ...Action) RoleGrant {
	return RoleGrant{PermissionID: p.ID, Actions: NewActionSet(actions...)}
}

func ids(ps []Permission) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}
