package rbac

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Permissions, 16)
	assert.Equal(t, SystemRoleSlug, c.SystemRole.Slug)
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`
permissions:
  - slug: orders
    name: Orders
    module: sales
    sort_order: 1
  - slug: coupons
    name: Coupons
    module: marketing
    sort_order: 2
`)
	c, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, c.Permissions, 2)
	assert.Equal(t, "coupons", c.Permissions[1].Slug)
	assert.Equal(t, SystemRoleSlug, c.SystemRole.Slug)

	_, err = ParseCatalog([]byte("permissions:\n  - slug: Bad Slug\n    name: x\n    module: y\n"))
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParseCatalog([]byte("permissions:\n  - slug: a\n    name: A\n    module: m\n  - slug: a\n    name: A\n    module: m\n"))
	assert.ErrorContains(t, err, "twice")

	_, err = ParseCatalog([]byte("permissions: [:"))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
system_role:
  slug: owner
  name: Owner
permissions:
  - slug: dashboard
    name: Dashboard
    module: dashboard
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "owner", c.SystemRole.Slug)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	catalog := DefaultCatalog()

	first, err := Bootstrap(ctx, env.permissions, env.roles, catalog)
	require.NoError(t, err)
	assert.Equal(t, 16, first.PermissionsCreated)
	assert.True(t, first.SystemRoleCreated)
	assert.Equal(t, 16, first.GrantsAdded)

	second, err := Bootstrap(ctx, env.permissions, env.roles, catalog)
	require.NoError(t, err)
	assert.Equal(t, BootstrapResult{}, *second)

	role, err := env.roles.GetBySlug(ctx, SystemRoleSlug)
	require.NoError(t, err)
	assert.True(t, role.IsSystem)
	assert.Len(t, role.Grants, 16)

	admin := env.actor(t, "root", role.ID, true)
	for _, e := range catalog.Permissions {
		ok, err := env.resolver.CanDelete(ctx, admin, e.Slug)
		require.NoError(t, err)
		assert.True(t, ok, e.Slug)
	}
}

func TestBootstrapExtendsSystemRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	catalog := Catalog{
		Permissions: []CatalogEntry{{Slug: "orders", Name: "Orders", Module: "sales"}},
		SystemRole:  DefaultCatalog().SystemRole,
	}
	_, err := Bootstrap(ctx, env.permissions, env.roles, catalog)
	require.NoError(t, err)

	// an operator narrowed the existing grant; bootstrap must not widen it back
	role, err := env.roles.GetBySlug(ctx, SystemRoleSlug)
	require.NoError(t, err)
	narrowed := []RoleGrant{{PermissionID: role.Grants[0].PermissionID, Actions: NewActionSet(ActionView)}}
	_, err = env.roles.Update(ctx, role.ID, RoleUpdate{Grants: &narrowed})
	require.NoError(t, err)

	catalog.Permissions = append(catalog.Permissions, CatalogEntry{Slug: "coupons", Name: "Coupons", Module: "marketing"})
	result, err := Bootstrap(ctx, env.permissions, env.roles, catalog)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PermissionsCreated)
	assert.False(t, result.SystemRoleCreated)
	assert.Equal(t, 1, result.GrantsAdded)

	role, err = env.roles.GetBySlug(ctx, SystemRoleSlug)
	require.NoError(t, err)
	require.Len(t, role.Grants, 2)
	assert.Equal(t, []Action{ActionView}, role.Grants[0].Actions.Slice())
	assert.Equal(t, []Action{ActionManage}, role.Grants[1].Actions.Slice())
}
