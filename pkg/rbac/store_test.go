package rbac

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, db, nil))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rbac_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)
}

func TestStorePermissionRoundTrip(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := &Permission{
		ID: "p1", Slug: "orders", Name: "Orders", Module: "sales",
		SortOrder: 3, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreatePermission(ctx, p))

	got, err := store.GetPermissionBySlug(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 3, got.SortOrder)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(now))

	dup := *p
	dup.ID = "p2"
	err = store.CreatePermission(ctx, &dup)
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = store.GetPermission(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	got.IsActive = false
	require.NoError(t, store.UpdatePermission(ctx, got))
	got, err = store.GetPermission(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	require.NoError(t, store.DeletePermission(ctx, "p1"))
	assert.True(t, errors.Is(store.DeletePermission(ctx, "p1"), ErrNotFound))
}

func TestStoreRoleGrantsPersistAsOneValue(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	role := &Role{
		ID: "r1", Name: "Support", Slug: "support", IsActive: true,
		Grants: []RoleGrant{
			{PermissionID: "p1", Actions: NewActionSet(ActionView, ActionUpdate)},
			{PermissionID: "p2", Actions: NewActionSet(ActionManage)},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.CreateRole(ctx, role))

	got, err := store.GetRole(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got.Grants, 2)
	assert.Equal(t, []Action{ActionView, ActionUpdate}, got.Grants[0].Actions.Slice())
	assert.Equal(t, []Action{ActionManage}, got.Grants[1].Actions.Slice())

	holders, err := store.RolesReferencingPermission(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"support"}, holders)

	got.Grants = nil
	require.NoError(t, store.UpdateRole(ctx, got))
	got, err = store.GetRoleBySlug(ctx, "support")
	require.NoError(t, err)
	assert.Empty(t, got.Grants)

	holders, err = store.RolesReferencingPermission(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestStoreSidebarOrder(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()

	order, err := store.GetSidebarOrder(ctx)
	require.NoError(t, err)
	assert.Empty(t, order.PermissionIDs)

	require.NoError(t, store.SaveSidebarOrder(ctx, &SidebarOrder{PermissionIDs: []string{"b", "a"}, UpdatedAt: time.Now()}))
	require.NoError(t, store.SaveSidebarOrder(ctx, &SidebarOrder{PermissionIDs: []string{"a", "b"}, UpdatedAt: time.Now()}))

	order, err = store.GetSidebarOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order.PermissionIDs)
}

func TestStoreUsers(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateRole(ctx, &Role{ID: "r1", Name: "Ops", Slug: "ops", IsActive: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.UpsertUser(ctx, &AdminUser{UserID: "u1", RoleID: "r1", IsActive: true, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.UpsertUser(ctx, &AdminUser{UserID: "u2", RoleID: "r1", IsActive: false, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.UpsertUser(ctx, &AdminUser{UserID: "u3", IsActive: true, CreatedAt: now, UpdatedAt: now}))

	n, err := store.CountActiveUsersWithRole(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	u3, err := store.GetUser(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, u3.RoleID)

	require.NoError(t, store.DetachRole(ctx, "r1", now))
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, u := range users {
		assert.Empty(t, u.RoleID, u.UserID)
	}

	_, err = store.GetUser(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreWithTxRollsBack(t *testing.T) {
	store := NewStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.WithTx(ctx, func(tx *Store) error {
		require.NoError(t, tx.CreatePermission(ctx, &Permission{
			ID: "p1", Slug: "orders", Name: "Orders", Module: "sales", IsActive: true, CreatedAt: now, UpdatedAt: now,
		}))
		return Validationf("abort")
	})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = store.GetPermission(ctx, "p1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStoreDatabaseFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("get permission", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM permissions WHERE slug").WithArgs("orders").WillReturnError(boom)
		_, err := store.GetPermissionBySlug(ctx, "orders")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, Kind(""), KindOf(err))
	})

	t.Run("list roles", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM roles ORDER BY").WillReturnError(boom)
		_, err := store.ListRoles(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("update missing role", func(t *testing.T) {
		mock.ExpectExec("UPDATE roles").WillReturnResult(sqlmock.NewResult(0, 0))
		err := store.UpdateRole(ctx, &Role{ID: "r9", Slug: "x"})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("lock missing permission", func(t *testing.T) {
		mock.ExpectExec("UPDATE permissions SET id = id WHERE id").WithArgs("p9").WillReturnResult(sqlmock.NewResult(0, 0))
		err := store.LockPermission(ctx, "p9")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("begin fails", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(boom)
		err := store.WithTx(ctx, func(tx *Store) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("commit fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(boom)
		err := store.WithTx(ctx, func(tx *Store) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("corrupt grants", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "name", "slug", "description", "is_system", "is_active", "grants", "created_at", "updated_at"}).
			AddRow("r1", "Ops", "ops", "", false, true, "{not json", now, now)
		mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").WithArgs("r1").WillReturnRows(rows)
		_, err := store.GetRole(ctx, "r1")
		assert.ErrorContains(t, err, "failed to unmarshal grants")
	})

	t.Run("no sidebar row", func(t *testing.T) {
		mock.ExpectQuery("SELECT permission_ids, updated_at FROM sidebar_order").WillReturnError(sql.ErrNoRows)
		order, err := store.GetSidebarOrder(ctx)
		require.NoError(t, err)
		assert.Empty(t, order.PermissionIDs)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
