package rbac

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchedCatalog = `
system_role:
  slug: owner
  name: Owner
permissions:
  - slug: dashboard
    name: Dashboard
    module: dashboard
`

func TestWatchCatalogInstallsNewPermissions(t *testing.T) {
	db := setupTestDB(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedCatalog), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	mgr := NewManager(db, Config{Options: Options{Audit: audit.NewMemoryLogger()}, Catalog: catalog})
	_, err = mgr.Initialize(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.WatchCatalog(ctx, path) }()

	updated := watchedCatalog + `  - slug: refunds
    name: Refunds
    module: sales
    sort_order: 5
`
	// rewritten on every attempt so the first write cannot beat watcher setup
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			return false
		}
		_, err := mgr.Permissions().GetBySlug(context.Background(), "refunds")
		return err == nil
	}, 10*time.Second, 500*time.Millisecond)

	owner, err := mgr.Roles().GetBySlug(context.Background(), "owner")
	require.NoError(t, err)
	assert.Len(t, owner.Grants, 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchCatalogSkipsInvalidFile(t *testing.T) {
	db := setupTestDB(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchedCatalog), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	mgr := NewManager(db, Config{Options: Options{Audit: audit.NewMemoryLogger()}, Catalog: catalog})
	_, err = mgr.Initialize(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("permissions: [:"), 0o644))
	mgr.reloadCatalog(context.Background(), path)

	all, err := mgr.Permissions().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWatchCatalogMissingDirectory(t *testing.T) {
	mgr := NewManager(setupTestDB(t), Config{Catalog: DefaultCatalog()})
	err := mgr.WatchCatalog(context.Background(), filepath.Join(t.TempDir(), "gone", "catalog.yaml"))
	assert.ErrorContains(t, err, "failed to watch catalog directory")
}
