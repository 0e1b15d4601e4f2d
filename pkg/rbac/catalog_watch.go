package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CatalogReloadDelay batches the burst of events an editor produces when saving
var CatalogReloadDelay = 250 * time.Millisecond

// WatchCatalog reinstalls the catalog file every time it changes, until ctx is
// cancelled. The parent directory is watched so files replaced by rename are
// still picked up. Reloads are add-only like Initialize; a file that fails to
// parse is logged and skipped.
func (m *Manager) WatchCatalog(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	logger := m.config.Options.Logger.WithField("catalog", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}
	logger.Info("watching catalog for changes")

	timer := time.NewTimer(CatalogReloadDelay)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(CatalogReloadDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("catalog watcher error")
		case <-timer.C:
			m.reloadCatalog(ctx, path)
		}
	}
}

func (m *Manager) reloadCatalog(ctx context.Context, path string) {
	logger := m.config.Options.Logger.WithField("catalog", path)

	catalog, err := LoadCatalog(path)
	if err != nil {
		logger.WithError(err).Warn("catalog reload skipped")
		return
	}
	result, err := Bootstrap(ctx, m.permissions, m.roles, catalog)
	if err != nil {
		logger.WithError(err).Error("catalog reload failed")
		return
	}
	logger.WithFields(map[string]interface{}{
		"permissions_created": result.PermissionsCreated,
		"system_role_created": result.SystemRoleCreated,
		"grants_added":        result.GrantsAdded,
	}).Info("rbac catalog reloaded")
}
