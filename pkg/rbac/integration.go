package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gorilla/mux"
)

// Config holds RBAC configuration
type Config struct {
	// Options are shared by every component the manager builds
	Options Options

	// Catalog is installed by Initialize
	Catalog Catalog
}

// DefaultConfig returns default RBAC configuration with an in-process cache
func DefaultConfig() Config {
	return Config{
		Options: Options{Cache: NewMemoryCache(DefaultCacheConfig())},
		Catalog: DefaultCatalog(),
	}
}

// Manager manages all RBAC components
type Manager struct {
	db          *sql.DB
	store       *Store
	permissions *PermissionRegistry
	roles       *RoleRegistry
	resolver    *Resolver
	sidebar     *SidebarOrderStore
	directory   *Directory
	guard       *Guard
	handlers    *Handlers
	config      Config
}

// NewManager creates a new RBAC manager
func NewManager(db *sql.DB, config Config) *Manager {
	config.Options = config.Options.withDefaults()
	opts := config.Options

	store := NewStore(db)
	permissions := NewPermissionRegistry(store, opts)
	roles := NewRoleRegistry(store, opts)
	resolver := NewResolver(store, opts)
	sidebar := NewSidebarOrderStore(store, opts)
	directory := NewDirectory(store, opts)
	guard := NewGuard(directory, resolver, opts)

	return &Manager{
		db:          db,
		store:       store,
		permissions: permissions,
		roles:       roles,
		resolver:    resolver,
		sidebar:     sidebar,
		directory:   directory,
		guard:       guard,
		handlers:    NewHandlers(permissions, roles, resolver, sidebar, directory, guard),
		config:      config,
	}
}

// Initialize runs migrations and installs the catalog
func (m *Manager) Initialize(ctx context.Context) (*BootstrapResult, error) {
	if err := RunMigrations(ctx, m.db, m.config.Options.Logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	result, err := Bootstrap(ctx, m.permissions, m.roles, m.config.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to install catalog: %w", err)
	}

	m.config.Options.Logger.WithFields(map[string]interface{}{
		"permissions_created": result.PermissionsCreated,
		"system_role_created": result.SystemRoleCreated,
		"grants_added":        result.GrantsAdded,
	}).Info("rbac catalog installed")
	return result, nil
}

// RegisterRoutes registers RBAC routes with a router
func (m *Manager) RegisterRoutes(router *mux.Router) {
	m.handlers.RegisterRoutes(router)
}

// Store returns the RBAC store
func (m *Manager) Store() *Store { return m.store }

// Permissions returns the permission registry
func (m *Manager) Permissions() *PermissionRegistry { return m.permissions }

// Roles returns the role registry
func (m *Manager) Roles() *RoleRegistry { return m.roles }

// Resolver returns the authorization resolver
func (m *Manager) Resolver() *Resolver { return m.resolver }

// Sidebar returns the sidebar order store
func (m *Manager) Sidebar() *SidebarOrderStore { return m.sidebar }

// Directory returns the admin directory
func (m *Manager) Directory() *Directory { return m.directory }

// Guard returns the permission middleware
func (m *Manager) Guard() *Guard { return m.guard }

// Can is a convenience method resolving the user and checking one action
func (m *Manager) Can(ctx context.Context, userID, slug string, action Action) (bool, error) {
	actor, err := m.directory.ResolveActor(ctx, userID)
	if KindOf(err) == KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.resolver.Can(ctx, actor, slug, action)
}

// AssignSystemRole gives a user the system role, creating the user record if needed.
// It is how the first administrator is provisioned.
func (m *Manager) AssignSystemRole(ctx context.Context, userID, email string) (*AdminUser, error) {
	role, err := m.roles.GetBySlug(ctx, m.config.Catalog.SystemRole.Slug)
	if err != nil {
		return nil, fmt.Errorf("failed to load system role: %w", err)
	}
	return m.directory.UpsertUser(ctx, AdminUserInput{
		UserID:   userID,
		Email:    email,
		RoleID:   role.ID,
		IsActive: true,
	})
}
