package rbac

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Built-in system role
const (
	SystemRoleSlug = "super-admin"
	SystemRoleName = "Super Admin"
)

// CatalogEntry describes one permission the back-office ships with
type CatalogEntry struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name" json:"name"`
	Module      string `yaml:"module" json:"module"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	SortOrder   int    `yaml:"sort_order" json:"sort_order"`
}

// SystemRoleSpec describes the undeletable administrator role
type SystemRoleSpec struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog is the permission set and system role installed on bootstrap
type Catalog struct {
	Permissions []CatalogEntry `yaml:"permissions" json:"permissions"`
	SystemRole  SystemRoleSpec `yaml:"system_role" json:"system_role"`
}

// DefaultCatalog returns one permission per back-office screen
func DefaultCatalog() Catalog {
	return Catalog{
		Permissions: []CatalogEntry{
			{Slug: "dashboard", Name: "Dashboard", Module: "dashboard", SortOrder: 0},
			{Slug: "orders", Name: "Orders", Module: "sales", SortOrder: 10},
			{Slug: "carts", Name: "Carts", Module: "sales", SortOrder: 11},
			{Slug: "coupons", Name: "Coupons", Module: "marketing", SortOrder: 20},
			{Slug: "notifications", Name: "Notifications", Module: "marketing", SortOrder: 21},
			{Slug: "categories", Name: "Categories", Module: "catalog", SortOrder: 30},
			{Slug: "product-seo", Name: "Product SEO", Module: "catalog", SortOrder: 31},
			{Slug: "reviews", Name: "Reviews", Module: "catalog", SortOrder: 32},
			{Slug: "customers", Name: "Customers", Module: "customers", SortOrder: 40},
			{Slug: "contacts", Name: "Contact Requests", Module: "customers", SortOrder: 41},
			{Slug: "faqs", Name: "FAQ", Module: "content", SortOrder: 50},
			{Slug: "footer", Name: "Footer", Module: "content", SortOrder: 51},
			{Slug: "admins", Name: "Admin Users", Module: "administration", SortOrder: 90},
			{Slug: "roles", Name: "Roles", Module: "administration", SortOrder: 91},
			{Slug: "permissions", Name: "Permissions", Module: "administration", SortOrder: 92},
			{Slug: "sidebar", Name: "Sidebar Order", Module: "administration", SortOrder: 93},
		},
		SystemRole: SystemRoleSpec{
			Slug:        SystemRoleSlug,
			Name:        SystemRoleName,
			Description: "Full access to every back-office page",
		},
	}
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog. A missing system role
// section falls back to the default super-admin role.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if c.SystemRole.Slug == "" {
		c.SystemRole = DefaultCatalog().SystemRole
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks slugs, required fields and uniqueness
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Permissions))
	for _, e := range c.Permissions {
		if err := ValidateSlug(e.Slug); err != nil {
			return err
		}
		if err := requireText("name", e.Name); err != nil {
			return Validationf("catalog entry %s: %s", e.Slug, err.Error())
		}
		if err := requireText("module", e.Module); err != nil {
			return Validationf("catalog entry %s: %s", e.Slug, err.Error())
		}
		if seen[e.Slug] {
			return Validationf("catalog lists %s twice", e.Slug)
		}
		seen[e.Slug] = true
	}
	if err := ValidateSlug(c.SystemRole.Slug); err != nil {
		return err
	}
	return requireText("system role name", c.SystemRole.Name)
}

// BootstrapResult reports what Bootstrap changed
type BootstrapResult struct {
	PermissionsCreated int  `json:"permissions_created"`
	SystemRoleCreated  bool `json:"system_role_created"`
	GrantsAdded        int  `json:"grants_added"`
}

// Bootstrap installs the catalog idempotently. Missing permissions are created,
// the system role is created when absent, and it receives manage on every catalog
// permission it holds no grant for. Existing grants are never narrowed.
func Bootstrap(ctx context.Context, permissions *PermissionRegistry, roles *RoleRegistry, catalog Catalog) (*BootstrapResult, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	result := &BootstrapResult{}
	ids := make([]string, 0, len(catalog.Permissions))
	for _, e := range catalog.Permissions {
		p, err := permissions.GetBySlug(ctx, e.Slug)
		if KindOf(err) == KindNotFound {
			p, err = permissions.Create(ctx, PermissionInput{
				Slug:        e.Slug,
				Name:        e.Name,
				Module:      e.Module,
				Description: e.Description,
				SortOrder:   e.SortOrder,
			})
			if err == nil {
				result.PermissionsCreated++
			}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to install permission %s: %w", e.Slug, err)
		}
		ids = append(ids, p.ID)
	}

	role, err := roles.GetBySlug(ctx, catalog.SystemRole.Slug)
	if KindOf(err) == KindNotFound {
		grants := make([]RoleGrant, 0, len(ids))
		for _, id := range ids {
			grants = append(grants, RoleGrant{PermissionID: id, Actions: NewActionSet(ActionManage)})
		}
		_, err = roles.Create(ctx, RoleInput{
			Name:        catalog.SystemRole.Name,
			Slug:        catalog.SystemRole.Slug,
			Description: catalog.SystemRole.Description,
			Grants:      grants,
			IsSystem:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create system role: %w", err)
		}
		result.SystemRoleCreated = true
		result.GrantsAdded = len(grants)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load system role: %w", err)
	}

	grants := append([]RoleGrant(nil), role.Grants...)
	for _, id := range ids {
		if _, ok := role.Grant(id); !ok {
			grants = append(grants, RoleGrant{PermissionID: id, Actions: NewActionSet(ActionManage)})
			result.GrantsAdded++
		}
	}
	if result.GrantsAdded > 0 {
		if _, err := roles.Update(ctx, role.ID, RoleUpdate{Grants: &grants}); err != nil {
			return nil, fmt.Errorf("failed to extend system role grants: %w", err)
		}
	}
	return result, nil
}
