package rbac

import (
	"context"
	"sort"
	"strings"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/samber/lo"
)

// PermissionRegistry maintains the catalog of addressable back-office pages
type PermissionRegistry struct {
	base
}

// NewPermissionRegistry creates a permission registry
func NewPermissionRegistry(store *Store, opts Options) *PermissionRegistry {
	return &PermissionRegistry{base: newBase(store, opts)}
}

// Create adds a new active permission
func (r *PermissionRegistry) Create(ctx context.Context, input PermissionInput) (*Permission, error) {
	input.Slug = strings.TrimSpace(input.Slug)
	if err := ValidateSlug(input.Slug); err != nil {
		return nil, err
	}
	if err := requireText("name", input.Name); err != nil {
		return nil, err
	}
	if err := requireText("module", input.Module); err != nil {
		return nil, err
	}

	now := r.now()
	p := &Permission{
		ID:          r.opts.NewID(),
		Slug:        input.Slug,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Module:      strings.TrimSpace(input.Module),
		SortOrder:   input.SortOrder,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.store.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.GetPermissionBySlug(ctx, p.Slug); err == nil {
			return Conflictf("permission slug %q already exists", p.Slug)
		} else if KindOf(err) != KindNotFound {
			return err
		}
		return tx.CreatePermission(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if err := r.committed(ctx, "permission", "create", &audit.Event{
		EventType:    audit.EventTypePermissionCreate,
		ResourceType: audit.ResourceTypePermission,
		ResourceID:   p.ID,
		Message:      "permission created",
		Changes:      &audit.ChangeDetails{After: p},
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Update edits name, description, module and sort order. The slug is immutable.
func (r *PermissionRegistry) Update(ctx context.Context, id string, update PermissionUpdate) (*Permission, error) {
	var before, after Permission
	err := r.store.WithTx(ctx, func(tx *Store) error {
		current, err := tx.GetPermission(ctx, id)
		if err != nil {
			return err
		}
		before = *current

		if update.Slug != nil && *update.Slug != current.Slug {
			return Validationf("permission slug is immutable")
		}
		if update.Name != nil {
			if err := requireText("name", *update.Name); err != nil {
				return err
			}
			current.Name = strings.TrimSpace(*update.Name)
		}
		if update.Description != nil {
			current.Description = *update.Description
		}
		if update.Module != nil {
			if err := requireText("module", *update.Module); err != nil {
				return err
			}
			current.Module = strings.TrimSpace(*update.Module)
		}
		if update.SortOrder != nil {
			current.SortOrder = *update.SortOrder
		}
		current.UpdatedAt = r.now()
		after = *current
		return tx.UpdatePermission(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	if err := r.committed(ctx, "permission", "update", &audit.Event{
		EventType:    audit.EventTypePermissionUpdate,
		ResourceType: audit.ResourceTypePermission,
		ResourceID:   id,
		Message:      "permission updated",
		Changes:      &audit.ChangeDetails{Before: before, After: after},
	}); err != nil {
		return nil, err
	}
	return &after, nil
}

// Activate makes a permission visible to authorization and the sidebar again
func (r *PermissionRegistry) Activate(ctx context.Context, id string) (*Permission, error) {
	return r.setActive(ctx, id, true)
}

// Deactivate hides a permission from authorization and the sidebar. Grants referencing
// it are kept so reactivation restores previous access.
func (r *PermissionRegistry) Deactivate(ctx context.Context, id string) (*Permission, error) {
	return r.setActive(ctx, id, false)
}

func (r *PermissionRegistry) setActive(ctx context.Context, id string, active bool) (*Permission, error) {
	var updated Permission
	err := r.store.WithTx(ctx, func(tx *Store) error {
		p, err := tx.GetPermission(ctx, id)
		if err != nil {
			return err
		}
		p.IsActive = active
		p.UpdatedAt = r.now()
		updated = *p
		return tx.UpdatePermission(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	eventType, op := audit.EventTypePermissionDeactivate, "deactivate"
	if active {
		eventType, op = audit.EventTypePermissionActivate, "activate"
	}
	if err := r.committed(ctx, "permission", op, &audit.Event{
		EventType:    eventType,
		ResourceType: audit.ResourceTypePermission,
		ResourceID:   id,
		Message:      "permission " + op + "d",
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a permission. It is refused while any role grant references it.
func (r *PermissionRegistry) Delete(ctx context.Context, id string) error {
	var deleted *Permission
	err := r.store.WithTx(ctx, func(tx *Store) error {
		// Lock before the reference check; role writes lock the same row.
		if err := tx.LockPermission(ctx, id); err != nil {
			return err
		}
		p, err := tx.GetPermission(ctx, id)
		if err != nil {
			return err
		}
		holders, err := tx.RolesReferencingPermission(ctx, id)
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return Conflictf("permission %q is granted by %d role(s): %s",
				p.Slug, len(holders), strings.Join(holders, ", "))
		}
		deleted = p
		return tx.DeletePermission(ctx, id)
	})
	if err != nil {
		return err
	}

	return r.committed(ctx, "permission", "delete", &audit.Event{
		EventType:    audit.EventTypePermissionDelete,
		ResourceType: audit.ResourceTypePermission,
		ResourceID:   id,
		Message:      "permission deleted",
		Changes:      &audit.ChangeDetails{Before: deleted},
	})
}

// Get returns a permission by id
func (r *PermissionRegistry) Get(ctx context.Context, id string) (*Permission, error) {
	return r.store.GetPermission(ctx, id)
}

// GetBySlug returns a permission by slug
func (r *PermissionRegistry) GetBySlug(ctx context.Context, slug string) (*Permission, error) {
	return r.store.GetPermissionBySlug(ctx, slug)
}

// List returns every permission, active or not, by sort order then slug
func (r *PermissionRegistry) List(ctx context.Context) ([]Permission, error) {
	return r.store.ListPermissions(ctx)
}

// ListByModule groups every permission by module. Each group is ordered by
// sort order then slug.
func (r *PermissionRegistry) ListByModule(ctx context.Context) (map[string][]Permission, error) {
	permissions, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	groups := lo.GroupBy(permissions, func(p Permission) string { return p.Module })
	for module := range groups {
		sortPermissions(groups[module])
	}
	return groups, nil
}

// Modules returns the distinct module names in alphabetical order
func (r *PermissionRegistry) Modules(ctx context.Context) ([]string, error) {
	permissions, err := r.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	modules := lo.Uniq(lo.Map(permissions, func(p Permission, _ int) string { return p.Module }))
	sort.Strings(modules)
	return modules, nil
}

// sortPermissions orders by sort order then slug
func sortPermissions(ps []Permission) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].SortOrder != ps[j].SortOrder {
			return ps[i].SortOrder < ps[j].SortOrder
		}
		return ps[i].Slug < ps[j].Slug
	})
}
