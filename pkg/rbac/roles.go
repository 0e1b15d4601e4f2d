package rbac

import (
	"context"
	"sort"
	"strings"

	"github.com/platinummonkey/storeadmin/pkg/audit"
)

// RoleRegistry maintains roles and their grants
type RoleRegistry struct {
	base
}

// NewRoleRegistry creates a role registry
func NewRoleRegistry(store *Store, opts Options) *RoleRegistry {
	return &RoleRegistry{base: newBase(store, opts)}
}

// normalizeGrants validates grants and verifies every referenced permission exists.
// The returned slice is a copy ordered as submitted.
func normalizeGrants(ctx context.Context, tx *Store, grants []RoleGrant) ([]RoleGrant, error) {
	if err := validateGrants(grants); err != nil {
		return nil, err
	}
	// Granted permissions stay locked until commit so a concurrent delete cannot
	// remove one after its reference check. Sorted ids keep the lock order stable.
	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		ids = append(ids, g.PermissionID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := tx.LockPermission(ctx, id); err != nil {
			if KindOf(err) == KindNotFound {
				return nil, Validationf("grant references unknown permission %s", id)
			}
			return nil, err
		}
	}

	out := make([]RoleGrant, 0, len(grants))
	for _, g := range grants {
		out = append(out, RoleGrant{PermissionID: g.PermissionID, Actions: NewActionSet(g.Actions.Slice()...)})
	}
	return out, nil
}

// Create adds a new active role with its initial grants
func (r *RoleRegistry) Create(ctx context.Context, input RoleInput) (*Role, error) {
	input.Slug = strings.TrimSpace(input.Slug)
	if err := ValidateSlug(input.Slug); err != nil {
		return nil, err
	}
	if err := requireText("name", input.Name); err != nil {
		return nil, err
	}

	now := r.now()
	role := &Role{
		ID:          r.opts.NewID(),
		Name:        strings.TrimSpace(input.Name),
		Slug:        input.Slug,
		Description: input.Description,
		IsSystem:    input.IsSystem,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.store.WithTx(ctx, func(tx *Store) error {
		grants, err := normalizeGrants(ctx, tx, input.Grants)
		if err != nil {
			return err
		}
		role.Grants = grants
		if _, err := tx.GetRoleBySlug(ctx, role.Slug); err == nil {
			return Conflictf("role slug %q already exists", role.Slug)
		} else if KindOf(err) != KindNotFound {
			return err
		}
		return tx.CreateRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	if err := r.committed(ctx, "role", "create", &audit.Event{
		EventType:    audit.EventTypeRoleCreate,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   role.ID,
		Message:      "role created",
		Changes:      &audit.ChangeDetails{After: role},
	}); err != nil {
		return nil, err
	}
	return role, nil
}

// Update edits a role. Grants, when supplied, replace the whole grant set in the
// same statement as the other fields, so readers see either the old or the new role.
// System roles keep their name and slug and cannot be deactivated.
func (r *RoleRegistry) Update(ctx context.Context, id string, update RoleUpdate) (*Role, error) {
	var before, after Role
	err := r.store.WithTx(ctx, func(tx *Store) error {
		current, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		before = *current

		if update.Slug != nil && strings.TrimSpace(*update.Slug) != current.Slug {
			if current.IsSystem {
				return Forbiddenf("system role slug cannot be changed")
			}
			slug := strings.TrimSpace(*update.Slug)
			if err := ValidateSlug(slug); err != nil {
				return err
			}
			if _, err := tx.GetRoleBySlug(ctx, slug); err == nil {
				return Conflictf("role slug %q already exists", slug)
			} else if KindOf(err) != KindNotFound {
				return err
			}
			current.Slug = slug
		}
		if update.Name != nil && strings.TrimSpace(*update.Name) != current.Name {
			if current.IsSystem {
				return Forbiddenf("system role name cannot be changed")
			}
			if err := requireText("name", *update.Name); err != nil {
				return err
			}
			current.Name = strings.TrimSpace(*update.Name)
		}
		if update.Description != nil {
			current.Description = *update.Description
		}
		if update.IsActive != nil && *update.IsActive != current.IsActive {
			if current.IsSystem && !*update.IsActive {
				return Forbiddenf("system role cannot be deactivated")
			}
			current.IsActive = *update.IsActive
		}
		if update.Grants != nil {
			grants, err := normalizeGrants(ctx, tx, *update.Grants)
			if err != nil {
				return err
			}
			current.Grants = grants
		}

		current.UpdatedAt = r.now()
		after = *current
		return tx.UpdateRole(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	if err := r.committed(ctx, "role", "update", &audit.Event{
		EventType:    audit.EventTypeRoleUpdate,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   id,
		Message:      "role updated",
		Changes:      &audit.ChangeDetails{Before: before, After: after},
	}); err != nil {
		return nil, err
	}
	return &after, nil
}

// ToggleActive flips a non-system role between active and inactive
func (r *RoleRegistry) ToggleActive(ctx context.Context, id string) (*Role, error) {
	var updated Role
	err := r.store.WithTx(ctx, func(tx *Store) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return Forbiddenf("system role cannot be deactivated")
		}
		role.IsActive = !role.IsActive
		role.UpdatedAt = r.now()
		updated = *role
		return tx.UpdateRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	if err := r.committed(ctx, "role", "toggle_active", &audit.Event{
		EventType:    audit.EventTypeRoleToggleActive,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   id,
		Message:      "role activity toggled",
		Metadata:     map[string]interface{}{"is_active": updated.IsActive},
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a non-system role that no active user holds. Inactive users
// still pointing at the role are left without one.
func (r *RoleRegistry) Delete(ctx context.Context, id string) error {
	var deleted *Role
	err := r.store.WithTx(ctx, func(tx *Store) error {
		role, err := tx.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if role.IsSystem {
			return Forbiddenf("system role cannot be deleted")
		}
		holders, err := tx.CountActiveUsersWithRole(ctx, id)
		if err != nil {
			return err
		}
		if holders > 0 {
			return Conflictf("role %q is assigned to %d active user(s)", role.Slug, holders)
		}
		if err := tx.DetachRole(ctx, id, r.now()); err != nil {
			return err
		}
		deleted = role
		return tx.DeleteRole(ctx, id)
	})
	if err != nil {
		return err
	}

	return r.committed(ctx, "role", "delete", &audit.Event{
		EventType:    audit.EventTypeRoleDelete,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   id,
		Message:      "role deleted",
		Changes:      &audit.ChangeDetails{Before: deleted},
	})
}

// Get returns a role by id
func (r *RoleRegistry) Get(ctx context.Context, id string) (*Role, error) {
	return r.store.GetRole(ctx, id)
}

// GetBySlug returns a role by slug
func (r *RoleRegistry) GetBySlug(ctx context.Context, slug string) (*Role, error) {
	return r.store.GetRoleBySlug(ctx, slug)
}

// List returns every role, system roles first
func (r *RoleRegistry) List(ctx context.Context) ([]Role, error) {
	return r.store.ListRoles(ctx)
}
