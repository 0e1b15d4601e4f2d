package rbac

import (
	"context"
	"strings"

	"github.com/platinummonkey/storeadmin/pkg/audit"
)

// Directory maps identity-provider users to admin records and resolves actors.
// It is the only place an Actor is constructed.
type Directory struct {
	base
}

// NewDirectory creates an admin directory
func NewDirectory(store *Store, opts Options) *Directory {
	return &Directory{base: newBase(store, opts)}
}

// ResolveActor returns the actor for a user id, or NotFoundError
func (d *Directory) ResolveActor(ctx context.Context, userID string) (Actor, error) {
	if strings.TrimSpace(userID) == "" {
		return Actor{}, NotFoundf("admin user not found")
	}
	u, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{userID: u.UserID, roleID: u.RoleID, isActive: u.IsActive}, nil
}

func (d *Directory) requireRole(ctx context.Context, tx *Store, roleID string) error {
	if roleID == "" {
		return nil
	}
	if _, err := tx.GetRole(ctx, roleID); err != nil {
		if KindOf(err) == KindNotFound {
			return Validationf("unknown role %s", roleID)
		}
		return err
	}
	return nil
}

// UpsertUser creates or replaces an admin user record
func (d *Directory) UpsertUser(ctx context.Context, input AdminUserInput) (*AdminUser, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return nil, Validationf("user_id is required")
	}

	var before *AdminUser
	var saved AdminUser
	err := d.store.WithTx(ctx, func(tx *Store) error {
		if err := d.requireRole(ctx, tx, input.RoleID); err != nil {
			return err
		}
		now := d.now()
		saved = AdminUser{
			UserID:    input.UserID,
			Email:     input.Email,
			RoleID:    input.RoleID,
			IsActive:  input.IsActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		existing, err := tx.GetUser(ctx, input.UserID)
		switch {
		case err == nil:
			before = existing
			saved.CreatedAt = existing.CreatedAt
		case KindOf(err) != KindNotFound:
			return err
		}
		return tx.UpsertUser(ctx, &saved)
	})
	if err != nil {
		return nil, err
	}

	changes := &audit.ChangeDetails{After: saved}
	if before != nil {
		changes.Before = *before
	}
	if err := d.committed(ctx, "admin_user", "upsert", &audit.Event{
		EventType:    audit.EventTypeUserUpsert,
		ResourceType: audit.ResourceTypeAdminUser,
		ResourceID:   saved.UserID,
		Message:      "admin user saved",
		Changes:      changes,
	}); err != nil {
		return nil, err
	}
	return &saved, nil
}

// AssignRole sets the user's single role. An empty role id removes it.
func (d *Directory) AssignRole(ctx context.Context, userID, roleID string) (*AdminUser, error) {
	var updated AdminUser
	var previous string
	err := d.store.WithTx(ctx, func(tx *Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := d.requireRole(ctx, tx, roleID); err != nil {
			return err
		}
		previous = u.RoleID
		u.RoleID = roleID
		u.UpdatedAt = d.now()
		updated = *u
		return tx.UpsertUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	if err := d.committed(ctx, "admin_user", "assign_role", &audit.Event{
		EventType:    audit.EventTypeUserRoleAssign,
		ResourceType: audit.ResourceTypeAdminUser,
		ResourceID:   userID,
		Message:      "role assigned",
		Changes:      &audit.ChangeDetails{Before: previous, After: roleID},
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetActive activates or deactivates a user
func (d *Directory) SetActive(ctx context.Context, userID string, active bool) (*AdminUser, error) {
	var updated AdminUser
	err := d.store.WithTx(ctx, func(tx *Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		u.IsActive = active
		u.UpdatedAt = d.now()
		updated = *u
		return tx.UpsertUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	if err := d.committed(ctx, "admin_user", "set_active", &audit.Event{
		EventType:    audit.EventTypeUserActivation,
		ResourceType: audit.ResourceTypeAdminUser,
		ResourceID:   userID,
		Message:      "user activity changed",
		Metadata:     map[string]interface{}{"is_active": active},
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetUser returns an admin user record
func (d *Directory) GetUser(ctx context.Context, userID string) (*AdminUser, error) {
	return d.store.GetUser(ctx, userID)
}

// ListUsers returns every admin user
func (d *Directory) ListUsers(ctx context.Context) ([]AdminUser, error) {
	return d.store.ListUsers(ctx)
}
