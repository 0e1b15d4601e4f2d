package rbac

import (
	"context"

	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/samber/lo"
)

// SidebarOrderStore keeps the single global navigation order over all permissions
type SidebarOrderStore struct {
	base
}

// NewSidebarOrderStore creates a sidebar order store
func NewSidebarOrderStore(store *Store, opts Options) *SidebarOrderStore {
	return &SidebarOrderStore{base: newBase(store, opts)}
}

// arrange applies a stored order to the given permissions. Permissions in the order
// come first in stored sequence; the rest follow by sort order then slug. Ids in the
// order that no longer exist are skipped.
func arrange(permissions []Permission, order []string) []Permission {
	byID := lo.KeyBy(permissions, func(p Permission) string { return p.ID })
	placed := make(map[string]bool, len(order))

	out := make([]Permission, 0, len(permissions))
	for _, id := range order {
		p, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		out = append(out, p)
	}

	rest := lo.Filter(permissions, func(p Permission, _ int) bool { return !placed[p.ID] })
	sortPermissions(rest)
	return append(out, rest...)
}

// GetOrdered returns the active permissions in navigation order
func (s *SidebarOrderStore) GetOrdered(ctx context.Context) ([]Permission, error) {
	permissions, err := s.store.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	order, err := s.store.GetSidebarOrder(ctx)
	if err != nil {
		return nil, err
	}
	active := lo.Filter(permissions, func(p Permission, _ int) bool { return p.IsActive })
	return arrange(active, order.PermissionIDs), nil
}

// Current returns the persisted order as saved
func (s *SidebarOrderStore) Current(ctx context.Context) (*SidebarOrder, error) {
	return s.store.GetSidebarOrder(ctx)
}

// Reorder replaces the order. ids must be exactly a permutation of every known
// permission id, active and inactive. Validation and the write share one
// transaction and the write replaces the whole sequence.
func (s *SidebarOrderStore) Reorder(ctx context.Context, ids []string) (*SidebarOrder, error) {
	var before *SidebarOrder
	saved := &SidebarOrder{PermissionIDs: append([]string(nil), ids...), UpdatedAt: s.now()}

	err := s.store.WithTx(ctx, func(tx *Store) error {
		permissions, err := tx.ListPermissions(ctx)
		if err != nil {
			return err
		}
		known := lo.Map(permissions, func(p Permission, _ int) string { return p.ID })
		if err := checkPermutation(ids, known); err != nil {
			return err
		}
		if before, err = tx.GetSidebarOrder(ctx); err != nil {
			return err
		}
		return tx.SaveSidebarOrder(ctx, saved)
	})
	if err != nil {
		return nil, err
	}

	if err := s.committed(ctx, "sidebar", "reorder", &audit.Event{
		EventType:    audit.EventTypeSidebarReorder,
		ResourceType: audit.ResourceTypeSidebar,
		ResourceID:   "global",
		Message:      "sidebar reordered",
		Changes:      &audit.ChangeDetails{Before: before.PermissionIDs, After: saved.PermissionIDs},
	}); err != nil {
		return nil, err
	}
	return saved, nil
}

// VisibleTo returns the navigation entries the actor may view, in sidebar order
func (s *SidebarOrderStore) VisibleTo(ctx context.Context, actor Actor, resolver *Resolver) ([]Permission, error) {
	ordered, err := s.GetOrdered(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]Permission, 0, len(ordered))
	for _, p := range ordered {
		ok, err := resolver.CanView(ctx, actor, p.Slug)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, p)
		}
	}
	return visible, nil
}
