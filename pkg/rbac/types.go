package rbac

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action represents an operation an actor may perform on a back-office page
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionManage supersedes every other action
	ActionManage Action = "manage"
)

// allActions lists the closed action enumeration in display order
var allActions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionManage}

// AllActions returns the closed set of known actions
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

// ParseAction converts a token into an Action, rejecting anything outside the enumeration
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", Validationf("invalid action %q", s)
	}
	return a, nil
}

// Valid reports whether the action is part of the enumeration
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionManage:
		return true
	}
	return false
}

func (a Action) rank() int {
	for i, known := range allActions {
		if known == a {
			return i
		}
	}
	return len(allActions)
}

// ActionSet is an unordered set of actions granted on a single permission.
// A set containing ActionManage never contains anything else.
type ActionSet map[Action]struct{}

// NewActionSet builds a set from the given actions without normalizing it
func NewActionSet(actions ...Action) ActionSet {
	set := make(ActionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// Has reports whether the action is literally present in the set
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// Allows reports whether the set permits the action, honoring manage
func (s ActionSet) Allows(a Action) bool {
	if s.Has(ActionManage) {
		return true
	}
	return s.Has(a)
}

// With returns a copy of the set with the action added. Adding manage clears
// every other action; adding any other action clears manage.
func (s ActionSet) With(a Action) ActionSet {
	if a == ActionManage {
		return NewActionSet(ActionManage)
	}
	out := make(ActionSet, len(s)+1)
	for k := range s {
		if k != ActionManage {
			out[k] = struct{}{}
		}
	}
	out[a] = struct{}{}
	return out
}

// Without returns a copy of the set with the action removed
func (s ActionSet) Without(a Action) ActionSet {
	out := make(ActionSet, len(s))
	for k := range s {
		if k != a {
			out[k] = struct{}{}
		}
	}
	return out
}

// Slice returns the actions in enumeration order
func (s ActionSet) Slice() []Action {
	out := make([]Action, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rank() < out[j].rank() })
	return out
}

// Validate checks the set is non-empty, contains only known actions and keeps manage exclusive
func (s ActionSet) Validate() error {
	if len(s) == 0 {
		return Validationf("action set must not be empty")
	}
	for a := range s {
		if !a.Valid() {
			return Validationf("invalid action %q", a)
		}
	}
	if s.Has(ActionManage) && len(s) > 1 {
		return Validationf("manage cannot be combined with other actions")
	}
	return nil
}

// MarshalJSON encodes the set as an ordered array of action tokens
func (s ActionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of action tokens
func (s *ActionSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("action set must be an array of strings: %w", err)
	}
	set := make(ActionSet, len(tokens))
	for _, t := range tokens {
		set[Action(t)] = struct{}{}
	}
	*s = set
	return nil
}

// Permission is an addressable back-office page or feature, identified by slug
type Permission struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Module      string    `json:"module"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleGrant associates a permission with the actions a role may perform on it
type RoleGrant struct {
	PermissionID string    `json:"permission_id"`
	Actions      ActionSet `json:"actions"`
}

// Role is a named bundle of grants assigned to admin users
type Role struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Description string      `json:"description,omitempty"`
	IsSystem    bool        `json:"is_system"`
	IsActive    bool        `json:"is_active"`
	Grants      []RoleGrant `json:"grants"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Grant returns the grant for a permission, if the role has one
func (r *Role) Grant(permissionID string) (RoleGrant, bool) {
	if r == nil {
		return RoleGrant{}, false
	}
	for _, g := range r.Grants {
		if g.PermissionID == permissionID {
			return g, true
		}
	}
	return RoleGrant{}, false
}

// SidebarOrder is the single global ordering of permissions used by navigation
type SidebarOrder struct {
	PermissionIDs []string  `json:"permission_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AdminUser is a back-office user as known to the directory
type AdminUser struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	RoleID    string    `json:"role_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the resolved identity authorization decisions are made for.
// It can only be produced by Directory.ResolveActor; the zero value is always denied.
type Actor struct {
	userID   string
	roleID   string
	isActive bool
}

// UserID returns the identity provider's user id
func (a Actor) UserID() string { return a.userID }

// RoleID returns the id of the actor's role, empty when the user has none
func (a Actor) RoleID() string { return a.roleID }

// IsActive reports whether the actor's user record is active
func (a Actor) IsActive() bool { return a.isActive }

// PermissionInput describes a permission to create
type PermissionInput struct {
	Slug        string `json:"slug" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
	Module      string `json:"module" validate:"required,max=100"`
	SortOrder   int    `json:"sort_order"`
}

// PermissionUpdate describes editable permission fields. A nil field is left unchanged.
type PermissionUpdate struct {
	Slug        *string `json:"slug,omitempty"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Module      *string `json:"module,omitempty" validate:"omitempty,min=1,max=100"`
	SortOrder   *int    `json:"sort_order,omitempty"`
}

// RoleInput describes a role to create
type RoleInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Slug        string      `json:"slug" validate:"required,max=100"`
	Description string      `json:"description" validate:"max=1000"`
	Grants      []RoleGrant `json:"grants"`
	// IsSystem is only honored by catalog bootstrap, never by the HTTP surface
	IsSystem bool `json:"-"`
}

// RoleUpdate describes editable role fields. Grants, when non-nil, replace the whole set.
type RoleUpdate struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Slug        *string      `json:"slug,omitempty"`
	Description *string      `json:"description,omitempty" validate:"omitempty,max=1000"`
	IsActive    *bool        `json:"is_active,omitempty"`
	Grants      *[]RoleGrant `json:"grants,omitempty"`
}

// AdminUserInput creates or updates an admin user record
type AdminUserInput struct {
	UserID   string `json:"user_id" validate:"required,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	RoleID   string `json:"role_id"`
	IsActive bool   `json:"is_active"`
}
