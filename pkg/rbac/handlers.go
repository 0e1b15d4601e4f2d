package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/storeadmin/pkg/httputil"
	"github.com/platinummonkey/storeadmin/pkg/observability"
)

// Permission slugs guarding the RBAC administration screens
const (
	SlugPermissions = "permissions"
	SlugRoles       = "roles"
	SlugSidebar     = "sidebar"
	SlugAdmins      = "admins"
)

// Handlers provides HTTP handlers for RBAC operations
type Handlers struct {
	permissions *PermissionRegistry
	roles       *RoleRegistry
	resolver    *Resolver
	sidebar     *SidebarOrderStore
	directory   *Directory
	guard       *Guard
}

// NewHandlers creates new RBAC handlers
func NewHandlers(permissions *PermissionRegistry, roles *RoleRegistry, resolver *Resolver,
	sidebar *SidebarOrderStore, directory *Directory, guard *Guard) *Handlers {
	return &Handlers{
		permissions: permissions,
		roles:       roles,
		resolver:    resolver,
		sidebar:     sidebar,
		directory:   directory,
		guard:       guard,
	}
}

type reorderRequest struct {
	PermissionIDs []string `json:"permission_ids" validate:"required"`
}

type checkRequest struct {
	Permission string `json:"permission" validate:"required"`
	Action     string `json:"action" validate:"required"`
}

type saveUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=320"`
	RoleID   string `json:"role_id"`
	IsActive bool   `json:"is_active"`
}

type checkResponse struct {
	Permission string `json:"permission"`
	Action     Action `json:"action"`
	Decision
}

// RegisterRoutes registers all RBAC routes under /rbac
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/rbac").Subrouter()

	guarded := func(path, method, slug string, action Action, fn http.HandlerFunc) {
		sub.Handle(path, h.guard.RequireAction(slug, action)(fn)).Methods(method)
	}

	// Permission catalog
	guarded("/permissions", http.MethodGet, SlugPermissions, ActionView, h.ListPermissions)
	guarded("/permissions", http.MethodPost, SlugPermissions, ActionCreate, h.CreatePermission)
	guarded("/permissions/modules", http.MethodGet, SlugPermissions, ActionView, h.ListModules)
	guarded("/permissions/{id}", http.MethodGet, SlugPermissions, ActionView, h.GetPermission)
	guarded("/permissions/{id}", http.MethodPut, SlugPermissions, ActionUpdate, h.UpdatePermission)
	guarded("/permissions/{id}", http.MethodDelete, SlugPermissions, ActionDelete, h.DeletePermission)
	guarded("/permissions/{id}/activate", http.MethodPost, SlugPermissions, ActionUpdate, h.ActivatePermission)
	guarded("/permissions/{id}/deactivate", http.MethodPost, SlugPermissions, ActionUpdate, h.DeactivatePermission)

	// Roles
	guarded("/roles", http.MethodGet, SlugRoles, ActionView, h.ListRoles)
	guarded("/roles", http.MethodPost, SlugRoles, ActionCreate, h.CreateRole)
	guarded("/roles/{id}", http.MethodGet, SlugRoles, ActionView, h.GetRole)
	guarded("/roles/{id}", http.MethodPut, SlugRoles, ActionUpdate, h.UpdateRole)
	guarded("/roles/{id}", http.MethodDelete, SlugRoles, ActionDelete, h.DeleteRole)
	guarded("/roles/{id}/toggle-active", http.MethodPost, SlugRoles, ActionUpdate, h.ToggleRole)

	// Sidebar
	guarded("/sidebar", http.MethodGet, SlugSidebar, ActionView, h.GetSidebar)
	guarded("/sidebar", http.MethodPut, SlugSidebar, ActionUpdate, h.ReorderSidebar)

	// Admin users
	guarded("/users", http.MethodGet, SlugAdmins, ActionView, h.ListUsers)
	guarded("/users/{id}", http.MethodGet, SlugAdmins, ActionView, h.GetUser)
	guarded("/users/{id}", http.MethodPut, SlugAdmins, ActionUpdate, h.SaveUser)

	// Caller's own view
	sub.Handle("/me/navigation", h.guard.RequireActor(http.HandlerFunc(h.Navigation))).Methods(http.MethodGet)
	sub.Handle("/check", h.guard.RequireActor(http.HandlerFunc(h.Check))).Methods(http.MethodPost)
}

// writeError maps domain errors onto HTTP statuses. Forbidden never carries detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch KindOf(err) {
	case KindValidation:
		httputil.WriteBadRequest(w, err.Error())
	case KindNotFound:
		httputil.WriteNotFound(w, err.Error())
	case KindConflict:
		httputil.WriteConflict(w, err.Error())
	case KindForbidden:
		httputil.WriteForbidden(w, forbiddenMessage)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("rbac request failed")
		httputil.WriteInternalError(w)
	}
}

// ListPermissions lists every permission
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.permissions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, permissions)
}

// ListModules lists the distinct permission modules
func (h *Handlers) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.permissions.Modules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, modules)
}

// CreatePermission creates a permission
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionInput
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.permissions.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, p)
}

// GetPermission retrieves a permission
func (h *Handlers) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	p, err := h.permissions.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// UpdatePermission edits a permission
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req PermissionUpdate
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.permissions.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// DeletePermission deletes an ungranted permission
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.permissions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ActivatePermission activates a permission
func (h *Handlers) ActivatePermission(w http.ResponseWriter, r *http.Request) {
	h.setPermissionActive(w, r, true)
}

// DeactivatePermission deactivates a permission
func (h *Handlers) DeactivatePermission(w http.ResponseWriter, r *http.Request) {
	h.setPermissionActive(w, r, false)
}

func (h *Handlers) setPermissionActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var (
		p   *Permission
		err error
	)
	if active {
		p, err = h.permissions.Activate(r.Context(), id)
	} else {
		p, err = h.permissions.Deactivate(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req RoleInput
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	role, err := h.roles.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole retrieves a role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole edits a role and optionally replaces its grants
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req RoleUpdate
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	role, err := h.roles.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes a role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.roles.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ToggleRole flips a role between active and inactive
func (h *Handlers) ToggleRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.ToggleActive(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// GetSidebar returns the active permissions in navigation order
func (h *Handlers) GetSidebar(w http.ResponseWriter, r *http.Request) {
	ordered, err := h.sidebar.GetOrdered(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ordered)
}

// ReorderSidebar replaces the navigation order
func (h *Handlers) ReorderSidebar(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	order, err := h.sidebar.Reorder(r.Context(), req.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, order)
}

// Navigation returns the sidebar entries the caller may view
func (h *Handlers) Navigation(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	visible, err := h.sidebar.VisibleTo(r.Context(), actor, h.resolver)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, visible)
}

// Check reports whether the caller may perform an action on a permission slug
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	decision, err := h.resolver.Check(r.Context(), actor, req.Permission, action)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, checkResponse{Permission: req.Permission, Action: action, Decision: decision})
}

// ListUsers lists admin users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

// GetUser retrieves an admin user
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	user, err := h.directory.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// SaveUser creates or replaces an admin user record
func (h *Handlers) SaveUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req saveUserRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.directory.UpsertUser(r.Context(), AdminUserInput{
		UserID:   id,
		Email:    req.Email,
		RoleID:   req.RoleID,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}
