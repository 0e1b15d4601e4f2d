package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/storeadmin/pkg/audit"
	"github.com/platinummonkey/storeadmin/pkg/contextkeys"
	"github.com/platinummonkey/storeadmin/pkg/httputil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

type httpEnv struct {
	mgr    *Manager
	audit  *audit.MemoryLogger
	router *mux.Router
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	auditLog := audit.NewMemoryLogger()
	cfg := DefaultConfig()
	cfg.Options.Audit = auditLog

	mgr := NewManager(setupTestDB(t), cfg)
	_, err := mgr.Initialize(context.Background())
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get(testUserHeader); id != "" {
				r = r.WithContext(contextkeys.WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	mgr.RegisterRoutes(router)

	_, err = mgr.AssignSystemRole(context.Background(), "root", "root@example.com")
	require.NoError(t, err)

	return &httpEnv{mgr: mgr, audit: auditLog, router: router}
}

func (e *httpEnv) do(t *testing.T, user, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func TestHandlersRequireIdentity(t *testing.T) {
	env := newHTTPEnv(t)

	rr := env.do(t, "", http.MethodGet, "/rbac/roles", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, "stranger", http.MethodGet, "/rbac/roles", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "not permitted", decode[httputil.ErrorResponse](t, rr).Error)
}

func TestHandlersPermissionLifecycle(t *testing.T) {
	env := newHTTPEnv(t)

	rr := env.do(t, "root", http.MethodPost, "/rbac/permissions", PermissionInput{Slug: "gift-cards", Name: "Gift Cards", Module: "marketing", SortOrder: 25})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[Permission](t, rr)

	rr = env.do(t, "root", http.MethodPost, "/rbac/permissions", PermissionInput{Slug: "gift-cards", Name: "Again", Module: "marketing"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, "root", http.MethodPost, "/rbac/permissions", map[string]interface{}{"slug": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[httputil.ErrorResponse](t, rr).Details, "name")

	rr = env.do(t, "root", http.MethodGet, "/rbac/permissions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "root", http.MethodPut, "/rbac/permissions/"+created.ID, map[string]interface{}{"slug": "vouchers"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "root", http.MethodPost, "/rbac/permissions/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[Permission](t, rr).IsActive)

	rr = env.do(t, "root", http.MethodPost, "/rbac/permissions/"+created.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "root", http.MethodGet, "/rbac/permissions/modules", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decode[[]string](t, rr), "marketing")

	// new permissions are not granted to the system role until the catalog lists them
	rr = env.do(t, "root", http.MethodDelete, "/rbac/permissions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, "root", http.MethodGet, "/rbac/permissions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlersRoleLifecycle(t *testing.T) {
	env := newHTTPEnv(t)
	ctx := context.Background()
	orders, err := env.mgr.Permissions().GetBySlug(ctx, "orders")
	require.NoError(t, err)

	rr := env.do(t, "root", http.MethodPost, "/rbac/roles", RoleInput{
		Name: "Support", Slug: "support",
		Grants: []RoleGrant{grant(orders, ActionView)},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	role := decode[Role](t, rr)

	rr = env.do(t, "root", http.MethodPost, "/rbac/roles", map[string]interface{}{
		"name": "Bad", "slug": "bad",
		"grants": []map[string]interface{}{{"permission_id": orders.ID, "actions": []string{"manage", "view"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "root", http.MethodPost, "/rbac/roles/"+role.ID+"/toggle-active", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[Role](t, rr).IsActive)

	rr = env.do(t, "root", http.MethodGet, "/rbac/roles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	roles := decode[[]Role](t, rr)
	require.Len(t, roles, 2)
	assert.True(t, roles[0].IsSystem)

	// system role: forbidden with no detail
	rr = env.do(t, "root", http.MethodDelete, "/rbac/roles/"+roles[0].ID, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "not permitted", decode[httputil.ErrorResponse](t, rr).Error)

	rr = env.do(t, "root", http.MethodDelete, "/rbac/roles/"+role.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandlersEnforceGrants(t *testing.T) {
	env := newHTTPEnv(t)
	ctx := context.Background()
	rolesPerm, err := env.mgr.Permissions().GetBySlug(ctx, SlugRoles)
	require.NoError(t, err)

	viewer, err := env.mgr.Roles().Create(ctx, RoleInput{Name: "Viewer", Slug: "viewer", Grants: []RoleGrant{grant(rolesPerm, ActionView)}})
	require.NoError(t, err)
	rr := env.do(t, "root", http.MethodPut, "/rbac/users/clerk", map[string]interface{}{"role_id": viewer.ID, "is_active": true, "email": "clerk@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, "clerk", http.MethodGet, "/rbac/roles", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "clerk", http.MethodPost, "/rbac/roles", RoleInput{Name: "X", Slug: "x"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, "clerk", http.MethodGet, "/rbac/permissions", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	denied := env.audit.OfType(audit.EventTypeAccessDenied)
	require.NotEmpty(t, denied)
	assert.Equal(t, "clerk", denied[len(denied)-1].UserID)

	rr = env.do(t, "clerk", http.MethodGet, "/rbac/me/navigation", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	nav := decode[[]Permission](t, rr)
	require.Len(t, nav, 1)
	assert.Equal(t, SlugRoles, nav[0].Slug)

	rr = env.do(t, "clerk", http.MethodPost, "/rbac/check", map[string]string{"permission": SlugRoles, "action": "delete"})
	require.Equal(t, http.StatusOK, rr.Code)
	check := decode[checkResponse](t, rr)
	assert.False(t, check.Allowed)
	assert.Equal(t, ReasonActionNotGranted, check.Reason)

	rr = env.do(t, "clerk", http.MethodPost, "/rbac/check", map[string]string{"permission": SlugRoles, "action": "publish"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlersSidebar(t *testing.T) {
	env := newHTTPEnv(t)
	ctx := context.Background()

	rr := env.do(t, "root", http.MethodGet, "/rbac/sidebar", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ordered := decode[[]Permission](t, rr)
	require.Len(t, ordered, 16)
	assert.Equal(t, "dashboard", ordered[0].Slug)

	all, err := env.mgr.Permissions().List(ctx)
	require.NoError(t, err)
	reversed := make([]string, len(all))
	for i, p := range all {
		reversed[len(all)-1-i] = p.ID
	}

	rr = env.do(t, "root", http.MethodPut, "/rbac/sidebar", map[string]interface{}{"permission_ids": reversed[:3]})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "root", http.MethodPut, "/rbac/sidebar", map[string]interface{}{"permission_ids": reversed})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, "root", http.MethodGet, "/rbac/sidebar", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ordered = decode[[]Permission](t, rr)
	assert.Equal(t, reversed[0], ordered[0].ID)
}

func TestHandlersUsers(t *testing.T) {
	env := newHTTPEnv(t)

	rr := env.do(t, "root", http.MethodPut, "/rbac/users/ops", map[string]interface{}{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "root", http.MethodPut, "/rbac/users/ops", map[string]interface{}{"role_id": "ghost", "is_active": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "root", http.MethodGet, "/rbac/users/ops", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, "root", http.MethodGet, "/rbac/users", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]AdminUser](t, rr), 1)
}

func TestManagerCan(t *testing.T) {
	env := newHTTPEnv(t)
	ctx := context.Background()

	ok, err := env.mgr.Can(ctx, "root", "orders", ActionDelete)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.mgr.Can(ctx, "nobody", "orders", ActionView)
	require.NoError(t, err)
	assert.False(t, ok)
}
