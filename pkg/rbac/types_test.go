package rbac

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for _, a := range AllActions() {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	got, err := ParseAction(" VIEW ")
	require.NoError(t, err)
	assert.Equal(t, ActionView, got)

	_, err = ParseAction("publish")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, Action("").Valid())
}

func TestActionSetManageIsExclusive(t *testing.T) {
	set := NewActionSet(ActionView, ActionUpdate)

	managed := set.With(ActionManage)
	assert.Equal(t, []Action{ActionManage}, managed.Slice())

	back := managed.With(ActionDelete)
	assert.Equal(t, []Action{ActionDelete}, back.Slice())

	// the receiver is never mutated
	assert.Equal(t, []Action{ActionView, ActionUpdate}, set.Slice())
	assert.Equal(t, []Action{ActionView}, set.Without(ActionUpdate).Slice())
}

func TestActionSetAllows(t *testing.T) {
	manage := NewActionSet(ActionManage)
	for _, a := range []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete} {
		assert.True(t, manage.Allows(a))
	}

	view := NewActionSet(ActionView)
	assert.True(t, view.Allows(ActionView))
	assert.False(t, view.Allows(ActionDelete))
}

func TestActionSetValidate(t *testing.T) {
	tests := []struct {
		name    string
		set     ActionSet
		wantErr bool
	}{
		{"single action", NewActionSet(ActionView), false},
		{"crud", NewActionSet(ActionView, ActionCreate, ActionUpdate, ActionDelete), false},
		{"manage alone", NewActionSet(ActionManage), false},
		{"empty", NewActionSet(), true},
		{"manage with view", NewActionSet(ActionManage, ActionView), true},
		{"unknown action", NewActionSet(Action("publish")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionSetJSON(t *testing.T) {
	data, err := json.Marshal(NewActionSet(ActionDelete, ActionView))
	require.NoError(t, err)
	assert.JSONEq(t, `["view","delete"]`, string(data))

	var set ActionSet
	require.NoError(t, json.Unmarshal([]byte(`["update","create"]`), &set))
	assert.True(t, set.Has(ActionCreate))
	assert.True(t, set.Has(ActionUpdate))

	assert.Error(t, json.Unmarshal([]byte(`"view"`), &set))
}

func TestRoleGrantLookup(t *testing.T) {
	role := &Role{Grants: []RoleGrant{{PermissionID: "p1", Actions: NewActionSet(ActionView)}}}
	g, ok := role.Grant("p1")
	assert.True(t, ok)
	assert.True(t, g.Actions.Has(ActionView))

	_, ok = role.Grant("p2")
	assert.False(t, ok)

	var nilRole *Role
	_, ok = nilRole.Grant("p1")
	assert.False(t, ok)
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("product-seo"))
	assert.NoError(t, ValidateSlug("faq2"))
	for _, bad := range []string{"", "Orders", "with space", "under_score", string(make([]byte, 101))} {
		assert.Error(t, ValidateSlug(bad), bad)
	}
}

func TestValidateGrants(t *testing.T) {
	assert.NoError(t, validateGrants(nil))
	assert.NoError(t, validateGrants([]RoleGrant{
		{PermissionID: "a", Actions: NewActionSet(ActionView)},
		{PermissionID: "b", Actions: NewActionSet(ActionManage)},
	}))

	err := validateGrants([]RoleGrant{
		{PermissionID: "a", Actions: NewActionSet(ActionView)},
		{PermissionID: "a", Actions: NewActionSet(ActionUpdate)},
	})
	assert.ErrorContains(t, err, "duplicate grant")

	err = validateGrants([]RoleGrant{{PermissionID: "", Actions: NewActionSet(ActionView)}})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestCheckPermutation(t *testing.T) {
	known := []string{"a", "b", "c"}
	assert.NoError(t, checkPermutation([]string{"c", "a", "b"}, known))
	assert.ErrorContains(t, checkPermutation([]string{"a", "b"}, known), "missing")
	assert.ErrorContains(t, checkPermutation([]string{"a", "b", "c", "d"}, known), "unknown")
	assert.ErrorContains(t, checkPermutation([]string{"a", "a", "b", "c"}, known), "more than once")
	assert.NoError(t, checkPermutation([]string{}, []string{}))
}

func TestErrorKinds(t *testing.T) {
	err := Conflictf("role %q in use", "support")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, `role "support" in use`, err.Error())
}
