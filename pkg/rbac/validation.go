package rbac

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidateSlug checks a permission or role slug
func ValidateSlug(slug string) error {
	if slug == "" {
		return Validationf("slug is required")
	}
	if len(slug) > 100 {
		return Validationf("slug must be at most 100 characters")
	}
	if !slugPattern.MatchString(slug) {
		return Validationf("slug %q must match [a-z0-9-]+", slug)
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Validationf("%s is required", field)
	}
	return nil
}

// validateGrants checks each grant's action set and that no permission appears twice.
// Existence of the referenced permissions is checked by the caller against storage.
func validateGrants(grants []RoleGrant) error {
	for _, g := range grants {
		if g.PermissionID == "" {
			return Validationf("grant permission_id is required")
		}
		if err := g.Actions.Validate(); err != nil {
			return Validationf("grant for permission %s: %s", g.PermissionID, err.Error())
		}
	}
	ids := lo.Map(grants, func(g RoleGrant, _ int) string { return g.PermissionID })
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return Validationf("duplicate grant for permission %s", dup[0])
	}
	return nil
}

// checkPermutation verifies ids is exactly a permutation of known
func checkPermutation(ids, known []string) error {
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return Validationf("permission %s appears more than once", dup[0])
	}
	missing, unknown := lo.Difference(known, ids)
	if len(unknown) > 0 {
		return Validationf("unknown permission %s", unknown[0])
	}
	if len(missing) > 0 {
		return Validationf("order is missing %d permission(s), first %s", len(missing), missing[0])
	}
	return nil
}
