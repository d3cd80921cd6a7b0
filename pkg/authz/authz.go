// Package authz decides whether a set of claims satisfies a permission and
// role requirement. It holds no state and performs no I/O.
package authz

import "slices"

// Claims is the permission/role view of an authenticated principal.
type Claims struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}

// Requirement lists what a caller needs. Every permission is required;
// any one role is enough. An empty list places no constraint.
type Requirement struct {
	Permissions []string
	Roles       []string
}

// IsZero reports whether r constrains nothing.
func (r Requirement) IsZero() bool {
	return len(r.Permissions) == 0 && len(r.Roles) == 0
}

// Authorize reports whether claims hold all required permissions and at
// least one of the required roles.
func Authorize(claims Claims, permissions, roles []string) bool {
	for _, p := range permissions {
		if !slices.Contains(claims.Permissions, p) {
			return false
		}
	}

	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if slices.Contains(claims.Roles, r) {
			return true
		}
	}
	return false
}

// Check is Authorize for a Requirement value.
func Check(claims Claims, req Requirement) bool {
	return Authorize(claims, req.Permissions, req.Roles)
}
