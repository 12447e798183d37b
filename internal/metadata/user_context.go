package metadata

import "slices"

// Roles understood by the form service.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleUser   = "user"
)

// UserContext is the authenticated caller, set by the auth middleware.
type UserContext struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the caller carries role.
func (u *UserContext) HasRole(role string) bool {
	return u != nil && slices.Contains(u.Roles, role)
}

// IsAdmin reports whether the caller may bypass per-operation checks.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// HasAnyRole reports whether the caller carries at least one of roles.
func (u *UserContext) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, u.HasRole)
}
