package auth

import "strings"

// Role is the user's role
type Role string

const (
	// RoleAdmin manages every cinema
	RoleAdmin Role = "Admin"
	// RoleManager manages a single cinema
	RoleManager Role = "Manager"
	// RoleStaff works the booking counter and ticket scanner
	RoleStaff Role = "Staff"
	// RoleCustomer books tickets
	RoleCustomer Role = "Customer"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff, RoleCustomer:
		return true
	default:
		return false
	}
}

// IsPrivileged reports roles that belong in the back office and must never
// fall through to customer pages.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleManager
}

// RequiresCinema reports roles scoped to a single cinema branch.
func (r Role) RequiresCinema() bool {
	return r == RoleManager || r == RoleStaff
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// GetAllRoles returns all predefined roles, most privileged first
func GetAllRoles() []Role {
	return []Role{
		RoleAdmin,
		RoleManager,
		RoleStaff,
		RoleCustomer,
	}
}

// ParseRole parses a role name case insensitively.
func ParseRole(roleStr string) (Role, bool) {
	for _, role := range GetAllRoles() {
		if strings.EqualFold(string(role), strings.TrimSpace(roleStr)) {
			return role, true
		}
	}
	return Role(roleStr), false
}
