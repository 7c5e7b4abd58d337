package auth

import (
	"strings"

	"github.com/upb/role-dashboard/models"
)

// Role is a role name attached to a user account
type Role = string

const (
	RoleAdmin   Role = models.RoleAdmin
	RoleManager Role = models.RoleManager
	RoleUser    Role = models.RoleUser
)

// HasRole reports whether role is one of the user's roles.
// A nil user or an empty role list never matches.
func HasRole(u *models.User, role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of roles.
// An empty roles list grants nothing.
func HasAnyRole(u *models.User, roles []string) bool {
	for _, role := range roles {
		if HasRole(u, role) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the user holds every one of roles.
// An empty roles list is vacuously satisfied, unlike HasAnyRole.
func HasAllRoles(u *models.User, roles []string) bool {
	for _, role := range roles {
		if !HasRole(u, role) {
			return false
		}
	}
	return true
}

// IsAdmin reports whether u holds the admin role
func IsAdmin(u *models.User) bool { return HasRole(u, RoleAdmin) }

// IsManager reports whether u holds the manager role
func IsManager(u *models.User) bool { return HasRole(u, RoleManager) }

// IsUser reports whether u holds the user role
func IsUser(u *models.User) bool { return HasRole(u, RoleUser) }

// RolesOf returns the user's roles for display; never nil
func RolesOf(u *models.User) []string {
	if u == nil || u.Roles == nil {
		return []string{}
	}
	return u.Roles
}

// Check bundles the role predicates for one user snapshot.
// Templates use it the same way pages use the role helpers.
type Check struct {
	User      *models.User
	Roles     []string
	IsAdmin   bool
	IsManager bool
	IsUser    bool
}

// For evaluates the single-role predicates against u
func For(u *models.User) Check {
	return Check{
		User:      u,
		Roles:     RolesOf(u),
		IsAdmin:   IsAdmin(u),
		IsManager: IsManager(u),
		IsUser:    IsUser(u),
	}
}

// HasRole reports whether the user holds role
func (c Check) HasRole(role string) bool { return HasRole(c.User, role) }

// HasAnyRole reports whether the user holds at least one of roles
func (c Check) HasAnyRole(roles ...string) bool { return HasAnyRole(c.User, roles) }

// HasAllRoles reports whether the user holds every one of roles
func (c Check) HasAllRoles(roles ...string) bool { return HasAllRoles(c.User, roles) }

// Allows reports whether the user satisfies req
func (c Check) Allows(req Requirement) bool { return Evaluate(c.User, req) }

// BadgeVariant picks the badge style for a role label
func BadgeVariant(role string) string {
	switch strings.ToLower(role) {
	case RoleAdmin:
		return "destructive"
	case RoleManager:
		return "default"
	case RoleUser:
		return "secondary"
	default:
		return "outline"
	}
}
