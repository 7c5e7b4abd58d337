package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/upb/role-dashboard/models"
)

func user(roles ...string) *models.User {
	return &models.User{Name: "Test", Email: "test@example.com", Roles: roles}
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		role string
		want bool
	}{
		{"member", user("admin", "user"), "admin", true},
		{"non member", user("user"), "admin", false},
		{"empty roles", user(), "user", false},
		{"nil roles", &models.User{Name: "x"}, "user", false},
		{"absent user", nil, "admin", false},
		{"case sensitive", user("Admin"), "admin", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasRole(tt.user, tt.role))
		})
	}
}

func TestHasRole_MatchesSetMembership(t *testing.T) {
	sets := [][]string{{}, {"admin"}, {"user", "manager"}, {"admin", "manager", "user"}, {"user", "user"}}
	candidates := []string{"admin", "manager", "user", "auditor", ""}

	for _, roles := range sets {
		u := user(roles...)
		set := u.RoleSet()
		for _, r := range candidates {
			_, member := set[r]
			assert.Equal(t, member, HasRole(u, r), "roles=%v role=%q", roles, r)
		}
	}
}

func TestHasAnyRole(t *testing.T) {
	u := user("admin", "user")

	assert.True(t, HasAnyRole(u, []string{"admin", "manager"}))
	assert.True(t, HasAnyRole(u, []string{"user"}))
	assert.False(t, HasAnyRole(u, []string{"manager", "auditor"}))
	assert.False(t, HasAnyRole(nil, []string{"admin"}))
}

func TestHasAllRoles(t *testing.T) {
	u := user("admin", "user")

	assert.True(t, HasAllRoles(u, []string{"admin", "user"}))
	assert.False(t, HasAllRoles(u, []string{"admin", "manager"}))
	assert.False(t, HasAllRoles(nil, []string{"admin"}))
}

func TestQuantifiersAgreeWithHasRole(t *testing.T) {
	users := []*models.User{nil, user(), user("user"), user("admin", "manager"), user("admin", "manager", "user")}
	lists := [][]string{{"admin"}, {"admin", "manager"}, {"manager", "user", "auditor"}, {"user", "user"}}

	for _, u := range users {
		for _, l := range lists {
			exists, forall := false, true
			for _, r := range l {
				if HasRole(u, r) {
					exists = true
				} else {
					forall = false
				}
			}
			assert.Equal(t, exists, HasAnyRole(u, l), "any %v", l)
			assert.Equal(t, forall, HasAllRoles(u, l), "all %v", l)
		}
	}
}

// The empty-input asymmetry is kept for compatibility with the existing pages.
func TestEmptyRequirementAsymmetry(t *testing.T) {
	for _, u := range []*models.User{nil, user(), user("admin")} {
		assert.False(t, HasAnyRole(u, []string{}))
		assert.False(t, HasAnyRole(u, nil))
		assert.True(t, HasAllRoles(u, []string{}))
		assert.True(t, HasAllRoles(u, nil))
	}
}

func TestConveniencePredicates(t *testing.T) {
	u := user("manager", "user")

	assert.False(t, IsAdmin(u))
	assert.True(t, IsManager(u))
	assert.True(t, IsUser(u))

	assert.False(t, IsAdmin(nil))
	assert.False(t, IsManager(nil))
	assert.False(t, IsUser(nil))
}

func TestDuplicateRolesDoNotChangeResults(t *testing.T) {
	plain := user("admin", "user")
	dup := user("admin", "user", "admin", "user")

	for _, r := range []string{"admin", "manager", "user"} {
		assert.Equal(t, HasRole(plain, r), HasRole(dup, r))
		assert.Equal(t, HasRole(plain, r), HasRole(models.NormalizeUser(dup), r))
	}
}

func TestRolesOf(t *testing.T) {
	assert.Equal(t, []string{}, RolesOf(nil))
	assert.Equal(t, []string{}, RolesOf(&models.User{}))
	assert.Equal(t, []string{"user"}, RolesOf(user("user")))
}

func TestFor(t *testing.T) {
	c := For(user("admin"))

	assert.True(t, c.IsAdmin)
	assert.False(t, c.IsManager)
	assert.False(t, c.IsUser)
	assert.Equal(t, []string{"admin"}, c.Roles)
	assert.True(t, c.HasRole("admin"))
	assert.True(t, c.HasAnyRole("manager", "admin"))
	assert.False(t, c.HasAllRoles("manager", "admin"))
	assert.True(t, c.Allows(AnyOf("admin")))

	empty := For(nil)
	assert.False(t, empty.IsAdmin)
	assert.NotNil(t, empty.Roles)
}

func TestBadgeVariant(t *testing.T) {
	assert.Equal(t, "destructive", BadgeVariant("admin"))
	assert.Equal(t, "destructive", BadgeVariant("ADMIN"))
	assert.Equal(t, "default", BadgeVariant("manager"))
	assert.Equal(t, "secondary", BadgeVariant("user"))
	assert.Equal(t, "outline", BadgeVariant("auditor"))
}
