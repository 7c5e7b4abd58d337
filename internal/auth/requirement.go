package auth

import (
	"fmt"
	"strings"

	"github.com/upb/role-dashboard/models"
)

// Mode selects how a Requirement's roles are matched
type Mode int

const (
	// ModeAny grants access when at least one role matches. It is the zero value.
	ModeAny Mode = iota
	// ModeAll grants access only when every role matches.
	ModeAll
)

// String returns the lower-case mode name
func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	default:
		return "any"
	}
}

// ParseMode parses "any" or "all". Empty input means ModeAny.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return ModeAny, nil
	case "all":
		return ModeAll, nil
	default:
		return ModeAny, fmt.Errorf("unknown role match mode: %q", s)
	}
}

// Requirement is a declared set of roles plus a matching mode
type Requirement struct {
	Roles []string
	Mode  Mode
}

// AnyOf requires at least one of roles
func AnyOf(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: ModeAny}
}

// AllOf requires every one of roles
func AllOf(roles ...string) Requirement {
	return Requirement{Roles: roles, Mode: ModeAll}
}

// RequirementFromFlag builds a Requirement from the {roles, requireAll} form
func RequirementFromFlag(roles []string, requireAll bool) Requirement {
	if requireAll {
		return AllOf(roles...)
	}
	return AnyOf(roles...)
}

// String renders the requirement for logs, e.g. "any(admin,manager)"
func (r Requirement) String() string {
	return r.Mode.String() + "(" + strings.Join(r.Roles, ",") + ")"
}

// Evaluate computes the access decision for u. It is recomputed on every call.
func Evaluate(u *models.User, req Requirement) bool {
	if req.Mode == ModeAll {
		return HasAllRoles(u, req.Roles)
	}
	return HasAnyRole(u, req.Roles)
}
