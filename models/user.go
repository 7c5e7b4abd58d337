package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Built-in role names used by the dashboard
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// User is the cached profile of the signed-in account.
// Roles has set semantics: order is irrelevant and duplicates carry no meaning.
type User struct {
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Avatar string   `json:"avatar,omitempty"`
	Roles  []string `json:"roles"`
}

// ParseUser decodes a stored user record.
// Empty input and JSON null mean "no user" and return nil without an error.
// The returned record is already normalized.
func ParseUser(raw string) (*User, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var user *User
	if err := json.Unmarshal([]byte(trimmed), &user); err != nil {
		return nil, fmt.Errorf("failed to parse user record: %w", err)
	}

	return NormalizeUser(user), nil
}

// NormalizeUser returns a fresh copy of u with a non-nil role list.
// Blank and duplicate role names are dropped, first occurrence wins.
func NormalizeUser(u *User) *User {
	if u == nil {
		return nil
	}

	roles := make([]string, 0, len(u.Roles))
	seen := make(map[string]struct{}, len(u.Roles))
	for _, role := range u.Roles {
		if strings.TrimSpace(role) == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	return &User{
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
		Roles:  roles,
	}
}

// Marshal encodes the user for storage in the session user slot
func (u *User) Marshal() (string, error) {
	data, err := json.Marshal(NormalizeUser(u))
	if err != nil {
		return "", fmt.Errorf("failed to encode user record: %w", err)
	}
	return string(data), nil
}

// RoleSet returns the roles as a set
func (u *User) RoleSet() map[string]struct{} {
	set := make(map[string]struct{})
	if u == nil {
		return set
	}
	for _, role := range u.Roles {
		set[role] = struct{}{}
	}
	return set
}

// HasAvatar reports whether an avatar URI is present
func (u *User) HasAvatar() bool {
	return u != nil && strings.TrimSpace(u.Avatar) != ""
}

// Initials returns up to two upper-case initials for the avatar fallback.
func (u *User) Initials() string {
	if u == nil {
		return ""
	}

	var b strings.Builder
	for _, word := range strings.Fields(u.Name) {
		r, _ := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	if b.Len() > 0 {
		return b.String()
	}

	if r, _ := utf8.DecodeRuneInString(u.Email); r != utf8.RuneError {
		return string(unicode.ToUpper(r))
	}
	return "?"
}
