// Package models - role.go defines the organization Role value object and the capability
// checks (is-admin, can-edit) that the HTTP layer uses to gate organization resources.
package models

import (
	"errors"
	"strings"
)

// Role is a member's capability level within an organization
type Role string

const (
	// RoleAdmin manages members, invitations and organization settings
	RoleAdmin Role = "admin"
	// RoleMember can create and edit organization resources
	RoleMember Role = "member"
	// RoleViewer is read-only across every resource type
	RoleViewer Role = "viewer"
)

// ErrInvalidRole is returned by ParseRole for anything outside AllRoles.
var ErrInvalidRole = errors.New("invalid role: must be one of " + allowedRoles())

// AllRoles returns all valid roles, most privileged first
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleMember, RoleViewer}
}

func allowedRoles() string {
	names := make([]string, 0, 3)
	for _, r := range AllRoles() {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

// ParseRole converts a raw string into a Role. Matching is case-sensitive.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// IsValid reports whether r is exactly one of admin, member or viewer
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// IsAdmin reports whether the role grants organization administration
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// CanEdit reports whether the role may create, update or delete organization resources.
// Viewers are read-only.
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleMember
}

func (r Role) String() string {
	return string(r)
}
