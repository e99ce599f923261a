package services

import (
	"context"
	"fmt"

	"github.com/collabspace/collab-api/internal/db/models"
)

// Authorizer answers role questions about a user in an organization. A user who is not a
// member has no capabilities.
type Authorizer struct {
	members MemberStore
}

// NewAuthorizer creates an Authorizer
func NewAuthorizer(members MemberStore) *Authorizer {
	return &Authorizer{members: members}
}

// Role returns the user's role in the organization; ok is false for non-members.
func (a *Authorizer) Role(ctx context.Context, orgID, userID string) (role models.Role, ok bool, err error) {
	m, err := a.members.GetMember(ctx, orgID, userID)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up membership: %w", err)
	}
	if m == nil {
		return "", false, nil
	}
	return m.Role, true, nil
}

// IsMember reports whether the user holds any role in the organization
func (a *Authorizer) IsMember(ctx context.Context, orgID, userID string) (bool, error) {
	_, ok, err := a.Role(ctx, orgID, userID)
	return ok, err
}

// IsAdmin reports whether the user is an admin of the organization
func (a *Authorizer) IsAdmin(ctx context.Context, orgID, userID string) (bool, error) {
	role, ok, err := a.Role(ctx, orgID, userID)
	return ok && role.IsAdmin(), err
}

// CanEdit reports whether the user may modify the organization's content (admin or member)
func (a *Authorizer) CanEdit(ctx context.Context, orgID, userID string) (bool, error) {
	role, ok, err := a.Role(ctx, orgID, userID)
	return ok && role.CanEdit(), err
}
