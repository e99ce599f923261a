// member_repository.go implements MemberRepository, providing database queries for
// organization memberships and the admin row locks used by the last-admin guard.
package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/collabspace/collab-api/internal/db/models"
)

const memberWithUserQuery = `
	SELECT m.organization_id, m.user_id, m.role, m.joined_at,
	       u.name AS user_name, u.email AS user_email, u.avatar_url AS user_avatar_url
	FROM organization_members m
	JOIN users u ON u.id = m.user_id
`

// MemberRepository handles database operations for organization memberships
type MemberRepository struct {
	db sqlx.ExtContext
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db sqlx.ExtContext) *MemberRepository {
	return &MemberRepository{db: db}
}

// GetMember retrieves a user's membership in an organization
func (r *MemberRepository) GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	if !validID(orgID) || !validID(userID) {
		return nil, nil
	}
	query := `
		SELECT organization_id, user_id, role, joined_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`
	member := &models.OrganizationMember{}
	err := sqlx.GetContext(ctx, r.db, member, query, orgID, userID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// GetMemberWithUser retrieves a membership joined with the member's profile
func (r *MemberRepository) GetMemberWithUser(ctx context.Context, orgID, userID string) (*models.OrganizationMemberWithUser, error) {
	if !validID(orgID) || !validID(userID) {
		return nil, nil
	}
	member := &models.OrganizationMemberWithUser{}
	err := sqlx.GetContext(ctx, r.db, member, memberWithUserQuery+`WHERE m.organization_id = $1 AND m.user_id = $2`, orgID, userID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// ListMembersWithUsers lists an organization's members with active accounts, oldest first
func (r *MemberRepository) ListMembersWithUsers(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error) {
	members := make([]*models.OrganizationMemberWithUser, 0)
	if !validID(orgID) {
		return members, nil
	}
	query := memberWithUserQuery + `
		WHERE m.organization_id = $1 AND u.deleted_at IS NULL
		ORDER BY m.joined_at, u.name
	`
	if err := sqlx.SelectContext(ctx, r.db, &members, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// LockOtherAdmins locks all admin memberships of the organization, including those of
// deactivated accounts, and returns the number held by live accounts other than userID.
// Concurrent demotions or removals in the same organization queue behind this lock.
func (r *MemberRepository) LockOtherAdmins(ctx context.Context, orgID, userID string) (int, error) {
	query := `
		SELECT m.user_id, u.deleted_at IS NULL AS live
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.role = 'admin'
		FOR UPDATE OF m
	`
	var admins []struct {
		UserID string `db:"user_id"`
		Live   bool   `db:"live"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &admins, query, orgID); err != nil {
		return 0, fmt.Errorf("failed to lock admins: %w", err)
	}
	others := 0
	for _, a := range admins {
		if a.Live && a.UserID != userID {
			others++
		}
	}
	return others, nil
}

// AddMember inserts a membership
func (r *MemberRepository) AddMember(ctx context.Context, member *models.OrganizationMember) error {
	query := `
		INSERT INTO organization_members (organization_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, member.OrganizationID, member.UserID, member.Role, member.JoinedAt)
	if err != nil {
		return wrapWriteError("failed to add member", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role
func (r *MemberRepository) UpdateMemberRole(ctx context.Context, orgID, userID string, role models.Role) error {
	query := `UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, orgID, userID, role); err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return nil
}

// RemoveMember removes a user from an organization
func (r *MemberRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, orgID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}
