// invitation_repository.go implements InvitationRepository, providing database queries for
// creating, locking, listing and expiring organization invitations.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/collabspace/collab-api/internal/db/models"
)

const invitationColumns = `id, organization_id, email, token, role, invited_by, created_at, expires_at, accepted_at`

// InvitationRepository handles database operations for invitations
type InvitationRepository struct {
	db sqlx.ExtContext
}

// NewInvitationRepository creates a new invitation repository
func NewInvitationRepository(db sqlx.ExtContext) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// CreateInvitation inserts an invitation
func (r *InvitationRepository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO invitations (id, organization_id, email, token, role, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Token,
		inv.Role,
		inv.InvitedBy,
		inv.CreatedAt,
		inv.ExpiresAt,
	)
	if err != nil {
		return wrapWriteError("failed to create invitation", err)
	}
	return nil
}

// GetInvitationByID retrieves an invitation by ID
func (r *InvitationRepository) GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// LockInvitationByToken retrieves an invitation by token and holds its row lock until the
// surrounding transaction ends, so a token can be accepted only once
func (r *InvitationRepository) LockInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	if token == "" {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = $1 FOR UPDATE`, token)
}

// FindPendingInvitation returns an unaccepted, unexpired invitation for email in the organization
func (r *InvitationRepository) FindPendingInvitation(ctx context.Context, orgID, email string, now time.Time) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		WHERE organization_id = $1 AND email = $2 AND accepted_at IS NULL AND expires_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`
	inv := &models.Invitation{}
	err := sqlx.GetContext(ctx, r.db, inv, query, orgID, email, now)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}
	return inv, nil
}

func (r *InvitationRepository) getOne(ctx context.Context, query, arg string) (*models.Invitation, error) {
	inv := &models.Invitation{}
	err := sqlx.GetContext(ctx, r.db, inv, query, arg)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// filterClause renders the WHERE clause shared by ListInvitations and CountInvitations
func filterClause(f models.InvitationFilter) (string, []any) {
	where := ` WHERE organization_id = $1`
	args := []any{f.OrganizationID}
	if f.PendingOnly {
		where += ` AND accepted_at IS NULL AND expires_at >= $2`
		args = append(args, f.Now)
	}
	return where, args
}

// ListInvitations returns one page of the organization's invitations, newest first
func (r *InvitationRepository) ListInvitations(ctx context.Context, f models.InvitationFilter) ([]*models.Invitation, error) {
	where, args := filterClause(f)
	query := `SELECT ` + invitationColumns + ` FROM invitations` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	invs := make([]*models.Invitation, 0)
	if err := sqlx.SelectContext(ctx, r.db, &invs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invs, nil
}

// CountInvitations counts the invitations matching the filter, ignoring Limit and Offset
func (r *InvitationRepository) CountInvitations(ctx context.Context, f models.InvitationFilter) (int, error) {
	where, args := filterClause(f)
	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(*) FROM invitations`+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count invitations: %w", err)
	}
	return total, nil
}

// MarkInvitationAccepted stamps accepted_at. It fails if the invitation was already accepted.
func (r *InvitationRepository) MarkInvitationAccepted(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invitation %s is missing or already accepted", id)
	}
	return nil
}

// DeleteInvitation removes an invitation
func (r *InvitationRepository) DeleteInvitation(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return nil
}

// DeleteExpiredInvitations removes unaccepted invitations that expired before the cutoff
// and returns how many were deleted
func (r *InvitationRepository) DeleteExpiredInvitations(ctx context.Context, expiredBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE accepted_at IS NULL AND expires_at < $1`, expiredBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	return res.RowsAffected()
}
