// organization_repository.go implements OrganizationRepository, providing database queries
// for organization CRUD, soft deletion, slug lookups and the per-user organization list.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/collabspace/collab-api/internal/db/models"
)

const orgColumns = `id, name, slug, description, settings, created_at, updated_at, deleted_at`

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db sqlx.ExtContext
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db sqlx.ExtContext) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// CreateOrganization creates a new organization
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
		org.UpdatedAt = org.CreatedAt
	}

	query := `
		INSERT INTO organizations (id, name, slug, description, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.Description,
		org.Settings,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to create organization", err)
	}
	return nil
}

// GetOrganizationByID retrieves a live organization by ID
func (r *OrganizationRepository) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL`, id)
}

// GetOrganizationByIDIncludingDeleted retrieves an organization whether or not it is soft-deleted
func (r *OrganizationRepository) GetOrganizationByIDIncludingDeleted(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id)
}

// LockOrganization retrieves a live organization and holds its row lock until the
// surrounding transaction ends
func (r *OrganizationRepository) LockOrganization(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *OrganizationRepository) getOne(ctx context.Context, query, id string) (*models.Organization, error) {
	if !validID(id) {
		return nil, nil
	}
	org := &models.Organization{}
	err := sqlx.GetContext(ctx, r.db, org, query, id)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// SlugTaken reports whether a live organization other than excludeID uses slug
func (r *OrganizationRepository) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organizations
			WHERE slug = $1 AND deleted_at IS NULL AND id::text <> $2
		)
	`
	var taken bool
	if err := sqlx.GetContext(ctx, r.db, &taken, query, slug, excludeID); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return taken, nil
}

// UpdateOrganization writes name, slug, description and settings
func (r *OrganizationRepository) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, slug = $3, description = $4, settings = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.Description,
		org.Settings,
		org.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to update organization", err)
	}
	return nil
}

// SoftDeleteOrganization hides the organization from every live lookup
func (r *OrganizationRepository) SoftDeleteOrganization(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE organizations SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// RestoreOrganization clears the soft-delete timestamp
func (r *OrganizationRepository) RestoreOrganization(ctx context.Context, id string) error {
	query := `UPDATE organizations SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return wrapWriteError("failed to restore organization", err)
	}
	return nil
}

// ListOrganizationsForUser returns the live organizations the user belongs to, ordered by name
func (r *OrganizationRepository) ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.OrganizationWithRole, error) {
	if !validID(userID) {
		return []*models.OrganizationWithRole{}, nil
	}
	query := `
		SELECT o.id, o.name, o.slug, o.description, o.settings, o.created_at, o.updated_at, o.deleted_at,
		       m.role, m.joined_at
		FROM organization_members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.name, o.id
	`
	orgs := make([]*models.OrganizationWithRole, 0)
	if err := sqlx.SelectContext(ctx, r.db, &orgs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}
