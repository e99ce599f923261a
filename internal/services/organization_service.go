package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/validation"
)

const (
	// MaxOrganizationNameLength bounds organization display names
	MaxOrganizationNameLength = 255
	// maxSlugSuffix is the highest numeric suffix tried for a derived slug
	maxSlugSuffix = 20
	// fallbackSlug is used when a name has no slug-safe characters
	fallbackSlug = "org"
)

// CreateOrganizationRequest is the input of OrganizationService.Create
type CreateOrganizationRequest struct {
	Name        string                      `json:"name"`
	Slug        string                      `json:"slug"`
	Description string                      `json:"description"`
	Settings    models.OrganizationSettings `json:"settings"`
}

// UpdateOrganizationRequest is the input of OrganizationService.Update. Nil fields are
// left unchanged; Settings is merged into the stored settings.
type UpdateOrganizationRequest struct {
	Name        *string        `json:"name"`
	Slug        *string        `json:"slug"`
	Description *string        `json:"description"`
	Settings    map[string]any `json:"settings"`
}

// OrganizationDetails is an organization with its member count
type OrganizationDetails struct {
	*models.Organization
	MemberCount int `json:"member_count"`
}

// OrganizationService implements organization lifecycle use cases
type OrganizationService struct {
	stores StoreProvider
	tx     TxRunner
	now    func() time.Time
}

// NewOrganizationService creates an OrganizationService
func NewOrganizationService(stores StoreProvider, tx TxRunner) *OrganizationService {
	return &OrganizationService{stores: stores, tx: tx, now: time.Now}
}

// Create creates an organization and makes creatorID its first admin in the same transaction.
func (s *OrganizationService) Create(ctx context.Context, req CreateOrganizationRequest, creatorID string) (*OrganizationDetails, error) {
	name, err := validateOrganizationName(req.Name)
	if err != nil {
		return nil, err
	}
	explicit := strings.TrimSpace(req.Slug)
	if explicit != "" {
		if err := validation.ValidateSlug(explicit); err != nil {
			return nil, newValidationError("slug", "%s", err.Error())
		}
	}

	now := s.now().UTC()
	org := &models.Organization{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Settings:    req.Settings,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.tx.WithTx(ctx, func(st StoreProvider) error {
		slug, err := s.resolveSlug(ctx, st, name, explicit)
		if err != nil {
			return err
		}
		org.Slug = slug

		if err := st.Organizations().CreateOrganization(ctx, org); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return newConflictError("slug", "slug %q is already in use", slug)
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}
		err = st.Members().AddMember(ctx, &models.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         creatorID,
			Role:           models.RoleAdmin,
			JoinedAt:       now,
		})
		if err != nil {
			return fmt.Errorf("failed to add creator as admin: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("organization created", "organization_id", org.ID, "slug", org.Slug, "created_by", creatorID)
	return &OrganizationDetails{Organization: org, MemberCount: 1}, nil
}

// resolveSlug returns the explicit slug if it is free, or derives one from name, trying
// numeric suffixes -2 through -20 on collision.
func (s *OrganizationService) resolveSlug(ctx context.Context, st StoreProvider, name, explicit string) (string, error) {
	orgs := st.Organizations()
	if explicit != "" {
		taken, err := orgs.SlugTaken(ctx, explicit, "")
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if taken {
			return "", newConflictError("slug", "slug %q is already in use", explicit)
		}
		return explicit, nil
	}

	base := validation.Slugify(name)
	if len(base) < validation.MinSlugLength {
		base = fallbackSlug
	}
	for n := 1; n <= maxSlugSuffix; n++ {
		candidate := base
		if n > 1 {
			candidate = validation.SlugWithSuffix(base, n)
		}
		taken, err := orgs.SlugTaken(ctx, candidate, "")
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", newConflictError("slug", "could not derive a free slug from %q; provide one explicitly", name)
}

// Get returns a live organization with its member count
func (s *OrganizationService) Get(ctx context.Context, orgID string) (*OrganizationDetails, error) {
	org, err := s.stores.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, newNotFoundError("organization", orgID)
	}
	members, err := s.stores.Members().ListMembersWithUsers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return &OrganizationDetails{Organization: org, MemberCount: len(members)}, nil
}

// ListForUser returns the live organizations the user belongs to, with the user's role
func (s *OrganizationService) ListForUser(ctx context.Context, userID string) ([]*models.OrganizationWithRole, error) {
	orgs, err := s.stores.Organizations().ListOrganizationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	if orgs == nil {
		orgs = []*models.OrganizationWithRole{}
	}
	return orgs, nil
}

// Update applies the non-nil fields of req to the organization
func (s *OrganizationService) Update(ctx context.Context, orgID string, req UpdateOrganizationRequest, actorID string) (*models.Organization, error) {
	var org *models.Organization
	err := s.tx.WithTx(ctx, func(st StoreProvider) error {
		var err error
		org, err = st.Organizations().LockOrganization(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if org == nil {
			return newNotFoundError("organization", orgID)
		}

		if req.Name != nil {
			name, err := validateOrganizationName(*req.Name)
			if err != nil {
				return err
			}
			org.Name = name
		}
		if req.Description != nil {
			org.Description = strings.TrimSpace(*req.Description)
		}
		if req.Slug != nil && *req.Slug != org.Slug {
			slug := strings.TrimSpace(*req.Slug)
			if err := validation.ValidateSlug(slug); err != nil {
				return newValidationError("slug", "%s", err.Error())
			}
			taken, err := st.Organizations().SlugTaken(ctx, slug, org.ID)
			if err != nil {
				return fmt.Errorf("failed to check slug: %w", err)
			}
			if taken {
				return newConflictError("slug", "slug %q is already in use", slug)
			}
			org.Slug = slug
		}
		if req.Settings != nil {
			merged, err := org.Settings.Merge(req.Settings)
			if err != nil {
				return newValidationError("settings", "%s", err.Error())
			}
			org.Settings = merged
		}

		org.UpdatedAt = s.now().UTC()
		if err := st.Organizations().UpdateOrganization(ctx, org); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return newConflictError("slug", "slug %q is already in use", org.Slug)
			}
			return fmt.Errorf("failed to update organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("organization updated", "organization_id", orgID, "updated_by", actorID)
	return org, nil
}

// Delete soft-deletes the organization. Its memberships and invitations are kept so
// Restore can bring it back intact.
func (s *OrganizationService) Delete(ctx context.Context, orgID, actorID string) error {
	org, err := s.stores.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return newNotFoundError("organization", orgID)
	}
	if err := s.stores.Organizations().SoftDeleteOrganization(ctx, orgID, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	slog.Info("organization deleted", "organization_id", orgID, "deleted_by", actorID)
	return nil
}

// Restore undoes a soft delete. It reads through the include-deleted path.
func (s *OrganizationService) Restore(ctx context.Context, orgID, actorID string) (*OrganizationDetails, error) {
	err := s.tx.WithTx(ctx, func(st StoreProvider) error {
		org, err := st.Organizations().GetOrganizationByIDIncludingDeleted(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if org == nil {
			return newNotFoundError("organization", orgID)
		}
		if !org.IsDeleted() {
			return newValidationError("", "organization is not deleted")
		}
		taken, err := st.Organizations().SlugTaken(ctx, org.Slug, org.ID)
		if err != nil {
			return fmt.Errorf("failed to check slug: %w", err)
		}
		if taken {
			return newConflictError("slug", "slug %q has been taken by another organization", org.Slug)
		}
		if err := st.Organizations().RestoreOrganization(ctx, orgID); err != nil {
			return fmt.Errorf("failed to restore organization: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("organization restored", "organization_id", orgID, "restored_by", actorID)
	return s.Get(ctx, orgID)
}

func validateOrganizationName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", newValidationError("name", "name is required")
	}
	if len(name) > MaxOrganizationNameLength {
		return "", newValidationError("name", "name must be at most %d characters", MaxOrganizationNameLength)
	}
	if hasControlChars(name) {
		return "", newValidationError("name", "name must not contain control characters")
	}
	return name, nil
}

// hasControlChars reports whether s contains line breaks or other control characters.
// Display names end up in mail headers.
func hasControlChars(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}
