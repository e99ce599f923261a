package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/telemetry"
)

// lastAdminMessage is returned whenever an operation would leave an organization without an admin
const lastAdminMessage = "cannot remove the last admin of the organization; assign another admin first"

// AddMemberRequest is the input of MemberService.Add
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// MemberList is an organization's membership with user details
type MemberList struct {
	Members     []*models.OrganizationMemberWithUser `json:"members"`
	MemberCount int                                  `json:"member_count"`
}

// MemberService implements direct membership management
type MemberService struct {
	stores StoreProvider
	tx     TxRunner
	now    func() time.Time
}

// NewMemberService creates a MemberService
func NewMemberService(stores StoreProvider, tx TxRunner) *MemberService {
	return &MemberService{stores: stores, tx: tx, now: time.Now}
}

// Add makes an existing user a member of the organization
func (s *MemberService) Add(ctx context.Context, orgID string, req AddMemberRequest, actorID string) (*models.OrganizationMemberWithUser, error) {
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, newValidationError("role", "%s", err.Error())
	}

	var out *models.OrganizationMemberWithUser
	err = s.tx.WithTx(ctx, func(st StoreProvider) error {
		if err := requireOrganization(ctx, st, orgID); err != nil {
			return err
		}
		if err := requireUser(ctx, st, req.UserID); err != nil {
			return err
		}

		existing, err := st.Members().GetMember(ctx, orgID, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if existing != nil {
			return newConflictError("user_id", "user is already a member of this organization")
		}

		err = st.Members().AddMember(ctx, &models.OrganizationMember{
			OrganizationID: orgID,
			UserID:         req.UserID,
			Role:           role,
			JoinedAt:       s.now().UTC(),
		})
		if errors.Is(err, ErrDuplicateKey) {
			return newConflictError("user_id", "user is already a member of this organization")
		}
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}

		out, err = st.Members().GetMemberWithUser(ctx, orgID, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.MembershipChangesTotal.WithLabelValues("added").Inc()
	slog.Info("member added", "organization_id", orgID, "user_id", req.UserID, "role", role, "added_by", actorID)
	return out, nil
}

// UpdateRole changes a member's role. Demoting the only admin fails.
func (s *MemberService) UpdateRole(ctx context.Context, orgID, userID, newRole, actorID string) (*models.OrganizationMemberWithUser, error) {
	role, err := models.ParseRole(newRole)
	if err != nil {
		return nil, newValidationError("role", "%s", err.Error())
	}

	var out *models.OrganizationMemberWithUser
	var previous models.Role
	err = s.tx.WithTx(ctx, func(st StoreProvider) error {
		if err := requireOrganization(ctx, st, orgID); err != nil {
			return err
		}
		if err := requireUser(ctx, st, userID); err != nil {
			return err
		}
		member, err := requireMember(ctx, st, orgID, userID)
		if err != nil {
			return err
		}
		previous = member.Role

		if member.Role.IsAdmin() && !role.IsAdmin() {
			if err := guardLastAdmin(ctx, st, orgID, userID); err != nil {
				return err
			}
		}

		if err := st.Members().UpdateMemberRole(ctx, orgID, userID, role); err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		out, err = st.Members().GetMemberWithUser(ctx, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to load member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.MembershipChangesTotal.WithLabelValues("role_updated").Inc()
	slog.Info("member role updated",
		"organization_id", orgID,
		"user_id", userID,
		"from", previous,
		"to", role,
		"updated_by", actorID)
	return out, nil
}

// Remove deletes a membership. Removing the only admin fails.
func (s *MemberService) Remove(ctx context.Context, orgID, userID, actorID string) error {
	err := s.tx.WithTx(ctx, func(st StoreProvider) error {
		if err := requireOrganization(ctx, st, orgID); err != nil {
			return err
		}
		member, err := requireMember(ctx, st, orgID, userID)
		if err != nil {
			return err
		}
		if member.Role.IsAdmin() {
			if err := guardLastAdmin(ctx, st, orgID, userID); err != nil {
				return err
			}
		}
		if err := st.Members().RemoveMember(ctx, orgID, userID); err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	telemetry.MembershipChangesTotal.WithLabelValues("removed").Inc()
	slog.Info("member removed", "organization_id", orgID, "user_id", userID, "removed_by", actorID)
	return nil
}

// List returns the organization's members with user details
func (s *MemberService) List(ctx context.Context, orgID string) (*MemberList, error) {
	if err := requireOrganization(ctx, s.stores, orgID); err != nil {
		return nil, err
	}
	members, err := s.stores.Members().ListMembersWithUsers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if members == nil {
		members = []*models.OrganizationMemberWithUser{}
	}
	return &MemberList{Members: members, MemberCount: len(members)}, nil
}

// guardLastAdmin locks the organization's admin rows and fails unless a live admin other
// than userID remains. Callers invoke it only when userID is currently an admin.
func guardLastAdmin(ctx context.Context, st StoreProvider, orgID, userID string) error {
	others, err := st.Members().LockOtherAdmins(ctx, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if others < 1 {
		return newValidationError("role", lastAdminMessage)
	}
	return nil
}

func requireOrganization(ctx context.Context, st StoreProvider, orgID string) error {
	org, err := st.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return newNotFoundError("organization", orgID)
	}
	return nil
}

func requireUser(ctx context.Context, st StoreProvider, userID string) error {
	user, err := st.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return newNotFoundError("user", userID)
	}
	return nil
}

func requireMember(ctx context.Context, st StoreProvider, orgID, userID string) (*models.OrganizationMember, error) {
	member, err := st.Members().GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	if member == nil {
		return nil, newNotFoundError("membership", userID)
	}
	return member, nil
}
