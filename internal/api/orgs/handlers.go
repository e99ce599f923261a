// Package orgs implements the organization, membership, invitation and audit-log HTTP
// handlers. Role gates are applied by middleware in router.go before these handlers run;
// the handlers bind input, call the use cases and translate their errors.
package orgs

import (
	"context"

	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/services"
)

// OrganizationUseCases is implemented by *services.OrganizationService
type OrganizationUseCases interface {
	Create(ctx context.Context, req services.CreateOrganizationRequest, creatorID string) (*services.OrganizationDetails, error)
	Get(ctx context.Context, orgID string) (*services.OrganizationDetails, error)
	ListForUser(ctx context.Context, userID string) ([]*models.OrganizationWithRole, error)
	Update(ctx context.Context, orgID string, req services.UpdateOrganizationRequest, actorID string) (*models.Organization, error)
	Delete(ctx context.Context, orgID, actorID string) error
	Restore(ctx context.Context, orgID, actorID string) (*services.OrganizationDetails, error)
}

// MemberUseCases is implemented by *services.MemberService
type MemberUseCases interface {
	Add(ctx context.Context, orgID string, req services.AddMemberRequest, actorID string) (*models.OrganizationMemberWithUser, error)
	UpdateRole(ctx context.Context, orgID, userID, newRole, actorID string) (*models.OrganizationMemberWithUser, error)
	Remove(ctx context.Context, orgID, userID, actorID string) error
	List(ctx context.Context, orgID string) (*services.MemberList, error)
}

// InvitationUseCases is implemented by *services.InvitationService
type InvitationUseCases interface {
	Send(ctx context.Context, orgID string, req services.SendInvitationRequest, inviterID string) (*services.InvitationResponse, error)
	Accept(ctx context.Context, token, callerID string) (*services.AcceptInvitationResult, error)
	List(ctx context.Context, orgID string, page, limit int, pendingOnly bool) (*services.InvitationPage, error)
	Get(ctx context.Context, invitationID string) (*services.InvitationResponse, error)
	Cancel(ctx context.Context, invitationID, actorID string) error
}

// AuditUseCases is implemented by *services.AuditService
type AuditUseCases interface {
	List(ctx context.Context, orgID string, page, limit int) (*services.AuditPage, error)
}

// AdminChecker is implemented by *services.Authorizer. Invitation routes addressed by
// invitation id use it because the organization is only known after the lookup.
type AdminChecker interface {
	IsAdmin(ctx context.Context, orgID, userID string) (bool, error)
}

// Handlers serves the organization-scoped API
type Handlers struct {
	orgs        OrganizationUseCases
	members     MemberUseCases
	invitations InvitationUseCases
	audit       AuditUseCases
	authz       AdminChecker
}

// NewHandlers creates the organization handlers
func NewHandlers(orgs OrganizationUseCases, members MemberUseCases, invitations InvitationUseCases, audit AuditUseCases, authz AdminChecker) *Handlers {
	return &Handlers{
		orgs:        orgs,
		members:     members,
		invitations: invitations,
		audit:       audit,
		authz:       authz,
	}
}
