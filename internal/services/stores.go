// Package services implements the membership, invitation and organization use cases.
// Each use case type receives the repository interfaces it needs through its constructor and
// runs multi-write operations inside a TxRunner unit of work, so an operation either commits
// every row it touched or none of them.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/collabspace/collab-api/internal/db/models"
)

// ErrDuplicateKey is returned (wrapped) by stores when an insert or update violates a
// unique constraint. Use cases translate it into a ConflictError.
var ErrDuplicateKey = errors.New("duplicate key")

// UserStore persists user accounts. Lookups never return soft-deleted users.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SoftDeleteUser(ctx context.Context, id string, at time.Time) error
}

// OrganizationStore persists organizations. Lookups skip soft-deleted rows unless the
// method name says otherwise.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
	GetOrganizationByIDIncludingDeleted(ctx context.Context, id string) (*models.Organization, error)
	// LockOrganization loads a live organization with SELECT ... FOR UPDATE.
	LockOrganization(ctx context.Context, id string) (*models.Organization, error)
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	SoftDeleteOrganization(ctx context.Context, id string, at time.Time) error
	RestoreOrganization(ctx context.Context, id string) error
	ListOrganizationsForUser(ctx context.Context, userID string) ([]*models.OrganizationWithRole, error)
}

// MemberStore persists organization memberships
type MemberStore interface {
	GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error)
	GetMemberWithUser(ctx context.Context, orgID, userID string) (*models.OrganizationMemberWithUser, error)
	ListMembersWithUsers(ctx context.Context, orgID string) ([]*models.OrganizationMemberWithUser, error)
	// LockOtherAdmins locks every admin membership of the organization and returns how many
	// of them belong to live accounts other than userID.
	LockOtherAdmins(ctx context.Context, orgID, userID string) (int, error)
	AddMember(ctx context.Context, member *models.OrganizationMember) error
	UpdateMemberRole(ctx context.Context, orgID, userID string, role models.Role) error
	RemoveMember(ctx context.Context, orgID, userID string) error
}

// InvitationStore persists invitations
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitationByID(ctx context.Context, id string) (*models.Invitation, error)
	// LockInvitationByToken loads an invitation with SELECT ... FOR UPDATE.
	LockInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	FindPendingInvitation(ctx context.Context, orgID, email string, now time.Time) (*models.Invitation, error)
	ListInvitations(ctx context.Context, filter models.InvitationFilter) ([]*models.Invitation, error)
	CountInvitations(ctx context.Context, filter models.InvitationFilter) (int, error)
	MarkInvitationAccepted(ctx context.Context, id string, at time.Time) error
	DeleteInvitation(ctx context.Context, id string) error
	DeleteExpiredInvitations(ctx context.Context, expiredBefore time.Time) (int64, error)
}

// AuditStore persists audit log entries
type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, orgID string, limit, offset int) ([]*models.AuditLog, error)
	CountAuditLogs(ctx context.Context, orgID string) (int, error)
}

// StoreProvider exposes the stores bound to one connection or transaction.
type StoreProvider interface {
	Users() UserStore
	Organizations() OrganizationStore
	Members() MemberStore
	Invitations() InvitationStore
	AuditLogs() AuditStore
}

// TxRunner runs fn inside a transaction with stores bound to it. The transaction commits
// when fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(stores StoreProvider) error) error
}
