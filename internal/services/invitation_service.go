// invitation_service.go implements the invitation lifecycle: send, accept, list, get and
// cancel. Expiry is evaluated lazily against the service clock. The token is generated
// here, stored, and handed only to the notifier; it never appears in a returned DTO.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/mail"
	"github.com/collabspace/collab-api/internal/safego"
	"github.com/collabspace/collab-api/internal/telemetry"
	"github.com/collabspace/collab-api/internal/validation"
)

// DefaultInvitationTTL is how long an invitation stays acceptable
const DefaultInvitationTTL = 7 * 24 * time.Hour

// MaxPageLimit caps page sizes for paginated listings
const MaxPageLimit = 100

// notificationTimeout bounds a single invitation email delivery
const notificationTimeout = 30 * time.Second

// InvitationNotifier delivers the invitation email carrying the token
type InvitationNotifier interface {
	SendInvitation(ctx context.Context, inv mail.Invitation) error
}

// SendInvitationRequest is the input of InvitationService.Send
type SendInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// InvitationResponse is the public view of an invitation. It has no token field.
type InvitationResponse struct {
	ID             string                  `json:"id"`
	OrganizationID string                  `json:"organization_id"`
	Email          string                  `json:"email"`
	Role           models.Role             `json:"role"`
	InvitedBy      string                  `json:"invited_by"`
	Status         models.InvitationStatus `json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
	ExpiresAt      time.Time               `json:"expires_at"`
	AcceptedAt     *time.Time              `json:"accepted_at"`
}

// AcceptInvitationResult is returned by InvitationService.Accept
type AcceptInvitationResult struct {
	OrganizationID   string      `json:"organization_id"`
	OrganizationName string      `json:"organization_name"`
	OrganizationSlug string      `json:"organization_slug"`
	Role             models.Role `json:"role"`
	Message          string      `json:"message"`
}

// InvitationPage is one page of an organization's invitations
type InvitationPage struct {
	Invitations []InvitationResponse `json:"invitations"`
	Total       int                  `json:"total"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	Pages       int                  `json:"pages"`
}

// InvitationService implements the invitation use cases
type InvitationService struct {
	stores   StoreProvider
	tx       TxRunner
	notifier InvitationNotifier
	ttl      time.Duration

	now      func() time.Time
	newToken func() (string, error)
	// dispatch runs the post-commit email delivery; tests replace it with a synchronous call
	dispatch func(name string, fn func())
}

// NewInvitationService creates an InvitationService. notifier may be nil, in which case no
// email is sent. A non-positive ttl selects DefaultInvitationTTL.
func NewInvitationService(stores StoreProvider, tx TxRunner, notifier InvitationNotifier, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationService{
		stores:   stores,
		tx:       tx,
		notifier: notifier,
		ttl:      ttl,
		now:      time.Now,
		newToken: auth.GenerateToken,
		dispatch: safego.Go,
	}
}

// WithDispatcher routes email delivery through the given launcher, typically a
// safego.Group so shutdown can wait for in-flight deliveries.
func (s *InvitationService) WithDispatcher(dispatch func(name string, fn func())) *InvitationService {
	s.dispatch = dispatch
	return s
}

// Send creates a pending invitation for req.Email in the organization and triggers the
// invitation email.
func (s *InvitationService) Send(ctx context.Context, orgID string, req SendInvitationRequest, inviterID string) (*InvitationResponse, error) {
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, newValidationError("role", "%s", err.Error())
	}
	email, err := validation.ParseEmail(req.Email)
	if err != nil {
		return nil, newValidationError("email", "invalid email address: %q", req.Email)
	}

	var inv *models.Invitation
	var org *models.Organization
	err = s.tx.WithTx(ctx, func(st StoreProvider) error {
		var err error
		// The row lock serializes concurrent sends for one organization so the pending
		// check below cannot race.
		org, err = st.Organizations().LockOrganization(ctx, orgID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if org == nil {
			return newNotFoundError("organization", orgID)
		}

		existing, err := st.Users().GetUserByEmail(ctx, email.String())
		if err != nil {
			return fmt.Errorf("failed to look up invitee: %w", err)
		}
		if existing != nil {
			member, err := st.Members().GetMember(ctx, orgID, existing.ID)
			if err != nil {
				return fmt.Errorf("failed to check membership: %w", err)
			}
			if member != nil {
				return newConflictError("email", "%s is already a member of this organization", email)
			}
		}

		now := s.now().UTC()
		pending, err := st.Invitations().FindPendingInvitation(ctx, orgID, email.String(), now)
		if err != nil {
			return fmt.Errorf("failed to check pending invitations: %w", err)
		}
		if pending != nil {
			return newConflictError("email", "a pending invitation already exists for %s", email)
		}

		token, err := s.newToken()
		if err != nil {
			return err
		}
		inv = &models.Invitation{
			OrganizationID: orgID,
			Email:          email.String(),
			Token:          token,
			Role:           role,
			InvitedBy:      inviterID,
			CreatedAt:      now,
			ExpiresAt:      now.Add(s.ttl),
		}
		if err := st.Invitations().CreateInvitation(ctx, inv); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				return newConflictError("email", "a pending invitation already exists for %s", email)
			}
			return fmt.Errorf("failed to create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.InvitationsSentTotal.WithLabelValues(string(role)).Inc()
	slog.Info("invitation sent",
		"invitation_id", inv.ID,
		"organization_id", orgID,
		"role", role,
		"invited_by", inviterID)

	s.notify(org, inv)

	resp := s.toResponse(inv)
	return &resp, nil
}

// notify hands the invitation to the notifier outside the request. Failures are logged
// and counted by the notifier; they never reach the caller.
func (s *InvitationService) notify(org *models.Organization, inv *models.Invitation) {
	if s.notifier == nil {
		return
	}
	msg := mail.Invitation{
		To:               inv.Email,
		Token:            inv.Token,
		OrganizationName: org.Name,
		Role:             string(inv.Role),
		ExpiresAt:        inv.ExpiresAt,
	}
	s.dispatch("invitation-email", func() {
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		if inviter, err := s.stores.Users().GetUserByID(ctx, inv.InvitedBy); err == nil && inviter != nil {
			msg.InviterName = inviter.Name
		}
		if err := s.notifier.SendInvitation(ctx, msg); err != nil {
			slog.Error("invitation email failed", "invitation_id", inv.ID, "error", err)
		}
	})
}

// Accept turns the invitation identified by token into a membership for the caller.
// callerID is empty for unauthenticated requests.
func (s *InvitationService) Accept(ctx context.Context, token, callerID string) (*AcceptInvitationResult, error) {
	var result *AcceptInvitationResult
	err := s.tx.WithTx(ctx, func(st StoreProvider) error {
		inv, err := st.Invitations().LockInvitationByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to load invitation: %w", err)
		}
		if inv == nil {
			return rejectAccept("not_found", newNotFoundError("invitation", ""))
		}

		now := s.now().UTC()
		if inv.IsExpired(now) {
			return rejectAccept("expired", newValidationError("token", "invitation has expired"))
		}
		if inv.IsAccepted() {
			return rejectAccept("already_accepted", newValidationError("token", "invitation has already been accepted"))
		}
		if callerID == "" {
			return rejectAccept("unauthenticated", newValidationError("", "you must be authenticated to accept an invitation"))
		}

		caller, err := st.Users().GetUserByID(ctx, callerID)
		if err != nil {
			return fmt.Errorf("failed to load caller: %w", err)
		}
		if caller == nil {
			return rejectAccept("unauthenticated", newValidationError("", "you must be authenticated to accept an invitation"))
		}
		if caller.Email != inv.Email {
			return rejectAccept("email_mismatch", newValidationError("email",
				"this invitation was sent to %s but you are signed in as %s", inv.Email, caller.Email))
		}

		member, err := st.Members().GetMember(ctx, inv.OrganizationID, caller.ID)
		if err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if member != nil {
			return rejectAccept("already_member", newConflictError("", "you are already a member of this organization"))
		}

		org, err := st.Organizations().GetOrganizationByID(ctx, inv.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to load organization: %w", err)
		}
		if org == nil {
			return rejectAccept("not_found", newNotFoundError("organization", inv.OrganizationID))
		}

		err = st.Members().AddMember(ctx, &models.OrganizationMember{
			OrganizationID: inv.OrganizationID,
			UserID:         caller.ID,
			Role:           inv.Role,
			JoinedAt:       now,
		})
		if errors.Is(err, ErrDuplicateKey) {
			return rejectAccept("already_member", newConflictError("", "you are already a member of this organization"))
		}
		if err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}
		if err := st.Invitations().MarkInvitationAccepted(ctx, inv.ID, now); err != nil {
			return fmt.Errorf("failed to mark invitation accepted: %w", err)
		}

		result = &AcceptInvitationResult{
			OrganizationID:   org.ID,
			OrganizationName: org.Name,
			OrganizationSlug: org.Slug,
			Role:             inv.Role,
			Message:          fmt.Sprintf("You have joined %s as %s", org.Name, inv.Role),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.InvitationsAcceptedTotal.Inc()
	telemetry.MembershipChangesTotal.WithLabelValues("joined").Inc()
	slog.Info("invitation accepted",
		"organization_id", result.OrganizationID,
		"user_id", callerID,
		"role", result.Role)
	return result, nil
}

func rejectAccept(reason string, err error) error {
	telemetry.InvitationAcceptFailuresTotal.WithLabelValues(reason).Inc()
	return err
}

// List returns one page of the organization's invitations, newest first
func (s *InvitationService) List(ctx context.Context, orgID string, page, limit int, pendingOnly bool) (*InvitationPage, error) {
	org, err := s.stores.Organizations().GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil {
		return nil, newNotFoundError("organization", orgID)
	}
	if page < 1 {
		return nil, newValidationError("page", "page must be at least 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, newValidationError("limit", "limit must be between 1 and %d", MaxPageLimit)
	}

	now := s.now().UTC()
	filter := models.InvitationFilter{
		OrganizationID: orgID,
		PendingOnly:    pendingOnly,
		Now:            now,
		Limit:          limit,
		Offset:         (page - 1) * limit,
	}
	invs, err := s.stores.Invitations().ListInvitations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	total, err := s.stores.Invitations().CountInvitations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count invitations: %w", err)
	}

	out := &InvitationPage{
		Invitations: make([]InvitationResponse, 0, len(invs)),
		Total:       total,
		Page:        page,
		Limit:       limit,
		Pages:       pageCount(total, limit),
	}
	for _, inv := range invs {
		out.Invitations = append(out.Invitations, s.toResponseAt(inv, now))
	}
	return out, nil
}

// Get returns one invitation by id
func (s *InvitationService) Get(ctx context.Context, invitationID string) (*InvitationResponse, error) {
	inv, err := s.stores.Invitations().GetInvitationByID(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if inv == nil {
		return nil, newNotFoundError("invitation", invitationID)
	}
	resp := s.toResponse(inv)
	return &resp, nil
}

// Cancel deletes a pending or expired invitation. Accepted invitations are kept as a record
// of how the membership was created.
func (s *InvitationService) Cancel(ctx context.Context, invitationID, actorID string) error {
	inv, err := s.stores.Invitations().GetInvitationByID(ctx, invitationID)
	if err != nil {
		return fmt.Errorf("failed to load invitation: %w", err)
	}
	if inv == nil {
		return newNotFoundError("invitation", invitationID)
	}
	if inv.IsAccepted() {
		return newValidationError("", "cannot cancel an invitation that has already been accepted")
	}
	if err := s.stores.Invitations().DeleteInvitation(ctx, invitationID); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	telemetry.InvitationsCanceledTotal.Inc()
	slog.Info("invitation canceled",
		"invitation_id", invitationID,
		"organization_id", inv.OrganizationID,
		"canceled_by", actorID)
	return nil
}

func (s *InvitationService) toResponse(inv *models.Invitation) InvitationResponse {
	return s.toResponseAt(inv, s.now().UTC())
}

func (s *InvitationService) toResponseAt(inv *models.Invitation, now time.Time) InvitationResponse {
	return InvitationResponse{
		ID:             inv.ID,
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		Role:           inv.Role,
		InvitedBy:      inv.InvitedBy,
		Status:         inv.Status(now),
		CreatedAt:      inv.CreatedAt,
		ExpiresAt:      inv.ExpiresAt,
		AcceptedAt:     inv.AcceptedAt,
	}
}

// pageCount returns ceil(total/limit)
func pageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
