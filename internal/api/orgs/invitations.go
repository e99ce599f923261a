// invitations.go implements handlers for the invitation lifecycle.
package orgs

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/services"
)

// @Summary      Invite to organization
// @Description  Invite an email address with a role. The acceptance token is delivered by email only and is not part of the response.
// @Tags         Invitations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                          true  "Organization ID"
// @Param        body  body  services.SendInvitationRequest  true  "Email and role"
// @Success      201  {object}  services.InvitationResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid role or email"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      409  {object}  map[string]interface{}  "Already a member or pending invitation exists"
// @Router       /api/v1/organizations/{id}/members/invite [post]
// SendInvitationHandler creates an invitation
// POST /api/v1/organizations/:id/members/invite
func (h *Handlers) SendInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SendInvitationRequest
		if !BindJSON(c, &req) {
			return
		}

		inv, err := h.invitations.Send(c.Request.Context(), c.Param("id"), req, middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "invitation.created",
			ResourceType: "invitation",
			ResourceID:   inv.ID,
			Metadata:     map[string]any{"email": inv.Email, "role": inv.Role},
		})
		c.JSON(http.StatusCreated, inv)
	}
}

// @Summary      Accept invitation
// @Description  Accept an invitation by token. The caller must be signed in with the invited email address.
// @Tags         Invitations
// @Security     Bearer
// @Produce      json
// @Param        token  path  string  true  "Invitation token"
// @Success      200  {object}  services.AcceptInvitationResult
// @Failure      400  {object}  map[string]interface{}  "Expired, already accepted, email mismatch or not signed in"
// @Failure      404  {object}  map[string]interface{}  "Invitation not found"
// @Failure      409  {object}  map[string]interface{}  "Already a member"
// @Router       /api/v1/organizations/invitations/{token}/accept [post]
// AcceptInvitationHandler accepts an invitation
// POST /api/v1/organizations/invitations/:invitation/accept
func (h *Handlers) AcceptInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.invitations.Accept(c.Request.Context(), c.Param("invitation"), middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:         "invitation.accepted",
			OrganizationID: result.OrganizationID,
			ResourceType:   "member",
			ResourceID:     middleware.CurrentUserID(c),
			Metadata:       map[string]any{"role": result.Role},
		})
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      List invitations
// @Tags         Invitations
// @Security     Bearer
// @Produce      json
// @Param        id            path   string  true   "Organization ID"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        limit         query  int     false  "Items per page, max 100 (default 20)"
// @Param        pending_only  query  bool    false  "Only pending invitations"  default(true)
// @Success      200  {object}  services.InvitationPage
// @Failure      400  {object}  map[string]interface{}  "Invalid pagination"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /api/v1/organizations/{id}/invitations [get]
// ListInvitationsHandler lists an organization's invitations, newest first
// GET /api/v1/organizations/:id/invitations?page=1&limit=20&pending_only=true
// pending_only defaults to true; pass false to include accepted and expired invitations.
func (h *Handlers) ListInvitationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, ok := pagination(c)
		if !ok {
			return
		}
		pendingOnly := true
		if v := c.Query("pending_only"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				abortWithField(c, http.StatusBadRequest, "pending_only must be a boolean", "pending_only")
				return
			}
			pendingOnly = b
		}

		result, err := h.invitations.List(c.Request.Context(), c.Param("id"), page, limit, pendingOnly)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// @Summary      Get invitation
// @Tags         Invitations
// @Security     Bearer
// @Produce      json
// @Param        invitation  path  string  true  "Invitation ID"
// @Success      200  {object}  services.InvitationResponse
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Invitation not found"
// @Router       /api/v1/organizations/invitations/{invitation} [get]
// GetInvitationHandler returns one invitation to an admin of its organization
// GET /api/v1/organizations/invitations/:invitation
func (h *Handlers) GetInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, ok := h.loadInvitationAsAdmin(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, inv)
	}
}

// @Summary      Cancel invitation
// @Description  Delete a pending or expired invitation. Accepted invitations cannot be canceled.
// @Tags         Invitations
// @Security     Bearer
// @Param        invitation  path  string  true  "Invitation ID"
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Already accepted"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Invitation not found"
// @Router       /api/v1/organizations/invitations/{invitation} [delete]
// CancelInvitationHandler cancels an invitation
// DELETE /api/v1/organizations/invitations/:invitation
func (h *Handlers) CancelInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		inv, ok := h.loadInvitationAsAdmin(c)
		if !ok {
			return
		}
		if err := h.invitations.Cancel(c.Request.Context(), inv.ID, middleware.CurrentUserID(c)); err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:         "invitation.canceled",
			OrganizationID: inv.OrganizationID,
			ResourceType:   "invitation",
			ResourceID:     inv.ID,
			Metadata:       map[string]any{"email": inv.Email},
		})
		c.Status(http.StatusNoContent)
	}
}

// loadInvitationAsAdmin loads the invitation named in the route (404 when missing) and
// requires the caller to be an admin of its organization (403 otherwise).
func (h *Handlers) loadInvitationAsAdmin(c *gin.Context) (*services.InvitationResponse, bool) {
	inv, err := h.invitations.Get(c.Request.Context(), c.Param("invitation"))
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	isAdmin, err := h.authz.IsAdmin(c.Request.Context(), inv.OrganizationID, middleware.CurrentUserID(c))
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	if !isAdmin {
		abortWithField(c, http.StatusForbidden, "Admin role required", "")
		return nil, false
	}
	return inv, true
}
