// members.go implements handlers for direct membership management.
package orgs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/services"
)

type updateRoleRequest struct {
	Role string `json:"role"`
}

// @Summary      List organization members
// @Tags         Members
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  services.MemberList
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /api/v1/organizations/{id}/members [get]
// ListMembersHandler lists members with user details
// GET /api/v1/organizations/:id/members
func (h *Handlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.members.List(c.Request.Context(), c.Param("id"))
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary      Add member
// @Description  Add an existing user to the organization with the given role.
// @Tags         Members
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "Organization ID"
// @Param        body  body  services.AddMemberRequest  true  "User and role"
// @Success      201  {object}  models.OrganizationMemberWithUser
// @Failure      400  {object}  map[string]interface{}  "Invalid role"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization or user not found"
// @Failure      409  {object}  map[string]interface{}  "Already a member"
// @Router       /api/v1/organizations/{id}/members [post]
// AddMemberHandler adds a member
// POST /api/v1/organizations/:id/members
func (h *Handlers) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.AddMemberRequest
		if !BindJSON(c, &req) {
			return
		}

		member, err := h.members.Add(c.Request.Context(), c.Param("id"), req, middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "member.added",
			ResourceType: "member",
			ResourceID:   member.UserID,
			Metadata:     map[string]any{"role": member.Role},
		})
		c.JSON(http.StatusCreated, member)
	}
}

// @Summary      Update member role
// @Description  Change a member's role. Demoting the only admin is rejected.
// @Tags         Members
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id       path  string  true  "Organization ID"
// @Param        user_id  path  string  true  "User ID"
// @Param        body     body  object  true  "role: admin|member|viewer"
// @Success      200  {object}  models.OrganizationMemberWithUser
// @Failure      400  {object}  map[string]interface{}  "Invalid role or last admin"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Membership not found"
// @Router       /api/v1/organizations/{id}/members/{user_id} [put]
// UpdateMemberRoleHandler changes a member's role
// PUT /api/v1/organizations/:id/members/:user_id
func (h *Handlers) UpdateMemberRoleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRoleRequest
		if !BindJSON(c, &req) {
			return
		}

		member, err := h.members.UpdateRole(c.Request.Context(), c.Param("id"), c.Param("user_id"), req.Role, middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "member.role_updated",
			ResourceType: "member",
			ResourceID:   member.UserID,
			Metadata:     map[string]any{"role": member.Role},
		})
		c.JSON(http.StatusOK, member)
	}
}

// @Summary      Remove member
// @Description  Remove a member. Members may remove themselves; admins may remove anyone except the only admin.
// @Tags         Members
// @Security     Bearer
// @Param        id       path  string  true  "Organization ID"
// @Param        user_id  path  string  true  "User ID"
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Last admin"
// @Failure      403  {object}  map[string]interface{}  "Not self and not admin"
// @Failure      404  {object}  map[string]interface{}  "Membership not found"
// @Router       /api/v1/organizations/{id}/members/{user_id} [delete]
// RemoveMemberHandler removes a member
// DELETE /api/v1/organizations/:id/members/:user_id
func (h *Handlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if err := h.members.Remove(c.Request.Context(), c.Param("id"), userID, middleware.CurrentUserID(c)); err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "member.removed",
			ResourceType: "member",
			ResourceID:   userID,
		})
		c.Status(http.StatusNoContent)
	}
}
