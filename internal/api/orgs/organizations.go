// organizations.go implements handlers for organization lifecycle operations.
package orgs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/services"
)

// @Summary      Create organization
// @Description  Create an organization. The caller becomes its first admin. When no slug is given one is derived from the name.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  services.CreateOrganizationRequest  true  "Organization"
// @Success      201  {object}  services.OrganizationDetails
// @Failure      400  {object}  map[string]interface{}  "Invalid name or slug"
// @Failure      409  {object}  map[string]interface{}  "Slug already in use"
// @Router       /api/v1/organizations [post]
// CreateOrganizationHandler creates an organization
// POST /api/v1/organizations
func (h *Handlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.CreateOrganizationRequest
		if !BindJSON(c, &req) {
			return
		}

		org, err := h.orgs.Create(c.Request.Context(), req, middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:         "organization.created",
			OrganizationID: org.ID,
			ResourceType:   "organization",
			ResourceID:     org.ID,
			Metadata:       map[string]any{"slug": org.Slug},
		})
		c.JSON(http.StatusCreated, org)
	}
}

// @Summary      List my organizations
// @Description  List the organizations the caller belongs to, with the caller's role in each.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "organizations: []models.OrganizationWithRole"
// @Router       /api/v1/organizations [get]
// ListOrganizationsHandler lists the caller's organizations
// GET /api/v1/organizations
func (h *Handlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.orgs.ListForUser(c.Request.Context(), middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"organizations": orgs})
	}
}

// @Summary      Get organization
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  services.OrganizationDetails
// @Failure      403  {object}  map[string]interface{}  "Not a member"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /api/v1/organizations/{id} [get]
// GetOrganizationHandler returns an organization with its member count
// GET /api/v1/organizations/:id
func (h *Handlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.orgs.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, org)
	}
}

// @Summary      Update organization
// @Description  Update name, slug or description, and merge a settings patch. A null settings value removes the key.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                              true  "Organization ID"
// @Param        body  body  services.UpdateOrganizationRequest  true  "Changes"
// @Success      200  {object}  models.Organization
// @Failure      400  {object}  map[string]interface{}  "Invalid field"
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      409  {object}  map[string]interface{}  "Slug already in use"
// @Router       /api/v1/organizations/{id} [put]
// UpdateOrganizationHandler updates an organization
// PUT /api/v1/organizations/:id
func (h *Handlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.UpdateOrganizationRequest
		if !BindJSON(c, &req) {
			return
		}

		org, err := h.orgs.Update(c.Request.Context(), c.Param("id"), req, middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "organization.updated",
			ResourceType: "organization",
			ResourceID:   org.ID,
		})
		c.JSON(http.StatusOK, org)
	}
}

// @Summary      Delete organization
// @Description  Soft-delete an organization. Memberships and invitations are kept so it can be restored.
// @Tags         Organizations
// @Security     Bearer
// @Param        id  path  string  true  "Organization ID"
// @Success      204
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /api/v1/organizations/{id} [delete]
// DeleteOrganizationHandler soft-deletes an organization
// DELETE /api/v1/organizations/:id
func (h *Handlers) DeleteOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")
		if err := h.orgs.Delete(c.Request.Context(), orgID, middleware.CurrentUserID(c)); err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "organization.deleted",
			ResourceType: "organization",
			ResourceID:   orgID,
		})
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Restore organization
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  services.OrganizationDetails
// @Failure      400  {object}  map[string]interface{}  "Organization is not deleted"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      409  {object}  map[string]interface{}  "Slug was taken while the organization was deleted"
// @Router       /api/v1/organizations/{id}/restore [post]
// RestoreOrganizationHandler undoes a soft delete
// POST /api/v1/organizations/:id/restore
func (h *Handlers) RestoreOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.orgs.Restore(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
		if err != nil {
			RespondError(c, err)
			return
		}

		middleware.SetAuditEvent(c, middleware.AuditEvent{
			Action:       "organization.restored",
			ResourceType: "organization",
			ResourceID:   org.ID,
		})
		c.JSON(http.StatusOK, org)
	}
}
