package orgs

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      List audit log
// @Description  Page through an organization's audit log, newest first.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        id     path   string  true   "Organization ID"
// @Param        page   query  int     false  "Page number (default 1)"
// @Param        limit  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  services.AuditPage
// @Failure      403  {object}  map[string]interface{}  "Admin role required"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Router       /api/v1/organizations/{id}/audit-logs [get]
// ListAuditLogsHandler lists audit entries
// GET /api/v1/organizations/:id/audit-logs
func (h *Handlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, ok := pagination(c)
		if !ok {
			return
		}
		result, err := h.audit.List(c.Request.Context(), c.Param("id"), page, limit)
		if err != nil {
			RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
