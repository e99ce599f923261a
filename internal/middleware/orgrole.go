// Package middleware (orgrole.go) implements organization role authorization.
//
// Roles are looked up per request rather than embedded in the JWT, so a role change or
// removal takes effect on the member's next request without reissuing their token.

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/db/models"
)

const (
	// OrgIDParam is the route parameter naming the organization
	OrgIDParam = "id"
	// MemberIDParam is the route parameter naming the member a request acts on
	MemberIDParam = "user_id"
	// ContextOrgIDKey holds the organization ID of an authorized org-scoped request
	ContextOrgIDKey = "organization_id"
	// ContextOrgRoleKey holds the caller's role in that organization
	ContextOrgRoleKey = "org_role"
)

// RoleResolver reports a user's role in an organization; ok is false for non-members.
// *services.Authorizer implements it.
type RoleResolver interface {
	Role(ctx context.Context, orgID, userID string) (role models.Role, ok bool, err error)
}

// RequireOrgMember allows any member of the organization in the route
func RequireOrgMember(roles RoleResolver) gin.HandlerFunc {
	return requireOrgRole(roles, func(models.Role) bool { return true }, "")
}

// RequireOrgAdmin allows only admins of the organization
func RequireOrgAdmin(roles RoleResolver) gin.HandlerFunc {
	return requireOrgRole(roles, models.Role.IsAdmin, "Admin role required")
}

// RequireSelfOrOrgAdmin allows a member acting on their own membership, or an admin
// acting on anyone's
func RequireSelfOrOrgAdmin(roles RoleResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := resolveOrgRole(c, roles)
		if !ok {
			return
		}
		if c.Param(MemberIDParam) != CurrentUserID(c) && !role.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Admin role required",
			})
			return
		}
		c.Next()
	}
}

func requireOrgRole(roles RoleResolver, allowed func(models.Role) bool, denied string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := resolveOrgRole(c, roles)
		if !ok {
			return
		}
		if !allowed(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": denied,
			})
			return
		}
		c.Next()
	}
}

// resolveOrgRole loads the caller's role for the organization in the route and stores it
// in the context. It aborts the request and returns false when the caller is anonymous or
// not a member.
func resolveOrgRole(c *gin.Context, roles RoleResolver) (models.Role, bool) {
	userID := CurrentUserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "User not authenticated",
		})
		return "", false
	}
	orgID := c.Param(OrgIDParam)

	role, ok, err := roles.Role(c.Request.Context(), orgID, userID)
	if err != nil {
		slog.Error("failed to check organization membership", "organization_id", orgID, "user_id", userID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check organization membership",
		})
		return "", false
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Not a member of organization",
		})
		return "", false
	}

	c.Set(ContextOrgIDKey, orgID)
	c.Set(ContextOrgRoleKey, role)
	return role, true
}
