// Package middleware provides Gin HTTP middleware for authentication, organization role
// authorization, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → OrgRole → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user identity; the org role checks read from that context.
// Audit logging runs after the role checks so only authorized mutations are recorded.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/db/models"
)

const (
	// ContextUserKey holds the authenticated *models.User
	ContextUserKey = "user"
	// ContextUserIDKey holds the authenticated user's ID
	ContextUserIDKey = "user_id"
	// ContextAuthMethodKey records how the caller authenticated
	ContextAuthMethodKey = "auth_method"
)

// UserLookup loads the account named in a session token. It returns (nil, nil) for an
// unknown or deactivated account.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware requires a valid session JWT and loads the caller's account
func AuthMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil || !user.IsActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// OptionalAuthMiddleware - same as AuthMiddleware but doesn't abort if no auth.
// Any failure leaves the request anonymous.
func OptionalAuthMiddleware(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}
		if claims, err := auth.ValidateJWT(token); err == nil {
			user, err := users.GetUserByID(c.Request.Context(), claims.UserID)
			if err == nil && user != nil && user.IsActive {
				setUser(c, user)
			}
		}
		c.Next()
	}
}

func setUser(c *gin.Context, user *models.User) {
	c.Set(ContextUserKey, user)
	c.Set(ContextUserIDKey, user.ID)
	c.Set(ContextAuthMethodKey, "jwt")
}

// CurrentUserID returns the authenticated user's ID, or "" for anonymous requests
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

// CurrentUser returns the authenticated user, or nil for anonymous requests
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
