// Package accounts implements registration, login and the caller's own account endpoints.
package accounts

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/api/orgs"
	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/services"
)

// UserUseCases is implemented by *services.UserService
type UserUseCases interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	Deactivate(ctx context.Context, userID string) error
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is returned by register and login
type sessionResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Handlers serves the account endpoints
type Handlers struct {
	users     UserUseCases
	jwtExpiry time.Duration
}

// NewHandlers creates the account handlers. jwtExpiry is the lifetime of issued session tokens.
func NewHandlers(users UserUseCases, jwtExpiry time.Duration) *Handlers {
	if jwtExpiry <= 0 {
		jwtExpiry = 24 * time.Hour
	}
	return &Handlers{users: users, jwtExpiry: jwtExpiry}
}

// @Summary      Register
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  services.RegisterRequest  true  "Name, email and password"
// @Success      201  {object}  sessionResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid field"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Router       /api/v1/auth/register [post]
// RegisterHandler creates an account and signs it in
// POST /api/v1/auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if !orgs.BindJSON(c, &req) {
			return
		}

		user, err := h.users.Register(c.Request.Context(), req)
		if err != nil {
			orgs.RespondError(c, err)
			return
		}
		h.respondWithSession(c, http.StatusCreated, user)
	}
}

// @Summary      Login
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Email and password"
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Router       /api/v1/auth/login [post]
// LoginHandler exchanges credentials for a session token
// POST /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !orgs.BindJSON(c, &req) {
			return
		}

		user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			orgs.RespondError(c, err)
			return
		}
		h.respondWithSession(c, http.StatusOK, user)
	}
}

// @Summary      Current user
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.User
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [get]
// MeHandler returns the authenticated account
// GET /api/v1/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, middleware.CurrentUser(c))
	}
}

// @Summary      Deactivate account
// @Description  Deactivate the caller's account. Refused while the caller is the only admin of an organization.
// @Tags         Authentication
// @Security     Bearer
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Only admin of an organization"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/me [delete]
// DeactivateHandler deactivates the caller's account
// DELETE /api/v1/auth/me
func (h *Handlers) DeactivateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.users.Deactivate(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
			orgs.RespondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handlers) respondWithSession(c *gin.Context, status int, user *models.User) {
	token, err := auth.GenerateJWT(user.ID, user.Email, h.jwtExpiry)
	if err != nil {
		orgs.RespondError(c, err)
		return
	}
	c.JSON(status, sessionResponse{
		User:      user,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(h.jwtExpiry),
	})
}
