package orgs

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/services"
)

const (
	defaultPage  = 1
	defaultLimit = 20
)

// RespondError writes the JSON error body for err: 400 for validation failures, 404 for
// missing entities, 409 for conflicts, 401 for bad credentials and 500 for anything else.
// Internal error text is logged, never returned.
func RespondError(c *gin.Context, err error) {
	var (
		validation *services.ValidationError
		notFound   *services.NotFoundError
		conflict   *services.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		abortWithField(c, http.StatusBadRequest, validation.Message, validation.Field)
	case errors.As(err, &notFound):
		abortWithField(c, http.StatusNotFound, notFound.Error(), "")
	case errors.As(err, &conflict):
		abortWithField(c, http.StatusConflict, conflict.Message, conflict.Field)
	case errors.Is(err, services.ErrInvalidCredentials):
		abortWithField(c, http.StatusUnauthorized, err.Error(), "")
	default:
		slog.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err)
		abortWithField(c, http.StatusInternalServerError, "Internal server error", "")
	}
}

func abortWithField(c *gin.Context, status int, message, field string) {
	body := gin.H{"error": message}
	if field != "" {
		body["field"] = field
	}
	c.AbortWithStatusJSON(status, body)
}

// BindJSON decodes the request body into dst, answering 400 on malformed input
func BindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithField(c, http.StatusBadRequest, "Invalid request body", "")
		return false
	}
	return true
}

// pagination reads ?page= and ?limit=. Range checks are left to the use cases so the
// error messages match for every listing.
func pagination(c *gin.Context) (page, limit int, ok bool) {
	page, limit = defaultPage, defaultLimit
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			abortWithField(c, http.StatusBadRequest, "page must be an integer", "page")
			return 0, 0, false
		}
		page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			abortWithField(c, http.StatusBadRequest, "limit must be an integer", "limit")
			return 0, 0, false
		}
		limit = n
	}
	return page, limit, true
}
