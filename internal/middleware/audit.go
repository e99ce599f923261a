// audit.go provides Gin middleware that records organization mutations to the audit log.
// Handlers describe what they changed with SetAuditEvent; the middleware writes the entry
// after the response is produced, off the request goroutine.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/safego"
)

const contextAuditEventKey = "audit_event"

// AuditRecorder persists audit entries. *services.AuditService implements it.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuditEvent describes one mutation for the audit log
type AuditEvent struct {
	// Action is a dotted verb such as "member.role_updated"
	Action string
	// OrganizationID overrides the organization taken from the route, for routes that
	// address an invitation by id
	OrganizationID string
	ResourceType   string
	ResourceID     string
	Metadata       map[string]any
}

// SetAuditEvent marks the current request as auditable
func SetAuditEvent(c *gin.Context, event AuditEvent) {
	c.Set(contextAuditEventKey, event)
}

// AuditMiddleware writes an audit entry for every successful request whose handler called
// SetAuditEvent. With cfg.LogFailedRequests, failed mutating requests are recorded too;
// when the handler never got as far as setting an event the action is "METHOD route".
// Writes run on writes so shutdown can wait for them.
func AuditMiddleware(recorder AuditRecorder, cfg config.AuditConfig, writes *safego.Group) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !cfg.Enabled || c.Request.Method == http.MethodOptions {
			return
		}
		var event AuditEvent
		v, ok := c.Get(contextAuditEventKey)
		if ok {
			event = v.(AuditEvent)
		}
		status := c.Writer.Status()
		if status >= http.StatusBadRequest {
			if !cfg.LogFailedRequests {
				return
			}
			if !ok {
				if isReadOnly(c.Request.Method) {
					return
				}
				event = failedRequestEvent(c)
			}
		} else if !ok {
			return
		}

		entry := buildAuditLog(c, event, status)
		writes.Go("audit-log", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			recorder.Record(ctx, entry)
		})
	}
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func failedRequestEvent(c *gin.Context) AuditEvent {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return AuditEvent{Action: fmt.Sprintf("%s %s", c.Request.Method, route)}
}

func buildAuditLog(c *gin.Context, event AuditEvent, status int) *models.AuditLog {
	entry := &models.AuditLog{
		Action:    event.Action,
		CreatedAt: time.Now().UTC(),
	}

	if ip := c.ClientIP(); ip != "" {
		entry.IPAddress = &ip
	}
	if userID := CurrentUserID(c); userID != "" {
		entry.UserID = &userID
	}
	orgID := event.OrganizationID
	if orgID == "" {
		orgID = c.GetString(ContextOrgIDKey)
	}
	if orgID != "" {
		entry.OrganizationID = &orgID
	}
	if event.ResourceType != "" {
		rt := event.ResourceType
		entry.ResourceType = &rt
	}
	if event.ResourceID != "" {
		rid := event.ResourceID
		entry.ResourceID = &rid
	}

	metadata := make(map[string]any, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	metadata["status_code"] = status
	if method := c.GetString(ContextAuthMethodKey); method != "" {
		metadata["auth_method"] = method
	}
	if id := c.GetString(RequestIDKey); id != "" {
		metadata["request_id"] = id
	}
	entry.Metadata = metadata
	return entry
}
