package middleware

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/db/models"
	"github.com/collabspace/collab-api/internal/safego"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	done    chan struct{}
}

func newRecordingAuditor() *recordingAuditor {
	return &recordingAuditor{done: make(chan struct{}, 10)}
}

func (r *recordingAuditor) Record(_ context.Context, entry *models.AuditLog) {
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingAuditor) wait(t *testing.T) *models.AuditLog {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not recorded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

func (r *recordingAuditor) none(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
		t.Fatal("unexpected audit entry")
	case <-time.After(50 * time.Millisecond):
	}
}

func newAuditRouter(rec AuditRecorder, cfg config.AuditConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), asUser, AuditMiddleware(rec, cfg, &safego.Group{}))
	r.PUT("/orgs/:id/members/:user_id", func(c *gin.Context) {
		c.Set(ContextOrgIDKey, c.Param("id"))
		SetAuditEvent(c, AuditEvent{
			Action:       "member.role_updated",
			ResourceType: "member",
			ResourceID:   c.Param("user_id"),
			Metadata:     map[string]any{"role": "viewer"},
		})
		status := http.StatusOK
		if c.Query("fail") != "" {
			status = http.StatusBadRequest
		}
		c.Status(status)
	})
	r.POST("/orgs/:id/members", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error": "already a member"})
	})
	r.GET("/orgs/:id", func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuditMiddleware_RecordsEvent(t *testing.T) {
	rec := newRecordingAuditor()
	r := newAuditRouter(rec, config.AuditConfig{Enabled: true})

	w := serve(r, http.MethodPut, "/orgs/o1/members/u2", http.Header{
		"X-User":       {"u1"},
		"X-Request-Id": {"req-1"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	entry := rec.wait(t)
	assert.Equal(t, "member.role_updated", entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u1", *entry.UserID)
	require.NotNil(t, entry.OrganizationID)
	assert.Equal(t, "o1", *entry.OrganizationID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "u2", *entry.ResourceID)
	assert.Equal(t, "member", *entry.ResourceType)
	assert.Equal(t, "viewer", entry.Metadata["role"])
	assert.Equal(t, http.StatusOK, entry.Metadata["status_code"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.NotNil(t, entry.IPAddress)
}

func TestAuditMiddleware_EventOverridesOrganization(t *testing.T) {
	rec := newRecordingAuditor()
	r := gin.New()
	r.Use(AuditMiddleware(rec, config.AuditConfig{Enabled: true}, &safego.Group{}))
	r.DELETE("/invitations/:id", func(c *gin.Context) {
		SetAuditEvent(c, AuditEvent{Action: "invitation.canceled", OrganizationID: "o9"})
		c.Status(http.StatusNoContent)
	})

	serve(r, http.MethodDelete, "/invitations/i1", nil)

	entry := rec.wait(t)
	require.NotNil(t, entry.OrganizationID)
	assert.Equal(t, "o9", *entry.OrganizationID)
	assert.Nil(t, entry.UserID)
}

func TestAuditMiddleware_Skips(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.AuditConfig
		method string
		path   string
	}{
		{"disabled", config.AuditConfig{Enabled: false}, http.MethodPut, "/orgs/o1/members/u2"},
		{"no event set", config.AuditConfig{Enabled: true}, http.MethodGet, "/orgs/o1"},
		{"failed request", config.AuditConfig{Enabled: true}, http.MethodPut, "/orgs/o1/members/u2?fail=1"},
		{"failed request without event", config.AuditConfig{Enabled: true}, http.MethodPost, "/orgs/o1/members"},
		{"failed read", config.AuditConfig{Enabled: true, LogFailedRequests: true}, http.MethodGet, "/orgs/o1?fail=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecordingAuditor()
			serve(newAuditRouter(rec, tt.cfg), tt.method, tt.path, user("u1"))
			rec.none(t)
		})
	}
}

func TestAuditMiddleware_LogFailedRequests(t *testing.T) {
	rec := newRecordingAuditor()
	r := newAuditRouter(rec, config.AuditConfig{Enabled: true, LogFailedRequests: true})

	serve(r, http.MethodPut, "/orgs/o1/members/u2?fail=1", user("u1"))

	entry := rec.wait(t)
	assert.Equal(t, http.StatusBadRequest, entry.Metadata["status_code"])
}

func TestAuditMiddleware_LogFailedRequestsWithoutEvent(t *testing.T) {
	rec := newRecordingAuditor()
	r := newAuditRouter(rec, config.AuditConfig{Enabled: true, LogFailedRequests: true})

	serve(r, http.MethodPost, "/orgs/o1/members", user("u1"))

	entry := rec.wait(t)
	assert.Equal(t, "POST /orgs/:id/members", entry.Action)
	assert.Equal(t, http.StatusConflict, entry.Metadata["status_code"])
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u1", *entry.UserID)
}

type blockingAuditor struct {
	release chan struct{}
}

func (b *blockingAuditor) Record(context.Context, *models.AuditLog) {
	<-b.release
}

func TestAuditMiddleware_WritesTrackedByGroup(t *testing.T) {
	rec := &blockingAuditor{release: make(chan struct{})}
	writes := &safego.Group{}
	r := gin.New()
	r.Use(AuditMiddleware(rec, config.AuditConfig{Enabled: true}, writes))
	r.POST("/orgs", func(c *gin.Context) {
		SetAuditEvent(c, AuditEvent{Action: "organization.created"})
		c.Status(http.StatusCreated)
	})

	serve(r, http.MethodPost, "/orgs", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, writes.Wait(ctx), context.DeadlineExceeded)

	close(rec.release)
	assert.NoError(t, writes.Wait(context.Background()))
}
