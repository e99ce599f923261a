package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/collab-api/internal/auth"
	"github.com/collabspace/collab-api/internal/config"
)

const (
	testUserID = "7f1c2d4e-8a6b-4c3d-9e0f-112233445566"
	testOrgID  = "0a1b2c3d-4e5f-4a6b-8c7d-8e9fa0b1c2d3"
)

func TestMain(m *testing.M) {
	os.Setenv(auth.SecretEnvVar, "test-router-jwt-secret-32-chars!!")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newPingDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return sqlx.NewDb(db, "sqlmock"), mock
}

func get(r http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Auth.BcryptCost = 4
	cfg.Auth.JWTExpiry = time.Hour
	cfg.Invitations.TTL = 7 * 24 * time.Hour
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.RateLimiting.Enabled = true
	cfg.Security.RateLimiting.Backend = "memory"
	cfg.Security.RateLimiting.RequestsPerMinute = 600
	cfg.Security.RateLimiting.Burst = 100
	cfg.Audit.Enabled = true
	return cfg
}

// ---------------------------------------------------------------------------
// probes
// ---------------------------------------------------------------------------

func TestHealthCheckHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newPingDB(t)
		mock.ExpectPing()
		r := gin.New()
		r.GET("/health", healthCheckHandler(db))

		w := get(r, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", decode(t, w)["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		db, mock := newPingDB(t)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
		r := gin.New()
		r.GET("/health", healthCheckHandler(db))

		w := get(r, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", decode(t, w)["status"])
	})
}

func TestReadinessHandler(t *testing.T) {
	t.Run("database only", func(t *testing.T) {
		db, mock := newPingDB(t)
		mock.ExpectPing()
		r := gin.New()
		r.GET("/ready", readinessHandler(db, nil))

		w := get(r, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["ready"])
		assert.Equal(t, map[string]any{"database": "healthy"}, body["checks"])
	})

	t.Run("database down", func(t *testing.T) {
		db, mock := newPingDB(t)
		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
		r := gin.New()
		r.GET("/ready", readinessHandler(db, nil))

		w := get(r, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "database not ready", decode(t, w)["error"])
	})

	t.Run("redis down", func(t *testing.T) {
		db, mock := newPingDB(t)
		mock.ExpectPing()
		rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
		t.Cleanup(func() { rdb.Close() })
		r := gin.New()
		r.GET("/ready", readinessHandler(db, rdb))

		w := get(r, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "redis not ready", body["error"])
		assert.Equal(t, map[string]any{"database": "healthy", "redis": "unhealthy"}, body["checks"])
	})
}

func TestVersionHandler(t *testing.T) {
	r := gin.New()
	r.GET("/version", versionHandler())

	w := get(r, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "v1", body["api_version"])
}

// ---------------------------------------------------------------------------
// CORSMiddleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		method  string
		code    int
		want    string
	}{
		{"listed origin", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, http.StatusOK, "https://app.example.com"},
		{"wildcard echoes origin", []string{"*"}, "https://other.example.com", http.MethodGet, http.StatusOK, "https://other.example.com"},
		{"wildcard without origin", []string{"*"}, "", http.MethodGet, http.StatusOK, "*"},
		{"unlisted origin", []string{"https://app.example.com"}, "https://evil.example.com", http.MethodGet, http.StatusOK, ""},
		{"preflight", []string{"*"}, "https://app.example.com", http.MethodOptions, http.StatusNoContent, "https://app.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Security.CORS.AllowedOrigins = tt.allowed
			r := gin.New()
			r.Use(CORSMiddleware(cfg))
			r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddleware_ConfiguredMethods(t *testing.T) {
	cfg := &config.Config{}
	cfg.Security.CORS.AllowedOrigins = []string{"*"}
	cfg.Security.CORS.AllowedMethods = []string{"GET", "POST"}
	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/", nil)
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestLoggerMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(LoggerMiddleware(testConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusInternalServerError, get(r, "/", nil).Code)
}

// ---------------------------------------------------------------------------
// NewRouter
// ---------------------------------------------------------------------------

func newTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newPingDB(t)
	router, bg, err := NewRouter(cfg, db, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bg.Shutdown(t.Context()) })
	return router, mock
}

func bearer(t *testing.T) http.Header {
	t.Helper()
	token, err := auth.GenerateJWT(testUserID, "ada@example.com", time.Hour)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestNewRouter_RequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t, testConfig())

	for _, path := range []string{"/api/v1/organizations", "/api/v1/auth/me", "/api/v1/organizations/" + testOrgID + "/members"} {
		w := get(router, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestNewRouter_SecurityAndRequestHeaders(t *testing.T) {
	router, _ := newTestRouter(t, testConfig())

	w := get(router, "/version", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestNewRouter_NonMemberIsForbidden(t *testing.T) {
	router, mock := newTestRouter(t, testConfig())

	userCols := []string{"id", "email", "password_hash", "name", "avatar_url", "is_active", "is_verified", "created_at", "updated_at", "deleted_at"}
	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(testUserID).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(testUserID, "ada@example.com", "hash", "Ada", nil, true, true, time.Now(), time.Now(), nil))
	mock.ExpectQuery(`FROM organization_members`).
		WithArgs(testOrgID, testUserID).
		WillReturnRows(sqlmock.NewRows([]string{"organization_id", "user_id", "role", "joined_at"}))

	w := get(router, "/api/v1/organizations/"+testOrgID, bearer(t))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Not a member of organization", decode(t, w)["error"])
}

func TestNewRouter_InvalidSweepSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Invitations.Sweep.Enabled = true
	cfg.Invitations.Sweep.Schedule = "whenever"
	db, _ := newPingDB(t)

	_, _, err := NewRouter(cfg, db, nil, nil)
	assert.Error(t, err)
}

func TestNewRouter_RedisBackendNeedsClient(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimiting.Backend = "redis"
	db, _ := newPingDB(t)

	_, _, err := NewRouter(cfg, db, nil, nil)
	assert.Error(t, err)
}

func TestNewRouter_AuditShippers(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Shippers = []config.AuditShipperConfig{{Enabled: true, Type: "file"}}
	db, _ := newPingDB(t)

	_, _, err := NewRouter(cfg, db, nil, nil)
	assert.Error(t, err, "file shipper without a path")

	cfg.Audit.Shippers = []config.AuditShipperConfig{{
		Enabled: true,
		Type:    "file",
		File:    config.AuditFileConfig{Path: filepath.Join(t.TempDir(), "audit.jsonl")},
	}}
	_, bg, err := NewRouter(cfg, db, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, bg.auditShipper)
	bg.Shutdown(context.Background())
}
