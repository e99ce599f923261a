// Package api wires together all HTTP routes for the collaboration API.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/auth/register and /api/v1/auth/login are public and carry the strict
//     authentication rate limit.
//   - Everything else under /api/v1 requires a session token. Organization-scoped routes
//     additionally pass an org-role gate (member or admin) that answers 403 before
//     the handler runs, so non-members cannot probe which organizations exist.
//   - Accepting an invitation uses optional authentication so an anonymous caller gets the
//     "must be authenticated" validation error rather than a bare 401.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/collabspace/collab-api/internal/api/accounts"
	"github.com/collabspace/collab-api/internal/api/orgs"
	"github.com/collabspace/collab-api/internal/audit"
	"github.com/collabspace/collab-api/internal/config"
	"github.com/collabspace/collab-api/internal/db/repositories"
	"github.com/collabspace/collab-api/internal/jobs"
	"github.com/collabspace/collab-api/internal/middleware"
	"github.com/collabspace/collab-api/internal/safego"
	"github.com/collabspace/collab-api/internal/services"
)

// Version is reported by /version; cmd/server overrides it at link time
var Version = "0.1.0"

// hstsMaxAgeWithTLS is advertised in Strict-Transport-Security when the server terminates TLS
const hstsMaxAgeWithTLS = 365 * 24 * time.Hour

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sweeper      *jobs.InvitationSweeper
	rateLimiters []*middleware.RateLimiter
	// mail tracks in-flight invitation email deliveries
	mail *safego.Group
	// auditWrites tracks audit entries still being stored and shipped
	auditWrites  *safego.Group
	auditShipper *audit.MultiShipper
}

// Shutdown stops all background goroutines and waits, bounded by ctx, for queued
// invitation emails. It should be called after the HTTP server has been shut down so
// that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown(ctx context.Context) {
	slog.Info("stopping background services")
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.mail != nil {
		if err := bg.mail.Wait(ctx); err != nil {
			slog.Warn("gave up waiting for invitation emails", "error", err)
		}
	}
	if bg.auditWrites != nil {
		if err := bg.auditWrites.Wait(ctx); err != nil {
			slog.Warn("gave up waiting for audit writes", "error", err)
		}
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may be nil when Redis is disabled;
// notifier may be nil when outbound email is disabled.
func NewRouter(cfg *config.Config, db *sqlx.DB, rdb redis.UniversalClient, notifier services.InvitationNotifier) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{mail: &safego.Group{}, auditWrites: &safego.Group{}}

	// Persistence and use cases
	stores := repositories.NewStores(db)
	tx := repositories.NewTxRunner(db)

	authz := services.NewAuthorizer(stores.Members())
	userSvc := services.NewUserService(stores, tx, cfg.Auth.BcryptCost)
	orgSvc := services.NewOrganizationService(stores, tx)
	memberSvc := services.NewMemberService(stores, tx)
	invitationSvc := services.NewInvitationService(stores, tx, notifier, cfg.Invitations.TTL).
		WithDispatcher(bg.mail.Go)
	auditSvc := services.NewAuditService(stores)

	shipper, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, err
	}
	if shipper.Len() > 0 {
		bg.auditShipper = shipper
		auditSvc.WithShipper(shipper)
	}

	// Rate limiters
	authLimit := middleware.AuthRateLimitConfig()
	generalLimit := middleware.DefaultRateLimitConfig()
	rl := cfg.Security.RateLimiting
	if rl.AuthRequestsPerMinute > 0 {
		authLimit.RequestsPerMinute = rl.AuthRequestsPerMinute
	}
	generalLimit.RequestsPerMinute = rl.RequestsPerMinute
	if rl.Burst > 0 {
		generalLimit.BurstSize = rl.Burst
	}
	authRateLimit, err := bg.rateLimit(cfg, rdb, "auth", authLimit)
	if err != nil {
		bg.Shutdown(context.Background())
		return nil, nil, err
	}
	generalRateLimit, err := bg.rateLimit(cfg, rdb, "api", generalLimit)
	if err != nil {
		bg.Shutdown(context.Background())
		return nil, nil, err
	}

	// Background jobs
	if cfg.Invitations.Sweep.Enabled {
		sweeper, err := jobs.NewInvitationSweeper(stores.Invitations(), cfg.Invitations.Sweep)
		if err != nil {
			bg.Shutdown(context.Background())
			return nil, nil, err
		}
		sweeper.Start()
		bg.sweeper = sweeper
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware("/health", "/ready"))
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	var hstsMaxAge time.Duration
	if cfg.Security.TLS.Enabled {
		hstsMaxAge = hstsMaxAgeWithTLS
	}
	router.Use(middleware.SecurityHeadersMiddleware(hstsMaxAge))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, rdb))
	router.GET("/version", versionHandler())

	orgHandlers := orgs.NewHandlers(orgSvc, memberSvc, invitationSvc, auditSvc, authz)
	accountHandlers := accounts.NewHandlers(userSvc, cfg.Auth.JWTExpiry)
	auditTrail := middleware.AuditMiddleware(auditSvc, cfg.Audit, bg.auditWrites)
	memberGate := middleware.RequireOrgMember(authz)
	adminGate := middleware.RequireOrgAdmin(authz)

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints with strict rate limiting
		authGroup := apiV1.Group("/auth")
		authGroup.Use(authRateLimit)
		{
			authGroup.POST("/register", accountHandlers.RegisterHandler())
			authGroup.POST("/login", accountHandlers.LoginHandler())
		}

		// Accepting needs to see anonymous callers
		apiV1.POST("/organizations/invitations/:invitation/accept",
			generalRateLimit,
			middleware.OptionalAuthMiddleware(stores.Users()),
			auditTrail,
			orgHandlers.AcceptInvitationHandler())

		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(generalRateLimit)
		authenticatedGroup.Use(middleware.AuthMiddleware(stores.Users()))
		authenticatedGroup.Use(auditTrail)
		{
			authenticatedGroup.GET("/auth/me", accountHandlers.MeHandler())
			authenticatedGroup.DELETE("/auth/me", accountHandlers.DeactivateHandler())

			orgsGroup := authenticatedGroup.Group("/organizations")
			{
				orgsGroup.POST("", orgHandlers.CreateOrganizationHandler())
				orgsGroup.GET("", orgHandlers.ListOrganizationsHandler())

				// Addressed by invitation id; the admin check happens after the lookup
				orgsGroup.GET("/invitations/:invitation", orgHandlers.GetInvitationHandler())
				orgsGroup.DELETE("/invitations/:invitation", orgHandlers.CancelInvitationHandler())

				orgGroup := orgsGroup.Group("/:id")
				{
					orgGroup.GET("", memberGate, orgHandlers.GetOrganizationHandler())
					orgGroup.PUT("", adminGate, orgHandlers.UpdateOrganizationHandler())
					orgGroup.DELETE("", adminGate, orgHandlers.DeleteOrganizationHandler())
					orgGroup.POST("/restore", adminGate, orgHandlers.RestoreOrganizationHandler())

					orgGroup.GET("/members", memberGate, orgHandlers.ListMembersHandler())
					orgGroup.POST("/members", adminGate, orgHandlers.AddMemberHandler())
					orgGroup.POST("/members/invite", adminGate, orgHandlers.SendInvitationHandler())
					orgGroup.PUT("/members/:user_id", adminGate, orgHandlers.UpdateMemberRoleHandler())
					orgGroup.DELETE("/members/:user_id", middleware.RequireSelfOrOrgAdmin(authz), orgHandlers.RemoveMemberHandler())

					orgGroup.GET("/invitations", adminGate, orgHandlers.ListInvitationsHandler())
					orgGroup.GET("/audit-logs", adminGate, orgHandlers.ListAuditLogsHandler())
				}
			}
		}
	}

	return router, bg, nil
}

// rateLimit builds the rate limiting middleware for one route class. In-process limiters
// are registered with bg so their cleanup goroutines stop on shutdown.
func (bg *BackgroundServices) rateLimit(cfg *config.Config, rdb redis.UniversalClient, name string, limit middleware.RateLimitConfig) (gin.HandlerFunc, error) {
	if !cfg.Security.RateLimiting.Enabled {
		return func(c *gin.Context) { c.Next() }, nil
	}
	switch cfg.Security.RateLimiting.Backend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis rate limiting requires a redis client")
		}
		return middleware.RateLimitMiddleware(middleware.NewRedisRateLimiter(rdb, "ratelimit:"+name+":", limit)), nil
	default:
		limiter := middleware.NewRateLimiter(limit)
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		return middleware.RateLimitMiddleware(limiter), nil
	}
}

// pinger is satisfied by *sql.DB and *sqlx.DB
type pinger interface {
	PingContext(ctx context.Context) error
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, Redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis so that a readiness gate
// fails when the shared rate limiter would be unavailable.
func readinessHandler(db pinger, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		checks := gin.H{}

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one structured slog record per request. The output format
// (JSON or text) follows the handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_id", middleware.CurrentUserID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.String("service", cfg.Telemetry.ServiceName),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
