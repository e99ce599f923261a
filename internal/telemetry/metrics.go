// Package telemetry provides application-level observability for the collaboration API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on the
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<COLLAB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Invitation lifecycle counters (sent, accepted, rejected accepts, emails, sweeps)
//   - Membership change counters
//   - Rate limiter rejections
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/organizations/:id/members/:user_id)
// rather than the raw request URL so organization and user ids never become label values.
// Domain counters are labelled only by closed sets (role, reason, action, provider, result).
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served, excluding probes.",
		},
	)
)

// Invitation lifecycle metrics.
//
// InvitationAcceptFailuresTotal uses a fixed reason set: not_found, expired, already_accepted,
// unauthenticated, email_mismatch, already_member.
//
// Example PromQL queries:
//   - Acceptance ratio (7d): increase(invitations_accepted_total[7d]) / increase(invitations_sent_total[7d])
//   - Expired accepts:       rate(invitation_accept_failures_total{reason="expired"}[1h])
var (
	InvitationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_sent_total",
			Help: "Total number of invitations created, by offered role.",
		},
		[]string{"role"},
	)

	InvitationsAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_accepted_total",
			Help: "Total number of invitations accepted.",
		},
	)

	InvitationAcceptFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_accept_failures_total",
			Help: "Total number of rejected invitation accepts, by reason.",
		},
		[]string{"reason"},
	)

	InvitationsCanceledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_canceled_total",
			Help: "Total number of pending invitations canceled by an admin.",
		},
	)

	// InvitationEmailsTotal counts delivery attempts of the invitation email, by mail
	// provider (log, smtp, sendgrid) and result (sent, failed).
	InvitationEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_emails_total",
			Help: "Total number of invitation email deliveries, by provider and result.",
		},
		[]string{"provider", "result"},
	)

	InvitationsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "invitations_swept_total",
			Help: "Total number of long-expired invitations deleted by the sweeper.",
		},
	)
)

// MembershipChangesTotal counts membership mutations by action: added, role_updated,
// removed, joined (via invitation).
var MembershipChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "membership_changes_total",
		Help: "Total number of organization membership changes, by action.",
	},
	[]string{"action"},
)

// RateLimitRejectionsTotal counts requests answered with 429, by limiter backend (memory, redis).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens once the
// application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
