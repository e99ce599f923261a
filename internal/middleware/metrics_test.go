package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/collabspace/collab-api/internal/telemetry"
)

func TestMetricsMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/metrics-test/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})

	route := "/metrics-test/:id"
	okCount := func() float64 {
		return testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, route, "200"))
	}
	notFound := func() float64 {
		return testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, route, "404"))
	}
	noRoute := func() float64 {
		return testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "<no-route>", "404"))
	}
	okBefore, nfBefore, nrBefore := okCount(), notFound(), noRoute()

	serve(r, http.MethodGet, "/metrics-test/a", nil)
	serve(r, http.MethodGet, "/metrics-test/b", nil)
	serve(r, http.MethodGet, "/metrics-test/missing", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	// raw ids never become label values
	assert.Equal(t, okBefore+2, okCount())
	assert.Equal(t, nfBefore+1, notFound())
	assert.Equal(t, nrBefore+1, noRoute())
	assert.Positive(t, testutil.CollectAndCount(telemetry.HTTPRequestDuration))
}

func TestMetricsMiddleware_SkipsHealthRoutes(t *testing.T) {
	var inFlight float64
	r := gin.New()
	r.Use(MetricsMiddleware("/metrics-health"))
	r.GET("/metrics-health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics-busy", func(c *gin.Context) {
		inFlight = testutil.ToFloat64(telemetry.HTTPRequestsInFlight)
		c.Status(http.StatusOK)
	})

	before := testutil.ToFloat64(telemetry.HTTPRequestsInFlight)
	serve(r, http.MethodGet, "/metrics-health", nil)
	serve(r, http.MethodGet, "/metrics-busy", nil)

	assert.Zero(t, testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/metrics-busy", "200")))
	assert.Equal(t, before+1, inFlight)
	assert.Equal(t, before, testutil.ToFloat64(telemetry.HTTPRequestsInFlight))
}
