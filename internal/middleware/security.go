// security.go sets protective response headers for the JSON API.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// apiSecurityHeaders are sent on every response. Nothing here is meant to be framed,
// embedded or rendered as HTML.
var apiSecurityHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
}

// SecurityHeadersMiddleware adds the API security headers. Strict-Transport-Security is
// only sent when hstsMaxAge is positive, which the router does when TLS is enabled.
func SecurityHeadersMiddleware(hstsMaxAge time.Duration) gin.HandlerFunc {
	hsts := ""
	if hstsMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(int(hstsMaxAge.Seconds())) + "; includeSubDomains"
	}
	return func(c *gin.Context) {
		for name, value := range apiSecurityHeaders {
			c.Header(name, value)
		}
		if hsts != "" {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
