package api

import (
	"github.com/gin-gonic/gin"

	"github.com/brunovlucena/homelab-sub000/pkg/observability"
)

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// correlation binds an explicit X-Correlation-ID to the request context and
// echoes it on the response. When the header is absent the event handler
// derives one from the parsed event (event id, then traceparent, then a
// fresh UUID), so nothing is minted here.
func correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(observability.HeaderCorrelationID); id != "" {
			ctx := observability.Bind(c.Request.Context(), id, "", "")
			c.Request = c.Request.WithContext(ctx)
			c.Writer.Header().Set(observability.HeaderCorrelationID, id)
		}
		c.Next()
	}
}
