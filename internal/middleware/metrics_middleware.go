// internal/middleware/metrics_middleware.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"linky-gateway/internal/monitor"
)

// MetricsMiddleware counts requests by route template
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		monitor.RecordHTTPRequest(c.Request.Method, routeLabel(c), c.Writer.Status())
	}
}

// routeLabel keeps path labels bounded to the registered routes
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
