// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linky-gateway/internal/monitor"
	"linky-gateway/internal/utils"
)

// RecoveryMiddleware turns a handler panic into a 500. Panicking requests skip
// the metrics middleware and are counted here.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("route", routeLabel(c)),
			zap.String("method", c.Request.Method),
			zap.String("request_id", utils.RequestID(c)),
			zap.Stack("stacktrace"),
		)
		monitor.RecordHTTPRequest(c.Request.Method, routeLabel(c), http.StatusInternalServerError)

		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", nil)
	})
}
