// internal/handler/health_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/sink"
	"linky-gateway/internal/utils"
)

const sinkPingTimeout = 2 * time.Second

// HealthHandler handles health check requests
type HealthHandler struct {
	telemetry Telemetry
	forwarder SinkStats
	config    *config.Config
	startedAt time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler. forwarder may be nil.
func NewHealthHandler(telemetry Telemetry, forwarder SinkStats, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		telemetry: telemetry,
		forwarder: forwarder,
		config:    config,
		startedAt: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports the meter connection and the sink pipeline
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	status := h.telemetry.Snapshot()
	if status.Connected {
		health.Checks["device"] = CheckResult{
			Status:  "healthy",
			Message: "Meter connection OK",
			Data: map[string]interface{}{
				"address": status.DeviceAddress,
				"state":   status.State,
			},
		}
	} else {
		health.Status = "unhealthy"
		health.Checks["device"] = CheckResult{
			Status:  "unhealthy",
			Message: "No meter connection",
			Data: map[string]interface{}{
				"device_status": status.DeviceStatus,
			},
		}
	}

	if h.forwarder != nil {
		stats := h.forwarder.Stats()
		check := CheckResult{
			Status: "healthy",
			Data: map[string]interface{}{
				"type":      h.config.Sink.Type,
				"published": stats.Published,
				"failed":    stats.Failed,
				"dropped":   stats.Dropped,
				"queued":    stats.Queued,
			},
		}

		if checker, ok := h.forwarder.(sink.HealthChecker); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), sinkPingTimeout)
			err := checker.Ping(ctx)
			cancel()
			if err != nil {
				h.logger.Warn("Sink health check failed", zap.String("sink", h.config.Sink.Type), zap.Error(err))
				check.Status = "unhealthy"
				check.Message = err.Error()
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
			}
		}
		health.Checks["sink"] = check
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck is ready only while a meter connection is live
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.telemetry.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "meter not connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
