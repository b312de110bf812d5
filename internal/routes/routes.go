// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/handler"
	"linky-gateway/internal/middleware"
	"linky-gateway/internal/monitor"
	"linky-gateway/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config    *config.Config
	logger    *zap.Logger
	telemetry handler.Telemetry
	forwarder handler.SinkStats
	events    handler.EventHistory
	websocket *handler.WebSocketHandler
}

// NewRouter creates a new router instance. forwarder and events may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	telemetry handler.Telemetry,
	forwarder handler.SinkStats,
	events handler.EventHistory,
	websocket *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:    config,
		logger:    logger,
		telemetry: telemetry,
		forwarder: forwarder,
		events:    events,
		websocket: websocket,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http-server")))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware(&r.config.Server))
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	handler.NewHealthHandler(r.telemetry, r.forwarder, r.config, r.logger).RegisterRoutes(router)

	handler.NewStatusHandler(r.telemetry, r.forwarder, r.events, r.logger).
		RegisterRoutes(router.Group("/api/v1"))

	if r.websocket != nil {
		r.websocket.RegisterRoutes(router.Group("/ws"))
	}

	router.GET("/metrics", gin.WrapH(monitor.Handler()))

	r.logger.Info("All routes configured successfully")
}
