// internal/handler/status_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linky-gateway/internal/model"
	"linky-gateway/internal/service"
	"linky-gateway/internal/sink"
	"linky-gateway/internal/utils"
)

// Telemetry is the read side of the telemetry service plus the reconnect trigger
type Telemetry interface {
	Snapshot() service.Status
	LatestFrame() *model.Frame
	IsConnected() bool
	ForceReconnect()
}

// SinkStats exposes forwarder counters
type SinkStats interface {
	Stats() sink.ForwarderStats
}

// EventHistory exposes recently published gateway events
type EventHistory interface {
	Recent() []*model.GatewayEvent
}

// StatusHandler serves the gateway status API
type StatusHandler struct {
	telemetry Telemetry
	forwarder SinkStats
	events    EventHistory
	logger    *utils.ServiceLogger
}

// NewStatusHandler creates a new status handler. forwarder and events may be nil.
func NewStatusHandler(telemetry Telemetry, forwarder SinkStats, events EventHistory, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		telemetry: telemetry,
		forwarder: forwarder,
		events:    events,
		logger:    utils.NewServiceLogger(logger, "status-handler"),
	}
}

// RegisterRoutes registers status routes
func (h *StatusHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/status", h.GetStatus)
	router.GET("/frames/latest", h.GetLatestFrame)
	router.GET("/events", h.ListEvents)
	router.POST("/reconnect", h.Reconnect)
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Telemetry service.Status        `json:"telemetry"`
	Sink      *sink.ForwarderStats `json:"sink,omitempty"`
}

// GetStatus returns the state machine state, the connection and the counters
func (h *StatusHandler) GetStatus(c *gin.Context) {
	response := StatusResponse{Telemetry: h.telemetry.Snapshot()}
	if h.forwarder != nil {
		stats := h.forwarder.Stats()
		response.Sink = &stats
	}

	utils.SuccessResponse(c, http.StatusOK, "Status retrieved successfully", response)
}

// GetLatestFrame returns the last valid frame
func (h *StatusHandler) GetLatestFrame(c *gin.Context) {
	frame := h.telemetry.LatestFrame()
	if frame == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "No valid frame received yet", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Frame retrieved successfully", frame)
}

// ListEvents returns the most recent gateway events, oldest first
func (h *StatusHandler) ListEvents(c *gin.Context) {
	events := []*model.GatewayEvent{}
	if h.events != nil {
		events = append(events, h.events.Recent()...)
	}

	utils.SuccessResponse(c, http.StatusOK, "Events retrieved successfully", gin.H{
		"events": events,
		"count":  len(events),
	})
}

// Reconnect asks the read loop to rebuild the meter connection
func (h *StatusHandler) Reconnect(c *gin.Context) {
	h.telemetry.ForceReconnect()
	h.logger.Info("Reconnect requested",
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", utils.RequestID(c)),
	)

	utils.SuccessResponse(c, http.StatusAccepted, "Reconnect scheduled", nil)
}
