// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventReadTimeout        EventType = "READ_TIMEOUT"
	EventReconnectForced    EventType = "RECONNECT_FORCED"
	EventFrameEmpty         EventType = "FRAME_EMPTY"
	EventFrameReceived      EventType = "FRAME_RECEIVED"
)

// GatewayEvent represents an event broadcast to live clients
type GatewayEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	Data      JSONObject `json:"data,omitempty"`
	Frame     *Frame     `json:"frame,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewGatewayEvent creates an event stamped now
func NewGatewayEvent(eventType EventType, severity string, data JSONObject) *GatewayEvent {
	return &GatewayEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}
