// internal/service/telemetry_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"

	"linky-gateway/internal/model"
	"linky-gateway/internal/monitor"
	"linky-gateway/internal/protocol"
	"linky-gateway/internal/tic"
	"linky-gateway/internal/utils"
)

// Reconnect reasons
const (
	ReasonInitial       = "initial"
	ReasonReadTimeout   = "read_timeout"
	ReasonReadError     = "read_error"
	ReasonInvalidFrames = "invalid_frames"
	ReasonForced        = "forced"
)

// ProtocolFactory returns a fresh, unopened connection to the meter
type ProtocolFactory func() (protocol.DeviceProtocol, error)

// FrameHandler receives every valid frame. HandleFrame must not block.
type FrameHandler interface {
	HandleFrame(frame *model.Frame)
}

// EventHandler receives connection lifecycle events. HandleEvent must not block.
type EventHandler interface {
	HandleEvent(event *model.GatewayEvent)
}

// FrameHandlers fans a frame out to several handlers
type FrameHandlers []FrameHandler

// HandleFrame implements FrameHandler
func (hs FrameHandlers) HandleFrame(frame *model.Frame) {
	for _, h := range hs {
		h.HandleFrame(frame)
	}
}

// TelemetryConfig holds the read loop settings
type TelemetryConfig struct {
	DeviceAddress         string
	ReadTimeout           time.Duration
	DrainTimeout          time.Duration
	ConnectTimeout        time.Duration
	ReconnectAttempts     uint
	ReconnectDelay        time.Duration
	InvalidFrameThreshold int
	MaxFrameSize          int
	PrimaryIndexTag       string
}

// Status is a point-in-time view of the service
type Status struct {
	State          PolicyState            `json:"state"`
	Connected      bool                   `json:"connected"`
	DeviceAddress  string                 `json:"device_address,omitempty"`
	Transport      model.ConnectionType   `json:"transport,omitempty"`
	DeviceStatus   model.DeviceStatus     `json:"device_status"`
	ConnectedAt    *time.Time             `json:"connected_at,omitempty"`
	Reconnects     int64                  `json:"reconnects"`
	ReadTimeouts   int64                  `json:"read_timeouts"`
	FramesValid    int64                  `json:"frames_valid"`
	FramesInvalid  int64                  `json:"frames_invalid"`
	FramesEmpty    int64                  `json:"frames_empty"`
	InvalidStreak  int                    `json:"invalid_streak"`
	LastFrameAt    *time.Time             `json:"last_frame_at,omitempty"`
	ConnectionInfo protocol.ProtocolStats `json:"connection"`
}

// connection is everything tied to one open stream. It is replaced as a whole
// on reconnect and never mutated across connections.
type connection struct {
	proto     protocol.DeviceProtocol
	buf       []byte
	assembler *tic.Assembler
	policy    *FailurePolicy
	openedAt  time.Time
}

// TelemetryService owns the meter connection and the read loop
type TelemetryService struct {
	config  TelemetryConfig
	factory ProtocolFactory
	decoder *tic.Decoder
	frames  FrameHandler
	events  EventHandler
	logger  *utils.ServiceLogger

	reconnectRequested atomic.Bool

	mutex       sync.RWMutex
	status      Status
	latestFrame *model.Frame
	current     protocol.DeviceProtocol
}

// NewTelemetryService creates a new telemetry service
func NewTelemetryService(
	config TelemetryConfig,
	factory ProtocolFactory,
	frames FrameHandler,
	events EventHandler,
	logger *zap.Logger,
) *TelemetryService {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 50 * time.Millisecond
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.ReconnectAttempts == 0 {
		config.ReconnectAttempts = 5
	}
	if frames == nil {
		frames = FrameHandlers{}
	}

	return &TelemetryService{
		config:  config,
		factory: factory,
		decoder: &tic.Decoder{PrimaryIndexTag: config.PrimaryIndexTag},
		frames:  frames,
		events:  events,
		logger:  utils.NewServiceLogger(logger, "telemetry-service"),
		status: Status{
			State:         PolicyStateStreaming,
			DeviceAddress: config.DeviceAddress,
			DeviceStatus:  model.DeviceStatusOffline,
		},
	}
}

// Run connects and processes the stream until ctx is done or a fatal error occurs.
// It returns nil on cancellation.
func (ts *TelemetryService) Run(ctx context.Context) error {
	conn, err := ts.reconnect(ctx, nil, ReasonInitial)
	if err != nil {
		return ts.fatal(ctx, err)
	}
	defer func() {
		ts.teardown(conn)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if ts.reconnectRequested.Swap(false) {
			if conn, err = ts.reconnect(ctx, conn, ReasonForced); err != nil {
				return ts.fatal(ctx, err)
			}
			continue
		}

		n, err := conn.proto.Read(ctx, conn.buf, ts.config.ReadTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			reason := ReasonReadError
			if errors.Is(err, protocol.ErrReadTimeout) {
				reason = ReasonReadTimeout
				ts.recordReadTimeout()
			} else {
				ts.logger.Warn("Read failed, reconnecting", zap.Error(err))
			}
			if conn, err = ts.reconnect(ctx, conn, reason); err != nil {
				return ts.fatal(ctx, err)
			}
			continue
		}

		rebuild := ts.consume(conn, conn.buf[:n])
		for !rebuild {
			n, err = conn.proto.Read(ctx, conn.buf, ts.config.DrainTimeout)
			if err != nil || n == 0 {
				break
			}
			rebuild = ts.consume(conn, conn.buf[:n])
		}

		if rebuild {
			ts.emit(model.EventReconnectForced, "WARNING", model.JSONObject{"reason": ReasonInvalidFrames})
			if conn, err = ts.reconnect(ctx, conn, ReasonInvalidFrames); err != nil {
				return ts.fatal(ctx, err)
			}
		}
	}
}

// ForceReconnect asks the read loop to rebuild the connection before its next read
func (ts *TelemetryService) ForceReconnect() {
	ts.reconnectRequested.Store(true)
}

// Snapshot returns the current status
func (ts *TelemetryService) Snapshot() Status {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()

	status := ts.status
	if ts.current != nil {
		status.ConnectionInfo = ts.current.Stats()
	}
	return status
}

// LatestFrame returns the last valid frame, or nil
func (ts *TelemetryService) LatestFrame() *model.Frame {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	return ts.latestFrame
}

// IsConnected reports whether a meter connection is live
func (ts *TelemetryService) IsConnected() bool {
	ts.mutex.RLock()
	defer ts.mutex.RUnlock()
	return ts.status.Connected
}

// consume feeds one chunk through the assembler, decoder and policy and
// reports whether the connection must be rebuilt
func (ts *TelemetryService) consume(conn *connection, chunk []byte) bool {
	monitor.RecordChunk(len(chunk))

	for _, raw := range conn.assembler.Feed(chunk) {
		frame := ts.decoder.Decode(raw)
		wasSilent := conn.policy.State() == PolicyStateSilent
		decision := conn.policy.Evaluate(frame)
		ts.recordFrame(conn.policy, frame)

		switch decision {
		case DecisionForward:
			ts.logger.LogFrame("Frame received", frame)
			ts.frames.HandleFrame(frame)
		case DecisionReconnect:
			return true
		default:
			if frame.IsEmpty() && !wasSilent {
				ts.emit(model.EventFrameEmpty, "WARNING", nil)
			}
		}
	}
	return false
}

// reconnect tears old down and opens a fresh connection within the retry budget
func (ts *TelemetryService) reconnect(ctx context.Context, old *connection, reason string) (*connection, error) {
	if old != nil {
		ts.teardown(old)
	}
	ts.setDeviceStatus(model.DeviceStatusConnecting)
	monitor.RecordReconnect(reason)

	var fresh *connection
	err := retry.Do(
		func() error {
			proto, err := ts.factory()
			if err != nil {
				return err
			}
			openCtx, cancel := context.WithTimeout(ctx, ts.config.ConnectTimeout)
			defer cancel()
			if err := proto.Open(openCtx); err != nil {
				return err
			}
			fresh = ts.newConnection(proto)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(ts.config.ReconnectAttempts),
		retry.Delay(ts.config.ReconnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isSocketError),
		retry.OnRetry(func(n uint, err error) {
			ts.logger.Warn("Connect attempt failed",
				zap.Uint("attempt", n+1),
				zap.Uint("max_attempts", ts.config.ReconnectAttempts),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		ts.setDeviceStatus(model.DeviceStatusOffline)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isSocketError(err) {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, ts.config.ReconnectAttempts, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectAborted, err)
	}

	ts.install(fresh, reason)
	return fresh, nil
}

func (ts *TelemetryService) newConnection(proto protocol.DeviceProtocol) *connection {
	size := proto.ReceiveBufferSize()
	if size <= 0 {
		size = protocol.DefaultBufferSize
	}
	return &connection{
		proto:     proto,
		buf:       make([]byte, size),
		assembler: tic.NewAssembler(ts.config.MaxFrameSize),
		policy:    NewFailurePolicy(ts.config.InvalidFrameThreshold, ts.logger.Logger),
		openedAt:  time.Now(),
	}
}

func (ts *TelemetryService) install(conn *connection, reason string) {
	ts.mutex.Lock()
	ts.current = conn.proto
	ts.status.Connected = true
	ts.status.DeviceStatus = model.DeviceStatusOnline
	ts.status.Transport = conn.proto.GetProtocolType()
	ts.status.ConnectedAt = &conn.openedAt
	ts.status.State = conn.policy.State()
	ts.status.InvalidStreak = 0
	if reason != ReasonInitial {
		ts.status.Reconnects++
	}
	ts.mutex.Unlock()

	monitor.SetConnectionUp(true)
	monitor.SetPolicyState(string(conn.policy.State()), PolicyStates...)

	ts.logger.Info("Connected to meter",
		zap.String("address", ts.config.DeviceAddress),
		zap.String("transport", string(conn.proto.GetProtocolType())),
		zap.Int("buffer_size", len(conn.buf)),
		zap.String("reason", reason),
	)
	ts.emit(model.EventDeviceConnected, "INFO", model.JSONObject{
		"address": ts.config.DeviceAddress,
		"reason":  reason,
	})
}

func (ts *TelemetryService) teardown(conn *connection) {
	if conn == nil {
		return
	}
	if conn.assembler.Pending() {
		ts.logger.Debug("Discarding partial frame")
	}
	if err := conn.proto.Close(); err != nil {
		ts.logger.Warn("Failed to close connection", zap.Error(err))
	}

	stats := conn.proto.Stats()
	ts.logger.Info("Connection closed",
		zap.Duration("open_for", time.Since(conn.openedAt)),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("reads", stats.ReadCount),
		zap.Int64("timeouts", stats.TimeoutCount),
	)

	ts.mutex.Lock()
	if ts.current == conn.proto {
		ts.current = nil
	}
	ts.status.Connected = false
	ts.mutex.Unlock()

	monitor.SetConnectionUp(false)
	ts.emit(model.EventDeviceDisconnected, "INFO", nil)
}

func (ts *TelemetryService) recordReadTimeout() {
	ts.logger.Warn("No data within read timeout, reconnecting",
		zap.Duration("read_timeout", ts.config.ReadTimeout),
	)
	monitor.RecordReadTimeout()

	ts.mutex.Lock()
	ts.status.ReadTimeouts++
	ts.mutex.Unlock()

	ts.emit(model.EventReadTimeout, "WARNING", model.JSONObject{
		"read_timeout": ts.config.ReadTimeout.String(),
	})
}

func (ts *TelemetryService) recordFrame(policy *FailurePolicy, frame *model.Frame) {
	outcome := monitor.OutcomeInvalid
	switch {
	case frame.IsEmpty():
		outcome = monitor.OutcomeEmpty
	case frame.IsValid():
		outcome = monitor.OutcomeValid
	}
	monitor.RecordFrame(outcome, len(frame.InvalidTags()))
	monitor.SetPolicyState(string(policy.State()), PolicyStates...)

	ts.mutex.Lock()
	defer ts.mutex.Unlock()

	ts.status.State = policy.State()
	ts.status.InvalidStreak = policy.InvalidCount()
	switch outcome {
	case monitor.OutcomeEmpty:
		ts.status.FramesEmpty++
	case monitor.OutcomeValid:
		ts.status.FramesValid++
		ts.latestFrame = frame
		capturedAt := frame.CapturedAt
		ts.status.LastFrameAt = &capturedAt
	default:
		ts.status.FramesInvalid++
	}
}

func (ts *TelemetryService) setDeviceStatus(status model.DeviceStatus) {
	ts.mutex.Lock()
	ts.status.DeviceStatus = status
	ts.mutex.Unlock()
}

func (ts *TelemetryService) emit(eventType model.EventType, severity string, data model.JSONObject) {
	if ts.events == nil {
		return
	}
	ts.events.HandleEvent(model.NewGatewayEvent(eventType, severity, data))
}

// fatal logs a terminal error; cancellation is not an error
func (ts *TelemetryService) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	ts.logger.Error("Telemetry stopped", zap.Error(err))
	return err
}
