// internal/sink/log.go
package sink

import (
	"context"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

// LogSink writes frames to the application log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the frame
func (s *LogSink) Publish(ctx context.Context, frame *model.Frame) error {
	s.logger.Info("Frame published", zap.Object("frame", frame))
	return nil
}

// Name returns the sink type
func (s *LogSink) Name() string { return "log" }

// Close is a no-op
func (s *LogSink) Close() error { return nil }
