// internal/sink/forwarder.go
package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
	"linky-gateway/internal/monitor"
)

// DefaultQueueSize is the number of frames waiting for the sink
const DefaultQueueSize = 64

// ForwarderStats counts forwarded records
type ForwarderStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Forwarder hands frames to the sink off the read loop. Delivery is at most
// once: a full queue or a sink failure drops the record.
type Forwarder struct {
	sink    Sink
	queue   chan *model.Frame
	timeout time.Duration
	logger  *zap.Logger

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewForwarder creates a forwarder with a bounded queue
func NewForwarder(sink Sink, queueSize int, timeout time.Duration, logger *zap.Logger) *Forwarder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{
		sink:    sink,
		queue:   make(chan *model.Frame, queueSize),
		timeout: timeout,
		logger:  logger.With(zap.String("component", "forwarder"), zap.String("sink", sink.Name())),
	}
}

// HandleFrame queues frame without blocking
func (f *Forwarder) HandleFrame(frame *model.Frame) {
	select {
	case f.queue <- frame:
	default:
		f.dropped.Add(1)
		monitor.RecordSinkDrop(f.sink.Name())
		f.logger.Warn("Sink queue full, dropping frame",
			zap.Time("captured_at", frame.CapturedAt),
			zap.Int("queue_size", cap(f.queue)),
		)
	}
}

// Run publishes queued frames until ctx is done
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(f.queue); pending > 0 {
				f.logger.Info("Forwarder stopping with pending frames", zap.Int("pending", pending))
			}
			return nil
		case frame := <-f.queue:
			f.publish(ctx, frame)
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, frame *model.Frame) {
	publishCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	err := f.sink.Publish(publishCtx, frame)
	monitor.RecordSinkPublish(f.sink.Name(), time.Since(start), err)

	if err != nil {
		f.failed.Add(1)
		f.logger.Warn("Sink failure, record dropped",
			zap.Time("captured_at", frame.CapturedAt),
			zap.Error(err),
		)
		return
	}
	f.published.Add(1)
}

// Ping checks the sink when it can be checked
func (f *Forwarder) Ping(ctx context.Context) error {
	checker, ok := f.sink.(HealthChecker)
	if !ok {
		return nil
	}
	return checker.Ping(ctx)
}

// Stats returns forwarding counters
func (f *Forwarder) Stats() ForwarderStats {
	return ForwarderStats{
		Published: f.published.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
		Queued:    len(f.queue),
	}
}
