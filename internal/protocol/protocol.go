// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"linky-gateway/internal/model"
)

var (
	// ErrReadTimeout is returned when no byte arrived within the read timeout
	ErrReadTimeout = errors.New("read timed out")
	// ErrNotOpen is returned by operations on a closed connection
	ErrNotOpen = errors.New("connection not open")
)

// DeviceProtocol represents a byte stream from the meter interface
type DeviceProtocol interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Read blocks for at most timeout and returns ErrReadTimeout when nothing arrived
	Read(ctx context.Context, buf []byte, timeout time.Duration) (int, error)

	// ReceiveBufferSize is the read buffer size matching the stream's receive buffer
	ReceiveBufferSize() int

	// Protocol information
	GetProtocolType() model.ConnectionType
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesRead    int64     `json:"bytes_read"`
	ReadCount    int64     `json:"read_count"`
	TimeoutCount int64     `json:"timeout_count"`
	ErrorCount   int64     `json:"error_count"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}

// statsCounter is shared by the implementations; Stats may be read from any goroutine
type statsCounter struct {
	bytesRead    atomic.Int64
	reads        atomic.Int64
	timeouts     atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Int64
	connected    atomic.Bool
}

func (s *statsCounter) recordRead(n int) {
	s.bytesRead.Add(int64(n))
	s.reads.Add(1)
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *statsCounter) snapshot() ProtocolStats {
	stats := ProtocolStats{
		BytesRead:    s.bytesRead.Load(),
		ReadCount:    s.reads.Load(),
		TimeoutCount: s.timeouts.Load(),
		ErrorCount:   s.errors.Load(),
		IsConnected:  s.connected.Load(),
	}
	if ts := s.lastActivity.Load(); ts > 0 {
		stats.LastActivity = time.Unix(0, ts)
	}
	return stats
}
