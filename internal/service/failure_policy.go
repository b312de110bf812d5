// internal/service/failure_policy.go
package service

import (
	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

// DefaultInvalidFrameThreshold is the number of consecutive invalid frames tolerated
const DefaultInvalidFrameThreshold = 10

// PolicyState is the failure policy state
type PolicyState string

const (
	PolicyStateStreaming PolicyState = "STREAMING"
	PolicyStateSilent    PolicyState = "SILENT"
	PolicyStateDegraded  PolicyState = "DEGRADED"
)

// PolicyStates lists every state
var PolicyStates = []string{
	string(PolicyStateStreaming),
	string(PolicyStateSilent),
	string(PolicyStateDegraded),
}

// Decision is what the read loop does with a frame
type Decision int

const (
	// DecisionDrop discards the frame
	DecisionDrop Decision = iota
	// DecisionForward hands the frame to the sink
	DecisionForward
	// DecisionReconnect discards the frame and rebuilds the connection
	DecisionReconnect
)

func (d Decision) String() string {
	switch d {
	case DecisionForward:
		return "forward"
	case DecisionReconnect:
		return "reconnect"
	default:
		return "drop"
	}
}

// FailurePolicy tells silence apart from sustained corruption. It belongs to
// one connection and is not safe for concurrent use.
type FailurePolicy struct {
	threshold     int
	invalidCount  int
	previousEmpty bool
	state         PolicyState
	logger        *zap.Logger
}

// NewFailurePolicy creates a policy in the streaming state
func NewFailurePolicy(threshold int, logger *zap.Logger) *FailurePolicy {
	if threshold <= 0 {
		threshold = DefaultInvalidFrameThreshold
	}
	return &FailurePolicy{
		threshold: threshold,
		state:     PolicyStateStreaming,
		logger:    logger,
	}
}

// Evaluate updates the state with one decoded frame
func (p *FailurePolicy) Evaluate(frame *model.Frame) Decision {
	if frame.IsEmpty() {
		if !p.previousEmpty {
			p.logger.Warn("Received empty frame, meter may be disconnected")
		}
		p.previousEmpty = true
		p.state = PolicyStateSilent
		return DecisionDrop
	}
	p.previousEmpty = false

	if frame.IsValid() {
		p.invalidCount = 0
		p.state = PolicyStateStreaming
		return DecisionForward
	}

	p.invalidCount++
	p.state = PolicyStateDegraded
	if p.invalidCount > p.threshold {
		p.logger.Warn("Too many invalid frames, forcing reconnect",
			zap.Int("consecutive_invalid", p.invalidCount),
			zap.Strings("invalid_tags", frame.InvalidTags()),
		)
		p.invalidCount = 0
		return DecisionReconnect
	}

	p.logger.Debug("Dropping invalid frame",
		zap.Int("consecutive_invalid", p.invalidCount),
		zap.Object("frame", frame),
	)
	return DecisionDrop
}

// State returns the current state
func (p *FailurePolicy) State() PolicyState {
	return p.state
}

// InvalidCount returns the consecutive invalid frame count
func (p *FailurePolicy) InvalidCount() int {
	return p.invalidCount
}
