// internal/handler/event_bus.go
package handler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

// DefaultEventHistory is the number of events kept for GET /events
const DefaultEventHistory = 100

// EventBus fans gateway events out to subscribers and keeps a short history
type EventBus struct {
	subscribers []chan *model.GatewayEvent
	events      chan *model.GatewayEvent
	history     []*model.GatewayEvent
	historySize int
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new event bus
func NewEventBus(historySize int, logger *zap.Logger) *EventBus {
	if historySize <= 0 {
		historySize = DefaultEventHistory
	}
	return &EventBus{
		events:      make(chan *model.GatewayEvent, 1000),
		historySize: historySize,
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// HandleEvent publishes an event without blocking the caller
func (eb *EventBus) HandleEvent(event *model.GatewayEvent) {
	eb.mutex.Lock()
	eb.history = append(eb.history, event)
	if len(eb.history) > eb.historySize {
		eb.history = eb.history[len(eb.history)-eb.historySize:]
	}
	eb.mutex.Unlock()

	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe returns a channel receiving every event. It is closed when Run returns.
func (eb *EventBus) Subscribe() <-chan *model.GatewayEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan *model.GatewayEvent, 100)
	eb.subscribers = append(eb.subscribers, subscriber)
	return subscriber
}

// Recent returns a copy of the event history, oldest first
func (eb *EventBus) Recent() []*model.GatewayEvent {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	recent := make([]*model.GatewayEvent, len(eb.history))
	copy(recent, eb.history)
	return recent
}

// Run distributes events until ctx is done
func (eb *EventBus) Run(ctx context.Context) error {
	defer eb.closeSubscribers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

func (eb *EventBus) distributeEvent(event *model.GatewayEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			// slow subscriber
		}
	}
}

func (eb *EventBus) closeSubscribers() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for _, subscriber := range eb.subscribers {
		close(subscriber)
	}
	eb.subscribers = nil
}
