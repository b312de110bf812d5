package handler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

func TestEventBusHistoryIsBounded(t *testing.T) {
	bus := NewEventBus(2, zap.NewNop())
	for _, eventType := range []model.EventType{model.EventDeviceConnected, model.EventReadTimeout, model.EventDeviceDisconnected} {
		bus.HandleEvent(model.NewGatewayEvent(eventType, "INFO", nil))
	}

	recent := bus.Recent()
	if len(recent) != 2 {
		t.Fatalf("history = %d events", len(recent))
	}
	if recent[0].EventType != model.EventReadTimeout || recent[1].EventType != model.EventDeviceDisconnected {
		t.Fatalf("history = %s, %s", recent[0].EventType, recent[1].EventType)
	}
}

func TestEventBusDistributes(t *testing.T) {
	bus := NewEventBus(0, zap.NewNop())
	first, second := bus.Subscribe(), bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	bus.HandleEvent(model.NewGatewayEvent(model.EventReconnectForced, "INFO", nil))
	for _, subscriber := range []<-chan *model.GatewayEvent{first, second} {
		select {
		case event := <-subscriber:
			if event.EventType != model.EventReconnectForced {
				t.Fatalf("event = %s", event.EventType)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event not delivered")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if _, ok := <-first; ok {
		t.Fatalf("subscriber channel should be closed after Run")
	}
}
