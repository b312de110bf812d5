package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/model"
	"linky-gateway/internal/service"
	"linky-gateway/internal/sink"
	"linky-gateway/internal/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeTelemetry struct {
	status     service.Status
	frame      *model.Frame
	reconnects atomic.Int32
}

func (f *fakeTelemetry) Snapshot() service.Status { return f.status }
func (f *fakeTelemetry) LatestFrame() *model.Frame { return f.frame }
func (f *fakeTelemetry) IsConnected() bool { return f.status.Connected }
func (f *fakeTelemetry) ForceReconnect() { f.reconnects.Add(1) }

type fakeStats struct{ stats sink.ForwarderStats }

func (f fakeStats) Stats() sink.ForwarderStats { return f.stats }

type checkedStats struct {
	fakeStats
	err error
}

func (f checkedStats) Ping(ctx context.Context) error { return f.err }

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Name: "linky-gateway", Version: "test"},
		Sink: config.SinkConfig{Type: config.SinkLog},
	}
}

func sampleFrame() *model.Frame {
	frame := model.NewFrame(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	frame.Values["PAPP"] = "00750"
	frame.Values["BASE"] = "012345678"
	frame.ApparentPower = 750
	frame.PrimaryIndex = 12345678
	return frame
}

func newEngine(telemetry Telemetry, forwarder SinkStats, events EventHistory) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(utils.RequestIDKey, "req-1")
		c.Next()
	})
	NewHealthHandler(telemetry, forwarder, testConfig(), zap.NewNop()).RegisterRoutes(router)
	NewStatusHandler(telemetry, forwarder, events, zap.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestReadinessFollowsConnection(t *testing.T) {
	telemetry := &fakeTelemetry{}
	router := newEngine(telemetry, nil, nil)

	if rec := serve(router, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected /ready = %d", rec.Code)
	}

	telemetry.status.Connected = true
	if rec := serve(router, http.MethodGet, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("connected /ready = %d", rec.Code)
	}

	if rec := serve(router, http.MethodGet, "/live"); rec.Code != http.StatusOK {
		t.Fatalf("/live = %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	telemetry := &fakeTelemetry{status: service.Status{
		Connected:     true,
		DeviceAddress: "192.168.1.50:561",
		State:         service.PolicyStateStreaming,
	}}
	forwarder := fakeStats{stats: sink.ForwarderStats{Published: 3, Dropped: 1}}
	router := newEngine(telemetry, forwarder, nil)

	rec := serve(router, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health = %d", rec.Code)
	}

	var health HealthResponse
	decode(t, rec, &health)
	if health.Status != "healthy" || health.Service != "linky-gateway" {
		t.Fatalf("health = %+v", health)
	}
	if got := health.Checks["device"].Data["address"]; got != "192.168.1.50:561" {
		t.Errorf("device address = %v", got)
	}
	if got := health.Checks["sink"].Data["published"]; got != float64(3) {
		t.Errorf("sink published = %v", got)
	}

	telemetry.status.Connected = false
	if rec := serve(router, http.MethodGet, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected /health = %d", rec.Code)
	}
}

func TestHealthCheckSinkDown(t *testing.T) {
	telemetry := &fakeTelemetry{status: service.Status{Connected: true}}
	router := newEngine(telemetry, checkedStats{err: errors.New("redis ping failed")}, nil)

	rec := serve(router, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("/health with a failing sink = %d", rec.Code)
	}

	var health HealthResponse
	decode(t, rec, &health)
	if health.Status != "degraded" {
		t.Fatalf("status = %s", health.Status)
	}
	if check := health.Checks["sink"]; check.Status != "unhealthy" || check.Message != "redis ping failed" {
		t.Fatalf("sink check = %+v", check)
	}

	telemetry.status.Connected = false
	if rec := serve(router, http.MethodGet, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disconnected /health = %d", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	telemetry := &fakeTelemetry{status: service.Status{
		State:       service.PolicyStateDegraded,
		Connected:   true,
		FramesValid: 12,
		Reconnects:  2,
	}}
	router := newEngine(telemetry, fakeStats{stats: sink.ForwarderStats{Published: 12}}, nil)

	rec := serve(router, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		utils.APIResponse
		Data StatusResponse `json:"data"`
	}
	decode(t, rec, &body)
	if !body.Success || body.RequestID != "req-1" {
		t.Fatalf("envelope = %+v", body.APIResponse)
	}
	if body.Data.Telemetry.State != service.PolicyStateDegraded || body.Data.Telemetry.FramesValid != 12 {
		t.Errorf("telemetry = %+v", body.Data.Telemetry)
	}
	if body.Data.Sink == nil || body.Data.Sink.Published != 12 {
		t.Errorf("sink = %+v", body.Data.Sink)
	}
}

func TestGetLatestFrame(t *testing.T) {
	telemetry := &fakeTelemetry{}
	router := newEngine(telemetry, nil, nil)

	rec := serve(router, http.MethodGet, "/api/v1/frames/latest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("no frame = %d", rec.Code)
	}
	var failure utils.APIResponse
	decode(t, rec, &failure)
	if failure.Success || failure.Error == nil || failure.Error.Code != "NOT_FOUND" {
		t.Fatalf("error body = %+v", failure)
	}

	telemetry.frame = sampleFrame()
	rec = serve(router, http.MethodGet, "/api/v1/frames/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("latest = %d", rec.Code)
	}
	var body struct {
		Data model.Frame `json:"data"`
	}
	decode(t, rec, &body)
	if body.Data.ApparentPower != 750 || body.Data.Values["BASE"] != "012345678" {
		t.Fatalf("frame = %+v", body.Data)
	}
}

func TestReconnect(t *testing.T) {
	telemetry := &fakeTelemetry{}
	router := newEngine(telemetry, nil, nil)

	if rec := serve(router, http.MethodPost, "/api/v1/reconnect"); rec.Code != http.StatusAccepted {
		t.Fatalf("reconnect = %d", rec.Code)
	}
	if got := telemetry.reconnects.Load(); got != 1 {
		t.Fatalf("ForceReconnect called %d times", got)
	}
}

func TestListEvents(t *testing.T) {
	bus := NewEventBus(10, zap.NewNop())
	bus.HandleEvent(model.NewGatewayEvent(model.EventDeviceConnected, "INFO", nil))
	bus.HandleEvent(model.NewGatewayEvent(model.EventReadTimeout, "WARNING", nil))
	router := newEngine(&fakeTelemetry{}, nil, bus)

	rec := serve(router, http.MethodGet, "/api/v1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("events = %d", rec.Code)
	}
	var body struct {
		Data struct {
			Events []model.GatewayEvent `json:"events"`
			Count  int                  `json:"count"`
		} `json:"data"`
	}
	decode(t, rec, &body)
	if body.Data.Count != 2 || body.Data.Events[1].EventType != model.EventReadTimeout {
		t.Fatalf("events = %+v", body.Data)
	}
}

func TestListEventsWithoutBus(t *testing.T) {
	router := newEngine(&fakeTelemetry{}, nil, nil)

	rec := serve(router, http.MethodGet, "/api/v1/events")
	var body struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	decode(t, rec, &body)
	if rec.Code != http.StatusOK || body.Data.Count != 0 {
		t.Fatalf("events = %d %s", rec.Code, rec.Body.String())
	}
}
