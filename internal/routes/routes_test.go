package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/model"
	"linky-gateway/internal/service"
	"linky-gateway/internal/utils"
)

type idleTelemetry struct{}

func (idleTelemetry) Snapshot() service.Status { return service.Status{State: service.PolicyStateSilent} }
func (idleTelemetry) LatestFrame() *model.Frame { return nil }
func (idleTelemetry) IsConnected() bool { return false }
func (idleTelemetry) ForceReconnect() {}

func TestSetupRouter(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Name: "linky-gateway", Environment: "test"}}
	router := NewRouter(cfg, zap.NewNop(), idleTelemetry{}, nil, nil, nil).SetupRouter()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodGet, "/api/v1/frames/latest", http.StatusNotFound},
		{http.MethodPost, "/api/v1/reconnect", http.StatusAccepted},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/ws/frames", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if rec.Header().Get(utils.RequestIDKey) == "" {
				t.Fatalf("missing request id header")
			}
		})
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Environment: "test"}}
	router := NewRouter(cfg, zap.NewNop(), idleTelemetry{}, nil, nil, nil).SetupRouter()

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `linky_gateway_http_requests_total{method="GET",path="/live",status="200"}`) {
		t.Fatalf("request counter missing from /metrics")
	}
	if !strings.Contains(body, "linky_gateway_connection_up") {
		t.Fatalf("connection gauge missing from /metrics")
	}
}
