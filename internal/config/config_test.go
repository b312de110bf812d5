package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"linky-gateway/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Device.TelemetryPort != 561 || cfg.Device.ReadTimeout != 5*time.Second {
		t.Errorf("device defaults = %d/%s", cfg.Device.TelemetryPort, cfg.Device.ReadTimeout)
	}
	if cfg.Device.ReconnectAttempts != 5 || cfg.Device.InvalidFrameThreshold != 10 {
		t.Errorf("recovery defaults = %d/%d", cfg.Device.ReconnectAttempts, cfg.Device.InvalidFrameThreshold)
	}
	if cfg.Discovery.Port != 51 || cfg.Discovery.Probe != "LinkyPIC" || cfg.Discovery.Timeout != 1500*time.Millisecond {
		t.Errorf("discovery defaults = %+v", cfg.Discovery)
	}
	if cfg.Device.Serial.BaudRate != 1200 || cfg.Device.Serial.DataBits != 7 || cfg.Device.Serial.Parity != "even" {
		t.Errorf("serial defaults = %+v", cfg.Device.Serial)
	}
	if !cfg.Device.NeedsDiscovery() {
		t.Errorf("empty address over tcp should need discovery")
	}
	if cfg.Device.ConnectionType() != model.ConnectionTypeTCP {
		t.Errorf("ConnectionType = %s", cfg.Device.ConnectionType())
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
device:
  address: 192.168.1.40
  read_timeout: 8s
sink:
  type: redis
  url: redis://localhost:6379/0
  destination: linky
logging:
  level: debug
`)
	t.Setenv("LINKY_GATEWAY_SINK_DESTINATION", "meters")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("device", "", "")
	if err := flags.Parse([]string{"--log-level=warn"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Address != "192.168.1.40" || cfg.Device.ReadTimeout != 8*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Device)
	}
	if cfg.Sink.Destination != "meters" {
		t.Errorf("env override not applied: %q", cfg.Sink.Destination)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("flag override not applied: %q", cfg.Logging.Level)
	}
	if cfg.Device.NeedsDiscovery() {
		t.Errorf("configured address should skip discovery")
	}
	if got := cfg.Device.TelemetryAddress(); got != "192.168.1.40:561" {
		t.Errorf("TelemetryAddress = %q", got)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatalf("expected an error for a missing explicit config file")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad transport", "device:\n  transport: usb\n", "device.transport"},
		{"serial without port", "device:\n  transport: serial\n", "device.serial.port"},
		{"zero attempts", "device:\n  reconnect_attempts: 0\n", "reconnect_attempts"},
		{"drain longer than read", "device:\n  drain_timeout: 10s\n", "drain_timeout"},
		{"unknown sink", "sink:\n  type: kafka\n", "sink.type"},
		{"postgres table", "sink:\n  type: postgres\n  url: postgres://localhost/linky\n  destination: \"readings; drop\"\n", "table name"},
		{"sink without url", "sink:\n  url: \"\"\n", "sink.url"},
		{"bad level", "logging:\n  level: verbose\n", "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadLogSinkNeedsNoURL(t *testing.T) {
	cfg, err := Load(writeConfig(t, "sink:\n  type: log\n  url: \"\"\n"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sink.Type != SinkLog {
		t.Fatalf("Sink.Type = %q", cfg.Sink.Type)
	}
}
