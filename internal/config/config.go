// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"linky-gateway/internal/model"
)

// EnvPrefix is the prefix of environment overrides, e.g. LINKY_GATEWAY_DEVICE_ADDRESS
const EnvPrefix = "LINKY_GATEWAY"

// Sink types
const (
	SinkElasticsearch = "elasticsearch"
	SinkRedis         = "redis"
	SinkPostgres      = "postgres"
	SinkLog           = "log"
)

// Transports
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Device    DeviceConfig    `mapstructure:"device"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sink      SinkConfig      `mapstructure:"sink"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// DeviceConfig represents the meter interface connection
type DeviceConfig struct {
	Address               string           `mapstructure:"address"`
	Transport             string           `mapstructure:"transport"`
	TelemetryPort         int              `mapstructure:"telemetry_port"`
	ReadTimeout           time.Duration    `mapstructure:"read_timeout"`
	DrainTimeout          time.Duration    `mapstructure:"drain_timeout"`
	ConnectTimeout        time.Duration    `mapstructure:"connect_timeout"`
	BufferSize            int              `mapstructure:"buffer_size"`
	KeepAlive             bool             `mapstructure:"keep_alive"`
	ReconnectAttempts     int              `mapstructure:"reconnect_attempts"`
	ReconnectDelay        time.Duration    `mapstructure:"reconnect_delay"`
	InvalidFrameThreshold int              `mapstructure:"invalid_frame_threshold"`
	MaxFrameSize          int              `mapstructure:"max_frame_size"`
	PrimaryIndexTag       string           `mapstructure:"primary_index_tag"`
	Serial                SerialPortConfig `mapstructure:"serial"`
}

// SerialPortConfig represents serial port configuration
type SerialPortConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
}

// DiscoveryConfig represents the UDP broadcast discovery exchange
type DiscoveryConfig struct {
	Port     int           `mapstructure:"port"`
	Probe    string        `mapstructure:"probe"`
	Attempts int           `mapstructure:"attempts"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SinkConfig represents the downstream sink
type SinkConfig struct {
	Type        string        `mapstructure:"type"`
	URL         string        `mapstructure:"url"`
	Destination string        `mapstructure:"destination"`
	QueueSize   int           `mapstructure:"queue_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	HistorySize int           `mapstructure:"history_size"`
}

// RedisConfig represents the pub/sub connection's own reconnect policy
type RedisConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	PoolSize        int           `mapstructure:"pool_size"`
}

// DatabaseConfig represents database pool configuration for the postgres sink
type DatabaseConfig struct {
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Migrate      bool          `mapstructure:"migrate"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"device":      "device.address",
	"transport":   "device.transport",
	"serial-port": "device.serial.port",
	"sink":        "sink.type",
	"sink-url":    "sink.url",
	"destination": "sink.destination",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"http":        "server.enabled",
	"http-port":   "server.port",
}

// Load loads configuration from file, environment variables and flags.
// An empty configFile searches the default locations and tolerates a missing file.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/linky-gateway")
	}

	// Environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "linky-gateway")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "production")

	// Device defaults
	v.SetDefault("device.address", "")
	v.SetDefault("device.transport", TransportTCP)
	v.SetDefault("device.telemetry_port", 561)
	v.SetDefault("device.read_timeout", "5s")
	v.SetDefault("device.drain_timeout", "50ms")
	v.SetDefault("device.connect_timeout", "5s")
	v.SetDefault("device.buffer_size", 4096)
	v.SetDefault("device.keep_alive", true)
	v.SetDefault("device.reconnect_attempts", 5)
	v.SetDefault("device.reconnect_delay", "1s")
	v.SetDefault("device.invalid_frame_threshold", 10)
	v.SetDefault("device.max_frame_size", 8192)
	v.SetDefault("device.primary_index_tag", model.TagBaseIndex)

	// Historic TIC serial line: 1200 baud, 7 data bits, even parity, 1 stop bit
	v.SetDefault("device.serial.port", "")
	v.SetDefault("device.serial.baud_rate", 1200)
	v.SetDefault("device.serial.data_bits", 7)
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.parity", "even")

	// Discovery defaults
	v.SetDefault("discovery.port", 51)
	v.SetDefault("discovery.probe", "LinkyPIC")
	v.SetDefault("discovery.attempts", 5)
	v.SetDefault("discovery.timeout", "1500ms")

	// Sink defaults
	v.SetDefault("sink.type", SinkElasticsearch)
	v.SetDefault("sink.url", "http://localhost:9200")
	v.SetDefault("sink.destination", "linky")
	v.SetDefault("sink.queue_size", 64)
	v.SetDefault("sink.timeout", "10s")
	v.SetDefault("sink.history_size", 0)

	// Redis defaults
	v.SetDefault("redis.max_retries", 5)
	v.SetDefault("redis.min_retry_backoff", "100ms")
	v.SetDefault("redis.max_retry_backoff", "5s")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.pool_size", 4)

	// Database defaults
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrate", true)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8561")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// validate validates the configuration
func validate(config *Config) error {
	if !oneOf(config.App.Environment, "development", "production", "test") {
		return fmt.Errorf("app.environment must be one of: development, production, test")
	}
	if !oneOf(config.Logging.Level, "debug", "info", "warn", "error", "fatal") {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, fatal")
	}
	if !oneOf(config.Logging.Format, "json", "console") {
		return fmt.Errorf("logging.format must be one of: json, console")
	}

	if err := validateDevice(&config.Device); err != nil {
		return err
	}

	// Discovery validation
	if config.Discovery.Port <= 0 || config.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port out of range: %d", config.Discovery.Port)
	}
	if config.Discovery.Probe == "" {
		return fmt.Errorf("discovery.probe is required")
	}
	if config.Discovery.Attempts < 1 {
		return fmt.Errorf("discovery.attempts must be at least 1")
	}
	if config.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}

	if err := validateSink(&config.Sink); err != nil {
		return err
	}

	if config.Server.Enabled && config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	return nil
}

func validateDevice(device *DeviceConfig) error {
	switch device.Transport {
	case TransportTCP:
		if device.TelemetryPort <= 0 || device.TelemetryPort > 65535 {
			return fmt.Errorf("device.telemetry_port out of range: %d", device.TelemetryPort)
		}
	case TransportSerial:
		if device.Serial.Port == "" {
			return fmt.Errorf("device.serial.port is required for the serial transport")
		}
		if !oneOf(device.Serial.Parity, "none", "odd", "even") {
			return fmt.Errorf("device.serial.parity must be one of: none, odd, even")
		}
	default:
		return fmt.Errorf("device.transport must be one of: tcp, serial")
	}

	if device.ReadTimeout <= 0 {
		return fmt.Errorf("device.read_timeout must be positive")
	}
	if device.DrainTimeout <= 0 || device.DrainTimeout >= device.ReadTimeout {
		return fmt.Errorf("device.drain_timeout must be positive and shorter than device.read_timeout")
	}
	if device.ReconnectAttempts < 1 {
		return fmt.Errorf("device.reconnect_attempts must be at least 1")
	}
	if device.InvalidFrameThreshold < 1 {
		return fmt.Errorf("device.invalid_frame_threshold must be at least 1")
	}
	if device.BufferSize <= 0 {
		return fmt.Errorf("device.buffer_size must be positive")
	}
	if device.MaxFrameSize <= 0 {
		return fmt.Errorf("device.max_frame_size must be positive")
	}
	if device.PrimaryIndexTag == "" {
		return fmt.Errorf("device.primary_index_tag is required")
	}
	return nil
}

func validateSink(sink *SinkConfig) error {
	switch sink.Type {
	case SinkLog:
		return nil
	case SinkElasticsearch, SinkRedis:
		if sink.Destination == "" {
			return fmt.Errorf("sink.destination is required for the %s sink", sink.Type)
		}
	case SinkPostgres:
		if !identifierPattern.MatchString(sink.Destination) {
			return fmt.Errorf("sink.destination must be a plain table name for the postgres sink")
		}
	default:
		return fmt.Errorf("sink.type must be one of: elasticsearch, redis, postgres, log")
	}

	if sink.URL == "" {
		return fmt.Errorf("sink.url is required for the %s sink", sink.Type)
	}
	if sink.QueueSize < 1 {
		return fmt.Errorf("sink.queue_size must be at least 1")
	}
	if sink.Timeout <= 0 {
		return fmt.Errorf("sink.timeout must be positive")
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// ConnectionType returns the model connection type of the configured transport
func (d *DeviceConfig) ConnectionType() model.ConnectionType {
	if d.Transport == TransportSerial {
		return model.ConnectionTypeSerial
	}
	return model.ConnectionTypeTCP
}

// NeedsDiscovery reports whether the device address must be discovered
func (d *DeviceConfig) NeedsDiscovery() bool {
	return d.Transport == TransportTCP && d.Address == ""
}

// TelemetryAddress returns host:port of the telemetry stream
func (d *DeviceConfig) TelemetryAddress() string {
	return net.JoinHostPort(d.Address, fmt.Sprintf("%d", d.TelemetryPort))
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
