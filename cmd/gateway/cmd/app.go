// cmd/gateway/cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linky-gateway/internal/config"
	"linky-gateway/internal/handler"
	"linky-gateway/internal/model"
	"linky-gateway/internal/monitor"
	"linky-gateway/internal/protocol"
	"linky-gateway/internal/routes"
	"linky-gateway/internal/service"
	"linky-gateway/internal/sink"
	"linky-gateway/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// Application represents the main application
type Application struct {
	config        *config.Config
	logger        *zap.Logger
	serviceLogger *utils.ServiceLogger
	server        *http.Server

	sink      sink.Sink
	forwarder *sink.Forwarder
	events    *handler.EventBus
	websocket *handler.WebSocketHandler
	telemetry *service.TelemetryService
}

// NewApplication creates a new application instance
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config:        cfg,
		logger:        logger,
		serviceLogger: utils.NewServiceLogger(logger, "linky-gateway"),
	}
	app.serviceLogger.LogServiceStart(cfg.App.Version,
		zap.String("transport", cfg.Device.Transport),
		zap.String("sink", cfg.Sink.Type),
		zap.String("destination", cfg.Sink.Destination),
	)
	monitor.RegisterMetrics()

	if err := app.initializeDevice(ctx); err != nil {
		return nil, app.abort(fmt.Errorf("failed to locate device: %w", err))
	}

	if err := app.initializeSink(ctx); err != nil {
		return nil, app.abort(fmt.Errorf("failed to initialize sink: %w", err))
	}

	app.initializeTelemetry()
	app.initializeServer()

	return app, nil
}

// initializeDevice runs discovery when no device address is configured
func (app *Application) initializeDevice(ctx context.Context) error {
	if !app.config.Device.NeedsDiscovery() {
		return nil
	}

	device, err := newScannerManager(app.config, app.logger).Discover(ctx)
	if err != nil {
		return err
	}

	app.config.Device.Address = device.Address.String()
	app.logger.Info("Device discovered",
		zap.String("address", app.config.Device.Address),
		zap.String("interface", device.Interface),
	)
	return nil
}

// initializeSink connects the sink and its forwarder
func (app *Application) initializeSink(ctx context.Context) error {
	s, err := sink.New(ctx, app.config, app.logger)
	if err != nil {
		return err
	}

	app.sink = s
	app.forwarder = sink.NewForwarder(s, app.config.Sink.QueueSize, app.config.Sink.Timeout, app.logger)

	app.logger.Info("Sink initialized successfully", zap.String("sink", s.Name()))
	return nil
}

// initializeTelemetry wires the read loop to the forwarder and the live feeds
func (app *Application) initializeTelemetry() {
	device := app.config.Device
	settings := protocol.Settings{
		ConnectionType: device.ConnectionType(),
		TCP: protocol.TCPConfig{
			Host:       device.Address,
			Port:       device.TelemetryPort,
			KeepAlive:  device.KeepAlive,
			BufferSize: device.BufferSize,
			Timeout:    device.ConnectTimeout,
		},
		Serial: protocol.SerialConfig{
			Port:       device.Serial.Port,
			BaudRate:   device.Serial.BaudRate,
			DataBits:   device.Serial.DataBits,
			StopBits:   device.Serial.StopBits,
			Parity:     device.Serial.Parity,
			BufferSize: device.BufferSize,
		},
	}
	factory := func() (protocol.DeviceProtocol, error) {
		return protocol.CreateProtocol(settings, app.logger)
	}

	address := device.Serial.Port
	if device.Transport == config.TransportTCP {
		address = device.TelemetryAddress()
	}

	app.events = handler.NewEventBus(handler.DefaultEventHistory, app.logger)
	frames := service.FrameHandlers{app.forwarder}
	if app.config.Server.Enabled {
		app.websocket = handler.NewWebSocketHandler(app, app.config.Server.AllowedOrigins, app.logger)
		frames = append(frames, app.websocket)
	}

	app.telemetry = service.NewTelemetryService(service.TelemetryConfig{
		DeviceAddress:         address,
		ReadTimeout:           device.ReadTimeout,
		DrainTimeout:          device.DrainTimeout,
		ConnectTimeout:        device.ConnectTimeout,
		ReconnectAttempts:     uint(device.ReconnectAttempts),
		ReconnectDelay:        device.ReconnectDelay,
		InvalidFrameThreshold: device.InvalidFrameThreshold,
		MaxFrameSize:          device.MaxFrameSize,
		PrimaryIndexTag:       device.PrimaryIndexTag,
	}, factory, frames, app.events, app.logger)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	if !app.config.Server.Enabled {
		return
	}

	router := routes.NewRouter(app.config, app.logger, app.telemetry, app.forwarder, app.events, app.websocket).SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.server.Addr))
}

// Run blocks until ctx is done or the telemetry service fails
func (app *Application) Run(ctx context.Context) error {
	defer app.shutdown()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.forwarder.Run(ctx) })
	g.Go(func() error { return app.telemetry.Run(ctx) })

	if app.server != nil {
		events := app.events.Subscribe()
		g.Go(func() error { return app.websocket.StreamEvents(ctx, events) })
		g.Go(app.serve)
		g.Go(func() error {
			<-ctx.Done()
			return app.stopServer()
		})
	}

	g.Go(func() error { return app.events.Run(ctx) })

	return g.Wait()
}

func (app *Application) serve() error {
	app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

	if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (app *Application) stopServer() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.websocket.Shutdown()
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
		return nil
	}

	app.logger.Info("HTTP server stopped")
	return nil
}

// shutdown releases the sink and flushes the logger
func (app *Application) shutdown() {
	app.serviceLogger.LogServiceStop("shutdown")

	if app.sink != nil {
		if err := app.sink.Close(); err != nil {
			app.logger.Error("Sink close error", zap.Error(err))
		}
	}

	utils.CloseLogger(app.logger)
}

// abort releases what was built so far and returns err
func (app *Application) abort(err error) error {
	app.logger.Error("Application initialization failed", zap.Error(err))
	app.shutdown()
	return err
}

// The websocket handler is built before the telemetry service it reports on,
// so the application stands in for it.

func (app *Application) Snapshot() service.Status { return app.telemetry.Snapshot() }

func (app *Application) LatestFrame() *model.Frame { return app.telemetry.LatestFrame() }

func (app *Application) IsConnected() bool { return app.telemetry.IsConnected() }

func (app *Application) ForceReconnect() { app.telemetry.ForceReconnect() }
