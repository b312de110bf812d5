// internal/sink/sink.go
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/database"
	"linky-gateway/internal/model"
)

// ErrNotCreated is returned when the search index did not report a new document
var ErrNotCreated = errors.New("document not created")

// Sink receives one valid frame at a time
type Sink interface {
	Publish(ctx context.Context, frame *model.Frame) error
	Name() string
	Close() error
}

// HealthChecker is implemented by sinks backed by a remote service
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// New builds the sink selected by configuration
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Sink, error) {
	sinkLogger := logger.With(
		zap.String("component", "sink"),
		zap.String("sink", cfg.Sink.Type),
		zap.String("destination", cfg.Sink.Destination),
	)

	switch cfg.Sink.Type {
	case config.SinkElasticsearch:
		return NewElasticsearchSink(cfg.Sink.URL, cfg.Sink.Destination, sinkLogger)

	case config.SinkRedis:
		return NewRedisSink(ctx, cfg.Sink.URL, cfg.Sink.Destination, &cfg.Redis, cfg.Sink.HistorySize, sinkLogger)

	case config.SinkPostgres:
		db, err := database.NewConnection(ctx, cfg.Sink.URL, &cfg.Database, sinkLogger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := database.NewMigrator(db, sinkLogger).Up(); err != nil {
				db.Close()
				return nil, err
			}
		}
		s := NewPostgresSink(db, cfg.Sink.Destination, sinkLogger)
		if err := s.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return s, nil

	case config.SinkLog:
		return NewLogSink(sinkLogger), nil

	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Sink.Type)
	}
}
