// internal/sink/redis.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"linky-gateway/internal/config"
	"linky-gateway/internal/model"
)

// RedisSink publishes frames as JSON on a Pub/Sub channel. The client
// reconnects on its own using the configured retry backoff.
type RedisSink struct {
	client      *redis.Client
	channel     string
	historySize int
	logger      *zap.Logger
}

// NewRedisSink connects to the server at url (redis://[:password@]host:port/db)
func NewRedisSink(ctx context.Context, url, channel string, cfg *config.RedisConfig, historySize int, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff
	opts.DialTimeout = cfg.DialTimeout
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis not reachable yet, publishing will retry", zap.String("addr", opts.Addr), zap.Error(err))
	} else {
		logger.Info("Redis connection established", zap.String("addr", opts.Addr))
	}

	return &RedisSink{
		client:      client,
		channel:     channel,
		historySize: historySize,
		logger:      logger,
	}, nil
}

// Publish sends the frame to the channel and, when enabled, keeps a capped history list
func (s *RedisSink) Publish(ctx context.Context, frame *model.Frame) error {
	payload, err := json.Marshal(NewDocument(frame))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if s.historySize > 0 {
		key := s.historyKey(frame)
		pipe := s.client.TxPipeline()
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, int64(s.historySize-1))
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("Failed to update reading history", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

func (s *RedisSink) historyKey(frame *model.Frame) string {
	meter := frame.MeterAddress
	if meter == "" {
		meter = "unknown"
	}
	return fmt.Sprintf("%s:%s:history", s.channel, meter)
}

// Name returns the sink type
func (s *RedisSink) Name() string { return "redis" }

// Ping checks the server answers
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RedisSink) Close() error {
	return s.client.Close()
}
