// internal/sink/elasticsearch.go
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"linky-gateway/internal/model"
)

const resultCreated = "created"

// ElasticsearchSink indexes each frame as a new document
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

type indexResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

// NewElasticsearchSink creates a client for the cluster at url
func NewElasticsearchSink(url, index string, logger *zap.Logger) (*ElasticsearchSink, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	logger.Info("Elasticsearch sink ready", zap.String("url", url), zap.String("index", index))
	return &ElasticsearchSink{
		client: client,
		index:  index,
		logger: logger,
	}, nil
}

// Publish indexes the frame; any result other than created is an error
func (s *ElasticsearchSink) Publish(ctx context.Context, frame *model.Frame) error {
	doc := NewDocument(frame)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(doc.ID.String()),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request rejected: %s", res.Status())
	}

	var result indexResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode index response: %w", err)
	}
	if err := checkIndexResult(result.Result); err != nil {
		return err
	}

	s.logger.Debug("Document indexed", zap.String("id", result.ID))
	return nil
}

func checkIndexResult(result string) error {
	if result != resultCreated {
		return fmt.Errorf("%w: result %q", ErrNotCreated, result)
	}
	return nil
}

// Name returns the sink type
func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

// Ping checks the cluster answers
func (s *ElasticsearchSink) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping rejected: %s", res.Status())
	}
	return nil
}

// Close is a no-op, the client holds no dedicated connection
func (s *ElasticsearchSink) Close() error {
	return nil
}
