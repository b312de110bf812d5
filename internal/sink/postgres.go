// internal/sink/postgres.go
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"linky-gateway/internal/database"
	"linky-gateway/internal/model"
)

// baseTable is created by the embedded migrations
const baseTable = "meter_readings"

// PostgresSink stores each frame as a row
type PostgresSink struct {
	db     *database.DB
	table  string
	insert string
	logger *zap.Logger
}

// NewPostgresSink creates a sink writing into table
func NewPostgresSink(db *database.DB, table string, logger *zap.Logger) *PostgresSink {
	if table == "" {
		table = baseTable
	}
	return &PostgresSink{
		db:     db,
		table:  table,
		insert: insertQuery(table),
		logger: logger,
	}
}

func insertQuery(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (
			id, captured_at, meter_address, contract, tariff_period,
			instantaneous_current, apparent_power, primary_index, primary_index_kwh,
			indexes, raw_values
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, pq.QuoteIdentifier(table))
}

// EnsureTable creates table with the migrated schema when it is not the base table
func (s *PostgresSink) EnsureTable(ctx context.Context) error {
	if s.table == baseTable {
		return nil
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)",
		pq.QuoteIdentifier(s.table), pq.QuoteIdentifier(baseTable))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Publish inserts the frame
func (s *PostgresSink) Publish(ctx context.Context, frame *model.Frame) error {
	doc := NewDocument(frame)

	indexes, err := json.Marshal(doc.Indexes)
	if err != nil {
		return fmt.Errorf("failed to encode indexes: %w", err)
	}
	values, err := json.Marshal(doc.Values)
	if err != nil {
		return fmt.Errorf("failed to encode values: %w", err)
	}
	if doc.Indexes == nil {
		indexes = []byte("{}")
	}

	result, err := s.db.ExecContext(ctx, s.insert,
		doc.ID, doc.Timestamp,
		nullString(doc.MeterAddress), nullString(doc.Contract), nullString(doc.TariffPeriod),
		doc.InstantaneousCurrent, doc.ApparentPower, doc.PrimaryIndex, doc.PrimaryIndexKWh,
		string(indexes), string(values),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows != 1 {
		return fmt.Errorf("insert affected %d rows", rows)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Name returns the sink type
func (s *PostgresSink) Name() string { return "postgres" }

// Close closes the database
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Ping checks the pool answers
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
