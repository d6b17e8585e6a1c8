package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"bufr_decoder/internal/bufr"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// ClickHouseDB wraps a ClickHouse connection for observation analytics.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bufr_messages (
			id                      String,
			source                  String,
			edition                 UInt8,
			centre                  UInt16,
			sub_centre              UInt16,
			data_category           UInt8,
			data_sub_category       UInt8,
			local_sub_category      UInt8,
			master_table_version    UInt8,
			local_table_version     UInt8,
			observed_at             DateTime64(3),
			subsets                 UInt32,
			compressed              Bool,
			descriptors             String,
			received_at             DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(observed_at)
		ORDER BY (data_category, observed_at, id)`,

		`CREATE TABLE IF NOT EXISTS bufr_observations (
			message_id      String,
			observed_at     DateTime64(3),
			subset          UInt32,
			position        UInt32,
			code            LowCardinality(String),
			name            LowCardinality(String),
			unit            LowCardinality(String),
			value           Nullable(Float64),
			text            String,
			missing         Bool
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(observed_at)
		ORDER BY (code, observed_at, message_id, subset, position)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Store inserts the message header and appends its observations as one batch.
func (d *ClickHouseDB) Store(ctx context.Context, msg *bufr.Message, source string) (string, error) {
	rec, obs := Flatten(msg, source)

	err := d.conn.Exec(ctx, `
		INSERT INTO bufr_messages (id, source, edition, centre, sub_centre, data_category, data_sub_category,
			local_sub_category, master_table_version, local_table_version, observed_at, subsets, compressed,
			descriptors, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Source, rec.Edition, rec.Centre, rec.SubCentre, rec.DataCategory, rec.DataSubCategory,
		rec.LocalSubCategory, rec.MasterTableVersion, rec.LocalTableVersion, rec.ObservedAt, rec.Subsets,
		rec.Compressed, rec.Descriptors, rec.ReceivedAt)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	if len(obs) == 0 {
		return rec.ID, nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO bufr_observations (message_id, observed_at, subset, position, code, name, unit, value, text, missing)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		err := batch.Append(o.MessageID, rec.ObservedAt, uint32(o.Subset), uint32(o.Position),
			o.Code, o.Name, o.Unit, o.Value, o.Text, o.Missing)
		if err != nil {
			return "", fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return "", fmt.Errorf("send batch: %w", err)
	}
	return rec.ID, nil
}

// CodeSummary aggregates the stored values of one descriptor.
type CodeSummary struct {
	Code    string
	Count   uint64
	Missing uint64
	Min     float64
	Max     float64
	Avg     float64
}

// Summarize aggregates numeric observations per descriptor since a given time.
func (d *ClickHouseDB) Summarize(ctx context.Context, since time.Time) ([]CodeSummary, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT code, count(), countIf(missing), minOrNull(value), maxOrNull(value), avgOrNull(value)
		FROM bufr_observations
		WHERE observed_at >= ? AND text = ''
		GROUP BY code
		ORDER BY code
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []CodeSummary
	for rows.Next() {
		var s CodeSummary
		var lo, hi, avg *float64
		if err := rows.Scan(&s.Code, &s.Count, &s.Missing, &lo, &hi, &avg); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if lo != nil {
			s.Min, s.Max, s.Avg = *lo, *hi, *avg
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
