package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bufr_decoder/internal/bufr"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// PostgresDB wraps a PostgreSQL connection pool for message storage.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for direct queries.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS bufr_messages (
		id                      UUID PRIMARY KEY,
		source                  TEXT,
		edition                 SMALLINT NOT NULL,
		centre                  INTEGER NOT NULL,
		sub_centre              INTEGER NOT NULL,
		data_category           SMALLINT NOT NULL,
		data_sub_category       SMALLINT NOT NULL,
		local_sub_category      SMALLINT NOT NULL,
		master_table_version    SMALLINT NOT NULL,
		local_table_version     SMALLINT NOT NULL,
		observed_at             TIMESTAMPTZ NOT NULL,
		subsets                 INTEGER NOT NULL,
		compressed              BOOLEAN NOT NULL,
		descriptors             TEXT NOT NULL,
		received_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_bufr_messages_category ON bufr_messages(data_category, observed_at);

	CREATE TABLE IF NOT EXISTS bufr_observations (
		message_id      UUID NOT NULL REFERENCES bufr_messages(id) ON DELETE CASCADE,
		subset          INTEGER NOT NULL,
		position        INTEGER NOT NULL,
		code            CHAR(6) NOT NULL,
		name            TEXT,
		unit            TEXT,
		value           DOUBLE PRECISION,
		text            TEXT,
		missing         BOOLEAN NOT NULL,
		PRIMARY KEY (message_id, subset, position)
	);

	CREATE INDEX IF NOT EXISTS idx_bufr_observations_code ON bufr_observations(code);
	`

	_, err := d.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Store writes msg in one transaction, copying observations in bulk.
func (d *PostgresDB) Store(ctx context.Context, msg *bufr.Message, source string) (string, error) {
	rec, obs := Flatten(msg, source)
	id := uuid.MustParse(rec.ID)

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bufr_messages (id, source, edition, centre, sub_centre, data_category, data_sub_category,
			local_sub_category, master_table_version, local_table_version, observed_at, subsets, compressed,
			descriptors, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, id, rec.Source, rec.Edition, rec.Centre, rec.SubCentre, rec.DataCategory, rec.DataSubCategory,
		rec.LocalSubCategory, rec.MasterTableVersion, rec.LocalTableVersion, rec.ObservedAt, rec.Subsets,
		rec.Compressed, rec.Descriptors, rec.ReceivedAt)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{id, o.Subset, o.Position, o.Code, o.Name, o.Unit, o.Value, o.Text, o.Missing}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"bufr_observations"},
		[]string{"message_id", "subset", "position", "code", "name", "unit", "value", "text", "missing"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return "", fmt.Errorf("copy observations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.ID, nil
}

// Observations returns the stored values of one message in subset order.
func (d *PostgresDB) Observations(ctx context.Context, messageID string) ([]Observation, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT message_id::text, subset, position, code, COALESCE(name, ''), COALESCE(unit, ''),
			value, COALESCE(text, ''), missing
		FROM bufr_observations
		WHERE message_id = $1
		ORDER BY subset, position
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.MessageID, &o.Subset, &o.Position, &o.Code, &o.Name, &o.Unit, &o.Value, &o.Text, &o.Missing); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}
