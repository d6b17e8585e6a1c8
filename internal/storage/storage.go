// Package storage persists decoded BUFR messages and their observations.
package storage

import (
	"context"
	"fmt"

	"bufr_decoder/internal/bufr"
)

// Store persists one decoded message and returns its id.
type Store interface {
	Store(ctx context.Context, msg *bufr.Message, source string) (string, error)
	Close() error
}

// Config selects a backend and holds the settings of each.
type Config struct {
	Driver     string           `mapstructure:"driver"` // sqlite, postgres or clickhouse.
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver: "sqlite",
		SQLite: SQLiteConfig{
			Path: "bufr.db",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "bufr",
			User:     "default",
			Password: "",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "bufr",
			User:     "bufr",
			Password: "bufr",
		},
	}
}

// Open connects to the configured backend and creates its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLite.Path)

	case "postgres":
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		return pg, nil

	case "clickhouse":
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		if err := ch.CreateSchema(ctx); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return ch, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
