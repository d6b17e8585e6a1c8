package storage

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	cfg := DefaultConfig().Postgres
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("POSTGRES_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if database := os.Getenv("POSTGRES_DB"); database != "" {
		cfg.Database = database
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil
	}

	// Ensure schema exists.
	if err := pg.CreateSchema(ctx); err != nil {
		_ = pg.Close()
		return nil
	}

	return pg
}

func TestPostgresStore(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer func() { _ = pg.Close() }()

	ctx := context.Background()
	id, err := pg.Store(ctx, sampleMessage(t), "postgres_test")
	require.NoError(t, err)
	defer func() {
		_, _ = pg.Pool().Exec(ctx, "DELETE FROM bufr_messages WHERE id = $1", id)
	}()

	obs, err := pg.Observations(ctx, id)
	require.NoError(t, err)
	require.Len(t, obs, 8)
	require.Equal(t, id, obs[0].MessageID)
	require.InDelta(t, 280.0, *obs[2].Value, 1e-9)
	require.True(t, obs[6].Missing)
}
