package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "bufr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStoreAndQuery(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	id, err := db.Store(ctx, sampleMessage(t), "feed/synop")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := db.Query(ctx, QueryParams{ID: id})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, "feed/synop", rec.Source)
	require.Equal(t, 88, rec.Centre)
	require.Equal(t, 2, rec.Subsets)
	require.False(t, rec.Compressed)
	require.Equal(t, time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC), rec.ObservedAt)

	obs, err := db.Observations(ctx, id, "")
	require.NoError(t, err)
	require.Len(t, obs, 8)
	require.Equal(t, "OSLO                ", obs[3].Text)

	temps, err := db.Observations(ctx, id, "012101")
	require.NoError(t, err)
	require.Len(t, temps, 2)
	require.InDelta(t, 280.0, *temps[0].Value, 1e-9)
	require.True(t, temps[1].Missing)
	require.Nil(t, temps[1].Value)
}

func TestSQLiteQueryFilters(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	for _, source := range []string{"a.bufr", "b.bufr", "c.bin"} {
		_, err := db.Store(ctx, sampleMessage(t), source)
		require.NoError(t, err)
	}

	records, err := db.Query(ctx, QueryParams{Source: ".bufr"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	category := 0
	records, err = db.Query(ctx, QueryParams{DataCategory: &category, Limit: 1})
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = db.Query(ctx, QueryParams{Since: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Empty(t, records)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Messages)
	require.Equal(t, 24, stats.Observations)
	require.Equal(t, map[int]int{0: 3}, stats.ByCategory)
}
