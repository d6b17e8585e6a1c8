package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bufr_decoder/internal/bufr"
)

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// SQLiteDB wraps a SQLite database connection for message storage.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// createSchema creates the database tables and indices.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		source TEXT,
		edition INTEGER NOT NULL,
		centre INTEGER NOT NULL,
		sub_centre INTEGER NOT NULL,
		data_category INTEGER NOT NULL,
		data_sub_category INTEGER NOT NULL,
		local_sub_category INTEGER NOT NULL,
		master_table_version INTEGER NOT NULL,
		local_table_version INTEGER NOT NULL,
		observed_at TEXT NOT NULL,
		subsets INTEGER NOT NULL,
		compressed INTEGER NOT NULL,
		descriptors TEXT NOT NULL,
		received_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(data_category);
	CREATE INDEX IF NOT EXISTS idx_messages_observed ON messages(observed_at);

	CREATE TABLE IF NOT EXISTS observations (
		message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		subset INTEGER NOT NULL,
		position INTEGER NOT NULL,
		code TEXT NOT NULL,
		name TEXT,
		unit TEXT,
		value REAL,
		text TEXT,
		missing INTEGER NOT NULL,
		PRIMARY KEY (message_id, subset, position)
	);

	CREATE INDEX IF NOT EXISTS idx_observations_code ON observations(code);
	`

	_, err := db.Exec(schema)
	return err
}

// Store writes msg and its observations in one transaction.
func (d *SQLiteDB) Store(ctx context.Context, msg *bufr.Message, source string) (string, error) {
	rec, obs := Flatten(msg, source)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, source, edition, centre, sub_centre, data_category, data_sub_category,
			local_sub_category, master_table_version, local_table_version, observed_at, subsets, compressed,
			descriptors, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Source, rec.Edition, rec.Centre, rec.SubCentre, rec.DataCategory, rec.DataSubCategory,
		rec.LocalSubCategory, rec.MasterTableVersion, rec.LocalTableVersion, rec.ObservedAt.Format(time.RFC3339),
		rec.Subsets, rec.Compressed, rec.Descriptors, rec.ReceivedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (message_id, subset, position, code, name, unit, value, text, missing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare observations: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.MessageID, o.Subset, o.Position, o.Code, o.Name, o.Unit,
			o.Value, o.Text, o.Missing); err != nil {
			return "", fmt.Errorf("insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.ID, nil
}

// QueryParams contains filtering options for querying messages.
type QueryParams struct {
	ID           string // Filter by message id.
	Source       string // Filter by source (LIKE match).
	DataCategory *int   // Filter by data category.
	Since        time.Time
	Limit        int // Max results (default 100).
	Offset       int
}

// Query retrieves message headers matching the given parameters, newest
// observation time first.
func (d *SQLiteDB) Query(ctx context.Context, p QueryParams) ([]MessageRecord, error) {
	var conditions []string
	var args []any

	if p.ID != "" {
		conditions = append(conditions, "id = ?")
		args = append(args, p.ID)
	}
	if p.Source != "" {
		conditions = append(conditions, "source LIKE ?")
		args = append(args, "%"+p.Source+"%")
	}
	if p.DataCategory != nil {
		conditions = append(conditions, "data_category = ?")
		args = append(args, *p.DataCategory)
	}
	if !p.Since.IsZero() {
		conditions = append(conditions, "observed_at >= ?")
		args = append(args, p.Since.UTC().Format(time.RFC3339))
	}

	query := `SELECT id, source, edition, centre, sub_centre, data_category, data_sub_category,
			local_sub_category, master_table_version, local_table_version, observed_at, subsets,
			compressed, descriptors, received_at
			FROM messages`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" ORDER BY observed_at DESC, received_at DESC LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []MessageRecord
	for rows.Next() {
		var r MessageRecord
		var source sql.NullString
		var observed, received string
		err := rows.Scan(&r.ID, &source, &r.Edition, &r.Centre, &r.SubCentre, &r.DataCategory,
			&r.DataSubCategory, &r.LocalSubCategory, &r.MasterTableVersion, &r.LocalTableVersion,
			&observed, &r.Subsets, &r.Compressed, &r.Descriptors, &received)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Source = source.String
		r.ObservedAt, _ = time.Parse(time.RFC3339, observed)
		r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, received)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Observations returns the stored values of one message in subset order. A
// non-empty code restricts the result to that descriptor.
func (d *SQLiteDB) Observations(ctx context.Context, messageID, code string) ([]Observation, error) {
	query := `SELECT message_id, subset, position, code, name, unit, value, text, missing
		FROM observations WHERE message_id = ?`
	args := []any{messageID}
	if code != "" {
		query += " AND code = ?"
		args = append(args, code)
	}
	query += " ORDER BY subset, position"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var obs []Observation
	for rows.Next() {
		var o Observation
		var name, unit, text sql.NullString
		var value sql.NullFloat64
		if err := rows.Scan(&o.MessageID, &o.Subset, &o.Position, &o.Code, &name, &unit, &value, &text, &o.Missing); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		o.Name, o.Unit, o.Text = name.String, unit.String, text.String
		if value.Valid {
			v := value.Float64
			o.Value = &v
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// Stats returns aggregate statistics about stored messages.
type Stats struct {
	Messages     int
	Observations int
	ByCategory   map[int]int
}

// Stats counts stored messages and observations.
func (d *SQLiteDB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByCategory: make(map[int]int)}

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&stats.Messages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM observations").Scan(&stats.Observations); err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, "SELECT data_category, COUNT(*) FROM messages GROUP BY data_category")
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var category, count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}
