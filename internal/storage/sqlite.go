package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	sqliteSchemaSQL = `CREATE TABLE IF NOT EXISTS alert_state (
        id                         INTEGER PRIMARY KEY CHECK (id = 1),
        high_alert_active          INTEGER NOT NULL DEFAULT 0,
        last_high_alert_start_date TEXT,
        last_value                 REAL,
        updated_at                 TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );`

	sqliteLoadSQL = `SELECT high_alert_active, last_high_alert_start_date, last_value
    FROM alert_state WHERE id = 1;`

	sqliteSaveSQL = `INSERT INTO alert_state (id, high_alert_active, last_high_alert_start_date, last_value, updated_at)
    VALUES (1, ?, ?, ?, CURRENT_TIMESTAMP)
    ON CONFLICT(id) DO UPDATE SET
        high_alert_active          = excluded.high_alert_active,
        last_high_alert_start_date = excluded.last_high_alert_start_date,
        last_value                 = excluded.last_value,
        updated_at                 = excluded.updated_at;`
)

// SQLiteStore keeps the state as a single row in an embedded database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create alert_state table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the single state row, returning defaults when absent.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	var (
		active    bool
		startDate sql.NullString
		lastValue sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, sqliteLoadSQL).Scan(&active, &startDate, &lastValue)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("load state: %w", err)
	}
	return stateFromColumns(active, startDate, lastValue), nil
}

// Save upserts the single state row.
func (s *SQLiteStore) Save(ctx context.Context, state State) error {
	if _, err := s.db.ExecContext(ctx, sqliteSaveSQL, state.HighAlertActive, state.LastHighAlertStartDate, state.LastValue); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func stateFromColumns(active bool, startDate sql.NullString, lastValue sql.NullFloat64) State {
	state := State{HighAlertActive: active}
	if startDate.Valid {
		day := startDate.String
		state.LastHighAlertStartDate = &day
	}
	if lastValue.Valid {
		v := lastValue.Float64
		state.LastValue = &v
	}
	return state
}

var _ StateStore = (*SQLiteStore)(nil)
