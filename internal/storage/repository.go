package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createStateTableSQL = `CREATE TABLE IF NOT EXISTS alert_state (
        id                         SMALLINT PRIMARY KEY CHECK (id = 1),
        high_alert_active          BOOLEAN NOT NULL DEFAULT FALSE,
        last_high_alert_start_date TEXT,
        last_value                 DOUBLE PRECISION,
        updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`

	loadStateSQL = `SELECT high_alert_active, last_high_alert_start_date, last_value
    FROM alert_state
    WHERE id = 1;`

	upsertStateSQL = `INSERT INTO alert_state (
        id,
        high_alert_active,
        last_high_alert_start_date,
        last_value,
        updated_at
    ) VALUES (
        1,$1,$2,$3,NOW()
    )
    ON CONFLICT (id) DO UPDATE
    SET
        high_alert_active          = EXCLUDED.high_alert_active,
        last_high_alert_start_date = EXCLUDED.last_high_alert_start_date,
        last_value                 = EXCLUDED.last_value,
        updated_at                 = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore keeps the state in a single-row table and offers advisory
// locking so several replicas never run the same check concurrently.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Migrate creates the state table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createStateTableSQL); err != nil {
		return fmt.Errorf("create alert_state table: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock is dropped with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Load reads the state row, returning defaults when absent.
func (s *PostgresStore) Load(ctx context.Context) (State, error) {
	pool, err := s.getPool()
	if err != nil {
		return DefaultState(), err
	}

	var (
		active    bool
		startDate sql.NullString
		lastValue sql.NullFloat64
	)
	scanErr := pool.QueryRow(ctx, loadStateSQL).Scan(&active, &startDate, &lastValue)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return DefaultState(), nil
	}
	if scanErr != nil {
		return DefaultState(), fmt.Errorf("load state: %w", scanErr)
	}
	return stateFromColumns(active, startDate, lastValue), nil
}

// Save upserts the state row.
func (s *PostgresStore) Save(ctx context.Context, state State) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var startDate interface{}
	if state.LastHighAlertStartDate != nil {
		startDate = *state.LastHighAlertStartDate
	}

	var lastValue interface{}
	if state.LastValue != nil {
		lastValue = *state.LastValue
	}

	if _, execErr := pool.Exec(ctx, upsertStateSQL, state.HighAlertActive, startDate, lastValue); execErr != nil {
		return fmt.Errorf("upsert state: %w", execErr)
	}
	return nil
}

var (
	_ StateStore     = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
