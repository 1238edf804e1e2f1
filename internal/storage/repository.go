package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS spike_events (
        id           BIGSERIAL PRIMARY KEY,
        cycle_ts     TIMESTAMPTZ NOT NULL,
        symbol       TEXT NOT NULL,
        kind         TEXT NOT NULL,
        message      TEXT NOT NULL,
        price        NUMERIC NOT NULL,
        contribution NUMERIC NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS spike_events_cycle_ts_idx ON spike_events (cycle_ts);
    CREATE INDEX IF NOT EXISTS spike_events_symbol_idx ON spike_events (symbol);`

	insertEventSQL = `INSERT INTO spike_events (
        cycle_ts,
        symbol,
        kind,
        message,
        price,
        contribution
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listRecentEventsSQL = `SELECT
        id,
        cycle_ts,
        symbol,
        kind,
        message,
        price,
        contribution,
        created_at
    FROM spike_events
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteEventsBeforeSQL = `DELETE FROM spike_events WHERE created_at < $1;`

	countEventsSQL = `SELECT COUNT(*) FROM spike_events;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// EventStore defines operations for spike event auditing.
type EventStore interface {
	InsertCycleEvents(ctx context.Context, records []EventRecord) error
	ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error)
	DeleteEventsBefore(ctx context.Context, olderThan time.Time) error
	CountEvents(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists spike events in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the audit table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, ensureSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertCycleEvents persists the events of one detection pass.
func (s *Store) InsertCycleEvents(ctx context.Context, records []EventRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, record := range records {
		_, execErr := pool.Exec(ctx, insertEventSQL,
			record.CycleTS,
			record.Symbol,
			record.Kind,
			record.Message,
			record.Price.String(),
			record.Contribution.String(),
		)
		if execErr != nil {
			return fmt.Errorf("insert spike event %s: %w", record.Symbol, execErr)
		}
	}
	return nil
}

// ListRecentEvents lists the most recently recorded events.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentEventsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent events: %w", queryErr)
	}
	defer rows.Close()

	records := make([]EventRecord, 0, limit)
	for rows.Next() {
		var rec EventRecord
		var priceStr, contributionStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.CycleTS,
			&rec.Symbol,
			&rec.Kind,
			&rec.Message,
			&priceStr,
			&contributionStr,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.Price, convErr = decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse event price: %w", convErr)
		}
		rec.Contribution, convErr = decimal.NewFromString(contributionStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse event contribution: %w", convErr)
		}

		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteEventsBefore deletes historical events.
func (s *Store) DeleteEventsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEventsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete events before: %w", execErr)
	}
	return nil
}

// CountEvents counts stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countEventsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count events: %w", scanErr)
	}
	return count, nil
}

var (
	_ EventStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
