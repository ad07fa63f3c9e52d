// Package storage implements the optional §6.4 persistence layer behind
// ports.StateStore, using a pure-Go SQLite driver so the binary stays
// CGo-free.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mdelgado-fx/fundingarb/internal/domain"
	"github.com/mdelgado-fx/fundingarb/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS closing_locks (
    lock_key  TEXT PRIMARY KEY,
    locked_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS recently_closed (
    lock_key  TEXT PRIMARY KEY,
    closed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS twap_executions (
    id                   TEXT PRIMARY KEY,
    symbol               TEXT    NOT NULL,
    long_venue           TEXT    NOT NULL,
    short_venue          TEXT    NOT NULL,
    status               TEXT    NOT NULL,
    slices_executed      INTEGER NOT NULL DEFAULT 0,
    slice_count          INTEGER NOT NULL DEFAULT 0,
    avg_long_fill_price  REAL    NOT NULL DEFAULT 0,
    avg_short_fill_price REAL    NOT NULL DEFAULT 0,
    running_slippage_bps REAL    NOT NULL DEFAULT 0,
    updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS loss_ledger_entries (
    lock_key   TEXT PRIMARY KEY,
    entry_cost REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS loss_ledger_cumulative (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    total REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS slippage_coefficients (
    symbol          TEXT PRIMARY KEY,
    alpha           REAL NOT NULL,
    beta            REAL NOT NULL,
    gamma           REAL NOT NULL,
    r_squared       REAL NOT NULL,
    sample_size     INTEGER NOT NULL,
    last_calibrated DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_twap_status ON twap_executions(status);
`

// SQLiteStore implements ports.StateStore over a pure-Go SQLite database.
// SQLite is single-writer, so the connection pool is capped at one
// connection — the same constraint the teacher's storage layer observes.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO loss_ledger_cumulative (id, total) VALUES (1, 0)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: seed cumulative loss: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AcquireCloseLock(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO closing_locks (lock_key, locked_at) VALUES (?, ?)`, key, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("storage.AcquireCloseLock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseCloseLock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM closing_locks WHERE lock_key = ?`, key)
	if err != nil {
		return fmt.Errorf("storage.ReleaseCloseLock: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkRecentlyClosed(ctx context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM closing_locks WHERE lock_key = ?`, key); err != nil {
		return fmt.Errorf("storage.MarkRecentlyClosed: release lock: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO recently_closed (lock_key, closed_at) VALUES (?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET closed_at = excluded.closed_at
	`, key, at.UTC()); err != nil {
		return fmt.Errorf("storage.MarkRecentlyClosed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsRecentlyClosed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	var closedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT closed_at FROM recently_closed WHERE lock_key = ?`, key).Scan(&closedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage.IsRecentlyClosed: %w", err)
	}
	if time.Since(closedAt) > ttl {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM recently_closed WHERE lock_key = ?`, key)
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) SaveTWAPExecution(ctx context.Context, rec ports.TWAPExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO twap_executions
			(id, symbol, long_venue, short_venue, status, slices_executed, slice_count,
			 avg_long_fill_price, avg_short_fill_price, running_slippage_bps, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status               = excluded.status,
			slices_executed      = excluded.slices_executed,
			avg_long_fill_price  = excluded.avg_long_fill_price,
			avg_short_fill_price = excluded.avg_short_fill_price,
			running_slippage_bps = excluded.running_slippage_bps,
			updated_at           = excluded.updated_at
	`, rec.ID, rec.Symbol, rec.LongVenue, rec.ShortVenue, rec.Status, rec.SlicesExecuted, rec.SliceCount,
		rec.AvgLongFillPrice, rec.AvgShortFillPrice, rec.RunningSlippageBps, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveTWAPExecution: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadTWAPExecution(ctx context.Context, id string) (*ports.TWAPExecutionRecord, error) {
	var rec ports.TWAPExecutionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, long_venue, short_venue, status, slices_executed, slice_count,
		       avg_long_fill_price, avg_short_fill_price, running_slippage_bps, updated_at
		FROM twap_executions WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Symbol, &rec.LongVenue, &rec.ShortVenue, &rec.Status, &rec.SlicesExecuted, &rec.SliceCount,
		&rec.AvgLongFillPrice, &rec.AvgShortFillPrice, &rec.RunningSlippageBps, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadTWAPExecution: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListActiveTWAPExecutions(ctx context.Context) ([]ports.TWAPExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, long_venue, short_venue, status, slices_executed, slice_count,
		       avg_long_fill_price, avg_short_fill_price, running_slippage_bps, updated_at
		FROM twap_executions WHERE status = 'EXECUTING' OR status = 'PAUSED'
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListActiveTWAPExecutions: %w", err)
	}
	defer rows.Close()

	var out []ports.TWAPExecutionRecord
	for rows.Next() {
		var rec ports.TWAPExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.LongVenue, &rec.ShortVenue, &rec.Status, &rec.SlicesExecuted, &rec.SliceCount,
			&rec.AvgLongFillPrice, &rec.AvgShortFillPrice, &rec.RunningSlippageBps, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage.ListActiveTWAPExecutions: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveLossLedgerEntry(ctx context.Context, key string, entryCost float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loss_ledger_entries (lock_key, entry_cost) VALUES (?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET entry_cost = excluded.entry_cost
	`, key, entryCost)
	if err != nil {
		return fmt.Errorf("storage.SaveLossLedgerEntry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveLossLedgerExit(ctx context.Context, key string, realized, exitCost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entryCost float64
	err := s.db.QueryRowContext(ctx, `SELECT entry_cost FROM loss_ledger_entries WHERE lock_key = ?`, key).Scan(&entryCost)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("storage.SaveLossLedgerExit: read entry: %w", err)
	}

	net := entryCost + exitCost + realized
	if net > 0 {
		if _, err := s.db.ExecContext(ctx, `UPDATE loss_ledger_cumulative SET total = total + ? WHERE id = 1`, net); err != nil {
			return fmt.Errorf("storage.SaveLossLedgerExit: update cumulative: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM loss_ledger_entries WHERE lock_key = ?`, key); err != nil {
		return fmt.Errorf("storage.SaveLossLedgerExit: clear entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadCumulativeLoss(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT total FROM loss_ledger_cumulative WHERE id = 1`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage.LoadCumulativeLoss: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) SaveSlippageCoefficients(ctx context.Context, c domain.SlippageModelCoefficients) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slippage_coefficients (symbol, alpha, beta, gamma, r_squared, sample_size, last_calibrated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			alpha           = excluded.alpha,
			beta            = excluded.beta,
			gamma           = excluded.gamma,
			r_squared       = excluded.r_squared,
			sample_size     = excluded.sample_size,
			last_calibrated = excluded.last_calibrated
	`, c.Symbol, c.Alpha, c.Beta, c.Gamma, c.RSquared, c.SampleSize, c.LastCalibrated.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveSlippageCoefficients: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSlippageCoefficients(ctx context.Context, symbol string) (*domain.SlippageModelCoefficients, error) {
	var c domain.SlippageModelCoefficients
	err := s.db.QueryRowContext(ctx, `
		SELECT symbol, alpha, beta, gamma, r_squared, sample_size, last_calibrated
		FROM slippage_coefficients WHERE symbol = ?
	`, symbol).Scan(&c.Symbol, &c.Alpha, &c.Beta, &c.Gamma, &c.RSquared, &c.SampleSize, &c.LastCalibrated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadSlippageCoefficients: %w", err)
	}
	return &c, nil
}
