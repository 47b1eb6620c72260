package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"simtrader/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets several backtests append results while others read.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			strategy     TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			start_date   TEXT NOT NULL,
			end_date     TEXT NOT NULL,
			initial_cash REAL,
			final_nav    REAL,
			total_return REAL,
			sharpe       REAL,
			max_drawdown REAL,
			trades       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy, created_at)`,

		`CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT NOT NULL,
			date   TEXT NOT NULL,
			nav    REAL NOT NULL,
			PRIMARY KEY (run_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS fills (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL,
			order_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			date     TEXT NOT NULL,
			price    REAL,
			qty      REAL,
			fee      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveRun stores the run summary, equity curve and fills in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, equity []domain.EquityPoint, fills []domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, strategy, created_at, start_date, end_date, initial_cash,
			final_nav, total_return, sharpe, max_drawdown, trades)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.CreatedAt.UnixMilli(),
		run.StartDate.Format(domain.DateLayout), run.EndDate.Format(domain.DateLayout),
		run.InitialCash, run.FinalNAV, run.TotalReturn, run.Sharpe, run.MaxDrawdown, run.Trades)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	eq, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO equity (run_id, date, nav) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer eq.Close()
	for _, p := range equity {
		if _, err := eq.ExecContext(ctx, run.ID, p.Date.Format(domain.DateLayout), p.NAV); err != nil {
			return fmt.Errorf("insert equity %s: %w", run.ID, err)
		}
	}

	fl, err := tx.PrepareContext(ctx,
		`INSERT INTO fills (run_id, order_id, symbol, date, price, qty, fee) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer fl.Close()
	for _, f := range fills {
		if _, err := fl.ExecContext(ctx, run.ID, f.OrderID, f.Symbol, f.Date.Format(domain.DateLayout), f.Price, f.Qty, f.Fee); err != nil {
			return fmt.Errorf("insert fill %s: %w", run.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `id, strategy, created_at, start_date, end_date, initial_cash, final_nav,
	total_return, sharpe, max_drawdown, trades`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		r          RunRecord
		created    int64
		start, end string
	)
	err := row.Scan(&r.ID, &r.Strategy, &created, &start, &end, &r.InitialCash, &r.FinalNAV,
		&r.TotalReturn, &r.Sharpe, &r.MaxDrawdown, &r.Trades)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if r.StartDate, err = time.Parse(domain.DateLayout, start); err != nil {
		return nil, err
	}
	if r.EndDate, err = time.Parse(domain.DateLayout, end); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun retrieves a run summary by ID. A missing run returns nil, nil.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the runs of a strategy, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE strategy = ? ORDER BY created_at DESC`, strategy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Equity returns the stored equity curve of a run in date order.
func (s *SQLiteStore) Equity(ctx context.Context, id string) ([]domain.EquityPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, nav FROM equity WHERE run_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var (
			d   string
			nav float64
		)
		if err := rows.Scan(&d, &nav); err != nil {
			return nil, err
		}
		t, err := time.Parse(domain.DateLayout, d)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.EquityPoint{Date: t, NAV: nav})
	}
	return out, rows.Err()
}
