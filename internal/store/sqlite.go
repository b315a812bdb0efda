package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"quantback/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ InstrumentStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements InstrumentStore and RunStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	market TEXT NOT NULL,
	code   TEXT NOT NULL,
	name   TEXT NOT NULL,
	PRIMARY KEY (market, code)
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at        TEXT NOT NULL,
	market            TEXT NOT NULL,
	start_date        TEXT NOT NULL,
	end_date          TEXT NOT NULL,
	universe          TEXT NOT NULL,
	total_return      REAL NOT NULL,
	annualized_return REAL NOT NULL,
	volatility        REAL NOT NULL,
	sharpe_ratio      REAL NOT NULL,
	max_drawdown      REAL NOT NULL,
	win_rate          REAL NOT NULL,
	terminal_value    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_trades (
	run_id     INTEGER NOT NULL REFERENCES backtest_runs(id),
	seq        INTEGER NOT NULL,
	date       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	price      REAL NOT NULL,
	shares     INTEGER NOT NULL,
	value      REAL NOT NULL,
	commission REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS backtest_values (
	run_id      INTEGER NOT NULL REFERENCES backtest_runs(id),
	date        TEXT NOT NULL,
	cash        REAL NOT NULL,
	total_value REAL NOT NULL,
	PRIMARY KEY (run_id, date)
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// InstrumentStore implementation
// ---------------------------------------------------------------------------

// SaveInstruments replaces the instrument list for a market.
func (s *SQLiteStore) SaveInstruments(ctx context.Context, market domain.Market, instruments []domain.Instrument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments WHERE market = ?`, string(market)); err != nil {
		return err
	}
	for _, inst := range instruments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instruments (market, code, name) VALUES (?, ?, ?)`,
			string(market), inst.Code, inst.Name,
		); err != nil {
			return fmt.Errorf("inserting instrument %s: %w", inst.Code, err)
		}
	}
	return tx.Commit()
}

// ListInstruments returns the instrument list for a market, code-ordered.
func (s *SQLiteStore) ListInstruments(ctx context.Context, market domain.Market) ([]domain.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name FROM instruments WHERE market = ? ORDER BY code`, string(market))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		var inst domain.Instrument
		if err := rows.Scan(&inst.Code, &inst.Name); err != nil {
			return nil, err
		}
		instruments = append(instruments, inst)
	}
	return instruments, rows.Err()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun persists a completed run, its trade ledger, and its daily value
// series in one transaction, and returns the assigned run ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			created_at, market, start_date, end_date, universe,
			total_return, annualized_return, volatility, sharpe_ratio,
			max_drawdown, win_rate, terminal_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		createdAt.Format(time.RFC3339),
		string(run.Market),
		run.StartDate.Format("2006-01-02"),
		run.EndDate.Format("2006-01-02"),
		strings.Join(run.Universe, ","),
		run.Metrics.TotalReturn,
		run.Metrics.AnnualizedReturn,
		run.Metrics.Volatility,
		run.Metrics.SharpeRatio,
		run.Metrics.MaxDrawdown,
		run.Metrics.WinRate,
		run.Metrics.TerminalValue,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for seq, tr := range run.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (run_id, seq, date, symbol, side, price, shares, value, commission)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, seq, tr.Date.Format("2006-01-02"), tr.Symbol, string(tr.Side),
			tr.Price, tr.Shares, tr.Value, tr.Commission,
		); err != nil {
			return 0, fmt.Errorf("inserting trade %d: %w", seq, err)
		}
	}

	for _, st := range run.Values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_values (run_id, date, cash, total_value)
			VALUES (?, ?, ?, ?)`,
			id, st.Date.Format("2006-01-02"), st.Cash, st.TotalValue,
		); err != nil {
			return 0, fmt.Errorf("inserting value for %s: %w", st.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// GetRun retrieves a run by ID, including its trade ledger and value series.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, market, start_date, end_date, universe,
		       total_return, annualized_return, volatility, sharpe_ratio,
		       max_drawdown, win_rate, terminal_value
		FROM backtest_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %d not found", id)
		}
		return nil, err
	}

	trades, err := s.db.QueryContext(ctx, `
		SELECT date, symbol, side, price, shares, value, commission
		FROM backtest_trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer trades.Close()
	for trades.Next() {
		var (
			tr   domain.Trade
			date string
			side string
		)
		if err := trades.Scan(&date, &tr.Symbol, &side, &tr.Price, &tr.Shares, &tr.Value, &tr.Commission); err != nil {
			return nil, err
		}
		tr.Date, _ = time.Parse("2006-01-02", date)
		tr.Side = domain.TradeSide(side)
		run.Trades = append(run.Trades, tr)
	}
	if err := trades.Err(); err != nil {
		return nil, err
	}

	values, err := s.db.QueryContext(ctx, `
		SELECT date, cash, total_value
		FROM backtest_values WHERE run_id = ? ORDER BY date`, id)
	if err != nil {
		return nil, err
	}
	defer values.Close()
	for values.Next() {
		var (
			st   domain.PortfolioState
			date string
		)
		if err := values.Scan(&date, &st.Cash, &st.TotalValue); err != nil {
			return nil, err
		}
		st.Date, _ = time.Parse("2006-01-02", date)
		run.Values = append(run.Values, st)
	}
	if err := values.Err(); err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns returns run summaries without trades or value series, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, market, start_date, end_date, universe,
		       total_return, annualized_return, volatility, sharpe_ratio,
		       max_drawdown, win_rate, terminal_value
		FROM backtest_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		createdAt string
		market    string
		start     string
		end       string
		universe  string
	)
	if err := row.Scan(
		&run.ID, &createdAt, &market, &start, &end, &universe,
		&run.Metrics.TotalReturn, &run.Metrics.AnnualizedReturn,
		&run.Metrics.Volatility, &run.Metrics.SharpeRatio,
		&run.Metrics.MaxDrawdown, &run.Metrics.WinRate,
		&run.Metrics.TerminalValue,
	); err != nil {
		return nil, err
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.Market = domain.Market(market)
	run.StartDate, _ = time.Parse("2006-01-02", start)
	run.EndDate, _ = time.Parse("2006-01-02", end)
	if universe != "" {
		run.Universe = strings.Split(universe, ",")
	}
	return &run, nil
}
