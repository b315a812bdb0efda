// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, instruments, and completed backtest runs.
package store

import (
	"context"
	"time"

	"quantback/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// InstrumentStore persists and retrieves the instrument list per market.
type InstrumentStore interface {
	// SaveInstruments replaces the instrument list for a market.
	SaveInstruments(ctx context.Context, market domain.Market, instruments []domain.Instrument) error

	// ListInstruments returns the instrument list for a market, code-ordered.
	ListInstruments(ctx context.Context, market domain.Market) ([]domain.Instrument, error)
}

// RunStore persists and retrieves completed backtest runs: the parameter
// snapshot, the performance metrics, the trade ledger, and the daily value
// series.
type RunStore interface {
	// SaveRun persists a completed run and returns its assigned ID.
	SaveRun(ctx context.Context, run *Run) (int64, error)

	// GetRun retrieves a run by ID, including its trades and value series.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns run summaries (no trades or values), newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// Run is a persisted backtest: what was run, what it traded, and how it
// performed.
type Run struct {
	ID        int64
	CreatedAt time.Time

	Market    domain.Market
	StartDate time.Time
	EndDate   time.Time
	Universe  []string

	Metrics domain.PerformanceMetrics
	Trades  []domain.Trade
	Values  []domain.PortfolioState
}
