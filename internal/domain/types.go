// Package domain defines the core data types shared across the quantback
// platform: instruments, daily bars, trades, portfolio states, and the
// performance metrics produced by a completed backtest.
package domain

import "time"

// Market identifies which exchange universe a symbol belongs to.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Instrument is immutable reference data for a tradable security.
type Instrument struct {
	Code string // exchange symbol, e.g. "600519" or "AAPL"
	Name string // display name
}

// Bar is one daily OHLCV bar for a single instrument.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Turnover  float64 // traded value, price × volume summed over the day
}

// PriceSeries is a date-ordered, date-unique sequence of bars for one
// instrument. It is read-only input to the backtest core.
type PriceSeries []Bar

// TradeSide is the direction of an executed trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is one immutable ledger entry. Price is the execution price after
// slippage; Value is shares × price (gross, before commission).
type Trade struct {
	Date       time.Time
	Symbol     string
	Side       TradeSide
	Price      float64
	Shares     int64
	Value      float64
	Commission float64
}

// PortfolioState is the portfolio snapshot recorded at the end of each
// simulated day. Positions maps symbol → share count; share counts are
// always non-negative multiples of the configured lot size.
type PortfolioState struct {
	Date       time.Time
	Cash       float64
	Positions  map[string]int64
	TotalValue float64
}

// PerformanceMetrics summarizes a completed backtest run.
type PerformanceMetrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64 // annualized
	SharpeRatio      float64
	MaxDrawdown      float64 // ≤ 0
	WinRate          float64
	TerminalValue    float64
}

// LastCloseBefore returns the most recent close at or before date, walking
// backward across quote gaps (trading holidays). The second return value is
// false when the series has no bar at or before date at all.
func (s PriceSeries) LastCloseBefore(date time.Time) (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if !s[i].Timestamp.After(date) {
			return s[i].Close, true
		}
	}
	return 0, false
}

// Truncate returns the prefix of the series with timestamps at or before
// date. The result shares backing storage with the receiver; callers must
// not mutate it.
func (s PriceSeries) Truncate(date time.Time) PriceSeries {
	n := len(s)
	for n > 0 && s[n-1].Timestamp.After(date) {
		n--
	}
	return s[:n]
}
