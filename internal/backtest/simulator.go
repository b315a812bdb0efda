// Package backtest implements the day-by-day portfolio simulator and the
// performance analysis of completed runs. The simulator is a deterministic
// state machine over historical daily bars: day t's state is a pure
// function of day t−1's state plus that day's market data.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantback/internal/domain"
	"quantback/internal/factor"
	"quantback/internal/util"
)

// Config holds the parameters of one simulation run.
type Config struct {
	StartDate time.Time
	EndDate   time.Time

	InitialCash     float64
	RebalancePeriod int // trading days between reselections
	TopN            int
	LotSize         int64

	BuyCommissionRate  float64
	SellCommissionRate float64
	MinCommission      float64
	Slippage           float64
}

// Result is the complete output of a run: one portfolio state per simulated
// day, the date-ordered trade ledger, and the daily return series (day 0 is
// 0 by convention).
type Result struct {
	States  []domain.PortfolioState
	Trades  []domain.Trade
	Returns []float64
}

// Simulator walks the trading calendar, rebalancing into the top-scored
// instruments on schedule and revaluing the portfolio every day. It owns
// the only mutable state of a run (cash, positions, ledger); the factor
// engine and selector it invokes are pure.
type Simulator struct {
	cfg      Config
	engine   *factor.Engine
	universe []string // canonical instrument order, fixed at construction
	series   map[string]domain.PriceSeries
	log      *slog.Logger

	cash      float64
	positions map[string]int64
	trades    []domain.Trade
}

// NewSimulator creates a Simulator over the given universe and price data.
// universe fixes the canonical instrument order used for tie-breaking and
// ledger determinism; series maps instrument code to its full price
// history, which is never mutated.
func NewSimulator(cfg Config, engine *factor.Engine, universe []string, series map[string]domain.PriceSeries) *Simulator {
	return &Simulator{
		cfg:      cfg,
		engine:   engine,
		universe: universe,
		series:   series,
		log:      slog.Default().With("component", "simulator"),
	}
}

// Run executes the simulation over [cfg.StartDate, cfg.EndDate] and returns
// the state series, trade ledger, and daily returns. The context is checked
// between day iterations only; state is fully updated or not at all per
// day, so cancellation never leaves a half-applied day behind.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	if len(s.universe) == 0 {
		return nil, &domain.EmptyUniverseError{}
	}
	if s.cfg.RebalancePeriod < 1 {
		return nil, fmt.Errorf("rebalance period must be at least 1 trading day, got %d", s.cfg.RebalancePeriod)
	}

	calendar := util.NewTradingCalendar(s.series, util.Midnight(s.cfg.StartDate), util.Midnight(s.cfg.EndDate))
	days := calendar.Days()
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days between %s and %s",
			s.cfg.StartDate.Format("2006-01-02"), s.cfg.EndDate.Format("2006-01-02"))
	}

	s.cash = s.cfg.InitialCash
	s.positions = make(map[string]int64)
	s.trades = nil

	result := &Result{
		States:  make([]domain.PortfolioState, 0, len(days)),
		Returns: make([]float64, 0, len(days)),
	}

	s.log.Info("starting run",
		"instruments", len(s.universe),
		"days", len(days),
		"rebalancePeriod", s.cfg.RebalancePeriod,
		"topN", s.cfg.TopN,
	)

	for i, date := range days {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if i%s.cfg.RebalancePeriod == 0 {
			if err := s.rebalance(date); err != nil {
				return nil, err
			}
		}

		total, err := s.totalValue(date)
		if err != nil {
			return nil, err
		}

		ret := 0.0
		if i > 0 {
			if prev := result.States[i-1].TotalValue; prev > 0 {
				ret = total/prev - 1
			}
		}

		result.States = append(result.States, domain.PortfolioState{
			Date:       date,
			Cash:       s.cash,
			Positions:  copyPositions(s.positions),
			TotalValue: total,
		})
		result.Returns = append(result.Returns, ret)
	}

	result.Trades = s.trades

	s.log.Info("run complete",
		"days", len(result.States),
		"trades", len(result.Trades),
		"terminalValue", result.States[len(result.States)-1].TotalValue,
	)
	return result, nil
}

// rebalance reselects the holding set as of date: score, pick targets, sell
// everything outside the target set, then spread the freed cash equally
// over the newly entering targets.
func (s *Simulator) rebalance(date time.Time) error {
	// Snapshot of history available at this date — never beyond it.
	history := make(map[string]domain.PriceSeries, len(s.universe))
	for _, code := range s.universe {
		if trunc := s.series[code].Truncate(date); len(trunc) > 0 {
			history[code] = trunc
		}
	}
	if len(history) == 0 {
		// Soft: nothing can be scored yet, hold whatever we have.
		s.log.Warn("empty candidate set, holding positions", "date", date.Format("2006-01-02"))
		return nil
	}

	scores := s.engine.Scores(s.universe, history)
	target := factor.TopN(s.universe, scores, s.cfg.TopN)
	if len(target) == 0 {
		s.log.Warn("selector returned no instruments, holding positions", "date", date.Format("2006-01-02"))
		return nil
	}

	targetSet := make(map[string]bool, len(target))
	for _, code := range target {
		targetSet[code] = true
	}

	preTrade, err := s.totalValue(date)
	if err != nil {
		return err
	}
	s.log.Info("rebalance", "date", date.Format("2006-01-02"), "target", target, "preTradeValue", preTrade)

	if err := s.sellPhase(date, targetSet); err != nil {
		return err
	}
	s.allocationPhase(date, target)
	return nil
}

// sellPhase liquidates every held instrument that is not in the target set.
// Held instruments are visited in universe order so the ledger is
// deterministic.
func (s *Simulator) sellPhase(date time.Time, targetSet map[string]bool) error {
	for _, code := range s.universe {
		shares, held := s.positions[code]
		if !held || targetSet[code] {
			continue
		}

		close, ok := s.series[code].LastCloseBefore(date)
		if !ok {
			return &domain.DataIntegrityError{Symbol: code, Date: date}
		}

		// Slippage works against the trader on both sides.
		sellPrice := close * (1 - s.cfg.Slippage)
		gross := float64(shares) * sellPrice
		commission := s.commission(gross, s.cfg.SellCommissionRate)

		s.cash += gross - commission
		delete(s.positions, code)
		s.trades = append(s.trades, domain.Trade{
			Date:       date,
			Symbol:     code,
			Side:       domain.TradeSideSell,
			Price:      sellPrice,
			Shares:     shares,
			Value:      gross,
			Commission: commission,
		})

		s.log.Info("sell", "date", date.Format("2006-01-02"), "symbol", code,
			"price", sellPrice, "shares", shares, "commission", commission)
	}
	return nil
}

// allocationPhase splits the remaining cash equally across the instruments
// newly entering the target set and buys whole lots. An allocation too
// small for a single lot is skipped and the cash stays idle; that is not an
// error.
func (s *Simulator) allocationPhase(date time.Time, target []string) {
	var entering []string
	for _, code := range target {
		if _, held := s.positions[code]; !held {
			entering = append(entering, code)
		}
	}
	if len(entering) == 0 {
		return
	}

	alloc := s.cash / float64(len(entering))

	for _, code := range entering {
		// The instrument was scored, so a close at or before date exists.
		close, ok := s.series[code].LastCloseBefore(date)
		if !ok {
			continue
		}

		buyPrice := close * (1 + s.cfg.Slippage)
		commission := s.commission(alloc, s.cfg.BuyCommissionRate)
		budget := alloc - commission

		lot := float64(s.cfg.LotSize)
		shares := int64(budget/buyPrice/lot) * s.cfg.LotSize
		if shares <= 0 {
			s.log.Info("insufficient capital, skipping buy",
				"date", date.Format("2006-01-02"), "symbol", code,
				"allocated", alloc, "lotCost", buyPrice*lot)
			continue
		}

		s.cash -= float64(shares)*buyPrice + commission
		s.positions[code] = shares
		s.trades = append(s.trades, domain.Trade{
			Date:       date,
			Symbol:     code,
			Side:       domain.TradeSideBuy,
			Price:      buyPrice,
			Shares:     shares,
			Value:      float64(shares) * buyPrice,
			Commission: commission,
		})

		s.log.Info("buy", "date", date.Format("2006-01-02"), "symbol", code,
			"price", buyPrice, "shares", shares, "commission", commission)
	}
}

// totalValue prices every held position at the close of record for date,
// carrying the most recent prior close across quote gaps. A held position
// with no usable close at all is a hard data error.
func (s *Simulator) totalValue(date time.Time) (float64, error) {
	total := s.cash
	for _, code := range s.universe {
		shares, held := s.positions[code]
		if !held {
			continue
		}
		close, ok := s.series[code].LastCloseBefore(date)
		if !ok {
			return 0, &domain.DataIntegrityError{Symbol: code, Date: date}
		}
		total += float64(shares) * close
	}
	return total, nil
}

// commission applies the commission rate to a gross amount with the
// configured minimum.
func (s *Simulator) commission(gross float64, rate float64) float64 {
	c := gross * rate
	if c < s.cfg.MinCommission {
		return s.cfg.MinCommission
	}
	return c
}

func copyPositions(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
