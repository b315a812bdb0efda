package backtest

import (
	"math"

	"quantback/internal/domain"
)

// TradingDaysPerYear is the annualization base for returns and volatility.
const TradingDaysPerYear = 252

// Analyze derives performance metrics from a completed run. The value
// series and ledger are read-only inputs; metrics are computed exactly
// once, after the run finishes.
func Analyze(result *Result, riskFreeRate float64) domain.PerformanceMetrics {
	if len(result.States) == 0 {
		return domain.PerformanceMetrics{}
	}

	values := make([]float64, len(result.States))
	for i, st := range result.States {
		values[i] = st.TotalValue
	}

	initial := values[0]
	terminal := values[len(values)-1]

	var totalReturn float64
	if initial > 0 {
		totalReturn = terminal/initial - 1
	}

	// Geometric annualization over the number of simulated trading days.
	n := float64(len(values))
	annualized := math.Pow(1+totalReturn, TradingDaysPerYear/n) - 1

	volatility := sampleStd(result.Returns) * math.Sqrt(TradingDaysPerYear)

	sharpe := 0.0
	if volatility != 0 {
		sharpe = (annualized - riskFreeRate) / volatility
	}

	return domain.PerformanceMetrics{
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualized,
		Volatility:       volatility,
		SharpeRatio:      sharpe,
		MaxDrawdown:      maxDrawdown(values),
		WinRate:          winRate(result.Trades),
		TerminalValue:    terminal,
	}
}

// sampleStd computes the sample standard deviation (n−1 denominator).
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// maxDrawdown returns the most negative peak-to-trough decline as a
// fraction of the running maximum. It is 0 for a non-decreasing series.
func maxDrawdown(values []float64) float64 {
	var dd float64
	runMax := math.Inf(-1)
	for _, v := range values {
		if v > runMax {
			runMax = v
		}
		if runMax > 0 {
			if d := (v - runMax) / runMax; d < dd {
				dd = d
			}
		}
	}
	return dd
}

// winRate matches every sell against the most recent prior buy of the same
// instrument and counts it as a win when the round trip was profitable. A
// sell with no matching buy still counts in the denominator, never the
// numerator. Returns 0 when the ledger contains no sells.
func winRate(trades []domain.Trade) float64 {
	var sells, wins int
	for i, tr := range trades {
		if tr.Side != domain.TradeSideSell {
			continue
		}
		sells++
		for j := i - 1; j >= 0; j-- {
			prev := trades[j]
			if prev.Symbol != tr.Symbol || prev.Side != domain.TradeSideBuy {
				continue
			}
			if (tr.Price-prev.Price)*float64(tr.Shares) > 0 {
				wins++
			}
			break
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}
