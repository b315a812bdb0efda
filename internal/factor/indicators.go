package factor

import (
	"math"

	"quantback/internal/domain"
)

// Raw indicator functions. Each evaluates an indicator "as of" the end of
// the given series, which the caller has already truncated to the
// evaluation date. A return of NaN means the indicator is undefined for
// lack of history; callers map that to the penalty score rather than
// treating it as an error.

// RSI computes the relative strength index over the trailing period using
// simple moving averages of gains and losses. Requires period+1 closes.
func RSI(s domain.PriceSeries, period int) float64 {
	if len(s) < period+1 {
		return math.NaN()
	}

	var gain, loss float64
	for i := len(s) - period; i < len(s); i++ {
		delta := s[i].Close - s[i-1].Close
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	if loss == 0 {
		if gain == 0 {
			return math.NaN() // flat window, RS is 0/0
		}
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

// Volatility computes the sample standard deviation of daily returns over
// the trailing period. Requires period+1 closes.
func Volatility(s domain.PriceSeries, period int) float64 {
	if len(s) < period+1 {
		return math.NaN()
	}

	returns := make([]float64, 0, period)
	for i := len(s) - period; i < len(s); i++ {
		prev := s[i-1].Close
		if prev == 0 {
			return math.NaN()
		}
		returns = append(returns, s[i].Close/prev-1)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	// Sample standard deviation (n-1 denominator), matching a rolling std.
	return math.Sqrt(ss / float64(len(returns)-1))
}

// Momentum computes the fractional price change over the trailing period:
// close[t] / close[t-period] − 1. Requires period+1 closes.
func Momentum(s domain.PriceSeries, period int) float64 {
	if len(s) < period+1 {
		return math.NaN()
	}
	base := s[len(s)-1-period].Close
	if base == 0 {
		return math.NaN()
	}
	return s[len(s)-1].Close/base - 1
}
