// Package factor computes per-instrument technical indicators, normalizes
// them cross-sectionally into comparable z-scores, and combines them into a
// single weighted score per instrument used for selection.
package factor

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"quantback/internal/domain"
)

// Built-in factor names. The set of supported factors is closed; new ones
// are added through Register, never by ad hoc string matching.
const (
	FactorRSI        = "rsi"
	FactorVolatility = "volatility"
	FactorMomentum   = "momentum"
)

// Default trailing periods for the built-in factors.
const (
	DefaultRSIPeriod        = 14
	DefaultVolatilityPeriod = 20
	DefaultMomentumPeriod   = 20
)

// PenaltyScore is assigned in place of a z-score when an instrument's raw
// factor value is undefined or infinite. Penalized instruments stay in the
// universe at the worst plausible score instead of being dropped, so
// missing data never makes an instrument more likely to be selected.
const PenaltyScore = -3.0

// Func computes one raw factor value for a series truncated to the
// evaluation date. NaN means undefined.
type Func func(s domain.PriceSeries) float64

// Engine holds the configured factors and produces composite scores. It is
// a pure function of its inputs once configured: scores are recomputed
// fresh on every call with no caching, so no state can leak information
// across rebalance boundaries.
type Engine struct {
	funcs   map[string]Func
	weights map[string]float64
	order   []string // weighted factors in AddFactor order, for determinism
	log     *slog.Logger
}

// NewEngine creates an Engine with the built-in factors registered at their
// default periods and no weights configured.
func NewEngine() *Engine {
	e := &Engine{
		funcs:   make(map[string]Func),
		weights: make(map[string]float64),
		log:     slog.Default().With("component", "factor"),
	}
	e.Register(FactorRSI, func(s domain.PriceSeries) float64 { return RSI(s, DefaultRSIPeriod) })
	e.Register(FactorVolatility, func(s domain.PriceSeries) float64 { return Volatility(s, DefaultVolatilityPeriod) })
	e.Register(FactorMomentum, func(s domain.PriceSeries) float64 { return Momentum(s, DefaultMomentumPeriod) })
	return e
}

// Register adds or replaces the computation function for a factor name.
func (e *Engine) Register(name string, fn Func) {
	e.funcs[name] = fn
}

// AddFactor enables a registered factor with the given weight. Weights must
// lie in [0, 1] individually; they are not required to sum to 1. A weight
// outside the range fails immediately with InvalidWeightError, and a name
// with no registered computation function fails immediately too — both at
// configuration time, never during scoring.
func (e *Engine) AddFactor(name string, weight float64) error {
	if _, ok := e.funcs[name]; !ok {
		return fmt.Errorf("unknown factor %q", name)
	}
	if weight < 0 || weight > 1 {
		return &domain.InvalidWeightError{Factor: name, Weight: weight}
	}
	if _, ok := e.weights[name]; !ok {
		e.order = append(e.order, name)
	}
	e.weights[name] = weight
	return nil
}

// Factors returns the enabled factor names in AddFactor order.
func (e *Engine) Factors() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Scores computes the composite score for every instrument in universe
// order. history maps code → series truncated to the evaluation date; the
// engine never looks past the end of a series. Instruments absent from
// history are skipped. Raw indicator computation runs with per-instrument
// parallelism; all results are aggregated before normalization begins.
func (e *Engine) Scores(universe []string, history map[string]domain.PriceSeries) map[string]float64 {
	codes := make([]string, 0, len(universe))
	for _, code := range universe {
		if _, ok := history[code]; ok {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return map[string]float64{}
	}

	// raw[i][f] is the raw value of factor e.order[f] for codes[i].
	raw := make([][]float64, len(codes))

	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(i int, s domain.PriceSeries) {
			defer wg.Done()
			row := make([]float64, len(e.order))
			for f, name := range e.order {
				row[f] = e.funcs[name](s)
			}
			raw[i] = row
		}(i, history[code])
	}
	wg.Wait()

	scores := make(map[string]float64, len(codes))
	for _, code := range codes {
		scores[code] = 0
	}

	for f, name := range e.order {
		normalized := normalize(raw, f)
		w := e.weights[name]
		for i, code := range codes {
			scores[code] += w * normalized[i]
		}
	}

	return scores
}

// normalize z-scores column f of raw cross-sectionally. Mean and standard
// deviation are computed over the valid (finite) subset only; every invalid
// entry receives PenaltyScore. A zero standard deviation yields
// mean-centered but unscaled values.
func normalize(raw [][]float64, f int) []float64 {
	var sum float64
	var n int
	for i := range raw {
		if v := raw[i][f]; isValid(v) {
			sum += v
			n++
		}
	}

	out := make([]float64, len(raw))
	if n == 0 {
		for i := range out {
			out[i] = PenaltyScore
		}
		return out
	}

	mean := sum / float64(n)

	var ss float64
	for i := range raw {
		if v := raw[i][f]; isValid(v) {
			d := v - mean
			ss += d * d
		}
	}
	std := math.Sqrt(ss / float64(n)) // population std over the valid subset

	for i := range raw {
		v := raw[i][f]
		switch {
		case !isValid(v):
			out[i] = PenaltyScore
		case std == 0:
			out[i] = v - mean
		default:
			out[i] = (v - mean) / std
		}
	}
	return out
}

func isValid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
