package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"quantback/internal/domain"
	"quantback/internal/factor"
)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

// flatSeries builds n daily bars with the given constant close.
func flatSeries(symbol string, n int, close float64) domain.PriceSeries {
	s := make(domain.PriceSeries, n)
	for i := range s {
		s[i] = domain.Bar{Symbol: symbol, Timestamp: day(i), Close: close}
	}
	return s
}

func momentumEngine(t *testing.T) *factor.Engine {
	t.Helper()
	e := factor.NewEngine()
	if err := e.AddFactor(factor.FactorMomentum, 1.0); err != nil {
		t.Fatalf("AddFactor: %v", err)
	}
	return e
}

// frictionless has no commission or slippage so share counts are exact.
func frictionless() Config {
	return Config{
		StartDate:       day(0),
		EndDate:         day(30),
		InitialCash:     50000,
		RebalancePeriod: 5,
		TopN:            2,
		LotSize:         100,
	}
}

func TestFirstRebalanceScenario(t *testing.T) {
	// 10 bars per instrument: momentum-20 is undefined for everyone, so all
	// three receive the penalty score and the tie resolves by universe
	// order — A and B are selected.
	series := map[string]domain.PriceSeries{
		"A": flatSeries("A", 10, 10),
		"B": flatSeries("B", 10, 20),
		"C": flatSeries("C", 10, 30),
	}
	cfg := frictionless()
	cfg.EndDate = day(9)

	sim := NewSimulator(cfg, momentumEngine(t), []string{"A", "B", "C"}, series)
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Trades) != 2 {
		t.Fatalf("got %d trades, want 2 buys", len(result.Trades))
	}

	// Equal split of 50,000: floor(25000/close/100)×100 shares each.
	wantA := int64(25000/10/100) * 100 // 2500
	wantB := int64(25000/20/100) * 100 // 1200
	if tr := result.Trades[0]; tr.Symbol != "A" || tr.Side != domain.TradeSideBuy || tr.Shares != wantA {
		t.Errorf("trade[0] = %+v, want buy A %d shares", tr, wantA)
	}
	if tr := result.Trades[1]; tr.Symbol != "B" || tr.Side != domain.TradeSideBuy || tr.Shares != wantB {
		t.Errorf("trade[1] = %+v, want buy B %d shares", tr, wantB)
	}

	final := result.States[len(result.States)-1]
	if final.Positions["A"] != wantA || final.Positions["B"] != wantB {
		t.Errorf("final positions = %v, want A:%d B:%d", final.Positions, wantA, wantB)
	}
	if _, held := final.Positions["C"]; held {
		t.Error("C should never be selected")
	}

	// Day-5 rebalance re-selects the same pair: the ledger must not grow.
	wantCash := 50000 - float64(wantA)*10 - float64(wantB)*20
	if math.Abs(final.Cash-wantCash) > 1e-6 {
		t.Errorf("final cash = %v, want %v", final.Cash, wantCash)
	}
}

func TestValueConservation(t *testing.T) {
	series := map[string]domain.PriceSeries{}
	for i, sym := range []string{"A", "B", "C", "D"} {
		s := make(domain.PriceSeries, 60)
		for j := range s {
			s[j] = domain.Bar{
				Symbol:    sym,
				Timestamp: day(j),
				Close:     50 + 10*float64(i) + 5*math.Sin(float64(j)/4+float64(i)),
			}
		}
		series[sym] = s
	}

	cfg := Config{
		StartDate:          day(0),
		EndDate:            day(59),
		InitialCash:        50000,
		RebalancePeriod:    5,
		TopN:               2,
		LotSize:            100,
		BuyCommissionRate:  0.0001,
		SellCommissionRate: 0.0003,
		MinCommission:      5,
		Slippage:           0.0002,
	}

	e := factor.NewEngine()
	for name, w := range map[string]float64{
		factor.FactorRSI:        0.3,
		factor.FactorVolatility: 0.3,
		factor.FactorMomentum:   0.4,
	} {
		if err := e.AddFactor(name, w); err != nil {
			t.Fatalf("AddFactor: %v", err)
		}
	}

	sim := NewSimulator(cfg, e, []string{"A", "B", "C", "D"}, series)
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, st := range result.States {
		// Recompute the valuation identity independently.
		want := st.Cash
		for sym, shares := range st.Positions {
			close, ok := series[sym].LastCloseBefore(st.Date)
			if !ok {
				t.Fatalf("day %d: no close for held %s", i, sym)
			}
			want += float64(shares) * close

			if shares < 0 || shares%cfg.LotSize != 0 {
				t.Errorf("day %d: %s holds %d shares, not a lot multiple", i, sym, shares)
			}
		}
		if math.Abs(st.TotalValue-want) > 1e-6 {
			t.Errorf("day %d: total value %v, cash+positions %v", i, st.TotalValue, want)
		}
		if st.Cash < 0 {
			t.Errorf("day %d: negative cash %v", i, st.Cash)
		}
	}
}

func TestDeterminism(t *testing.T) {
	series := map[string]domain.PriceSeries{}
	for i, sym := range []string{"A", "B", "C"} {
		s := make(domain.PriceSeries, 50)
		for j := range s {
			s[j] = domain.Bar{
				Symbol:    sym,
				Timestamp: day(j),
				Close:     20 + float64((j*7+i*13)%11),
			}
		}
		series[sym] = s
	}

	cfg := frictionless()
	cfg.EndDate = day(49)
	cfg.BuyCommissionRate = 0.0001
	cfg.SellCommissionRate = 0.0003
	cfg.MinCommission = 5
	cfg.Slippage = 0.0002

	run := func() *Result {
		sim := NewSimulator(cfg, momentumEngine(t), []string{"A", "B", "C"}, series)
		r, err := sim.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return r
	}

	first := run()
	for n := 0; n < 5; n++ {
		again := run()
		if len(again.Trades) != len(first.Trades) {
			t.Fatalf("run %d: %d trades, want %d", n, len(again.Trades), len(first.Trades))
		}
		for i := range first.Trades {
			if again.Trades[i] != first.Trades[i] {
				t.Fatalf("run %d: trade[%d] = %+v, want %+v", n, i, again.Trades[i], first.Trades[i])
			}
		}
		for i := range first.States {
			if again.States[i].TotalValue != first.States[i].TotalValue {
				t.Fatalf("run %d: value[%d] = %v, want %v", n, i, again.States[i].TotalValue, first.States[i].TotalValue)
			}
		}
	}
}

func TestHolidayCarryForward(t *testing.T) {
	// A trades on days 0-2 then goes quiet for days 3-5 (holiday for A);
	// B trades every day and keeps those days on the calendar. A's last
	// close must be carried forward and the portfolio value must not move.
	seriesA := domain.PriceSeries{
		{Symbol: "A", Timestamp: day(0), Close: 10},
		{Symbol: "A", Timestamp: day(1), Close: 10},
		{Symbol: "A", Timestamp: day(2), Close: 10},
		{Symbol: "A", Timestamp: day(6), Close: 10},
	}
	series := map[string]domain.PriceSeries{
		"A": seriesA,
		"B": flatSeries("B", 7, 20),
	}

	cfg := frictionless()
	cfg.EndDate = day(6)
	cfg.RebalancePeriod = 100 // single rebalance at day 0

	sim := NewSimulator(cfg, momentumEngine(t), []string{"A", "B"}, series)
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.States) != 7 {
		t.Fatalf("got %d states, want 7", len(result.States))
	}
	base := result.States[0].TotalValue
	for i, st := range result.States {
		if math.Abs(st.TotalValue-base) > 1e-6 {
			t.Errorf("day %d: value %v, want %v (flat closes, carry-forward)", i, st.TotalValue, base)
		}
		if i > 0 && result.Returns[i] != 0 {
			t.Errorf("day %d: return %v, want 0 across the gap", i, result.Returns[i])
		}
	}
}

func TestInsufficientCapitalSkipsBuy(t *testing.T) {
	// One lot costs 100 × 50 = 5000; with 600 per instrument no buy fits.
	series := map[string]domain.PriceSeries{
		"A": flatSeries("A", 10, 50),
		"B": flatSeries("B", 10, 50),
	}
	cfg := frictionless()
	cfg.EndDate = day(9)
	cfg.InitialCash = 1200

	sim := NewSimulator(cfg, momentumEngine(t), []string{"A", "B"}, series)
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v (insufficient capital must be soft)", err)
	}

	if len(result.Trades) != 0 {
		t.Errorf("got %d trades, want 0", len(result.Trades))
	}
	final := result.States[len(result.States)-1]
	if final.Cash != 1200 {
		t.Errorf("final cash = %v, want untouched 1200", final.Cash)
	}
}

func TestInvalidRebalancePeriod(t *testing.T) {
	series := map[string]domain.PriceSeries{"A": flatSeries("A", 10, 10)}
	cfg := frictionless()
	cfg.EndDate = day(9)
	cfg.RebalancePeriod = 0

	// A zero period is a caller error, not a divide-by-zero panic.
	sim := NewSimulator(cfg, momentumEngine(t), []string{"A"}, series)
	if _, err := sim.Run(context.Background()); err == nil {
		t.Fatal("Run with rebalance period 0 should fail")
	}
}

func TestEmptyUniverse(t *testing.T) {
	cfg := frictionless()
	sim := NewSimulator(cfg, momentumEngine(t), nil, map[string]domain.PriceSeries{})

	_, err := sim.Run(context.Background())
	var eu *domain.EmptyUniverseError
	if !errors.As(err, &eu) {
		t.Fatalf("Run with empty universe = %v, want EmptyUniverseError", err)
	}
}

func TestTotalValueDataIntegrity(t *testing.T) {
	series := map[string]domain.PriceSeries{
		"A": {{Symbol: "A", Timestamp: day(5), Close: 10}},
	}
	sim := NewSimulator(frictionless(), momentumEngine(t), []string{"A"}, series)
	sim.cash = 1000
	sim.positions = map[string]int64{"A": 100}

	// Valuing a held position before any close exists is a hard error.
	_, err := sim.totalValue(day(2))
	var di *domain.DataIntegrityError
	if !errors.As(err, &di) {
		t.Fatalf("totalValue = %v, want DataIntegrityError", err)
	}
	if di.Symbol != "A" {
		t.Errorf("DataIntegrityError.Symbol = %q, want %q", di.Symbol, "A")
	}
}

func TestRebalanceSwitchesHoldings(t *testing.T) {
	// A collapses while B rallies before the second rebalance, which must
	// sell A and buy B.
	mkSeries := func(sym string, closes []float64) domain.PriceSeries {
		s := make(domain.PriceSeries, len(closes))
		for i, c := range closes {
			s[i] = domain.Bar{Symbol: sym, Timestamp: day(i), Close: c}
		}
		return s
	}

	n := 30
	aCloses := make([]float64, n)
	bCloses := make([]float64, n)
	for i := 0; i < n; i++ {
		aCloses[i] = 20
		bCloses[i] = 20
		if i >= 22 {
			aCloses[i] = 5  // collapsed
			bCloses[i] = 40 // rallied
		}
	}

	series := map[string]domain.PriceSeries{
		"A": mkSeries("A", aCloses),
		"B": mkSeries("B", bCloses),
	}

	cfg := frictionless()
	cfg.EndDate = day(n - 1)
	cfg.RebalancePeriod = 25
	cfg.TopN = 1

	sim := NewSimulator(cfg, momentumEngine(t), []string{"A", "B"}, series)
	result, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Day 0: momentum is undefined for both, the penalty tie resolves to A.
	// Day 25: A's momentum is -0.75 and B's is +1.0, so A is liquidated and
	// B bought.
	var sides []string
	for _, tr := range result.Trades {
		sides = append(sides, string(tr.Side)+":"+tr.Symbol)
	}
	want := []string{"buy:A", "sell:A", "buy:B"}
	if len(sides) != len(want) {
		t.Fatalf("trade sequence %v, want %v", sides, want)
	}
	for i := range want {
		if sides[i] != want[i] {
			t.Fatalf("trade sequence %v, want %v", sides, want)
		}
	}

	final := result.States[len(result.States)-1]
	if _, held := final.Positions["A"]; held {
		t.Error("A should have been liquidated at the second rebalance")
	}
	if final.Positions["B"] == 0 {
		t.Error("B should be held after the second rebalance")
	}
}

func TestRunCancellation(t *testing.T) {
	series := map[string]domain.PriceSeries{"A": flatSeries("A", 10, 10)}
	cfg := frictionless()
	cfg.EndDate = day(9)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewSimulator(cfg, momentumEngine(t), []string{"A"}, series)
	if _, err := sim.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run with cancelled context = %v, want context.Canceled", err)
	}
}
