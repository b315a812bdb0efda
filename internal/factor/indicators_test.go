package factor

import (
	"math"
	"testing"
	"time"

	"quantback/internal/domain"
)

func seriesFromCloses(closes ...float64) domain.PriceSeries {
	s := make(domain.PriceSeries, len(closes))
	for i, c := range closes {
		s[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close:     c,
		}
	}
	return s
}

func TestRSI(t *testing.T) {
	// Last 2 deltas: -0.5 and +1.0 → gain 0.5, loss 0.25, RS 2, RSI 66.67.
	s := seriesFromCloses(10, 11, 10.5, 11.5)
	got := RSI(s, 2)
	want := 100 - 100/(1+2.0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("RSI = %v, want %v", got, want)
	}
}

func TestRSIAllGains(t *testing.T) {
	// No losses in the window → RSI saturates at 100.
	s := seriesFromCloses(10, 11, 12, 13)
	if got := RSI(s, 3); got != 100 {
		t.Errorf("RSI with no losses = %v, want 100", got)
	}
}

func TestRSIFlatWindow(t *testing.T) {
	// No gains and no losses → RS is 0/0, RSI undefined.
	s := seriesFromCloses(10, 10, 10, 10)
	if got := RSI(s, 3); !math.IsNaN(got) {
		t.Errorf("RSI on flat window = %v, want NaN", got)
	}
}

func TestRSIInsufficientHistory(t *testing.T) {
	s := seriesFromCloses(10, 11)
	if got := RSI(s, 14); !math.IsNaN(got) {
		t.Errorf("RSI with 2 bars, period 14 = %v, want NaN", got)
	}
}

func TestMomentum(t *testing.T) {
	s := seriesFromCloses(10, 11, 12)
	got := Momentum(s, 2)
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("Momentum = %v, want 0.2", got)
	}

	if got := Momentum(s, 3); !math.IsNaN(got) {
		t.Errorf("Momentum with insufficient history = %v, want NaN", got)
	}
}

func TestVolatility(t *testing.T) {
	// Returns are +0.1 and −0.1; sample std = sqrt(0.02).
	s := seriesFromCloses(10, 11, 9.9)
	got := Volatility(s, 2)
	want := math.Sqrt(0.02)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Volatility = %v, want %v", got, want)
	}

	if got := Volatility(seriesFromCloses(10, 11), 2); !math.IsNaN(got) {
		t.Errorf("Volatility with insufficient history = %v, want NaN", got)
	}
}
