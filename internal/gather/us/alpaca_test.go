package us

import "testing"

func TestDailyBarGathererName(t *testing.T) {
	g := NewDailyBarGatherer("key", "secret", "https://data.alpaca.markets",
		nil, nil, []string{"AAPL"}, 200, 4, 200, "2016-01-01")
	if got := g.Name(); got != "us-daily" {
		t.Errorf("DailyBarGatherer.Name() = %q, want %q", got, "us-daily")
	}
}

func TestSplitBatches(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E"}

	batches := splitBatches(symbols, 2)
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[2]) != 1 || batches[2][0] != "E" {
		t.Errorf("last batch = %v, want [E]", batches[2])
	}

	// Degenerate sizes still make progress.
	if got := splitBatches(symbols, 0); len(got) != 5 {
		t.Errorf("splitBatches(size 0) produced %d batches, want 5", len(got))
	}
	if got := splitBatches(nil, 3); got != nil {
		t.Errorf("splitBatches(nil) = %v, want nil", got)
	}
}
