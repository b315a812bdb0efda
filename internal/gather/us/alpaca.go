// Package us gathers US equity market data from the Alpaca APIs.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantback/internal/domain"
	"quantback/internal/gather"
	"quantback/internal/store"
	"quantback/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// DailyBarGatherer gathers daily OHLCV bars for a configured US equity symbol
// list via the Alpaca market-data API and persists them to a BarStore. Symbols
// that return data are also recorded in the instrument store.
type DailyBarGatherer struct {
	client      *marketdata.Client
	bars        store.BarStore
	instruments store.InstrumentStore

	symbols    []string
	batchSize  int // symbols per API call
	maxWorkers int // concurrent fetch goroutines
	limiter    *util.RateLimiter
	startDate  string

	log *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer for the given symbol list.
// instruments may be nil when only bar data is wanted.
func NewDailyBarGatherer(
	apiKey, apiSecret, dataURL string,
	bars store.BarStore,
	instruments store.InstrumentStore,
	symbols []string,
	batchSize, maxWorkers, rateLimitPerMin int,
	startDate string,
) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	return &DailyBarGatherer{
		client:      marketdata.NewClient(opts),
		bars:        bars,
		instruments: instruments,
		symbols:     symbols,
		batchSize:   batchSize,
		maxWorkers:  maxWorkers,
		limiter:     util.NewRateLimiter(rateLimitPerMin),
		startDate:   startDate,
		log:         slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for the configured symbols from the Alpaca API and
// writes them to the bar store. Writes merge with existing data, so re-running
// over the same range is idempotent.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	end := util.Midnight(time.Now().UTC())

	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	batches := splitBatches(g.symbols, g.batchSize)

	g.log.Info("starting us-daily",
		"symbols", len(g.symbols),
		"batches", len(batches),
		"start", g.startDate,
		"end", end.Format("2006-01-02"),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg       sync.WaitGroup
		hitMu    sync.Mutex
		hits     = make(map[string]struct{})
		failures atomic.Int64
		runStart = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}

				batch := batches[batchIdx]

				var bars []domain.Bar
				err := util.Retry(ctx, 3, time.Second, func() error {
					if err := g.limiter.Wait(ctx); err != nil {
						return err
					}
					var err error
					bars, err = g.fetchMultiBars(batch, start, end)
					return err
				})
				if err != nil {
					failures.Add(1)
					g.log.Error("batch fetch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
						"err", err,
					)
					continue
				}

				if len(bars) > 0 {
					if err := g.bars.WriteBars(ctx, domain.MarketUS, bars); err != nil {
						failures.Add(1)
						g.log.Error("writing bars failed", "err", err)
						continue
					}
				}

				hitMu.Lock()
				for _, b := range bars {
					hits[b.Symbol] = struct{}{}
				}
				n := len(hits)
				hitMu.Unlock()

				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
					"bars", len(bars),
					"symbolsWithData", n,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if g.instruments != nil && len(hits) > 0 {
		instruments := make([]domain.Instrument, 0, len(hits))
		for _, sym := range g.symbols {
			if _, ok := hits[sym]; ok {
				instruments = append(instruments, domain.Instrument{Code: sym, Name: sym})
			}
		}
		if err := g.instruments.SaveInstruments(ctx, domain.MarketUS, instruments); err != nil {
			return fmt.Errorf("saving instruments: %w", err)
		}
	}

	g.log.Info("complete",
		"symbolsWithData", len(hits),
		"failedBatches", failures.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: util.Midnight(ab.Timestamp),
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
				Turnover:  ab.VWAP * float64(ab.Volume),
			})
		}
	}
	return bars, nil
}

// splitBatches divides symbols into slices of at most size entries, preserving
// order.
func splitBatches(symbols []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}
