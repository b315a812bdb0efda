package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"quantback/internal/backtest"
	"quantback/internal/config"
	"quantback/internal/domain"
	"quantback/internal/factor"
	"quantback/internal/report"
	"quantback/internal/store"
	"quantback/internal/util"
)

func main() {
	cfgPath := "config/quantback.yaml"
	if p := os.Getenv("QUANTBACK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	bt := cfg.Backtest
	start, err := time.Parse("2006-01-02", bt.StartDate)
	if err != nil {
		log.Fatalf("invalid backtest.start_date %q: %v", bt.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", bt.EndDate)
	if err != nil {
		log.Fatalf("invalid backtest.end_date %q: %v", bt.EndDate, err)
	}
	if len(bt.Universe) == 0 {
		log.Fatal("backtest.universe is empty")
	}
	market := domain.Market(bt.Market)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load price history for the universe.
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	series := make(map[string]domain.PriceSeries, len(bt.Universe))
	for _, code := range bt.Universe {
		got, err := bars.ReadBars(ctx, code, market, start, end)
		if err != nil {
			log.Fatalf("reading bars for %s: %v", code, err)
		}
		series[code] = got
	}

	// Factor weights are applied in sorted name order so runs are repeatable.
	engine := factor.NewEngine()
	names := make([]string, 0, len(bt.Factors))
	for name := range bt.Factors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := engine.AddFactor(name, bt.Factors[name]); err != nil {
			log.Fatalf("configuring factor %s: %v", name, err)
		}
	}

	sim := backtest.NewSimulator(backtest.Config{
		StartDate:          start,
		EndDate:            end,
		InitialCash:        bt.InitialCash,
		RebalancePeriod:    bt.RebalancePeriod,
		TopN:               bt.TopN,
		LotSize:            bt.LotSize,
		BuyCommissionRate:  bt.BuyCommissionRate,
		SellCommissionRate: bt.SellCommissionRate,
		MinCommission:      bt.MinCommission,
		Slippage:           bt.Slippage,
	}, engine, bt.Universe, series)

	result, err := sim.Run(ctx)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	metrics := backtest.Analyze(result, bt.RiskFreeRate)

	// Persist the run.
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening results database: %v", err)
	}
	defer db.Close()

	run := &store.Run{
		Market:    market,
		StartDate: start,
		EndDate:   end,
		Universe:  bt.Universe,
		Metrics:   metrics,
		Trades:    result.Trades,
		Values:    result.States,
	}
	id, err := db.SaveRun(ctx, run)
	if err != nil {
		log.Fatalf("saving run: %v", err)
	}

	rep, err := report.New(cfg.Storage.ReportDir)
	if err != nil {
		log.Fatalf("creating report dir: %v", err)
	}
	htmlPath, err := rep.Render(run)
	if err != nil {
		log.Fatalf("rendering report: %v", err)
	}

	fmt.Printf("run %d saved, report: %s\n", id, htmlPath)
	fmt.Printf("  total return:      %+.2f%%\n", metrics.TotalReturn*100)
	fmt.Printf("  annualized return: %+.2f%%\n", metrics.AnnualizedReturn*100)
	fmt.Printf("  volatility:        %.2f%%\n", metrics.Volatility*100)
	fmt.Printf("  sharpe ratio:      %.2f\n", metrics.SharpeRatio)
	fmt.Printf("  max drawdown:      %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("  win rate:          %.2f%%\n", metrics.WinRate*100)
	fmt.Printf("  terminal value:    %.2f\n", metrics.TerminalValue)
}
