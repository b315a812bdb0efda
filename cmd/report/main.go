package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"quantback/internal/config"
	"quantback/internal/report"
	"quantback/internal/store"
	"quantback/internal/util"
)

func main() {
	runID := flag.Int64("run", 0, "run ID to render (0 = most recent)")
	list := flag.Bool("list", false, "list saved runs instead of rendering")
	flag.Parse()

	cfgPath := "config/quantback.yaml"
	if p := os.Getenv("QUANTBACK_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening results database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	if *list {
		runs, err := db.ListRuns(ctx, 50)
		if err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		for _, r := range runs {
			fmt.Printf("%4d  %s  %s  %s..%s  total %+7.2f%%  sharpe %5.2f\n",
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04"),
				r.Market,
				r.StartDate.Format("2006-01-02"),
				r.EndDate.Format("2006-01-02"),
				r.Metrics.TotalReturn*100,
				r.Metrics.SharpeRatio,
			)
		}
		return
	}

	id := *runID
	if id == 0 {
		runs, err := db.ListRuns(ctx, 1)
		if err != nil {
			log.Fatalf("listing runs: %v", err)
		}
		if len(runs) == 0 {
			log.Fatal("no saved runs")
		}
		id = runs[0].ID
	}

	run, err := db.GetRun(ctx, id)
	if err != nil {
		log.Fatalf("loading run %d: %v", id, err)
	}

	rep, err := report.New(cfg.Storage.ReportDir)
	if err != nil {
		log.Fatalf("creating report dir: %v", err)
	}
	htmlPath, err := rep.Render(run)
	if err != nil {
		log.Fatalf("rendering report: %v", err)
	}
	fmt.Println(htmlPath)
}
