// barbench loads multi-ticker OHLCV bars from CSV into a relational
// SQLite store and a partitioned Parquet store, runs the same analytical
// queries against both, and reports timing and footprint comparisons.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"barbench/internal/bench"
	"barbench/internal/config"
	"barbench/internal/logging"
	"barbench/internal/market"
	"barbench/internal/store"
	"barbench/internal/store/colstore"
	"barbench/internal/store/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "barbench.yaml", "config file path")
	tickersCSV := flag.String("tickers", "", "ticker reference CSV (overrides config)")
	pricesCSV := flag.String("prices", "", "price bar CSV (overrides config)")
	dataDir := flag.String("data-dir", "", "backend data directory (overrides config)")
	ticker := flag.String("ticker", "", "symbol for single-ticker queries (overrides config)")
	iterations := flag.Int("iterations", 0, "benchmark iterations per case (overrides config)")
	reportPath := flag.String("report", "", "benchmark report path (overrides config)")
	runBench := flag.Bool("bench", true, "run the benchmark after loading")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	jsonLog := flag.Bool("json-log", false, "log in JSON format")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *tickersCSV != "" {
		cfg.Data.TickersCSV = *tickersCSV
	}
	if *pricesCSV != "" {
		cfg.Data.PricesCSV = *pricesCSV
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *ticker != "" {
		cfg.Query.Ticker = *ticker
	}
	if *iterations > 0 {
		cfg.Bench.Iterations = *iterations
	}
	if *reportPath != "" {
		cfg.Bench.ReportPath = *reportPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *jsonLog {
		cfg.Logging.JSON = true
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	logging.Info("barbench starting", "version", Version)

	if err := run(cfg, *runBench); err != nil {
		logging.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// run owns both store handles so they are released on every exit path.
func run(cfg *config.Config, runBench bool) error {
	ctx := context.Background()
	log := logging.Component("main")

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	// Ingest and validate the CSV inputs once; both backends are loaded
	// from the same bars.
	tickers, err := market.LoadTickersCSV(cfg.Data.TickersCSV)
	if err != nil {
		return err
	}
	bars, err := market.LoadBarsCSV(cfg.Data.PricesCSV)
	if err != nil {
		return err
	}
	if err := market.ValidateCoverage(bars, tickers); err != nil {
		return err
	}
	log.Info("data validated", "tickers", len(tickers), "bars", len(bars))

	rel, err := sqlite.Open(cfg.SQLitePath())
	if err != nil {
		return err
	}
	defer rel.Close()

	colOpts := colstore.Options{
		Compression:      colstore.ParseCompressionType(cfg.Compression.Algorithm),
		CompressionLevel: cfg.Compression.Level,
	}
	col, err := colstore.Open(cfg.ParquetDir(), colOpts)
	if err != nil {
		return err
	}
	defer col.Close()

	loadStart := time.Now()
	if err := rel.Load(ctx, tickers, bars); err != nil {
		return err
	}
	if err := col.Load(ctx, tickers, bars); err != nil {
		return err
	}
	log.Info("backends loaded", "elapsed", time.Since(loadStart))

	if err := preview(ctx, cfg, rel); err != nil {
		return err
	}
	if err := preview(ctx, cfg, col); err != nil {
		return err
	}

	if !runBench {
		return nil
	}

	runner := bench.NewRunner(rel, col, cfg.Bench)
	report, err := runner.Run(ctx, bench.StandardBattery(cfg.Query))
	if err != nil {
		return err
	}

	report.Render(os.Stdout)
	if cfg.Bench.ReportPath != "" {
		if err := report.WriteJSON(cfg.Bench.ReportPath); err != nil {
			return err
		}
	}
	return nil
}

// preview prints the head of each query's result the way the comparison
// documents do, so a run is inspectable without reading the JSON report.
func preview(ctx context.Context, cfg *config.Config, st store.Store) error {
	q := cfg.Query

	fmt.Printf("\n--- %s: volume summary ---\n", st.Name())
	volumes, err := st.AverageDailyVolume(ctx)
	if err != nil {
		return err
	}
	for _, v := range head(volumes) {
		fmt.Printf("  %-6s avg_daily_volume=%d\n", v.Symbol, v.AvgDailyVolume)
	}

	fmt.Printf("--- %s: top returns ---\n", st.Name())
	returns, err := st.TopReturns(ctx, q.Start, q.End, q.TopN)
	if err != nil {
		return err
	}
	for _, r := range returns {
		fmt.Printf("  %-6s return_pct=%.2f\n", r.Symbol, r.ReturnPct)
	}

	fmt.Printf("--- %s: daily summary ---\n", st.Name())
	daily, err := st.DailyFirstLast(ctx, q.DailyLimit)
	if err != nil {
		return err
	}
	for _, d := range head(daily) {
		fmt.Printf("  %-6s %s first=%.2f last=%.2f\n",
			d.Symbol, d.Date, d.FirstTradePrice, d.LastTradePrice)
	}

	fmt.Printf("--- %s: %s rolling average (window=%d) ---\n", st.Name(), q.Ticker, q.Window)
	avgs, err := st.RollingAverage(ctx, q.Ticker, q.Window)
	if err != nil {
		return err
	}
	for _, a := range head(avgs) {
		fmt.Printf("  %s close=%.2f avg=%.4f\n",
			a.Timestamp.Format("2006-01-02 15:04:05"), a.Close, a.RollingAvg)
	}

	return nil
}

// head caps preview output at five rows.
func head[T any](rows []T) []T {
	if len(rows) > 5 {
		return rows[:5]
	}
	return rows
}
