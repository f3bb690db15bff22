// Command paths runs a set of scenario paths of one deal in parallel,
// persists every reproducible run and writes the tranche aggregates.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/config"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/logger"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/observability"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/orchestrator"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/reporting"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/scenario"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/backend"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	dealFile := flag.String("deal", "", "Deal definition YAML (required)")
	scenarioFile := flag.String("scenario", "", "Scenario paths YAML")

	// PSA grid, used when --scenario is empty
	speeds := flag.String("psa-grid", "50,100,150,200,300", "Comma-separated PSA speeds")
	periods := flag.Int("periods", 360, "Periods per grid path")
	cdr := flag.Float64("cdr", 0.01, "Annual default rate for grid paths")
	severity := flag.Float64("severity", 0.35, "Loss severity for grid paths")
	fixings := flag.String("fixings", "", "Index fixings applied to every period, e.g. SOFR=0.05")

	workers := flag.Int("workers", cfg.Workers, "Paths simulated concurrently")
	timeout := flag.Duration("timeout", cfg.PathTimeout, "Per-path timeout (0 = none)")
	stopWhenRetired := flag.Bool("stop-when-retired", cfg.StopWhenRetired, "End a path once collateral and bonds are retired")

	postgresDSN := flag.String("postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (empty = in-memory)")
	clickhouseDSN := flag.String("clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string (empty = in-memory)")
	migrate := flag.Bool("migrate", false, "Apply database migrations before running")

	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address (empty = disabled)")
	outputDir := flag.String("output-dir", cfg.OutputDir, "Directory for REPORT.md and aggregates.csv (empty = skip)")
	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if *dealFile == "" {
		log.Fatal().Msg("--deal is required")
	}
	if *workers <= 0 {
		log.Fatal().Int("workers", *workers).Msg("--workers must be positive")
	}

	d, err := deal.LoadAndCompile(*dealFile)
	if err != nil {
		log.Fatal().Err(err).Str("deal", *dealFile).Msg("load deal")
	}

	paths, err := scenario.FromFileOrGrid(*scenarioFile, scenario.GridOptions{
		Speeds:   *speeds,
		Fixings:  *fixings,
		Periods:  *periods,
		CDR:      *cdr,
		Severity: *severity,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build scenario paths")
	}

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("received shutdown signal, cancelling paths")
		cancel()
	}()

	be, err := backend.Open(ctx, backend.Options{
		PostgresDSN:   *postgresDSN,
		ClickHouseDSN: *clickhouseDSN,
		Migrate:       *migrate,
		Logger:        log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer be.Close()
	if !be.Durable() {
		log.Warn().Bool("postgres", be.Postgres).Bool("clickhouse", be.Click).Msg("some stores are in-memory; results are lost on exit")
	}

	m := observability.NewMetrics(observability.DefaultNamespace, nil)
	cache := amortization.NewCache(cfg.CacheSize)
	m.RegisterCache(cache)

	orch, err := orchestrator.New(orchestrator.Options{
		Deal:            d,
		Cache:           cache,
		Solver:          solver.New(solver.Options{MaxIterations: cfg.SolverMaxIter, Tolerance: cfg.SolverTolerance}),
		Workers:         *workers,
		PathTimeout:     *timeout,
		StopWhenRetired: *stopWhenRetired,
		Stores:          be.Stores,
		Recorder:        m,
		Observer:        m,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create orchestrator")
	}

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", *metricsAddr).Msg("serving metrics")
	}

	log.Info().Str("deal", d.ID).Int("paths", len(paths)).Int("workers", *workers).Msg("running paths")
	start := time.Now()
	res, runErr := orch.Run(ctx, paths)
	if res == nil {
		log.Fatal().Err(runErr).Msg("run failed")
	}

	printSummary(res, time.Since(start), cache.Stats())
	for _, e := range res.Errors {
		log.Error().Str("batch", res.BatchID).Msg(e)
	}

	if *outputDir != "" && runErr == nil {
		if err := writeOutputs(ctx, log, be, d.ID, res, *outputDir); err != nil {
			log.Fatal().Err(err).Msg("write outputs")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("run interrupted")
		os.Exit(1)
	}
	if res.Failed > 0 || len(res.Errors) > 0 {
		os.Exit(2)
	}
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	return mux
}

func printSummary(res *orchestrator.RunResult, elapsed time.Duration, stats amortization.Stats) {
	fmt.Printf("Batch %s\n", res.BatchID)
	fmt.Printf("  Paths:      %d completed, %d failed (%s)\n", res.Completed, res.Failed, elapsed.Round(time.Millisecond))
	fmt.Printf("  Persisted:  %d new, %d already stored\n", res.Persisted, res.Duplicates)
	fmt.Printf("  Cache:      %d hits, %d misses (%.1f%% hit rate)\n", stats.Hits, stats.Misses, stats.HitRate()*100)

	for _, out := range res.Outcomes {
		if out.Err != nil {
			fmt.Printf("  FAILED %s: %v\n", out.PathID, out.Err)
		}
	}

	if len(res.Aggregates) == 0 {
		return
	}
	fmt.Println()
	fmt.Printf("  %-8s %6s %8s %8s %8s %16s\n", "Tranche", "Paths", "WAL", "WAL P10", "WAL P90", "Writedown Mean")
	for _, a := range res.Aggregates {
		fmt.Printf("  %-8s %6d %8.2f %8.2f %8.2f %16.2f\n", a.TrancheID, a.Paths, a.WALMean, a.WALP10, a.WALP90, a.WritedownMean)
	}
}

// writeOutputs writes the batch report and aggregates CSV.
func writeOutputs(ctx context.Context, log zerolog.Logger, be *backend.Backend, dealID string, res *orchestrator.RunResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	aggPath := filepath.Join(dir, "aggregates.csv")
	if err := os.WriteFile(aggPath, []byte(reporting.RenderAggregatesCSV(res.Aggregates)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", aggPath, err)
	}

	report, err := reporting.NewGenerator(be.Stores).Generate(ctx, dealID, res.BatchID)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	reportPath := filepath.Join(dir, "REPORT.md")
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", reportPath, err)
	}

	log.Info().Str("report", reportPath).Str("aggregates", aggPath).Msg("outputs written")
	return nil
}
