// Command verify checks that simulations are reproducible.
//
// Without database DSNs each path is run twice and the two results compared.
// With DSNs every stored run of the deal is replayed and compared with its
// stored state digest and cashflows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/config"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/logger"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/scenario"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/simulation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage/backend"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/verification"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	dealFile := flag.String("deal", "", "Deal definition YAML (required)")
	scenarioFile := flag.String("scenario", "", "Scenario paths YAML")
	speeds := flag.String("psa-grid", "50,100,150,200,300", "Comma-separated PSA speeds, used when --scenario is empty")
	periods := flag.Int("periods", 360, "Periods per grid path")
	cdr := flag.Float64("cdr", 0.01, "Annual default rate for grid paths")
	severity := flag.Float64("severity", 0.35, "Loss severity for grid paths")
	fixings := flag.String("fixings", "", "Index fixings applied to every period, e.g. SOFR=0.05")

	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string; with --clickhouse-dsn, replays stored runs")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	verbose := flag.Bool("verbose", false, "Print every divergent field")
	flag.Parse()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if *dealFile == "" {
		log.Fatal().Msg("--deal is required")
	}
	stored := *postgresDSN != "" || *clickhouseDSN != ""
	if stored && (*postgresDSN == "" || *clickhouseDSN == "") {
		log.Fatal().Msg("--postgres-dsn and --clickhouse-dsn must be given together")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := simulation.NewRunner(simulation.RunnerOptions{
		Deal:            d,
		Collateral:      collateral.NewEngine(amortization.NewCache(cfg.CacheSize)),
		Solver:          solver.New(solver.Options{MaxIterations: cfg.SolverMaxIter, Tolerance: cfg.SolverTolerance}),
		StopWhenRetired: cfg.StopWhenRetired,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create runner")
	}

	var report *verification.VerificationReport
	if stored {
		be, openErr := backend.Open(ctx, backend.Options{PostgresDSN: *postgresDSN, ClickHouseDSN: *clickhouseDSN, Logger: log})
		if openErr != nil {
			log.Fatal().Err(openErr).Msg("open storage")
		}
		defer be.Close()

		v := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
			Runs:      be.Stores.Runs,
			Cashflows: be.Stores.Cashflows,
			Runner:    runner,
			DealID:    d.ID,
			Paths:     paths,
		})
		report, err = v.VerifyAll(ctx, d.ID)
	} else {
		report, err = verifyIdempotent(ctx, runner, paths)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("verification failed")
	}

	printReport(report, *verbose)
	if report.DivergentRuns > 0 {
		os.Exit(1)
	}
}

// verifyIdempotent runs every path twice in-process.
func verifyIdempotent(ctx context.Context, runner verification.PathRunner, paths []domain.ScenarioPath) (*verification.VerificationReport, error) {
	report := &verification.VerificationReport{TotalRuns: len(paths)}
	for _, p := range paths {
		res, err := verification.VerifyIdempotent(ctx, runner, p)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", p.ID, err)
		}
		report.Results = append(report.Results, *res)
		if res.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}
	return report, nil
}

func printReport(r *verification.VerificationReport, verbose bool) {
	fmt.Printf("Verified %d runs: %d matched, %d divergent\n", r.TotalRuns, r.MatchedRuns, r.DivergentRuns)
	for _, res := range r.Results {
		status := "OK  "
		if !res.Match {
			status = "DIFF"
		}
		fmt.Printf("  %s %-20s %s %.12s\n", status, res.PathID, res.RunID, res.StoredDigest)
		if res.Match {
			continue
		}
		for i, d := range res.Divergences {
			if !verbose && i == 5 {
				fmt.Printf("       ... %d more (use --verbose)\n", len(res.Divergences)-i)
				break
			}
			fmt.Printf("       %s\n", d.String())
		}
	}
}
