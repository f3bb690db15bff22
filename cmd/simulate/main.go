// Command simulate runs one scenario path through a deal's waterfall and
// prints the per-period tranche cashflows.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/config"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/logger"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/reporting"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/scenario"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/simulation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Deal and path
	dealFile := flag.String("deal", "", "Deal definition YAML (required)")
	scenarioFile := flag.String("scenario", "", "Scenario paths YAML; when empty a constant path is built from the flags below")
	pathID := flag.String("path", "", "Path id within --scenario (default: first path)")

	// Constant path
	periods := flag.Int("periods", 360, "Number of periods for a constant path")
	cpr := flag.Float64("cpr", 0.06, "Annual prepayment rate (ignored when --psa > 0)")
	psa := flag.Float64("psa", 0, "PSA speed, e.g. 150")
	cdr := flag.Float64("cdr", 0.01, "Annual default rate")
	severity := flag.Float64("severity", 0.35, "Loss severity")
	delinquency := flag.Float64("delinquency", 0, "60+ delinquency fraction")
	fixings := flag.String("fixings", "", "Index fixings, e.g. SOFR=0.05,LIBOR=0.051")

	// Engine
	stopWhenRetired := flag.Bool("stop-when-retired", cfg.StopWhenRetired, "End the path once collateral and bonds are retired")
	maxIter := flag.Int("solver-max-iter", cfg.SolverMaxIter, "Solver iteration cap")
	tolerance := flag.Float64("solver-tolerance", cfg.SolverTolerance, "Solver absolute tolerance")

	// Output
	format := flag.String("format", "table", "Output format: table, json, csv")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: cfg.LogPretty})

	if *dealFile == "" {
		log.Fatal().Msg("--deal is required")
	}
	if *format != "table" && *format != "json" && *format != "csv" {
		log.Fatal().Str("format", *format).Msg("invalid format: must be table, json or csv")
	}

	d, err := deal.LoadAndCompile(*dealFile)
	if err != nil {
		log.Fatal().Err(err).Str("deal", *dealFile).Msg("load deal")
	}

	var path domain.ScenarioPath
	if *scenarioFile != "" {
		paths, err := scenario.LoadFile(*scenarioFile)
		if err != nil {
			log.Fatal().Err(err).Msg("load scenario")
		}
		if path, err = scenario.Select(paths, *pathID); err != nil {
			log.Fatal().Err(err).Msg("select path")
		}
	} else {
		fx, err := scenario.ParseFixings(*fixings)
		if err != nil {
			log.Fatal().Err(err).Msg("parse fixings")
		}
		path = scenario.Constant("cli", *periods, domain.ScenarioInput{
			CPR:          *cpr,
			PSA:          *psa,
			CDR:          *cdr,
			Severity:     *severity,
			Delinquency:  *delinquency,
			IndexFixings: fx,
		})
	}

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache := amortization.NewCache(cfg.CacheSize)
	runner, err := simulation.NewRunner(simulation.RunnerOptions{
		Deal:            d,
		Collateral:      collateral.NewEngine(cache),
		Solver:          solver.New(solver.Options{MaxIterations: *maxIter, Tolerance: *tolerance}),
		StopWhenRetired: *stopWhenRetired,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create runner")
	}

	result, runErr := runner.RunPath(ctx, path)
	if result == nil {
		log.Fatal().Err(runErr).Msg("simulation failed")
	}

	switch *format {
	case "json":
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("encode result")
		}
		fmt.Println(string(output))
	case "csv":
		fmt.Print(reporting.RenderCashflowsCSV(result.Cashflows()))
	default:
		printCashflows(result)
		stats := cache.Stats()
		fmt.Printf("\nCache: %d hits, %d misses (%.1f%% hit rate)\n", stats.Hits, stats.Misses, stats.HitRate()*100)
	}

	if runErr != nil {
		var pe *simulation.PeriodError
		if errors.As(runErr, &pe) {
			log.Error().Err(pe.Err).Int("period", pe.Period).Str("stage", string(pe.Stage)).Msg("path aborted")
		} else {
			log.Error().Err(runErr).Msg("path aborted")
		}
		os.Exit(1)
	}
}

// printCashflows prints one row per period and tranche.
func printCashflows(res *domain.PathResult) {
	fmt.Printf("Deal %s, path %s, run %s: %d periods\n\n", res.DealID, res.PathID, res.RunID, len(res.Periods))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Period\tTranche\tBegin\tRate\tInterest\tShortfall\tPrincipal\tWritedown\tEnd\t")
	for _, p := range res.Periods {
		for _, c := range p.Tranches {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.4f%%\t%s\t%s\t%s\t%s\t%s\t\n",
				p.Period, c.TrancheID,
				c.BeginningBalance.StringFixed(2),
				c.Rate*100,
				c.InterestPaid.StringFixed(2),
				c.InterestShortfall.StringFixed(2),
				c.PrincipalPaid.StringFixed(2),
				c.Writedown.StringFixed(2),
				c.EndingBalance.StringFixed(2))
		}
	}
	_ = w.Flush()
}
