// Package orchestrator runs many scenario paths of one deal in parallel.
// It coordinates: simulation → persistence → metrics aggregation
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/idhash"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/metrics"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/scenario"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/simulation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/verification"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// PathObserver receives one call per finished path.
type PathObserver interface {
	PathFinished(dealID string, elapsed time.Duration, err error)
}

// Orchestrator coordinates parallel path execution.
// Flow: simulate each path → persist its run → aggregate completed paths
type Orchestrator struct {
	deal        *deal.Deal
	runner      *simulation.Runner
	cache       *amortization.Cache
	stores      storage.Stores
	workers     int
	pathTimeout time.Duration
	observer    PathObserver
	log         zerolog.Logger
	now         func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	Deal *deal.Deal // required

	// Shared by every worker; nil creates one with the default capacity
	Cache  *amortization.Cache
	Solver *solver.Solver

	Workers         int
	PathTimeout     time.Duration // zero: no timeout
	StopWhenRetired bool

	// Optional sinks
	Stores   storage.Stores
	Recorder simulation.Recorder
	Observer PathObserver
	Logger   zerolog.Logger

	Now func() time.Time // run record timestamps; defaults to time.Now
}

// New creates an Orchestrator and the runner its workers share.
func New(opts Options) (*Orchestrator, error) {
	if opts.Deal == nil {
		return nil, simulation.ErrNilDeal
	}

	cache := opts.Cache
	if cache == nil {
		cache = amortization.NewCache(amortization.DefaultCapacity)
	}
	runner, err := simulation.NewRunner(simulation.RunnerOptions{
		Deal:            opts.Deal,
		Collateral:      collateral.NewEngine(cache),
		Solver:          opts.Solver,
		StopWhenRetired: opts.StopWhenRetired,
		Logger:          opts.Logger,
		Recorder:        opts.Recorder,
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		deal:        opts.Deal,
		runner:      runner,
		cache:       cache,
		stores:      opts.Stores,
		workers:     opts.Workers,
		pathTimeout: opts.PathTimeout,
		observer:    opts.Observer,
		log:         opts.Logger.With().Str("component", "orchestrator").Str("deal_id", opts.Deal.ID).Logger(),
		now:         opts.Now,
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Cache returns the amortization cache shared by the workers.
func (o *Orchestrator) Cache() *amortization.Cache {
	return o.cache
}

// Runner returns the shared path runner.
func (o *Orchestrator) Runner() *simulation.Runner {
	return o.runner
}

// PathOutcome is the result of one path.
type PathOutcome struct {
	PathID    string
	RunID     string
	Result    *domain.PathResult // periods completed, even on failure
	Err       error
	Elapsed   time.Duration
	Persisted bool
	Duplicate bool // run already stored by an earlier batch
}

// Failed reports whether the path stopped before its last input.
func (p *PathOutcome) Failed() bool {
	return p.Err != nil
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	BatchID    string
	Outcomes   []PathOutcome // input order
	Completed  int
	Failed     int
	Persisted  int
	Duplicates int
	Aggregates []*domain.TrancheAggregate
	Errors     []string // persistence and aggregation failures
}

// Results returns the completed path results in input order.
func (r *RunResult) Results() []*domain.PathResult {
	out := make([]*domain.PathResult, 0, r.Completed)
	for i := range r.Outcomes {
		if !r.Outcomes[i].Failed() && r.Outcomes[i].Result != nil {
			out = append(out, r.Outcomes[i].Result)
		}
	}
	return out
}

// Run executes the batch.
// Phases:
//  1. Validate paths (fatal before any simulation)
//  2. Simulate paths in parallel, persisting each as it finishes
//  3. Aggregate completed paths
//
// A failed path never stops the others. Cancelling ctx stops workers between
// periods and Run returns the partial result with the context error.
func (o *Orchestrator) Run(ctx context.Context, paths []domain.ScenarioPath) (*RunResult, error) {
	if err := scenario.Validate(paths); err != nil {
		return nil, err
	}

	result := &RunResult{
		BatchID:  uuid.NewString(),
		Outcomes: make([]PathOutcome, len(paths)),
	}
	log := o.log.With().Str("batch_id", result.BatchID).Logger()
	log.Info().Int("paths", len(paths)).Int("workers", o.workers).Msg("batch started")

	persistErrs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range paths {
		g.Go(func() error {
			if ctx.Err() != nil {
				result.Outcomes[i] = PathOutcome{PathID: paths[i].ID, Err: ctx.Err()}
				return nil
			}
			out := o.runPath(ctx, paths[i])
			if o.persists() && persistable(out.Err) {
				persisted, err := o.persist(ctx, paths[i], &out)
				if err != nil {
					persistErrs[i] = fmt.Errorf("persist %s: %w", paths[i].ID, err)
				}
				out.Persisted = persisted
			}
			result.Outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	for i := range result.Outcomes {
		out := &result.Outcomes[i]
		if out.Failed() {
			result.Failed++
		} else {
			result.Completed++
		}
		if out.Persisted {
			result.Persisted++
		}
		if out.Duplicate {
			result.Duplicates++
		}
		if persistErrs[i] != nil {
			result.Errors = append(result.Errors, persistErrs[i].Error())
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Int("completed", result.Completed).Msg("batch cancelled")
		return result, err
	}

	aggs, err := metrics.NewAggregator(o.deal, o.stores.Aggregates).AggregateAndStore(ctx, result.BatchID, result.Results())
	switch {
	case errors.Is(err, metrics.ErrNoPaths):
		log.Warn().Msg("no completed paths to aggregate")
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("aggregate %s: %v", result.BatchID, err))
	default:
		result.Aggregates = aggs
	}

	log.Info().
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("persisted", result.Persisted).
		Int("errors", len(result.Errors)).
		Msg("batch completed")
	return result, nil
}

// runPath simulates one path under the per-path timeout.
func (o *Orchestrator) runPath(ctx context.Context, path domain.ScenarioPath) PathOutcome {
	pctx := ctx
	if o.pathTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, o.pathTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := o.runner.RunPath(pctx, path)
	out := PathOutcome{
		PathID:  path.ID,
		Result:  res,
		Err:     err,
		Elapsed: time.Since(start),
	}
	if res != nil {
		out.RunID = res.RunID
	}
	if err != nil {
		o.log.Warn().Err(err).Str("path_id", path.ID).Msg("path failed")
	}
	if o.observer != nil {
		o.observer.PathFinished(o.deal.ID, out.Elapsed, err)
	}
	return out
}

func (o *Orchestrator) persists() bool {
	s := o.stores
	return s.Runs != nil || s.Cashflows != nil || s.Triggers != nil || s.Diagnostics != nil
}

// persistable reports whether a path outcome is reproducible by replay.
// Timeouts and cancellations depend on wall-clock time and are not stored.
func persistable(err error) bool {
	if err == nil {
		return true
	}
	var pe *simulation.PeriodError
	return errors.As(err, &pe)
}

// persist writes the run record first, then its cashflows, trigger history
// and diagnostics. A run already stored is skipped.
func (o *Orchestrator) persist(ctx context.Context, path domain.ScenarioPath, out *PathOutcome) (bool, error) {
	res := out.Result
	if res == nil {
		return false, nil
	}

	digest, err := verification.Digest(res.States())
	if err != nil {
		return false, err
	}
	rec := &domain.RunRecord{
		RunID:        res.RunID,
		DealID:       res.DealID,
		PathID:       res.PathID,
		InputsDigest: idhash.ComputePathDigest(path),
		StateDigest:  digest,
		Periods:      len(res.Periods),
		Status:       domain.RunStatusCompleted,
		CreatedAt:    o.now().UnixMilli(),
	}
	var pe *simulation.PeriodError
	if errors.As(out.Err, &pe) {
		period := pe.Period
		rec.Status = domain.RunStatusFailed
		rec.FailedPeriod = &period
		rec.Error = pe.Error()
	}

	if o.stores.Runs != nil {
		if err := o.stores.Runs.Insert(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				o.log.Info().Str("run_id", rec.RunID).Str("path_id", rec.PathID).Msg("run already persisted")
				out.Duplicate = true
				return false, nil
			}
			return false, fmt.Errorf("run: %w", err)
		}
	}
	if o.stores.Cashflows != nil {
		if err := o.stores.Cashflows.InsertBulk(ctx, res.Cashflows()); err != nil {
			return false, fmt.Errorf("cashflows: %w", err)
		}
	}
	if o.stores.Triggers != nil {
		if err := o.stores.Triggers.InsertBulk(ctx, res.RunID, res.TriggerHistory()); err != nil {
			return false, fmt.Errorf("trigger history: %w", err)
		}
	}
	if o.stores.Diagnostics != nil {
		if err := o.stores.Diagnostics.InsertBulk(ctx, res.Diagnostics()); err != nil {
			return false, fmt.Errorf("diagnostics: %w", err)
		}
	}
	return true, nil
}
