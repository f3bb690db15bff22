package reporting

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// ErrNoRuns is returned when a deal has no stored runs.
var ErrNoRuns = errors.New("no runs stored for deal")

// Generator produces reports from stored data.
type Generator struct {
	stores storage.Stores
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. Runs are required; the
// sections of any other nil store are left empty.
func NewGenerator(stores storage.Stores) *Generator {
	return &Generator{
		stores: stores,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for one deal. batchID restricts the aggregate
// section to one orchestrator execution; empty shows every batch.
func (g *Generator) Generate(ctx context.Context, dealID, batchID string) (*Report, error) {
	if g.stores.Runs == nil {
		return nil, storage.ErrInvalidInput
	}
	runs, err := g.stores.Runs.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	report := &Report{
		GeneratedAt: g.now(),
		DealID:      dealID,
		BatchID:     batchID,
	}
	g.generateRuns(report, runs)

	if report.Aggregates, err = g.generateAggregates(ctx, dealID, batchID); err != nil {
		return nil, err
	}
	if report.Solver, err = g.generateSolverSummary(ctx, runs); err != nil {
		return nil, err
	}
	if report.Triggers, err = g.generateTriggerSummaries(ctx, runs); err != nil {
		return nil, err
	}
	return report, nil
}

// generateRuns fills the run summary, run rows and failures.
func (g *Generator) generateRuns(report *Report, runs []*domain.RunRecord) {
	report.Summary.TotalRuns = len(runs)
	report.Runs = make([]RunRow, 0, len(runs))
	for _, r := range runs {
		report.Summary.TotalPeriods += r.Periods
		if r.Status == domain.RunStatusFailed {
			report.Summary.FailedRuns++
			failed := 0
			if r.FailedPeriod != nil {
				failed = *r.FailedPeriod
			}
			report.Failures = append(report.Failures, RunFailureRow{
				RunID:        r.RunID,
				PathID:       r.PathID,
				FailedPeriod: failed,
				Error:        r.Error,
			})
		} else {
			report.Summary.CompletedRuns++
		}
		report.Runs = append(report.Runs, RunRow{
			RunID:       r.RunID,
			PathID:      r.PathID,
			Status:      r.Status,
			Periods:     r.Periods,
			StateDigest: r.StateDigest,
		})
	}

	// Sort by (path_id, run_id)
	sort.Slice(report.Runs, func(i, j int) bool {
		if report.Runs[i].PathID != report.Runs[j].PathID {
			return report.Runs[i].PathID < report.Runs[j].PathID
		}
		return report.Runs[i].RunID < report.Runs[j].RunID
	})
}

// generateAggregates loads aggregates and builds sorted rows.
func (g *Generator) generateAggregates(ctx context.Context, dealID, batchID string) ([]AggregateRow, error) {
	if g.stores.Aggregates == nil {
		return nil, nil
	}

	var (
		aggs []*domain.TrancheAggregate
		err  error
	)
	if batchID != "" {
		aggs, err = g.stores.Aggregates.GetByBatch(ctx, batchID)
	} else {
		aggs, err = g.stores.Aggregates.GetByDeal(ctx, dealID)
	}
	if err != nil {
		return nil, err
	}

	rows := make([]AggregateRow, 0, len(aggs))
	for _, a := range aggs {
		if a.DealID != dealID {
			continue
		}
		rows = append(rows, AggregateRow{
			BatchID:        a.BatchID,
			TrancheID:      a.TrancheID,
			Paths:          a.Paths,
			WALMean:        a.WALMean,
			WALP10:         a.WALP10,
			WALP50:         a.WALP50,
			WALP90:         a.WALP90,
			PrincipalMean:  a.PrincipalMean,
			InterestMean:   a.InterestMean,
			WritedownMean:  a.WritedownMean,
			WritedownMax:   a.WritedownMax,
			ShortfallPaths: a.ShortfallPaths,
		})
	}

	// Sort by (batch_id, tranche_id)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BatchID != rows[j].BatchID {
			return rows[i].BatchID < rows[j].BatchID
		}
		return rows[i].TrancheID < rows[j].TrancheID
	})
	return rows, nil
}

// generateSolverSummary folds every stored period's diagnostics.
func (g *Generator) generateSolverSummary(ctx context.Context, runs []*domain.RunRecord) (SolverSummary, error) {
	var s SolverSummary
	if g.stores.Diagnostics == nil {
		return s, nil
	}

	totalIterations := 0
	for _, r := range runs {
		diags, err := g.stores.Diagnostics.GetByRunID(ctx, r.RunID)
		if err != nil {
			return s, err
		}
		for _, d := range diags {
			s.Periods++
			totalIterations += d.Iterations
			if d.Iterations > s.MaxIterations {
				s.MaxIterations = d.Iterations
			}
			if !d.Converged {
				s.NonConverged++
			}
			if d.Overridden {
				s.Overridden++
				s.MaxResidual = math.Max(s.MaxResidual, d.DynamicResidual)
			}
		}
	}
	if s.Periods > 0 {
		s.MeanIterations = float64(totalIterations) / float64(s.Periods)
	}
	return s, nil
}

// generateTriggerSummaries counts breached periods and breach transitions.
func (g *Generator) generateTriggerSummaries(ctx context.Context, runs []*domain.RunRecord) ([]TriggerSummary, error) {
	if g.stores.Triggers == nil {
		return nil, nil
	}

	byTrigger := make(map[string]*TriggerSummary)
	for _, r := range runs {
		snaps, err := g.stores.Triggers.GetByRunID(ctx, r.RunID)
		if err != nil {
			return nil, err
		}

		// Snapshots arrive by period; every trigger starts PASSING.
		last := make(map[string]domain.TriggerStatus)
		breachedInRun := make(map[string]bool)
		for _, snap := range snaps {
			sum := byTrigger[snap.TriggerID]
			if sum == nil {
				sum = &TriggerSummary{TriggerID: snap.TriggerID}
				byTrigger[snap.TriggerID] = sum
			}
			sum.Evaluations++
			if snap.Status == domain.TriggerBreached {
				sum.BreachedPeriods++
				if last[snap.TriggerID] != domain.TriggerBreached {
					sum.Breaches++
				}
				breachedInRun[snap.TriggerID] = true
			}
			last[snap.TriggerID] = snap.Status
		}
		for id := range breachedInRun {
			byTrigger[id].RunsBreached++
		}
	}

	rows := make([]TriggerSummary, 0, len(byTrigger))
	for _, sum := range byTrigger {
		rows = append(rows, *sum)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TriggerID < rows[j].TriggerID
	})
	return rows, nil
}
