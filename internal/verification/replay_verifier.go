package verification

import (
	"context"
	"errors"
	"fmt"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/idhash"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/simulation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

var (
	// ErrRunNotFound is returned when run ID doesn't exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrPathNotFound is returned when the scenario path of a run is not supplied.
	ErrPathNotFound = errors.New("scenario path not found")

	// ErrDealMismatch is returned when a run belongs to another deal than the runner's.
	ErrDealMismatch = errors.New("run belongs to a different deal")
)

// PathRunner simulates one scenario path. Implemented by *simulation.Runner.
type PathRunner interface {
	RunPath(ctx context.Context, path domain.ScenarioPath) (*domain.PathResult, error)
}

// ReplayVerifier implements Verifier by re-running stored paths.
type ReplayVerifier struct {
	runs      storage.RunStore
	cashflows storage.CashflowStore
	runner    PathRunner
	dealID    string

	// paths maps path ID to its inputs. Paths are not persisted, so the
	// caller must supply every path it wants verified.
	paths map[string]domain.ScenarioPath
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	Runs      storage.RunStore
	Cashflows storage.CashflowStore
	Runner    PathRunner
	DealID    string // deal the runner simulates
	Paths     []domain.ScenarioPath
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	paths := make(map[string]domain.ScenarioPath, len(opts.Paths))
	for _, p := range opts.Paths {
		paths[p.ID] = p
	}
	return &ReplayVerifier{
		runs:      opts.Runs,
		cashflows: opts.Cashflows,
		runner:    opts.Runner,
		dealID:    opts.DealID,
		paths:     paths,
	}
}

var _ Verifier = (*ReplayVerifier)(nil)

// VerifyRun replays a stored run and compares digest, outcome and cashflows.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationResult, error) {
	// 1. Load stored run
	run, err := v.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if v.dealID != "" && run.DealID != v.dealID {
		return nil, fmt.Errorf("%w: %s is %s", ErrDealMismatch, runID, run.DealID)
	}

	path, ok := v.paths[run.PathID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, run.PathID)
	}

	result := &VerificationResult{
		RunID:        runID,
		PathID:       run.PathID,
		StoredDigest: run.StateDigest,
	}

	// 2. Inputs must be the ones the run was produced from
	if digest := idhash.ComputePathDigest(path); digest != run.InputsDigest {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field: "InputsDigest", Expected: run.InputsDigest, Actual: digest,
		})
		return result, nil
	}

	// 3. Replay
	replayed, runErr := v.runner.RunPath(ctx, path)
	if runErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result.Divergences = append(result.Divergences, compareOutcome(run, replayed, runErr)...)

	if replayed != nil {
		result.ReplayedDigest, err = Digest(replayed.States())
		if err != nil {
			return nil, err
		}
		if run.StateDigest != "" && result.ReplayedDigest != run.StateDigest {
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field: "StateDigest", Expected: run.StateDigest, Actual: result.ReplayedDigest,
			})
		}

		// 4. Compare cashflows
		if v.cashflows != nil {
			stored, err := v.cashflows.GetByRunID(ctx, runID)
			if err != nil {
				return nil, err
			}
			result.Divergences = append(result.Divergences, CompareCashflows(stored, replayed.Cashflows())...)
		}
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// compareOutcome checks the replay ended the way the stored run did:
// completed with the same period count, or failed at the same period.
func compareOutcome(run *domain.RunRecord, replayed *domain.PathResult, runErr error) []FieldDivergence {
	var out []FieldDivergence

	status := domain.RunStatusCompleted
	var failed *int
	var periodErr *simulation.PeriodError
	if runErr != nil {
		status = domain.RunStatusFailed
		if errors.As(runErr, &periodErr) {
			failed = &periodErr.Period
		}
	}

	if status != run.Status {
		out = append(out, FieldDivergence{Field: "Status", Expected: run.Status, Actual: status})
	}
	if !sameInt(failed, run.FailedPeriod) {
		out = append(out, FieldDivergence{Field: "FailedPeriod", Expected: intOrNil(run.FailedPeriod), Actual: intOrNil(failed)})
	}
	periods := 0
	if replayed != nil {
		periods = len(replayed.Periods)
	}
	if periods != run.Periods {
		out = append(out, FieldDivergence{Field: "Periods", Expected: run.Periods, Actual: periods})
	}
	return out
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// VerifyAll verifies every stored run of a deal. A run that cannot be
// replayed is recorded as a divergence, not returned as an error.
func (v *ReplayVerifier) VerifyAll(ctx context.Context, dealID string) (*VerificationReport, error) {
	runs, err := v.runs.GetByDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(runs),
		Results:   make([]VerificationResult, 0, len(runs)),
	}

	for _, run := range runs {
		result, err := v.VerifyRun(ctx, run.RunID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			report.Results = append(report.Results, VerificationResult{
				RunID:        run.RunID,
				PathID:       run.PathID,
				StoredDigest: run.StateDigest,
				Divergences: []FieldDivergence{
					{Field: "Error", Expected: nil, Actual: err.Error()},
				},
			})
			report.DivergentRuns++
			continue
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}

	return report, nil
}

// VerifyIdempotent runs a path twice and compares the two results. It needs
// no stores and backs the standalone verify command.
func VerifyIdempotent(ctx context.Context, runner PathRunner, path domain.ScenarioPath) (*VerificationResult, error) {
	first, err1 := runner.RunPath(ctx, path)
	second, err2 := runner.RunPath(ctx, path)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if first == nil || second == nil {
		if err1 != nil {
			return nil, err1
		}
		return nil, err2
	}

	result := &VerificationResult{RunID: first.RunID, PathID: path.ID}
	var err error
	if result.StoredDigest, err = Digest(first.States()); err != nil {
		return nil, err
	}
	if result.ReplayedDigest, err = Digest(second.States()); err != nil {
		return nil, err
	}

	if first.RunID != second.RunID {
		result.Divergences = append(result.Divergences, FieldDivergence{Field: "RunID", Expected: first.RunID, Actual: second.RunID})
	}
	if (err1 == nil) != (err2 == nil) {
		result.Divergences = append(result.Divergences, FieldDivergence{Field: "Error", Expected: errString(err1), Actual: errString(err2)})
	}
	if result.StoredDigest != result.ReplayedDigest {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field: "StateDigest", Expected: result.StoredDigest, Actual: result.ReplayedDigest,
		})
	}
	result.Divergences = append(result.Divergences, CompareCashflows(first.Cashflows(), second.Cashflows())...)
	result.Match = len(result.Divergences) == 0
	return result, nil
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
