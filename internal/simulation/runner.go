// Package simulation runs one scenario path through a deal period by period.
package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/allocation"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/idhash"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/trigger"
)

// Recorder receives per-period events, e.g. for metrics.
type Recorder interface {
	PeriodCompleted(dealID string, res *domain.PeriodResult)
	TriggerTransition(dealID string, t trigger.Transition)
}

type nopRecorder struct{}

func (nopRecorder) PeriodCompleted(string, *domain.PeriodResult) {}
func (nopRecorder) TriggerTransition(string, trigger.Transition) {}

// Runner executes scenario paths against one compiled deal. A Runner holds
// no per-path state and may run paths concurrently.
type Runner struct {
	deal            *deal.Deal
	collateral      *collateral.Engine
	solver          *solver.Solver
	allocation      *allocation.Engine
	schedules       []*allocation.Schedule
	stopWhenRetired bool
	log             zerolog.Logger
	recorder        Recorder
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Deal            *deal.Deal
	Collateral      *collateral.Engine     // nil: engine with a private cache
	Solver          *solver.Solver         // nil: default options
	Allocation      *allocation.Engine     // nil: new engine
	Schedules       []*allocation.Schedule // nil: built from the deal's loans
	StopWhenRetired bool                   // end the path once collateral and bonds are zero
	Logger          zerolog.Logger
	Recorder        Recorder
}

// NewRunner creates a runner. PAC schedules are built here, once per deal,
// unless the caller supplies them.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Deal == nil {
		return nil, ErrNilDeal
	}
	if err := collateral.ValidateSeed(opts.Deal.Loans); err != nil {
		return nil, fmt.Errorf("deal %s: %w", opts.Deal.ID, err)
	}

	r := &Runner{
		deal:            opts.Deal,
		collateral:      opts.Collateral,
		solver:          opts.Solver,
		allocation:      opts.Allocation,
		schedules:       opts.Schedules,
		stopWhenRetired: opts.StopWhenRetired,
		log:             opts.Logger.With().Str("deal_id", opts.Deal.ID).Logger(),
		recorder:        opts.Recorder,
	}
	if r.collateral == nil {
		r.collateral = collateral.NewEngine(nil)
	}
	if r.solver == nil {
		r.solver = solver.New(solver.Options{})
	}
	if r.allocation == nil {
		r.allocation = allocation.NewEngine()
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.schedules == nil {
		s, err := allocation.BuildSchedules(opts.Deal, r.collateral)
		if err != nil {
			return nil, fmt.Errorf("deal %s: %w", opts.Deal.ID, err)
		}
		r.schedules = s
	}
	return r, nil
}

// Deal returns the deal the runner simulates.
func (r *Runner) Deal() *deal.Deal {
	return r.deal
}

// Seed returns PeriodState[0]: inception balances, default variables and
// every trigger passing.
func (r *Runner) Seed() *domain.PeriodState {
	d := r.deal
	loans := append([]domain.LoanState(nil), d.Loans...)
	summary := collateral.Summarize(loans)

	vars := d.Defaults()
	if _, ok := vars[domain.VarNetWAC]; !ok {
		vars[domain.VarNetWAC] = summary.NetWAC
	}
	for k, v := range d.Overrides() {
		vars[k] = v
	}
	if _, ok := vars[domain.VarNetWACDynamic]; !ok {
		seed := summary.NetWAC
		if v, ok := d.Default(domain.VarNetWAC); ok {
			seed = v
		}
		vars[domain.VarNetWACDynamic] = seed
	}
	vars[domain.VarCollateralWAC] = summary.WAC

	triggers := make([]domain.TriggerSnapshot, len(d.Triggers))
	for i, t := range d.Triggers {
		triggers[i] = domain.TriggerSnapshot{
			TriggerID:     t.ID,
			Status:        domain.TriggerPassing,
			CureThreshold: t.CureThreshold,
		}
	}

	return &domain.PeriodState{
		Period:     0,
		Collateral: summary,
		Loans:      loans,
		Variables:  vars,
		Tranches:   d.InitialTranches(),
		Fees:       d.InitialFees(),
		Reserve:    d.Reserve,
		Triggers:   triggers,
	}
}

// RunPath simulates every period of a path in order. On failure the periods
// completed so far are returned with a *PeriodError. The context is checked
// between periods; a period in progress always completes or fails whole.
func (r *Runner) RunPath(ctx context.Context, path domain.ScenarioPath) (*domain.PathResult, error) {
	if len(path.Inputs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPath, path.ID)
	}
	triggers, err := trigger.NewEngine(r.deal.Triggers)
	if err != nil {
		return nil, err
	}

	runID := idhash.ComputeRunID(r.deal.ID, path.ID, idhash.ComputePathDigest(path))
	log := r.log.With().Str("run_id", runID).Str("path_id", path.ID).Logger()
	result := &domain.PathResult{
		RunID:   runID,
		DealID:  r.deal.ID,
		PathID:  path.ID,
		Periods: make([]domain.PeriodResult, 0, len(path.Inputs)),
	}

	log.Info().Int("periods", len(path.Inputs)).Msg("path started")

	prev := r.Seed()
	fixings := make([]map[string]float64, 0, len(path.Inputs))
	for n, in := range path.Inputs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		period := n + 1
		fixings = append(fixings, in.IndexFixings)

		p := &periodRun{
			r:        r,
			log:      log,
			runID:    runID,
			prev:     prev,
			in:       in,
			period:   period,
			fixings:  fixings,
			triggers: triggers,
		}
		res, stage, err := p.run()
		if err != nil {
			log.Error().Err(err).Int("period", period).Str("stage", string(stage)).Msg("path aborted")
			return result, &PeriodError{PathID: path.ID, Period: period, Stage: stage, Err: err}
		}

		for _, tr := range p.transitions {
			r.recorder.TriggerTransition(r.deal.ID, tr)
		}
		r.recorder.PeriodCompleted(r.deal.ID, res)
		result.Periods = append(result.Periods, *res)
		prev = res.State

		if r.stopWhenRetired && r.retired(res.State) {
			log.Debug().Int("period", period).Msg("collateral and bonds retired")
			break
		}
	}

	log.Info().Int("periods", len(result.Periods)).Msg("path completed")
	return result, nil
}

// retired reports whether the pool and every bond are paid off.
func (r *Runner) retired(s *domain.PeriodState) bool {
	if s.Collateral.Balance.IsPositive() {
		return false
	}
	for _, i := range r.deal.BondTranches() {
		if s.Tranches[i].Balance.IsPositive() {
			return false
		}
	}
	return true
}

// periodRun is the working set of one period.
type periodRun struct {
	r        *Runner
	log      zerolog.Logger
	runID    string
	prev     *domain.PeriodState
	in       domain.ScenarioInput
	period   int
	fixings  []map[string]float64
	triggers *trigger.Engine

	transitions []trigger.Transition
}

func (p *periodRun) run() (*domain.PeriodResult, Stage, error) {
	r, d := p.r, p.r.deal

	in := p.in
	if in.Period == 0 {
		in.Period = p.period
	}
	if in.Period != p.period {
		return nil, StageScenario, fmt.Errorf("%w: got %d", ErrPeriodOrder, in.Period)
	}
	if err := collateral.ValidateScenario(in); err != nil {
		return nil, StageScenario, err
	}

	if err := collateral.ValidatePool(p.prev.Loans); err != nil {
		return nil, StageCollateral, err
	}
	cf, loans, err := r.collateral.Project(p.prev.Loans, in)
	if err != nil {
		return nil, StageCollateral, err
	}
	summary := collateral.Advance(p.prev.Collateral, cf)

	begin := p.beginTranches()
	solved, err := r.solver.Solve(solver.Input{
		Deal:       d,
		Period:     p.period,
		Collateral: cf,
		Tranches:   begin,
		Fees:       p.prev.Fees,
		Seed:       seedRate(p.prev.Variables),
		Variables:  p.prev.Variables,
		Fixings:    p.fixings,
	})
	if err != nil {
		return nil, StageSolver, err
	}
	solved.Diagnostics.RunID = p.runID

	next := p.prev.Clone()
	next.Period = p.period
	next.Loans = loans
	next.Collateral = summary
	next.Tranches = begin
	p.setVariables(next, begin, cf, summary, solved)

	ev := p.triggers.Evaluate(next)

	out, err := r.allocation.Allocate(allocation.Input{
		Deal:       d,
		Period:     p.period,
		Collateral: cf,
		Summary:    summary,
		Tranches:   begin,
		Fees:       p.prev.Fees,
		Reserve:    p.prev.Reserve,
		Solved:     solved,
		Triggers:   ev.Statuses(),
		Schedules:  r.schedules,
	})
	if err != nil {
		return nil, StageAllocation, err
	}

	// The period succeeded; publish.
	next.Tranches = out.Tranches
	next.Fees = out.Fees
	next.Reserve = out.Reserve
	next.Triggers = ev.Snapshots
	p.transitions = p.triggers.Commit(ev)

	for i := range out.Cashflows {
		out.Cashflows[i].RunID = p.runID
	}

	res := &domain.PeriodResult{
		Period:      p.period,
		Collateral:  cf,
		Tranches:    out.Cashflows,
		Fees:        out.Payments,
		Triggers:    ev.Snapshots,
		Diagnostics: solved.Diagnostics,
		Ledger:      out.Ledger,
		State:       next,
	}
	p.logPeriod(res, out)
	return res, "", nil
}

// beginTranches copies the prior tranche states and converts accreting
// tranches whose seniors are fully paid into cash-paying tranches.
func (p *periodRun) beginTranches() []domain.TrancheState {
	d := p.r.deal
	out := append([]domain.TrancheState(nil), p.prev.Tranches...)
	for i := range out {
		if !out[i].Accreting {
			continue
		}
		current := true
		for _, j := range d.Seniors(i) {
			if out[j].Balance.IsPositive() {
				current = false
				break
			}
		}
		if current {
			out[i].Accreting = false
			p.log.Info().Int("period", p.period).Str("tranche", out[i].ID).Msg("accrual tranche now current")
		}
	}
	return out
}

// setVariables records the period's computed variables. A ratio whose
// denominator is zero is left unset, which trigger predicates treat as
// undefined.
func (p *periodRun) setVariables(s *domain.PeriodState, begin []domain.TrancheState, cf domain.CollateralCashflow, summary domain.CollateralSummary, solved *solver.Result) {
	v := s.Variables
	v[domain.VarNetWAC] = solved.Rate
	v[domain.VarNetWACDynamic] = solved.DynamicRate
	v[domain.VarCollateralWAC] = summary.WAC
	v[domain.VarDelinquency] = p.in.Delinquency

	setRatio(v, domain.VarCumulativeLoss, summary.CumulativeLoss, summary.OriginalBalance)

	bonds := decimal.Zero
	for _, i := range p.r.deal.BondTranches() {
		bonds = bonds.Add(begin[i].Balance)
	}
	// Pro forma: bonds after this period's collected principal is paid through.
	setRatio(v, domain.VarOCRatio, summary.Balance, bonds.Sub(cf.PrincipalCollected()))
	setRatio(v, domain.VarICRatio, solved.NetInterest, solved.BondInterest)
}

func setRatio(vars map[string]float64, name string, num, den decimal.Decimal) {
	if !den.IsPositive() {
		delete(vars, name)
		return
	}
	vars[name] = num.InexactFloat64() / den.InexactFloat64()
}

func seedRate(vars map[string]float64) float64 {
	if v, ok := vars[domain.VarNetWACDynamic]; ok {
		return v
	}
	return math.NaN()
}

func (p *periodRun) logPeriod(res *domain.PeriodResult, out *allocation.Output) {
	diag := res.Diagnostics
	p.log.Debug().
		Int("period", res.Period).
		Int("iterations", diag.Iterations).
		Bool("converged", diag.Converged).
		Float64("net_wac", diag.AppliedRate).
		Str("collateral_balance", res.State.Collateral.Balance.StringFixed(2)).
		Str("reserve", out.Reserve.StringFixed(2)).
		Msg("period complete")

	if out.UnfundedAccretion.IsPositive() {
		p.log.Warn().
			Int("period", res.Period).
			Str("unfunded", out.UnfundedAccretion.StringFixed(2)).
			Msg("accretion exceeds remaining interest")
	}
	for _, tr := range p.transitions {
		ev := p.log.Info()
		if tr.To == domain.TriggerBreached {
			ev = p.log.Warn()
		}
		ev.Int("period", res.Period).
			Str("trigger", tr.TriggerID).
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Msg("trigger transition")
	}
	for _, cf := range res.Tranches {
		if cf.Busted {
			p.log.Warn().Int("period", res.Period).Str("tranche", cf.TrancheID).Msg("PAC busted")
		}
		if cf.InterestShortfall.IsPositive() {
			p.log.Warn().
				Int("period", res.Period).
				Str("tranche", cf.TrancheID).
				Str("shortfall", cf.InterestShortfall.StringFixed(2)).
				Msg("interest shortfall")
		}
	}
}
