// Package solver resolves the circular dependency between senior fees, the
// dynamically capped net WAC rate and capped bond interest within a period.
package solver

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/lookup"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
)

// Defaults for Options.
const (
	DefaultMaxIterations     = 10
	DefaultTolerance         = 1e-8 // absolute, in annual rate units
	DefaultRelativeTolerance = 1e-9
)

// Options configures the fixed-point iteration.
type Options struct {
	MaxIterations     int
	Tolerance         float64
	RelativeTolerance float64
}

// Solver runs the per-period fixed-point iteration. Stateless and safe for
// concurrent use.
type Solver struct {
	maxIter int
	tol     float64
	relTol  float64
}

// New creates a solver. Zero option fields take defaults.
func New(opts Options) *Solver {
	s := &Solver{
		maxIter: opts.MaxIterations,
		tol:     opts.Tolerance,
		relTol:  opts.RelativeTolerance,
	}
	if s.maxIter <= 0 {
		s.maxIter = DefaultMaxIterations
	}
	if s.tol <= 0 {
		s.tol = DefaultTolerance
	}
	if s.relTol <= 0 {
		s.relTol = DefaultRelativeTolerance
	}
	return s
}

// Input is everything the solver reads for one period.
type Input struct {
	Deal       *deal.Deal
	Period     int
	Collateral domain.CollateralCashflow
	Tranches   []domain.TrancheState // beginning-of-period
	Fees       []domain.FeeState     // unpaid carried amounts
	Seed       float64               // prior period's dynamic net WAC
	Variables  map[string]float64    // prior period's computed variables
	Fixings    []map[string]float64  // index fixings, oldest first, current period last
}

// Result is the solved period.
type Result struct {
	Rate          float64 // net WAC applied to capped tranches
	DynamicRate   float64 // solved value, computed even when overridden
	Overridden    bool
	Converged     bool
	Iterations    int
	TrancheRates  []float64         // annual coupon per tranche
	InterestDue   []decimal.Decimal // current-period cash interest per tranche, excluding carried shortfall
	Accretion     []decimal.Decimal // accrual added to accreting tranches
	Notionals     []decimal.Decimal // interest base per tranche
	FeesDue       []decimal.Decimal // per fee, including carried unpaid
	SeniorFees    decimal.Decimal
	NetInterest   decimal.Decimal // collateral interest less senior fees due
	BondInterest  decimal.Decimal // sum of InterestDue
	CappedBalance decimal.Decimal
	Diagnostics   domain.SolverDiagnostics
}

// pass is one evaluation of the period at a candidate rate.
type pass struct {
	rates        []float64
	interest     []decimal.Decimal
	accretion    []decimal.Decimal
	fees         []decimal.Decimal
	seniorFees   decimal.Decimal
	netInterest  decimal.Decimal
	bondInterest decimal.Decimal
	next         float64 // rate implied by this pass
}

// Solve runs the iteration. When the deal pins net_wac, the pinned value is
// applied and the dynamic value is still solved for audit; its failure to
// converge is then reported, not returned.
func (s *Solver) Solve(in Input) (*Result, error) {
	d := in.Deal
	notionals, err := s.notionals(in)
	if err != nil {
		return nil, err
	}

	capped := decimal.Zero
	for _, i := range d.CappedTranches() {
		capped = capped.Add(in.Tranches[i].Balance)
	}

	seed := in.Seed
	if math.IsNaN(seed) || math.IsInf(seed, 0) {
		seed = in.Collateral.NetWAC
	}

	dynamic, iterations, delta, converged, err := s.iterate(in, notionals, capped, seed)
	if err != nil {
		return nil, err
	}

	applied := dynamic
	override, overridden := d.Override(domain.VarNetWAC)
	if overridden {
		applied = override
	} else if !converged {
		return nil, fmt.Errorf("%w: period %d after %d iterations (delta %.3g)",
			ErrNonConvergence, in.Period, iterations, delta)
	}

	final, err := s.evaluate(in, notionals, capped, applied)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Rate:          applied,
		DynamicRate:   dynamic,
		Overridden:    overridden,
		Converged:     converged,
		Iterations:    iterations,
		TrancheRates:  final.rates,
		InterestDue:   final.interest,
		Accretion:     final.accretion,
		Notionals:     notionals,
		FeesDue:       final.fees,
		SeniorFees:    final.seniorFees,
		NetInterest:   final.netInterest,
		BondInterest:  final.bondInterest,
		CappedBalance: capped,
	}
	res.Diagnostics = domain.SolverDiagnostics{
		Period:          in.Period,
		Iterations:      iterations,
		Converged:       converged,
		Overridden:      overridden,
		AppliedRate:     applied,
		DynamicRate:     dynamic,
		SeedRate:        seed,
		FinalDelta:      delta,
		SeniorFees:      final.seniorFees,
		NetInterest:     final.netInterest,
		CappedBalance:   capped,
		DynamicResidual: math.Abs(applied - dynamic),
	}
	return res, nil
}

// iterate runs the fixed point from seed. A non-converged run returns the
// last estimate with converged=false.
func (s *Solver) iterate(in Input, notionals []decimal.Decimal, capped decimal.Decimal, seed float64) (rate float64, iterations int, delta float64, converged bool, err error) {
	rate = seed
	delta = math.Inf(1)
	for iterations = 1; iterations <= s.maxIter; iterations++ {
		p, err := s.evaluate(in, notionals, capped, rate)
		if err != nil {
			return 0, iterations, 0, false, err
		}
		delta = math.Abs(p.next - rate)
		rate = p.next
		if delta <= s.tol || delta <= s.relTol*math.Abs(rate) {
			return rate, iterations, delta, true, nil
		}
	}
	return rate, s.maxIter, delta, false, nil
}

// evaluate computes fees and interest at a candidate rate and the rate
// those imply.
func (s *Solver) evaluate(in Input, notionals []decimal.Decimal, capped decimal.Decimal, rate float64) (pass, error) {
	d := in.Deal
	n := len(d.Tranches)
	ppy := float64(d.PeriodsPerYear)

	p := pass{
		rates:     make([]float64, n),
		interest:  make([]decimal.Decimal, n),
		accretion: make([]decimal.Decimal, n),
		fees:      make([]decimal.Decimal, len(d.Fees)),
	}

	balances := make([]decimal.Decimal, n)
	bonds := decimal.Zero
	for i := 0; i < n; i++ {
		r, err := s.trancheRate(in, i, rate)
		if err != nil {
			return pass{}, err
		}
		p.rates[i] = r
		amount := money.FromFloat(notionals[i].InexactFloat64() * r / ppy)

		if in.Tranches[i].Accreting {
			p.accretion[i] = amount
		} else if d.PaysInterest(i) {
			p.interest[i] = amount
			p.bondInterest = p.bondInterest.Add(amount)
		}
		balances[i] = in.Tranches[i].Balance
		if !d.IsNotional(i) {
			bonds = bonds.Add(in.Tranches[i].Balance).Add(p.accretion[i])
		}
	}

	b := bases{
		collateral:   in.Collateral.BeginningBalance,
		bonds:        bonds,
		bondInterest: p.bondInterest,
		tranches:     balances,
		trancheIdx:   d.TrancheIndex,
		periods:      int64(d.PeriodsPerYear),
	}
	for i, f := range d.Fees {
		due := money.Round(b.feeAmount(f.Formula))
		if i < len(in.Fees) {
			due = due.Add(in.Fees[i].Unpaid)
		}
		p.fees[i] = due
		if f.Priority == domain.FeeSenior {
			p.seniorFees = p.seniorFees.Add(due)
		}
	}

	p.netInterest = in.Collateral.GrossInterest.Sub(p.seniorFees)
	if capped.IsPositive() {
		p.next = p.netInterest.InexactFloat64() / capped.InexactFloat64() * ppy
	}
	if p.next < 0 {
		p.next = 0
	}
	return p, nil
}

// trancheRate returns tranche i's annual coupon at a candidate net WAC.
func (s *Solver) trancheRate(in Input, i int, netWAC float64) (float64, error) {
	t := in.Deal.Tranches[i]

	var r float64
	switch t.Coupon {
	case domain.CouponFixed, domain.CouponAccruing, domain.CouponNotional:
		r = t.FixedRate
	case domain.CouponFloating:
		fixing, err := lookup.FixingAt(t.Index, in.Fixings)
		if err != nil {
			return 0, fmt.Errorf("%w: tranche %s index %s period %d", ErrMissingFixing, t.ID, t.Index, in.Period)
		}
		r = fixing + t.Margin
	case domain.CouponNetWAC:
		r = netWAC
	case domain.CouponNone:
		return 0, nil
	}

	if t.RateFloor != nil && r < *t.RateFloor {
		r = *t.RateFloor
	}
	if t.RateCap != nil && r > *t.RateCap {
		r = *t.RateCap
	}
	if t.CapVariable != "" {
		limit := netWAC
		if t.CapVariable != domain.VarNetWAC {
			limit = variable(in, t.CapVariable)
		}
		r = math.Min(r, limit)
	}
	return math.Max(r, 0), nil
}

// variable resolves a named variable: static override, then the prior
// period's computed value, then the deal default.
func variable(in Input, name string) float64 {
	if v, ok := in.Deal.Override(name); ok {
		return v
	}
	if v, ok := in.Variables[name]; ok {
		return v
	}
	v, _ := in.Deal.Default(name)
	return v
}

// notionals returns the interest base per tranche: balance for bonds,
// referenced balances or the scheduled notional for IO strips.
func (s *Solver) notionals(in Input) ([]decimal.Decimal, error) {
	d := in.Deal
	out := make([]decimal.Decimal, len(d.Tranches))
	for i := range d.Tranches {
		if !d.IsNotional(i) {
			out[i] = in.Tranches[i].Balance
			continue
		}
		if refs := d.NotionalTranches(i); len(refs) > 0 {
			total := decimal.Zero
			for _, j := range refs {
				total = total.Add(in.Tranches[j].Balance)
			}
			out[i] = total
			continue
		}
		amt, err := lookup.AmountAt(in.Period, d.Tranches[i].Notional.Schedule)
		if err != nil {
			return nil, fmt.Errorf("tranche %s notional: %w", d.Tranches[i].ID, err)
		}
		out[i] = amt
	}
	return out, nil
}
