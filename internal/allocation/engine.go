package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
)

// Input is one period's allocation request.
type Input struct {
	Deal       *deal.Deal
	Period     int
	Collateral domain.CollateralCashflow
	Summary    domain.CollateralSummary // after this period's collateral projection
	Tranches   []domain.TrancheState    // beginning-of-period; not modified
	Fees       []domain.FeeState
	Reserve    decimal.Decimal // beginning reserve
	Solved     *solver.Result
	Triggers   []domain.TriggerStatus // this period's evaluated status, arena order
	Schedules  []*Schedule            // indexed by tranche; nil for non-PAC
}

// Output is the allocated period.
type Output struct {
	Tranches  []domain.TrancheState
	Fees      []domain.FeeState
	Reserve   decimal.Decimal
	Cashflows []domain.TrancheCashflow
	Payments  []domain.FeePayment
	Ledger    domain.CashLedger
	Skipped   []int // indexes of steps whose gate was closed

	// UnfundedAccretion is accrual added to balances with no interest cash
	// left to redirect to principal.
	UnfundedAccretion decimal.Decimal
}

// Engine runs waterfall steps. Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine creates an allocation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// period is the mutable working set for one Allocate call.
type period struct {
	in    Input
	d     *deal.Deal
	funds Funds

	tranches     []domain.TrancheState
	interestOwed []decimal.Decimal // current due plus carried shortfall
	interestPaid []decimal.Decimal
	principal    []decimal.Decimal
	accretion    []decimal.Decimal
	writedown    []decimal.Decimal
	busted       []bool
	feePaid      []decimal.Decimal
	disbursed    decimal.Decimal

	unfundedAccretion decimal.Decimal
}

// Allocate executes every step in order. Steps with closed gates are skipped.
// Cash left in the interest and principal buckets after the last step is
// retained in the reserve.
func (e *Engine) Allocate(in Input) (*Output, error) {
	d := in.Deal
	n := len(d.Tranches)
	p := &period{
		in: in,
		d:  d,
		funds: Funds{
			Interest:  in.Collateral.GrossInterest,
			Principal: in.Collateral.PrincipalCollected(),
			Reserve:   in.Reserve,
		},
		tranches:     append([]domain.TrancheState(nil), in.Tranches...),
		interestOwed: make([]decimal.Decimal, n),
		interestPaid: make([]decimal.Decimal, n),
		principal:    make([]decimal.Decimal, n),
		accretion:    make([]decimal.Decimal, n),
		writedown:    make([]decimal.Decimal, n),
		busted:       make([]bool, n),
		feePaid:      make([]decimal.Decimal, len(d.Fees)),
	}
	for i := 0; i < n; i++ {
		p.interestOwed[i] = in.Solved.InterestDue[i].Add(in.Tranches[i].InterestShortfall)
	}

	available := p.funds.Total()
	out := &Output{}

	for k, step := range d.Steps {
		if !p.gateOpen(step.Gate) {
			out.Skipped = append(out.Skipped, k)
			continue
		}
		if err := p.run(step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", k+1, step.Kind, err)
		}
	}

	out.UnfundedAccretion = p.unfundedAccretion

	// Unallocated cash is retained.
	endingReserve := p.funds.Total()

	out.Ledger = domain.CashLedger{
		InterestCollected:  in.Collateral.GrossInterest,
		PrincipalCollected: in.Collateral.PrincipalCollected(),
		BeginningReserve:   in.Reserve,
		Available:          available,
		Disbursed:          p.disbursed,
		EndingReserve:      endingReserve,
	}
	if !out.Ledger.Balanced() {
		return nil, fmt.Errorf("%w: period %d available %s, disbursed %s, reserve %s",
			ErrConservation, in.Period, available, p.disbursed, endingReserve)
	}

	out.Reserve = endingReserve
	p.finish(out)
	return out, nil
}

func (p *period) gateOpen(g *deal.Gate) bool {
	if g == nil {
		return true
	}
	switch g.When {
	case domain.GateWhenBreached:
		for _, t := range g.Triggers {
			if p.in.Triggers[t] == domain.TriggerBreached {
				return true
			}
		}
		return false
	default:
		for _, t := range g.Triggers {
			if p.in.Triggers[t] != domain.TriggerPassing {
				return false
			}
		}
		return true
	}
}

func (p *period) run(s deal.Step) error {
	switch s.Kind {
	case domain.StepPayFee:
		p.payFee(s)
	case domain.StepPayInterest:
		p.payInterest(s)
	case domain.StepPayPrincipal:
		p.payPrincipal(s)
	case domain.StepPayScheduled:
		return p.payScheduled(s)
	case domain.StepAccrue:
		p.accrue(s)
	case domain.StepAllocateLoss:
		p.allocateLoss(s)
	case domain.StepTransfer:
		p.funds.Move(s.Source, s.To, p.limit(s.Amount, p.funds.Available(s.Source)))
	case domain.StepDrawReserve:
		p.drawReserve(s)
	case domain.StepDepositReserve:
		p.depositReserve(s)
	case domain.StepPayResidual:
		p.payResidual(s)
	default:
		return fmt.Errorf("unsupported step kind %q", s.Kind)
	}
	return nil
}

// limit returns amount when positive, otherwise everything available.
func (p *period) limit(amount, available decimal.Decimal) decimal.Decimal {
	if amount.IsPositive() {
		return money.Min(amount, available)
	}
	return available
}

func (p *period) take(source domain.FundSource, amount decimal.Decimal) decimal.Decimal {
	fi, fp := p.funds.Take(source, amount)
	paid := fi.Add(fp)
	p.disbursed = p.disbursed.Add(paid)
	return paid
}

func (p *period) payFee(s deal.Step) {
	owed := p.in.Solved.FeesDue[s.Fee].Sub(p.feePaid[s.Fee])
	p.feePaid[s.Fee] = p.feePaid[s.Fee].Add(p.take(s.Source, owed))
}

func (p *period) payInterest(s deal.Step) {
	owed := make([]decimal.Decimal, len(s.Tranches))
	for k, i := range s.Tranches {
		if p.tranches[i].Accreting || !p.d.PaysInterest(i) {
			continue
		}
		owed[k] = money.NonNegative(p.interestOwed[i].Sub(p.interestPaid[i]))
	}

	if s.Mode == domain.ModeProRata {
		weights := make([]decimal.Decimal, len(s.Tranches))
		for k, i := range s.Tranches {
			weights[k] = p.in.Solved.Notionals[i]
		}
		pool := p.take(s.Source, money.Sum(owed...))
		for k, share := range ProRata(pool, weights, owed) {
			i := s.Tranches[k]
			p.interestPaid[i] = p.interestPaid[i].Add(share)
		}
		return
	}

	for k, i := range s.Tranches {
		p.interestPaid[i] = p.interestPaid[i].Add(p.take(s.Source, owed[k]))
	}
}

func (p *period) payPrincipal(s deal.Step) {
	if s.Mode == domain.ModeProRata {
		weights := make([]decimal.Decimal, len(s.Tranches))
		room := make([]decimal.Decimal, len(s.Tranches))
		for k, i := range s.Tranches {
			weights[k] = p.in.Tranches[i].Balance
			room[k] = p.tranches[i].Balance
		}
		pool := p.take(s.Source, money.Sum(room...))
		for k, share := range ProRata(pool, weights, room) {
			p.reduce(s.Tranches[k], share)
		}
		return
	}

	for _, i := range s.Tranches {
		p.reduce(i, p.take(s.Source, p.tranches[i].Balance))
	}
}

func (p *period) reduce(i int, amount decimal.Decimal) {
	p.tranches[i].Balance = p.tranches[i].Balance.Sub(amount)
	p.principal[i] = p.principal[i].Add(amount)
}

// payScheduled pays a PAC its scheduled amount while collateral paydown is
// inside the band; otherwise the PAC is busted and gets nothing from the
// schedule. The support then absorbs what is left up to its balance. With
// fallback, a busted PAC takes any remainder once the support is retired.
func (p *period) payScheduled(s deal.Step) error {
	pac := s.Tranche
	sched := p.in.Schedules[pac]
	if sched == nil {
		return fmt.Errorf("no schedule for PAC %s", p.d.Tranches[pac].ID)
	}
	support, _ := p.d.TrancheIndex(p.d.Tranches[pac].Schedule.Support)

	// The band is projected without defaults, so defaulted balance is left out.
	paydown := p.in.Summary.CumulativePaydown.Sub(p.in.Summary.CumulativeDefaults)
	if sched.InBand(p.in.Period, paydown) {
		due := money.NonNegative(p.tranches[pac].Balance.Sub(sched.TargetAt(p.in.Period)))
		p.reduce(pac, p.take(s.Source, due))
	} else if p.tranches[pac].Balance.IsPositive() {
		p.busted[pac] = true
	}

	p.reduce(support, p.take(s.Source, p.tranches[support].Balance))

	if p.busted[pac] && p.d.Tranches[pac].Schedule.Fallback {
		p.reduce(pac, p.take(s.Source, p.tranches[pac].Balance))
	}
	return nil
}

// accrue adds each accreting tranche's full accrual to its balance and
// releases the matching interest cash to the principal bucket. The accrual
// is owed whatever earlier steps paid, so when less interest remains only
// that much is redirected and the rest of the accrual has no cash behind it.
func (p *period) accrue(s deal.Step) {
	for _, i := range s.Tranches {
		if !p.tranches[i].Accreting {
			continue
		}
		a := p.in.Solved.Accretion[i]
		if !a.IsPositive() || !p.accretion[i].IsZero() {
			continue
		}
		p.tranches[i].Balance = p.tranches[i].Balance.Add(a)
		p.accretion[i] = a
		if moved := p.funds.Move(domain.SourceInterest, domain.SourcePrincipal, a); moved.LessThan(a) {
			p.unfundedAccretion = p.unfundedAccretion.Add(a.Sub(moved))
		}
	}
}

// allocateLoss writes down listed tranches, last first, by the amount bond
// balances exceed collateral plus principal cash still to be distributed.
func (p *period) allocateLoss(s deal.Step) {
	bonds := decimal.Zero
	for _, i := range p.d.BondTranches() {
		bonds = bonds.Add(p.tranches[i].Balance)
	}
	backing := p.in.Summary.Balance.Add(p.funds.Principal)
	excess := money.NonNegative(bonds.Sub(backing))

	for k := len(s.Tranches) - 1; k >= 0 && excess.IsPositive(); k-- {
		i := s.Tranches[k]
		w := money.Min(excess, p.tranches[i].Balance)
		p.tranches[i].Balance = p.tranches[i].Balance.Sub(w)
		p.writedown[i] = p.writedown[i].Add(w)
		excess = excess.Sub(w)
	}
}

// drawReserve moves reserve cash into a bucket: enough to cover the listed
// tranches' unpaid interest, or the step amount, or the whole reserve.
func (p *period) drawReserve(s deal.Step) {
	want := s.Amount
	if len(s.Tranches) > 0 {
		want = decimal.Zero
		for _, i := range s.Tranches {
			if p.tranches[i].Accreting {
				continue
			}
			want = want.Add(money.NonNegative(p.interestOwed[i].Sub(p.interestPaid[i])))
		}
		if !want.IsPositive() {
			return
		}
	}
	amount := p.limit(want, p.funds.Reserve)
	p.funds.Reserve = p.funds.Reserve.Sub(amount)
	p.funds.Credit(s.To, amount)
}

// depositReserve tops the reserve up to its target from the step's source.
func (p *period) depositReserve(s deal.Step) {
	need := money.NonNegative(s.Amount.Sub(p.funds.Reserve))
	fi, fp := p.funds.Take(s.Source, need)
	p.funds.Reserve = p.funds.Reserve.Add(fi).Add(fp)
}

// payResidual releases everything left in the source to the residual holder.
func (p *period) payResidual(s deal.Step) {
	i := s.Tranche
	fi, fp := p.funds.Take(s.Source, p.funds.Available(s.Source))
	p.disbursed = p.disbursed.Add(fi).Add(fp)
	p.interestPaid[i] = p.interestPaid[i].Add(fi)

	retire := money.Min(fp, p.tranches[i].Balance)
	p.tranches[i].Balance = p.tranches[i].Balance.Sub(retire)
	p.principal[i] = p.principal[i].Add(fp)
}

// finish builds the tranche and fee records and carries shortfalls forward.
func (p *period) finish(out *Output) {
	d := p.d
	out.Cashflows = make([]domain.TrancheCashflow, len(d.Tranches))
	for i := range d.Tranches {
		t := &p.tranches[i]
		shortfall := decimal.Zero
		if !t.Accreting && d.PaysInterest(i) && d.Tranches[i].Kind != domain.TrancheKindResidual {
			shortfall = money.NonNegative(p.interestOwed[i].Sub(p.interestPaid[i]))
		}
		t.InterestShortfall = shortfall
		t.Writedown = t.Writedown.Add(p.writedown[i])

		due := p.interestOwed[i]
		if t.Accreting {
			due = decimal.Zero
		}
		out.Cashflows[i] = domain.TrancheCashflow{
			Period:            p.in.Period,
			TrancheID:         t.ID,
			BeginningBalance:  p.in.Tranches[i].Balance,
			InterestDue:       due,
			InterestPaid:      p.interestPaid[i],
			InterestShortfall: shortfall,
			PrincipalPaid:     p.principal[i],
			Accretion:         p.accretion[i],
			Writedown:         p.writedown[i],
			EndingBalance:     t.Balance,
			Rate:              p.in.Solved.TrancheRates[i],
			Busted:            p.busted[i],
		}
	}
	out.Tranches = p.tranches

	out.Fees = make([]domain.FeeState, len(d.Fees))
	out.Payments = make([]domain.FeePayment, len(d.Fees))
	for i, f := range d.Fees {
		due := p.in.Solved.FeesDue[i]
		unpaid := money.NonNegative(due.Sub(p.feePaid[i]))
		out.Fees[i] = domain.FeeState{ID: f.ID, Unpaid: unpaid}
		out.Payments[i] = domain.FeePayment{
			Period: p.in.Period,
			FeeID:  f.ID,
			Due:    due,
			Paid:   p.feePaid[i],
			Unpaid: unpaid,
		}
	}
}
