package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
)

// Schedule is a PAC tranche's principal schedule and the collateral paydown
// band it was built from. Index t-1 holds period t. Built once per deal and
// shared read-only by every path.
type Schedule struct {
	Tranche  int
	LowerPSA float64
	UpperPSA float64
	Target   []decimal.Decimal // scheduled PAC balance after each period
	Amount   []decimal.Decimal // scheduled PAC principal per period
	LowerCum []decimal.Decimal // cumulative collateral paydown, slower bound
	UpperCum []decimal.Decimal // cumulative collateral paydown, faster bound
}

// TargetAt returns the scheduled balance after a period; zero past the end.
func (s *Schedule) TargetAt(period int) decimal.Decimal {
	if period < 1 || period > len(s.Target) {
		return decimal.Zero
	}
	return s.Target[period-1]
}

// InBand reports whether actual cumulative collateral paydown lies inside
// the band implied by the two PSA bounds. Past the end of the projection
// the band is the final cumulative range.
func (s *Schedule) InBand(period int, cumulative decimal.Decimal) bool {
	if len(s.LowerCum) == 0 {
		return false
	}
	t := period
	if t < 1 {
		t = 1
	}
	if t > len(s.LowerCum) {
		t = len(s.LowerCum)
	}
	lo, hi := s.LowerCum[t-1], s.UpperCum[t-1]
	return cumulative.GreaterThanOrEqual(lo) && cumulative.LessThanOrEqual(hi)
}

// BuildSchedules projects the initial pool at each PAC's two PSA bounds and
// derives its schedule. The result is indexed by tranche; non-PAC entries are nil.
func BuildSchedules(d *deal.Deal, engine *collateral.Engine) ([]*Schedule, error) {
	out := make([]*Schedule, len(d.Tranches))
	for i, t := range d.Tranches {
		if t.Kind != domain.TrancheKindPAC {
			continue
		}
		s, err := buildSchedule(i, t, d.Loans, engine)
		if err != nil {
			return nil, fmt.Errorf("schedule for %s: %w", t.ID, err)
		}
		out[i] = s
	}
	return out, nil
}

func buildSchedule(idx int, t domain.TrancheDefinition, pool []domain.LoanState, engine *collateral.Engine) (*Schedule, error) {
	lower, err := principalAtPSA(pool, t.Schedule.LowerPSA, engine)
	if err != nil {
		return nil, err
	}
	upper, err := principalAtPSA(pool, t.Schedule.UpperPSA, engine)
	if err != nil {
		return nil, err
	}

	n := len(lower)
	if len(upper) > n {
		n = len(upper)
	}
	s := &Schedule{
		Tranche:  idx,
		LowerPSA: t.Schedule.LowerPSA,
		UpperPSA: t.Schedule.UpperPSA,
		Target:   make([]decimal.Decimal, n),
		Amount:   make([]decimal.Decimal, n),
		LowerCum: make([]decimal.Decimal, n),
		UpperCum: make([]decimal.Decimal, n),
	}

	balance := t.OriginalBalance
	cumLo, cumHi := decimal.Zero, decimal.Zero
	for p := 0; p < n; p++ {
		lo, hi := at(lower, p), at(upper, p)
		cumLo = cumLo.Add(lo)
		cumHi = cumHi.Add(hi)
		s.LowerCum[p] = money.Min(cumLo, cumHi)
		s.UpperCum[p] = decimal.Max(cumLo, cumHi)

		pay := money.Min(money.Min(lo, hi), balance)
		s.Amount[p] = pay
		balance = balance.Sub(pay)
		s.Target[p] = balance
	}
	return s, nil
}

// principalAtPSA returns scheduled plus prepaid principal per period for the
// pool run to maturity at a constant PSA with no defaults.
func principalAtPSA(pool []domain.LoanState, psa float64, engine *collateral.Engine) ([]decimal.Decimal, error) {
	maxTerm := 0
	for _, l := range pool {
		if l.RemainingTerm > maxTerm {
			maxTerm = l.RemainingTerm
		}
	}

	var out []decimal.Decimal
	state := pool
	for p := 1; p <= maxTerm; p++ {
		cf, next, err := engine.Project(state, domain.ScenarioInput{Period: p, PSA: psa})
		if err != nil {
			return nil, err
		}
		out = append(out, cf.ScheduledPrincipal.Add(cf.PrepaidPrincipal))
		state = next
		if cf.EndingBalance.IsZero() {
			break
		}
	}
	return out, nil
}

func at(xs []decimal.Decimal, i int) decimal.Decimal {
	if i < len(xs) {
		return xs[i]
	}
	return decimal.Zero
}
