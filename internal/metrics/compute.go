package metrics

import (
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// trancheTotals accumulates one tranche's cashflows over one path.
type trancheTotals struct {
	principal      decimal.Decimal
	interest       decimal.Decimal
	writedown      decimal.Decimal
	timeWeighted   decimal.Decimal // sum of period * principal
	endShortfall   decimal.Decimal // shortfall carried after the last period
	periodsPerYear int
}

func (t *trancheTotals) add(c *domain.TrancheCashflow) {
	t.principal = t.principal.Add(c.PrincipalPaid)
	t.interest = t.interest.Add(c.InterestPaid)
	t.writedown = t.writedown.Add(c.Writedown)
	t.timeWeighted = t.timeWeighted.Add(c.PrincipalPaid.Mul(decimal.NewFromInt(int64(c.Period))))
	t.endShortfall = c.InterestShortfall
}

// wal is the weighted-average life in years of principal actually paid.
// ok is false when no principal was paid (IO strips, fully written-down classes).
func (t *trancheTotals) wal() (years float64, ok bool) {
	if !t.principal.IsPositive() {
		return 0, false
	}
	periods := t.timeWeighted.Div(t.principal).InexactFloat64()
	return periods / float64(t.periodsPerYear), true
}

// WAL computes the weighted-average life in years of one tranche's records:
// sum(period * principal) / sum(principal) / periodsPerYear.
// Returns 0 when no principal is paid.
func WAL(flows []*domain.TrancheCashflow, periodsPerYear int) float64 {
	t := trancheTotals{periodsPerYear: periodsPerYear}
	for _, c := range flows {
		t.add(c)
	}
	years, _ := t.wal()
	return years
}

// distribution summarizes a sample of per-path values.
type distribution struct {
	mean, stddev  float64
	p10, p50, p90 float64
	max           float64
}

// summarize computes mean, sample stddev, empirical quantiles and max.
// An empty sample summarizes to zeros; a single value has zero stddev.
func summarize(values []float64) distribution {
	n := len(values)
	if n == 0 {
		return distribution{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d := distribution{
		mean: stat.Mean(sorted, nil),
		p10:  stat.Quantile(0.10, stat.Empirical, sorted, nil),
		p50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		p90:  stat.Quantile(0.90, stat.Empirical, sorted, nil),
		max:  sorted[n-1],
	}
	if n > 1 {
		d.stddev = stat.StdDev(sorted, nil)
	}
	return d
}
