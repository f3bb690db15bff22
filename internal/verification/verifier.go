// Package verification checks that simulation runs are reproducible: a
// replayed path must produce the same state digest and the same tranche
// cashflows as the stored run.
package verification

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// FloatTolerance is the tolerance for rate comparisons.
// Money fields must match to the cent exactly.
const FloatTolerance = 1e-12

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Period    int    // 0 for run-level fields
	TrancheID string // empty for run-level fields
	Field     string
	Expected  any // stored value
	Actual    any // replayed value
}

func (d FieldDivergence) String() string {
	if d.TrancheID == "" {
		return fmt.Sprintf("%s: stored %v, replayed %v", d.Field, d.Expected, d.Actual)
	}
	return fmt.Sprintf("period %d %s %s: stored %v, replayed %v", d.Period, d.TrancheID, d.Field, d.Expected, d.Actual)
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID          string
	PathID         string
	Match          bool
	StoredDigest   string
	ReplayedDigest string
	Divergences    []FieldDivergence
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int
	MatchedRuns   int
	DivergentRuns int
	Results       []VerificationResult
}

// Verifier replays stored runs.
type Verifier interface {
	// VerifyRun replays one stored run and compares it field by field.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyAll verifies every stored run of a deal.
	VerifyAll(ctx context.Context, dealID string) (*VerificationReport, error)
}

type flowKey struct {
	period  int
	tranche string
}

// CompareCashflows compares stored and replayed tranche records matched by
// (period, tranche_id). Missing and extra records are reported as "Record".
// Divergences are ordered by period, tranche and field.
func CompareCashflows(stored, replayed []*domain.TrancheCashflow) []FieldDivergence {
	index := make(map[flowKey]*domain.TrancheCashflow, len(replayed))
	for _, c := range replayed {
		index[flowKey{c.Period, c.TrancheID}] = c
	}

	var divergences []FieldDivergence
	seen := make(map[flowKey]struct{}, len(stored))
	for _, s := range stored {
		k := flowKey{s.Period, s.TrancheID}
		seen[k] = struct{}{}
		r, ok := index[k]
		if !ok {
			divergences = append(divergences, FieldDivergence{
				Period: s.Period, TrancheID: s.TrancheID, Field: "Record", Expected: "present", Actual: "missing",
			})
			continue
		}
		divergences = append(divergences, compareCashflow(s, r)...)
	}
	for _, r := range replayed {
		k := flowKey{r.Period, r.TrancheID}
		if _, ok := seen[k]; !ok {
			divergences = append(divergences, FieldDivergence{
				Period: r.Period, TrancheID: r.TrancheID, Field: "Record", Expected: "missing", Actual: "present",
			})
		}
	}

	sort.SliceStable(divergences, func(i, j int) bool {
		a, b := divergences[i], divergences[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.TrancheID != b.TrancheID {
			return a.TrancheID < b.TrancheID
		}
		return a.Field < b.Field
	})
	return divergences
}

func compareCashflow(s, r *domain.TrancheCashflow) []FieldDivergence {
	var out []FieldDivergence
	money := func(field string, a, b decimal.Decimal) {
		if !a.Equal(b) {
			out = append(out, FieldDivergence{
				Period: s.Period, TrancheID: s.TrancheID, Field: field,
				Expected: a.StringFixed(2), Actual: b.StringFixed(2),
			})
		}
	}

	money("BeginningBalance", s.BeginningBalance, r.BeginningBalance)
	money("InterestDue", s.InterestDue, r.InterestDue)
	money("InterestPaid", s.InterestPaid, r.InterestPaid)
	money("InterestShortfall", s.InterestShortfall, r.InterestShortfall)
	money("PrincipalPaid", s.PrincipalPaid, r.PrincipalPaid)
	money("Accretion", s.Accretion, r.Accretion)
	money("Writedown", s.Writedown, r.Writedown)
	money("EndingBalance", s.EndingBalance, r.EndingBalance)

	if !floatEquals(s.Rate, r.Rate) {
		out = append(out, FieldDivergence{Period: s.Period, TrancheID: s.TrancheID, Field: "Rate", Expected: s.Rate, Actual: r.Rate})
	}
	if s.Busted != r.Busted {
		out = append(out, FieldDivergence{Period: s.Period, TrancheID: s.TrancheID, Field: "Busted", Expected: s.Busted, Actual: r.Busted})
	}
	return out
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
