// Package metrics summarizes tranche behaviour across many scenario paths.
package metrics

import (
	"context"
	"errors"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/storage"
)

// ErrNoPaths is returned when no path results are available for aggregation.
var ErrNoPaths = errors.New("no path results available for aggregation")

// Aggregator computes per-tranche aggregates from path results.
type Aggregator struct {
	deal  *deal.Deal
	store storage.TrancheAggregateStore // nil: compute only
}

// NewAggregator creates a new aggregator for one deal.
func NewAggregator(d *deal.Deal, store storage.TrancheAggregateStore) *Aggregator {
	return &Aggregator{deal: d, store: store}
}

// Aggregate computes one aggregate per tranche, in deal order, over the
// given paths. Nil results are skipped. Paths cut short by early
// retirement count like any other.
func (a *Aggregator) Aggregate(batchID string, results []*domain.PathResult) ([]*domain.TrancheAggregate, error) {
	var paths []*domain.PathResult
	for _, r := range results {
		if r != nil {
			paths = append(paths, r)
		}
	}
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	ppy := a.deal.PeriodsPerYear
	if ppy <= 0 {
		ppy = deal.DefaultPeriodsPerYear
	}

	nt := len(a.deal.Tranches)
	wals := make([][]float64, nt)
	principal := make([][]float64, nt)
	interest := make([][]float64, nt)
	writedown := make([][]float64, nt)
	shortfallPaths := make([]int, nt)

	for _, p := range paths {
		totals := make([]trancheTotals, nt)
		for i := range totals {
			totals[i].periodsPerYear = ppy
		}
		for _, c := range p.Cashflows() {
			if i, ok := a.deal.TrancheIndex(c.TrancheID); ok {
				totals[i].add(c)
			}
		}

		for i := range totals {
			t := &totals[i]
			if years, ok := t.wal(); ok {
				wals[i] = append(wals[i], years)
			}
			principal[i] = append(principal[i], t.principal.InexactFloat64())
			interest[i] = append(interest[i], t.interest.InexactFloat64())
			writedown[i] = append(writedown[i], t.writedown.InexactFloat64())
			if t.endShortfall.IsPositive() {
				shortfallPaths[i]++
			}
		}
	}

	out := make([]*domain.TrancheAggregate, 0, nt)
	for i, def := range a.deal.Tranches {
		w := summarize(wals[i])
		in := summarize(interest[i])
		wd := summarize(writedown[i])
		out = append(out, &domain.TrancheAggregate{
			BatchID:        batchID,
			DealID:         a.deal.ID,
			TrancheID:      def.ID,
			Paths:          len(paths),
			WALMean:        w.mean,
			WALStddev:      w.stddev,
			WALP10:         w.p10,
			WALP50:         w.p50,
			WALP90:         w.p90,
			PrincipalMean:  summarize(principal[i]).mean,
			InterestMean:   in.mean,
			InterestStddev: in.stddev,
			WritedownMean:  wd.mean,
			WritedownMax:   wd.max,
			ShortfallPaths: shortfallPaths[i],
		})
	}
	return out, nil
}

// AggregateAndStore computes and persists aggregates.
// Returns storage.ErrDuplicateKey if the batch was already stored (append-only).
func (a *Aggregator) AggregateAndStore(ctx context.Context, batchID string, results []*domain.PathResult) ([]*domain.TrancheAggregate, error) {
	aggs, err := a.Aggregate(batchID, results)
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		return aggs, nil
	}
	if err := a.store.InsertBulk(ctx, aggs); err != nil {
		return nil, err
	}
	return aggs, nil
}
