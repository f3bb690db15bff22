package trigger

import (
	"fmt"
	"math"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/lookup"
)

// Observation is one predicate evaluation.
type Observation struct {
	Value     float64
	Threshold float64
	Passed    bool
	Defined   bool // false when the metric has no meaning this period (e.g. no bonds left)
}

// Predicate tests one trigger against period state. Implementations are
// pure: they read the state and never modify it.
type Predicate interface {
	Observe(ps *domain.PeriodState) Observation
}

// MetricPredicate compares a computed period variable against a threshold.
type MetricPredicate struct {
	Variable   string
	Comparator domain.Comparator
	Threshold  float64
	Schedule   []float64 // optional step-up, 1-based by period, carried forward
}

// Ensure MetricPredicate implements Predicate.
var _ Predicate = (*MetricPredicate)(nil)

// FromDefinition creates a Predicate from a trigger definition.
func FromDefinition(def domain.TriggerDefinition) (Predicate, error) {
	variable, err := metricVariable(def)
	if err != nil {
		return nil, err
	}
	switch def.Comparator {
	case domain.CompareLT, domain.CompareLE, domain.CompareGT, domain.CompareGE:
	default:
		return nil, fmt.Errorf("%w: trigger %s: unknown comparator %q", deal.ErrInvalidTriggerConfig, def.ID, def.Comparator)
	}
	return &MetricPredicate{
		Variable:   variable,
		Comparator: def.Comparator,
		Threshold:  def.Threshold,
		Schedule:   def.ThresholdSchedule,
	}, nil
}

func metricVariable(def domain.TriggerDefinition) (string, error) {
	switch def.Metric {
	case domain.MetricDelinquency:
		return domain.VarDelinquency, nil
	case domain.MetricCumulativeLoss:
		return domain.VarCumulativeLoss, nil
	case domain.MetricOCRatio:
		return domain.VarOCRatio, nil
	case domain.MetricICRatio:
		return domain.VarICRatio, nil
	case domain.MetricVariable:
		if def.Variable == "" {
			return "", fmt.Errorf("%w: trigger %s: VARIABLE metric without variable", deal.ErrInvalidTriggerConfig, def.ID)
		}
		return def.Variable, nil
	default:
		return "", fmt.Errorf("%w: trigger %s: unknown metric %q", deal.ErrInvalidTriggerConfig, def.ID, def.Metric)
	}
}

// ThresholdAt returns the threshold in force for a period.
func (p *MetricPredicate) ThresholdAt(period int) float64 {
	if v, err := lookup.ValueAt(period, p.Schedule); err == nil {
		return v
	}
	return p.Threshold
}

// Observe evaluates the predicate. An undefined metric passes.
func (p *MetricPredicate) Observe(ps *domain.PeriodState) Observation {
	obs := Observation{Threshold: p.ThresholdAt(ps.Period)}

	v, ok := ps.Variables[p.Variable]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		obs.Passed = true
		return obs
	}
	obs.Value = v
	obs.Defined = true
	obs.Passed = compare(v, p.Comparator, obs.Threshold)
	return obs
}

func compare(v float64, c domain.Comparator, threshold float64) bool {
	switch c {
	case domain.CompareLT:
		return v < threshold
	case domain.CompareLE:
		return v <= threshold
	case domain.CompareGT:
		return v > threshold
	case domain.CompareGE:
		return v >= threshold
	}
	return false
}
