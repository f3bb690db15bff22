package scenario

import (
	"fmt"
	"strconv"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// Constant repeats one set of assumptions for periods 1..n.
func Constant(id string, periods int, in domain.ScenarioInput) domain.ScenarioPath {
	path := domain.ScenarioPath{ID: id, Inputs: make([]domain.ScenarioInput, periods)}
	for i := range path.Inputs {
		p := in
		p.Period = i + 1
		p.IndexFixings = copyFixings(in.IndexFixings)
		path.Inputs[i] = p
	}
	return path
}

// PSARamp builds a path at a constant PSA speed. The seasoning ramp is
// applied per loan by the collateral engine from each loan's age.
func PSARamp(id string, periods int, psa, cdr, severity float64) domain.ScenarioPath {
	return Constant(id, periods, domain.ScenarioInput{PSA: psa, CDR: cdr, Severity: severity})
}

// PSAGrid builds one PSARamp path per speed, named "<prefix>-psa<speed>".
func PSAGrid(prefix string, periods int, speeds []float64, cdr, severity float64) []domain.ScenarioPath {
	paths := make([]domain.ScenarioPath, 0, len(speeds))
	for _, psa := range speeds {
		id := fmt.Sprintf("%s-psa%s", prefix, strconv.FormatFloat(psa, 'f', -1, 64))
		paths = append(paths, PSARamp(id, periods, psa, cdr, severity))
	}
	return paths
}

// WithFixing returns a copy of path with index set to rate in every period
// from `from` onwards. Earlier periods keep their own fixings.
func WithFixing(path domain.ScenarioPath, index string, rate float64, from int) domain.ScenarioPath {
	out := domain.ScenarioPath{ID: path.ID, Inputs: make([]domain.ScenarioInput, len(path.Inputs))}
	for i, in := range path.Inputs {
		in.IndexFixings = copyFixings(in.IndexFixings)
		if in.Period >= from {
			if in.IndexFixings == nil {
				in.IndexFixings = make(map[string]float64, 1)
			}
			in.IndexFixings[index] = rate
		}
		out.Inputs[i] = in
	}
	return out
}

func copyFixings(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
