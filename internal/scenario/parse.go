package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// ParseFixings parses "SOFR=0.05,LIBOR=0.051" into index fixings.
// An empty string yields nil.
func ParseFixings(s string) (map[string]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: fixing %q, want INDEX=rate", ErrInvalidList, part)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fixing %q: %v", ErrInvalidList, part, err)
		}
		out[name] = rate
	}
	return out, nil
}

// ParseSpeeds parses a comma-separated list of PSA speeds, e.g. "100,187.5,300".
func ParseSpeeds(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("%w: speed %q", ErrInvalidList, part)
		}
		out = append(out, v)
	}
	return out, nil
}

// Select returns the path with the given id, or the first path when id is empty.
func Select(paths []domain.ScenarioPath, id string) (domain.ScenarioPath, error) {
	if len(paths) == 0 {
		return domain.ScenarioPath{}, ErrNoPaths
	}
	if id == "" {
		return paths[0], nil
	}
	for _, p := range paths {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.ScenarioPath{}, fmt.Errorf("%w: no path %q", ErrInvalidPath, id)
}

// GridOptions describes a PSA grid built from command-line flags.
type GridOptions struct {
	Speeds   string // comma-separated PSA speeds
	Fixings  string // INDEX=rate pairs applied to every period
	Periods  int
	CDR      float64
	Severity float64
}

// FromFileOrGrid loads paths from file, or builds a PSA grid when file is empty.
func FromFileOrGrid(file string, opts GridOptions) ([]domain.ScenarioPath, error) {
	if file != "" {
		return LoadFile(file)
	}
	speeds, err := ParseSpeeds(opts.Speeds)
	if err != nil {
		return nil, err
	}
	if len(speeds) == 0 {
		return nil, ErrNoPaths
	}
	fixings, err := ParseFixings(opts.Fixings)
	if err != nil {
		return nil, err
	}
	paths := PSAGrid("grid", opts.Periods, speeds, opts.CDR, opts.Severity)
	for i := range paths {
		for index, rate := range fixings {
			paths[i] = WithFixing(paths[i], index, rate, 1)
		}
	}
	return paths, nil
}
