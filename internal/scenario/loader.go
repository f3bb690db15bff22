// Package scenario loads scenario paths from YAML and builds deterministic
// stress paths.
package scenario

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// File is the on-disk layout of a scenario document.
type File struct {
	Paths []domain.ScenarioPath `yaml:"paths"`
}

// Load decodes and validates a YAML scenario document. Unknown fields are rejected.
// A period with an omitted number takes its position in the path.
func Load(r io.Reader) ([]domain.ScenarioPath, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}

	for i := range f.Paths {
		for j := range f.Paths[i].Inputs {
			if f.Paths[i].Inputs[j].Period == 0 {
				f.Paths[i].Inputs[j].Period = j + 1
			}
		}
	}

	if err := Validate(f.Paths); err != nil {
		return nil, err
	}
	return f.Paths, nil
}

// LoadFile reads and decodes a scenario document from path.
func LoadFile(path string) ([]domain.ScenarioPath, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenarios: %w", err)
	}
	defer f.Close()

	paths, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return paths, nil
}

// Validate checks path ids are present and unique and that every path is
// numbered 1..n with at least one period. Rate ranges are checked per period
// by the collateral engine.
func Validate(paths []domain.ScenarioPath) error {
	if len(paths) == 0 {
		return ErrNoPaths
	}

	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidPath)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidPath, p.ID)
		}
		seen[p.ID] = struct{}{}

		if len(p.Inputs) == 0 {
			return fmt.Errorf("%w: %q has no periods", ErrInvalidPath, p.ID)
		}
		for i, in := range p.Inputs {
			if in.Period != i+1 {
				return fmt.Errorf("%w: %q input %d has period %d", ErrInvalidPath, p.ID, i, in.Period)
			}
		}
	}
	return nil
}
