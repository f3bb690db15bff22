package deal

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// Load decodes a YAML deal definition. Unknown fields are rejected.
func Load(r io.Reader) (*domain.DealDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def domain.DealDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode deal: %w", err)
	}
	return &def, nil
}

// LoadFile reads and decodes a deal definition from path.
func LoadFile(path string) (*domain.DealDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open deal: %w", err)
	}
	defer f.Close()

	def, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadAndCompile loads a deal file and compiles it.
func LoadAndCompile(path string) (*Deal, error) {
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(def)
}
