package scenario

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

func TestLoadFile(t *testing.T) {
	paths, err := LoadFile("testdata/paths.yaml")
	require.NoError(t, err)
	require.Len(t, paths, 2)

	base := paths[0]
	assert.Equal(t, "base", base.ID)
	require.Len(t, base.Inputs, 3)
	assert.Equal(t, 150.0, base.Inputs[0].PSA)
	assert.Equal(t, 0.053, base.Inputs[0].IndexFixings["SOFR"])
	assert.Nil(t, base.Inputs[2].IndexFixings)

	stress := paths[1]
	assert.Equal(t, 1, stress.Inputs[0].Period, "omitted period takes its position")
	assert.Equal(t, 2, stress.Inputs[1].Period)
	assert.Equal(t, 0.11, stress.Inputs[1].Delinquency)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "paths: []", ErrNoPaths},
		{"missing id", "paths:\n  - inputs: [{cpr: 0.1}]", ErrInvalidPath},
		{"duplicate id", "paths:\n  - {id: a, inputs: [{cpr: 0.1}]}\n  - {id: a, inputs: [{cpr: 0.1}]}", ErrInvalidPath},
		{"no periods", "paths:\n  - {id: a, inputs: []}", ErrInvalidPath},
		{"gap", "paths:\n  - {id: a, inputs: [{period: 1}, {period: 3}]}", ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Load(strings.NewReader("paths:\n  - {id: a, inputs: [{cpr: 0.1, speed: 2}]}"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestConstant(t *testing.T) {
	in := domain.ScenarioInput{CPR: 0.08, CDR: 0.01, Severity: 0.4, IndexFixings: map[string]float64{"SOFR": 0.05}}
	path := Constant("flat", 4, in)

	require.Len(t, path.Inputs, 4)
	for i, p := range path.Inputs {
		assert.Equal(t, i+1, p.Period)
		assert.Equal(t, 0.08, p.CPR)
	}

	// Periods do not share fixing maps.
	path.Inputs[0].IndexFixings["SOFR"] = 0.09
	assert.Equal(t, 0.05, path.Inputs[1].IndexFixings["SOFR"])
	assert.Equal(t, 0.05, in.IndexFixings["SOFR"])
	assert.NoError(t, Validate([]domain.ScenarioPath{path}))
}

func TestPSAGrid(t *testing.T) {
	paths := PSAGrid("pac", 12, []float64{100, 187.5, 300}, 0, 0)
	require.Len(t, paths, 3)
	assert.Equal(t, "pac-psa100", paths[0].ID)
	assert.Equal(t, "pac-psa187.5", paths[1].ID)
	assert.Equal(t, 300.0, paths[2].Inputs[11].PSA)
	assert.NoError(t, Validate(paths))
}

func TestWithFixing(t *testing.T) {
	base := Constant("float", 3, domain.ScenarioInput{IndexFixings: map[string]float64{"SOFR": 0.05}})
	shocked := WithFixing(base, "SOFR", 0.07, 2)

	assert.Equal(t, 0.05, shocked.Inputs[0].IndexFixings["SOFR"])
	assert.Equal(t, 0.07, shocked.Inputs[1].IndexFixings["SOFR"])
	assert.Equal(t, 0.07, shocked.Inputs[2].IndexFixings["SOFR"])
	assert.Equal(t, 0.05, base.Inputs[2].IndexFixings["SOFR"], "source path untouched")

	bare := WithFixing(Constant("bare", 2, domain.ScenarioInput{}), "LIBOR", 0.04, 1)
	assert.Equal(t, 0.04, bare.Inputs[0].IndexFixings["LIBOR"])
}

func TestParseFixings(t *testing.T) {
	got, err := ParseFixings(" SOFR=0.05, LIBOR = 0.051 ")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"SOFR": 0.05, "LIBOR": 0.051}, got)

	got, err = ParseFixings("")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"SOFR", "=0.05", "SOFR=abc"} {
		_, err := ParseFixings(bad)
		assert.ErrorIs(t, err, ErrInvalidList, bad)
	}
}

func TestParseSpeeds(t *testing.T) {
	got, err := ParseSpeeds("100, 187.5,300")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 187.5, 300}, got)

	_, err = ParseSpeeds("100,-5")
	assert.ErrorIs(t, err, ErrInvalidList)
	_, err = ParseSpeeds("fast")
	assert.ErrorIs(t, err, ErrInvalidList)
}

func TestSelect(t *testing.T) {
	paths := []domain.ScenarioPath{{ID: "base"}, {ID: "stress"}}

	p, err := Select(paths, "")
	require.NoError(t, err)
	assert.Equal(t, "base", p.ID)

	p, err = Select(paths, "stress")
	require.NoError(t, err)
	assert.Equal(t, "stress", p.ID)

	_, err = Select(paths, "missing")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = Select(nil, "")
	assert.ErrorIs(t, err, ErrNoPaths)
}

func TestFromFileOrGrid(t *testing.T) {
	paths, err := FromFileOrGrid("", GridOptions{Speeds: "100,200", Fixings: "SOFR=0.05", Periods: 12, CDR: 0.01, Severity: 0.4})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "grid-psa100", paths[0].ID)
	assert.Equal(t, "grid-psa200", paths[1].ID)
	for _, p := range paths {
		require.Len(t, p.Inputs, 12)
		for _, in := range p.Inputs {
			assert.Equal(t, 0.05, in.IndexFixings["SOFR"])
			assert.Equal(t, 0.4, in.Severity)
		}
	}

	fromFile, err := FromFileOrGrid("testdata/paths.yaml", GridOptions{Speeds: "bad"})
	require.NoError(t, err)
	assert.Len(t, fromFile, 2)

	_, err = FromFileOrGrid("", GridOptions{})
	assert.ErrorIs(t, err, ErrNoPaths)

	_, err = FromFileOrGrid("", GridOptions{Speeds: "100", Fixings: "SOFR"})
	assert.ErrorIs(t, err, ErrInvalidList)
}
