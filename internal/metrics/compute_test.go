package metrics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

func TestWAL(t *testing.T) {
	flows := []*domain.TrancheCashflow{
		{Period: 6, PrincipalPaid: decimal.NewFromInt(100)},
		{Period: 12, PrincipalPaid: decimal.Zero},
		{Period: 18, PrincipalPaid: decimal.NewFromInt(100)},
	}
	// (6*100 + 18*100) / 200 = 12 periods = 1 year
	assert.InDelta(t, 1.0, WAL(flows, 12), 1e-12)
	assert.InDelta(t, 3.0, WAL(flows, 4), 1e-12)

	io := []*domain.TrancheCashflow{{Period: 1, InterestPaid: decimal.NewFromInt(50)}}
	assert.Equal(t, 0.0, WAL(io, 12))
	assert.Equal(t, 0.0, WAL(nil, 12))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   distribution
	}{
		{"empty", nil, distribution{}},
		{"single", []float64{4}, distribution{mean: 4, p10: 4, p50: 4, p90: 4, max: 4}},
		{
			"five unsorted",
			[]float64{5, 1, 4, 2, 3},
			distribution{mean: 3, stddev: math.Sqrt(2.5), p10: 1, p50: 3, p90: 5, max: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarize(tt.values)
			assert.InDelta(t, tt.want.mean, got.mean, 1e-12)
			assert.InDelta(t, tt.want.stddev, got.stddev, 1e-12)
			assert.Equal(t, tt.want.p10, got.p10)
			assert.Equal(t, tt.want.p50, got.p50)
			assert.Equal(t, tt.want.p90, got.p90)
			assert.Equal(t, tt.want.max, got.max)
		})
	}

	// Input order is left untouched.
	values := []float64{3, 1, 2}
	summarize(values)
	assert.Equal(t, []float64{3, 1, 2}, values)
}
