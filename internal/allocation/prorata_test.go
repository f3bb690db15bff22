package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decs(xs ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(xs))
	for i, x := range xs {
		out[i] = decimal.NewFromFloat(x)
	}
	return out
}

func assertDecs(t *testing.T, want []float64, got []decimal.Decimal) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		assert.True(t, decimal.NewFromFloat(want[i]).Equal(got[i]), "index %d: want %v, got %s", i, want[i], got[i])
	}
}

func TestProRata_BalancesRecomputedEachPeriod(t *testing.T) {
	// 40/40/20 split 2:2:1.
	assertDecs(t, []float64{40, 40, 20}, ProRata(decimal.NewFromInt(100), decs(40, 40, 20), decs(40, 40, 20)))

	// After paydown to 10/10/0 the zero-balance member gets nothing.
	assertDecs(t, []float64{10, 10, 0}, ProRata(decimal.NewFromInt(20), decs(10, 10, 0), decs(10, 10, 0)))
}

func TestProRata_CentRemainderInOrder(t *testing.T) {
	got := ProRata(decimal.NewFromInt(1), decs(1, 1, 1), decs(10, 10, 10))
	assertDecs(t, []float64{0.34, 0.33, 0.33}, got)
}

func TestProRata_CapRedistributes(t *testing.T) {
	got := ProRata(decimal.NewFromInt(100), decs(50, 50), decs(10, 200))
	assertDecs(t, []float64{10, 90}, got)
}

func TestProRata_AmountAboveCaps(t *testing.T) {
	got := ProRata(decimal.NewFromInt(500), decs(1, 3), decs(20, 30))
	assertDecs(t, []float64{20, 30}, got)
}

func TestProRata_ZeroWeightsFallBackToRoom(t *testing.T) {
	got := ProRata(decimal.NewFromInt(30), decs(0, 0), decs(10, 20))
	assertDecs(t, []float64{10, 20}, got)
}

func TestProRata_Empty(t *testing.T) {
	assert.Empty(t, ProRata(decimal.NewFromInt(10), nil, nil))
	assertDecs(t, []float64{0, 0}, ProRata(decimal.Zero, decs(1, 1), decs(5, 5)))
}

func TestFunds_TakeAnyDrainsInterestFirst(t *testing.T) {
	f := Funds{Interest: decimal.NewFromInt(30), Principal: decimal.NewFromInt(50)}
	fi, fp := f.Take("ANY", decimal.NewFromInt(40))
	assert.True(t, fi.Equal(decimal.NewFromInt(30)))
	assert.True(t, fp.Equal(decimal.NewFromInt(10)))
	assert.True(t, f.Interest.IsZero())
	assert.True(t, f.Principal.Equal(decimal.NewFromInt(40)))
}

func TestFunds_MoveIsBounded(t *testing.T) {
	f := Funds{Interest: decimal.NewFromInt(5)}
	moved := f.Move("INTEREST", "PRINCIPAL", decimal.NewFromInt(9))
	assert.True(t, moved.Equal(decimal.NewFromInt(5)))
	assert.True(t, f.Principal.Equal(decimal.NewFromInt(5)))
	assert.True(t, f.Total().Equal(decimal.NewFromInt(5)))
}
