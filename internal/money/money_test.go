package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-0.125", "-0.13"},
		{"100", "100"},
	}
	for _, tt := range tests {
		got := Round(decimal.RequireFromString(tt.in))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Round(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(1234.5678); !got.Equal(decimal.RequireFromString("1234.57")) {
		t.Errorf("FromFloat = %s", got)
	}
	if !Cent.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("Cent = %s", Cent)
	}
}

func TestHelpers(t *testing.T) {
	a := decimal.NewFromInt(3)
	b := decimal.NewFromInt(-2)

	if got := Min(a, b); !got.Equal(b) {
		t.Errorf("Min = %s, want %s", got, b)
	}
	if got := NonNegative(b); !got.IsZero() {
		t.Errorf("NonNegative(-2) = %s", got)
	}
	if got := NonNegative(a); !got.Equal(a) {
		t.Errorf("NonNegative(3) = %s", got)
	}
	if got := Sum(a, b, Cent); !got.Equal(decimal.RequireFromString("1.01")) {
		t.Errorf("Sum = %s", got)
	}
	if got := Sum(); !got.IsZero() {
		t.Errorf("Sum() = %s", got)
	}
}
