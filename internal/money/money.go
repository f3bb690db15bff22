// Package money rounds engine amounts to the smallest currency unit.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimal places kept on every booked amount.
const Places = 2

// Cent is the smallest currency unit.
var Cent = decimal.New(1, -Places)

// FromFloat converts a float amount to a cent-rounded decimal.
func FromFloat(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(Places)
}

// Round rounds d to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all amounts; zero for an empty list.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
