// Package allocation executes a deal's ordered waterfall against one period's
// available cash.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
)

// Funds are the period's cash buckets.
type Funds struct {
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Reserve   decimal.Decimal
}

// Total is all cash held across buckets.
func (f Funds) Total() decimal.Decimal {
	return f.Interest.Add(f.Principal).Add(f.Reserve)
}

// Available returns the cash a step drawing from source can use.
func (f Funds) Available(source domain.FundSource) decimal.Decimal {
	switch source {
	case domain.SourceInterest:
		return f.Interest
	case domain.SourcePrincipal:
		return f.Principal
	case domain.SourceAny:
		return f.Interest.Add(f.Principal)
	}
	return decimal.Zero
}

// Take removes up to amount from source and returns what was taken, split by
// bucket. SourceAny drains interest first, then principal.
func (f *Funds) Take(source domain.FundSource, amount decimal.Decimal) (fromInterest, fromPrincipal decimal.Decimal) {
	amount = money.NonNegative(amount)
	switch source {
	case domain.SourceInterest:
		fromInterest = money.Min(amount, f.Interest)
	case domain.SourcePrincipal:
		fromPrincipal = money.Min(amount, f.Principal)
	case domain.SourceAny:
		fromInterest = money.Min(amount, f.Interest)
		fromPrincipal = money.Min(amount.Sub(fromInterest), f.Principal)
	}
	f.Interest = f.Interest.Sub(fromInterest)
	f.Principal = f.Principal.Sub(fromPrincipal)
	return fromInterest, fromPrincipal
}

// Move shifts up to amount from one bucket to another and returns the amount moved.
func (f *Funds) Move(from, to domain.FundSource, amount decimal.Decimal) decimal.Decimal {
	fi, fp := f.Take(from, amount)
	moved := fi.Add(fp)
	f.Credit(to, moved)
	return moved
}

// Credit adds cash to a bucket.
func (f *Funds) Credit(to domain.FundSource, amount decimal.Decimal) {
	switch to {
	case domain.SourceInterest:
		f.Interest = f.Interest.Add(amount)
	case domain.SourcePrincipal:
		f.Principal = f.Principal.Add(amount)
	}
}
