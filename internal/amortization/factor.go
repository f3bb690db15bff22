// Package amortization computes per-unit-balance loan cashflow factors and
// memoizes them in a bounded, concurrency-safe LRU cache.
package amortization

import "math"

// MonthsPerYear is the collateral payment frequency.
const MonthsPerYear = 12

// Key identifies one amortization computation.
// All inputs are annual rates in decimal form.
type Key struct {
	NoteRate      float64
	ServicingRate float64
	RemainingTerm int
	CPR           float64
	CDR           float64
	Severity      float64
}

// Factor is a one-period cashflow decomposition per unit of beginning balance.
type Factor struct {
	SMM                float64
	MDR                float64
	Payment            float64 // level payment per unit of performing balance
	Default            float64
	Loss               float64
	Recovery           float64
	Interest           float64 // gross, on performing balance
	NetInterest        float64 // net of servicing
	ScheduledPrincipal float64
	Prepayment         float64
}

// PrincipalPaydown is the fraction of balance leaving the pool.
func (f Factor) PrincipalPaydown() float64 {
	return f.ScheduledPrincipal + f.Prepayment + f.Default
}

// CPRToSMM converts an annual prepayment rate to single monthly mortality.
func CPRToSMM(cpr float64) float64 {
	if cpr <= 0 {
		return 0
	}
	if cpr >= 1 {
		return 1
	}
	return 1 - math.Pow(1-cpr, 1.0/MonthsPerYear)
}

// CDRToMDR converts an annual default rate to a monthly default rate.
func CDRToMDR(cdr float64) float64 {
	return CPRToSMM(cdr)
}

// PaymentFactor is the level-payment annuity factor for a monthly rate
// over n remaining payments.
func PaymentFactor(monthlyRate float64, n int) float64 {
	if n <= 1 {
		return 1 + monthlyRate
	}
	if monthlyRate == 0 {
		return 1 / float64(n)
	}
	return monthlyRate / (1 - math.Pow(1+monthlyRate, -float64(n)))
}

// Compute derives the factor for a key. It is a pure function of the key.
// Order: defaults leave first, then scheduled amortization on the
// performing balance, then voluntary prepayment on what remains.
func Compute(k Key) Factor {
	f := Factor{
		SMM: CPRToSMM(k.CPR),
		MDR: CDRToMDR(k.CDR),
	}

	performing := 1 - f.MDR
	f.Default = f.MDR
	f.Loss = f.MDR * k.Severity
	f.Recovery = f.Default - f.Loss

	r := k.NoteRate / MonthsPerYear
	f.Payment = PaymentFactor(r, k.RemainingTerm)
	f.Interest = performing * r
	f.NetInterest = performing * (k.NoteRate - k.ServicingRate) / MonthsPerYear

	sched := f.Payment - r
	if k.RemainingTerm <= 1 || sched > 1 {
		sched = 1
	}
	if sched < 0 {
		sched = 0
	}
	f.ScheduledPrincipal = performing * sched
	f.Prepayment = (performing - f.ScheduledPrincipal) * f.SMM

	return f
}
