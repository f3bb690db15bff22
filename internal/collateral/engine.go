// Package collateral projects one period of pool cashflow from loan-level
// state and the period's prepayment and default assumptions.
package collateral

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/money"
)

// PSA ramp: CPR rises 0.2% per month to 6% at month 30.
const (
	psaRampMonths = 30
	psaPeakCPR    = 0.06
)

// PSAToCPR converts a PSA speed to the annual CPR for a loan in its
// month-th month (1-based).
func PSAToCPR(psa float64, month int) float64 {
	if month < 1 {
		month = 1
	}
	ramp := math.Min(float64(month), psaRampMonths) / psaRampMonths
	cpr := ramp * psaPeakCPR * psa / 100
	return math.Min(cpr, 1)
}

// Engine produces collateral cashflow using a shared amortization cache.
type Engine struct {
	cache *amortization.Cache
}

// NewEngine creates a collateral engine. A nil cache gets a private one.
func NewEngine(cache *amortization.Cache) *Engine {
	if cache == nil {
		cache = amortization.NewCache(0)
	}
	return &Engine{cache: cache}
}

// Cache returns the engine's amortization cache.
func (e *Engine) Cache() *amortization.Cache {
	return e.cache
}

// Project runs one period for every loan. The input pool is not modified;
// the returned slice is the pool state after the period.
func (e *Engine) Project(pool []domain.LoanState, in domain.ScenarioInput) (domain.CollateralCashflow, []domain.LoanState, error) {
	if err := ValidateScenario(in); err != nil {
		return domain.CollateralCashflow{}, nil, err
	}
	if err := ValidatePool(pool); err != nil {
		return domain.CollateralCashflow{}, nil, err
	}

	cf := domain.CollateralCashflow{Period: in.Period}
	next := make([]domain.LoanState, len(pool))

	for i, loan := range pool {
		next[i] = loan
		cf.BeginningBalance = cf.BeginningBalance.Add(loan.Balance)
		if !loan.Active() {
			continue
		}

		lc := e.projectLoan(loan, in)
		cf.ScheduledPrincipal = cf.ScheduledPrincipal.Add(lc.scheduled)
		cf.PrepaidPrincipal = cf.PrepaidPrincipal.Add(lc.prepaid)
		cf.DefaultedBalance = cf.DefaultedBalance.Add(lc.defaulted)
		cf.RealizedLoss = cf.RealizedLoss.Add(lc.loss)
		cf.Recoveries = cf.Recoveries.Add(lc.defaulted.Sub(lc.loss))
		cf.GrossInterest = cf.GrossInterest.Add(lc.interest)

		next[i].Balance = lc.ending
		next[i].RemainingTerm = loan.RemainingTerm - 1
		next[i].Age = loan.Age + 1
	}

	cf.EndingBalance = cf.BeginningBalance.
		Sub(cf.ScheduledPrincipal).
		Sub(cf.PrepaidPrincipal).
		Sub(cf.DefaultedBalance)

	cf.WAC, cf.NetWAC = WeightedCoupons(next)
	if cf.EndingBalance.IsZero() {
		cf.WAC, cf.NetWAC = WeightedCoupons(pool)
	}

	begin := cf.BeginningBalance.InexactFloat64()
	if begin > 0 {
		cf.MDR = cf.DefaultedBalance.InexactFloat64() / begin
		afterSched := begin - cf.DefaultedBalance.InexactFloat64() - cf.ScheduledPrincipal.InexactFloat64()
		if afterSched > 0 {
			cf.SMM = cf.PrepaidPrincipal.InexactFloat64() / afterSched
		}
	}

	return cf, next, nil
}

type loanCashflow struct {
	scheduled decimal.Decimal
	prepaid   decimal.Decimal
	defaulted decimal.Decimal
	loss      decimal.Decimal
	interest  decimal.Decimal
	ending    decimal.Decimal
}

func (e *Engine) projectLoan(loan domain.LoanState, in domain.ScenarioInput) loanCashflow {
	cpr := in.CPR
	if in.PSA > 0 {
		cpr = PSAToCPR(in.PSA, loan.Age+1)
	}

	f := e.cache.Get(amortization.Key{
		NoteRate:      loan.NoteRate,
		ServicingRate: loan.ServicingRate,
		RemainingTerm: loan.RemainingTerm,
		CPR:           cpr,
		CDR:           in.CDR,
		Severity:      in.Severity,
	})

	b := loan.Balance.InexactFloat64()
	remaining := loan.Balance

	defaulted := money.Min(money.FromFloat(b*f.Default), remaining)
	loss := money.Min(money.FromFloat(b*f.Loss), defaulted)
	remaining = remaining.Sub(defaulted)

	scheduled := money.Min(money.FromFloat(b*f.ScheduledPrincipal), remaining)
	remaining = remaining.Sub(scheduled)

	prepaid := money.Min(money.FromFloat(b*f.Prepayment), remaining)
	remaining = remaining.Sub(prepaid)

	// Final payment retires whatever rounding left behind.
	if loan.RemainingTerm <= 1 {
		scheduled = scheduled.Add(remaining)
		remaining = decimal.Zero
	}

	return loanCashflow{
		scheduled: scheduled,
		prepaid:   prepaid,
		defaulted: defaulted,
		loss:      loss,
		interest:  money.FromFloat(b * f.NetInterest),
		ending:    remaining,
	}
}

// WeightedCoupons returns gross and net weighted-average coupons on current balances.
func WeightedCoupons(pool []domain.LoanState) (wac, netWAC float64) {
	var total, gross, net float64
	for _, l := range pool {
		b := l.Balance.InexactFloat64()
		if b <= 0 {
			continue
		}
		total += b
		gross += b * l.NoteRate
		net += b * (l.NoteRate - l.ServicingRate)
	}
	if total == 0 {
		return 0, 0
	}
	return gross / total, net / total
}

// Summarize builds the pool summary from a loan tape.
func Summarize(pool []domain.LoanState) domain.CollateralSummary {
	s := domain.CollateralSummary{}
	for _, l := range pool {
		s.Balance = s.Balance.Add(l.Balance)
		orig := l.OriginalBalance
		if orig.IsZero() {
			orig = l.Balance
		}
		s.OriginalBalance = s.OriginalBalance.Add(orig)
	}
	s.WAC, s.NetWAC = WeightedCoupons(pool)
	return s
}

// Advance rolls a pool summary forward by one period's cashflow.
func Advance(s domain.CollateralSummary, cf domain.CollateralCashflow) domain.CollateralSummary {
	s.Balance = cf.EndingBalance
	s.WAC = cf.WAC
	s.NetWAC = cf.NetWAC
	s.CumulativeLoss = s.CumulativeLoss.Add(cf.RealizedLoss)
	s.CumulativeDefaults = s.CumulativeDefaults.Add(cf.DefaultedBalance)
	s.CumulativePaydown = s.CumulativePaydown.
		Add(cf.ScheduledPrincipal).
		Add(cf.PrepaidPrincipal).
		Add(cf.DefaultedBalance)
	return s
}

// ValidatePool checks the fields the engine needs to be present and positive.
func ValidatePool(pool []domain.LoanState) error {
	if len(pool) == 0 {
		return fmt.Errorf("%w: empty loan pool", ErrInvalidCollateralState)
	}
	for _, l := range pool {
		if l.Balance.IsNegative() {
			return fmt.Errorf("%w: loan %s balance %s is negative", ErrInvalidCollateralState, l.ID, l.Balance)
		}
		if !l.Active() {
			continue
		}
		if math.IsNaN(l.NoteRate) || l.NoteRate <= 0 {
			return fmt.Errorf("%w: loan %s coupon %v must be positive", ErrInvalidCollateralState, l.ID, l.NoteRate)
		}
		if math.IsNaN(l.ServicingRate) || l.ServicingRate < 0 || l.ServicingRate >= l.NoteRate {
			return fmt.Errorf("%w: loan %s servicing rate %v out of range", ErrInvalidCollateralState, l.ID, l.ServicingRate)
		}
		if l.RemainingTerm <= 0 {
			return fmt.Errorf("%w: loan %s has balance but remaining term %d", ErrInvalidCollateralState, l.ID, l.RemainingTerm)
		}
	}
	return nil
}

// ValidateSeed checks a pool before period 1: at least one live loan.
func ValidateSeed(pool []domain.LoanState) error {
	if err := ValidatePool(pool); err != nil {
		return err
	}
	for _, l := range pool {
		if l.Active() {
			return nil
		}
	}
	return fmt.Errorf("%w: pool has no positive balance", ErrInvalidCollateralState)
}

// ValidateScenario checks rate inputs are fractions in [0, 1].
func ValidateScenario(in domain.ScenarioInput) error {
	checks := []struct {
		name  string
		value float64
	}{
		{"cpr", in.CPR},
		{"cdr", in.CDR},
		{"severity", in.Severity},
		{"delinquency", in.Delinquency},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || c.value < 0 || c.value > 1 {
			return fmt.Errorf("%w: period %d %s=%v", ErrInvalidScenario, in.Period, c.name, c.value)
		}
	}
	if math.IsNaN(in.PSA) || in.PSA < 0 {
		return fmt.Errorf("%w: period %d psa=%v", ErrInvalidScenario, in.Period, in.PSA)
	}
	return nil
}
