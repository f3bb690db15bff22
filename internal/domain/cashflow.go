package domain

import "github.com/shopspring/decimal"

// CollateralCashflow is the aggregate pool cashflow for one period.
type CollateralCashflow struct {
	Period             int
	BeginningBalance   decimal.Decimal
	ScheduledPrincipal decimal.Decimal
	PrepaidPrincipal   decimal.Decimal
	DefaultedBalance   decimal.Decimal
	Recoveries         decimal.Decimal // principal recovered on defaults
	RealizedLoss       decimal.Decimal
	GrossInterest      decimal.Decimal // net of servicing; the deal's interest collections
	EndingBalance      decimal.Decimal
	WAC                float64
	NetWAC             float64
	SMM                float64
	MDR                float64
}

// PrincipalCollected is scheduled + prepaid principal + recoveries.
func (c CollateralCashflow) PrincipalCollected() decimal.Decimal {
	return c.ScheduledPrincipal.Add(c.PrepaidPrincipal).Add(c.Recoveries)
}

// TotalCash is all cash the pool delivers in the period.
func (c CollateralCashflow) TotalCash() decimal.Decimal {
	return c.PrincipalCollected().Add(c.GrossInterest)
}

// TrancheCashflow is the per-period, per-tranche record consumed by pricing.
type TrancheCashflow struct {
	RunID             string
	Period            int
	TrancheID         string
	BeginningBalance  decimal.Decimal
	InterestDue       decimal.Decimal
	InterestPaid      decimal.Decimal
	InterestShortfall decimal.Decimal // cumulative unpaid after this period
	PrincipalPaid     decimal.Decimal
	Accretion         decimal.Decimal // accrual added to balance
	Writedown         decimal.Decimal
	EndingBalance     decimal.Decimal
	Rate              float64
	Busted            bool // PAC outside its collar this period
}

// FeePayment records one fee step.
type FeePayment struct {
	Period int
	FeeID  string
	Due    decimal.Decimal
	Paid   decimal.Decimal
	Unpaid decimal.Decimal
}

// CashLedger is the period's conservation account.
// Available == Disbursed + EndingReserve must hold exactly.
type CashLedger struct {
	InterestCollected  decimal.Decimal
	PrincipalCollected decimal.Decimal
	BeginningReserve   decimal.Decimal
	Available          decimal.Decimal
	Disbursed          decimal.Decimal
	EndingReserve      decimal.Decimal
}

// Balanced reports whether the ledger conserves cash to the cent.
func (l CashLedger) Balanced() bool {
	return l.Available.Equal(l.Disbursed.Add(l.EndingReserve))
}

// SolverDiagnostics is the audit record of one period's fixed-point solve.
type SolverDiagnostics struct {
	RunID           string
	Period          int
	Iterations      int
	Converged       bool
	Overridden      bool    // static override was used for allocation
	AppliedRate     float64 // rate used for allocation
	DynamicRate     float64 // solved rate, computed even when overridden
	SeedRate        float64
	FinalDelta      float64
	SeniorFees      decimal.Decimal
	NetInterest     decimal.Decimal
	CappedBalance   decimal.Decimal
	DynamicResidual float64 // |applied - dynamic|
}

// PeriodResult is everything one period produced.
type PeriodResult struct {
	Period      int
	Collateral  CollateralCashflow
	Tranches    []TrancheCashflow
	Fees        []FeePayment
	Triggers    []TriggerSnapshot
	Diagnostics SolverDiagnostics
	Ledger      CashLedger
	State       *PeriodState
}

// PathResult is the full output of one scenario path.
type PathResult struct {
	RunID   string
	DealID  string
	PathID  string
	Periods []PeriodResult
}

// States returns the PeriodState chain, period 1 onwards.
func (r *PathResult) States() []*PeriodState {
	out := make([]*PeriodState, 0, len(r.Periods))
	for i := range r.Periods {
		out = append(out, r.Periods[i].State)
	}
	return out
}

// Cashflows flattens tranche records across periods.
func (r *PathResult) Cashflows() []*TrancheCashflow {
	var out []*TrancheCashflow
	for i := range r.Periods {
		for j := range r.Periods[i].Tranches {
			out = append(out, &r.Periods[i].Tranches[j])
		}
	}
	return out
}

// TriggerHistory flattens trigger snapshots across periods.
func (r *PathResult) TriggerHistory() []*TriggerSnapshot {
	var out []*TriggerSnapshot
	for i := range r.Periods {
		for j := range r.Periods[i].Triggers {
			out = append(out, &r.Periods[i].Triggers[j])
		}
	}
	return out
}

// Diagnostics flattens solver diagnostics across periods.
func (r *PathResult) Diagnostics() []*SolverDiagnostics {
	out := make([]*SolverDiagnostics, 0, len(r.Periods))
	for i := range r.Periods {
		out = append(out, &r.Periods[i].Diagnostics)
	}
	return out
}
