package domain

import "github.com/shopspring/decimal"

// Computed variable names stored in PeriodState.Variables.
const (
	VarNetWAC         = "net_wac"         // rate applied to capped tranches (override or solved)
	VarNetWACDynamic  = "net_wac_dynamic" // solved value, kept for audit even when overridden
	VarCollateralWAC  = "collateral_wac"
	VarOCRatio        = "oc_ratio"
	VarICRatio        = "ic_ratio"
	VarDelinquency    = "delinquency"
	VarCumulativeLoss = "cumulative_loss"
)

// LoanState is the mutable state of one loan (or a pool rep line).
type LoanState struct {
	ID              string          `yaml:"id"`
	Balance         decimal.Decimal `yaml:"balance"`
	OriginalBalance decimal.Decimal `yaml:"original_balance"`
	NoteRate        float64         `yaml:"note_rate"`      // gross annual coupon
	ServicingRate   float64         `yaml:"servicing_rate"` // stripped before interest reaches the deal
	RemainingTerm   int             `yaml:"remaining_term"`
	Age             int             `yaml:"age"`
}

// Active reports whether the loan still carries balance.
func (l LoanState) Active() bool {
	return l.Balance.IsPositive()
}

// CollateralSummary holds pool-level balances.
type CollateralSummary struct {
	Balance            decimal.Decimal
	OriginalBalance    decimal.Decimal
	WAC                float64 // gross weighted-average coupon on Balance
	NetWAC             float64 // weighted-average coupon net of servicing
	CumulativeLoss     decimal.Decimal
	CumulativePaydown  decimal.Decimal // scheduled + prepaid + defaulted principal since inception
	CumulativeDefaults decimal.Decimal
}

// TrancheState is the per-tranche balance record inside PeriodState.
// Indexed in the same order as the compiled deal's tranches.
type TrancheState struct {
	ID                string
	Balance           decimal.Decimal
	InterestShortfall decimal.Decimal // accrued but unpaid interest carried forward
	Writedown         decimal.Decimal // cumulative principal writedowns
	Accreting         bool            // accrual tranche still accreting
}

// FeeState tracks unpaid fee amounts carried forward.
type FeeState struct {
	ID     string
	Unpaid decimal.Decimal
}

// PeriodState is the full simulation state at the close of a period.
// PeriodState[0] is seeded from the deal; PeriodState[n] derives from
// PeriodState[n-1] and period n's scenario input.
type PeriodState struct {
	Period     int
	Collateral CollateralSummary
	Loans      []LoanState
	Variables  map[string]float64
	Tranches   []TrancheState
	Fees       []FeeState
	Reserve    decimal.Decimal
	Triggers   []TriggerSnapshot // read-only view; owned by the trigger engine
}

// Clone returns a deep copy so the next period can mutate freely.
func (s *PeriodState) Clone() *PeriodState {
	out := *s
	out.Loans = append([]LoanState(nil), s.Loans...)
	out.Tranches = append([]TrancheState(nil), s.Tranches...)
	out.Fees = append([]FeeState(nil), s.Fees...)
	out.Triggers = append([]TriggerSnapshot(nil), s.Triggers...)
	out.Variables = make(map[string]float64, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	return &out
}
