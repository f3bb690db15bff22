package domain

import "github.com/shopspring/decimal"

// DealDefinition is the immutable description of a deal.
// Loaded once and read-only for the whole simulation run.
type DealDefinition struct {
	ID             string               `yaml:"id"`
	Name           string               `yaml:"name"`
	PeriodsPerYear int                  `yaml:"periods_per_year"` // default 12
	Collateral     CollateralDefinition `yaml:"collateral"`
	Tranches       []TrancheDefinition  `yaml:"tranches"`
	Fees           []FeeDefinition      `yaml:"fees"`
	Triggers       []TriggerDefinition  `yaml:"triggers"`
	Steps          []WaterfallStep      `yaml:"waterfall"`
	Reserve        ReserveDefinition    `yaml:"reserve"`
	Variables      map[string]float64   `yaml:"variables"` // static overrides, take precedence over computed values
	Defaults       map[string]float64   `yaml:"defaults"`  // period-0 seeds for computed variables
}

// TrancheKind classifies a tranche's role in the structure.
type TrancheKind string

// Tranche kind constants.
const (
	TrancheKindStandard TrancheKind = "STANDARD"
	TrancheKindPAC      TrancheKind = "PAC"
	TrancheKindSupport  TrancheKind = "SUPPORT"
	TrancheKindAccrual  TrancheKind = "ACCRUAL" // Z bond
	TrancheKindIO       TrancheKind = "IO"
	TrancheKindPO       TrancheKind = "PO"
	TrancheKindResidual TrancheKind = "RESIDUAL"
)

// CouponType determines how a tranche's period rate is computed.
type CouponType string

// Coupon type constants.
const (
	CouponFixed    CouponType = "FIXED"
	CouponFloating CouponType = "FLOATING" // index + margin
	CouponNetWAC   CouponType = "NET_WAC"  // dynamically capped rate
	CouponAccruing CouponType = "ACCRUING"
	CouponNotional CouponType = "NOTIONAL" // interest on a notional schedule, no principal
	CouponNone     CouponType = "NONE"
)

// TrancheDefinition describes one bond class.
type TrancheDefinition struct {
	ID              string          `yaml:"id"`
	Kind            TrancheKind     `yaml:"kind"`
	OriginalBalance decimal.Decimal `yaml:"original_balance"`
	Coupon          CouponType      `yaml:"coupon"`
	FixedRate       float64         `yaml:"fixed_rate"` // annual, decimal (0.05 = 5%)
	Index           string          `yaml:"index"`      // FLOATING index name
	Margin          float64         `yaml:"margin"`
	RateCap         *float64        `yaml:"rate_cap"`
	RateFloor       *float64        `yaml:"rate_floor"`
	CapVariable     string          `yaml:"cap_variable"` // e.g. "net_wac"
	Sequence        int             `yaml:"sequence"`
	ProRataGroup    string          `yaml:"pro_rata_group"`

	Schedule *ScheduleDefinition `yaml:"schedule"` // PAC only
	Notional *NotionalDefinition `yaml:"notional"` // IO only
}

// ScheduleDefinition configures a schedule/collar-protected tranche.
type ScheduleDefinition struct {
	LowerPSA float64 `yaml:"lower_psa"`
	UpperPSA float64 `yaml:"upper_psa"`
	Support  string  `yaml:"support"`  // tranche absorbing surplus and shortfall
	Fallback bool    `yaml:"fallback"` // busted PAC takes remaining principal after support
}

// NotionalDefinition configures an interest-only strip.
// Either an explicit per-period schedule or a set of tranches whose
// balances form the notional.
type NotionalDefinition struct {
	Schedule []decimal.Decimal `yaml:"schedule"`
	Tranches []string          `yaml:"tranches"`
}

// FeePriority places a fee relative to bond payments.
type FeePriority string

// Fee priority constants.
const (
	FeeSenior      FeePriority = "SENIOR"
	FeeSubordinate FeePriority = "SUBORDINATE"
)

// FeeDefinition describes a deal fee.
type FeeDefinition struct {
	ID       string      `yaml:"id"`
	Priority FeePriority `yaml:"priority"`
	Formula  FeeFormula  `yaml:"formula"`
}

// FeeFormulaKind selects how a fee amount is computed.
type FeeFormulaKind string

// Fee formula kinds.
const (
	FeeFormulaFixed FeeFormulaKind = "FIXED" // amount per period
	FeeFormulaPct   FeeFormulaKind = "PCT"   // annual rate on a base
	FeeFormulaMax   FeeFormulaKind = "MAX"
	FeeFormulaMin   FeeFormulaKind = "MIN"
)

// FeeBase is the balance a PCT fee is computed on.
type FeeBase string

// Fee base constants.
const (
	FeeBaseCollateral   FeeBase = "COLLATERAL"    // beginning collateral balance
	FeeBaseBonds        FeeBase = "BONDS"         // bond balance incl. current accretion
	FeeBaseTranche      FeeBase = "TRANCHE"       // a single tranche's balance
	FeeBaseBondInterest FeeBase = "BOND_INTEREST" // capped bond interest due (per-period amount)
)

// FeeFormula is a (possibly nested) fee expression.
type FeeFormula struct {
	Kind    FeeFormulaKind  `yaml:"kind"`
	Amount  decimal.Decimal `yaml:"amount"`
	Rate    float64         `yaml:"rate"`
	Base    FeeBase         `yaml:"base"`
	Tranche string          `yaml:"tranche"`
	Of      []FeeFormula    `yaml:"of"`
}

// TriggerMetric names the period quantity a trigger tests.
type TriggerMetric string

// Trigger metric constants.
const (
	MetricDelinquency    TriggerMetric = "DELINQUENCY"     // scenario delinquency fraction
	MetricCumulativeLoss TriggerMetric = "CUMULATIVE_LOSS" // cumulative loss / original collateral
	MetricOCRatio        TriggerMetric = "OC_RATIO"        // collateral balance / bond balance
	MetricICRatio        TriggerMetric = "IC_RATIO"        // net interest / bond interest due
	MetricVariable       TriggerMetric = "VARIABLE"        // named computed variable
)

// Comparator for trigger predicates. The predicate passes when
// metric <comparator> threshold holds.
type Comparator string

// Comparator constants.
const (
	CompareLT Comparator = "LT"
	CompareLE Comparator = "LE"
	CompareGT Comparator = "GT"
	CompareGE Comparator = "GE"
)

// TriggerDefinition describes a performance test.
type TriggerDefinition struct {
	ID                string        `yaml:"id"`
	Metric            TriggerMetric `yaml:"metric"`
	Variable          string        `yaml:"variable"` // VARIABLE metric only
	Comparator        Comparator    `yaml:"comparator"`
	Threshold         float64       `yaml:"threshold"`
	ThresholdSchedule []float64     `yaml:"threshold_schedule"` // step-up by period, carried forward
	CureThreshold     int           `yaml:"cure_threshold"`
}

// StepKind enumerates waterfall step kinds.
type StepKind string

// Waterfall step kinds.
const (
	StepPayFee         StepKind = "PAY_FEE"
	StepPayInterest    StepKind = "PAY_INTEREST"
	StepPayPrincipal   StepKind = "PAY_PRINCIPAL"
	StepPayScheduled   StepKind = "PAY_SCHEDULED"
	StepAccrue         StepKind = "ACCRUE"
	StepAllocateLoss   StepKind = "ALLOCATE_LOSS"
	StepTransfer       StepKind = "TRANSFER"
	StepDrawReserve    StepKind = "DRAW_RESERVE"
	StepDepositReserve StepKind = "DEPOSIT_RESERVE"
	StepPayResidual    StepKind = "PAY_RESIDUAL"
)

// FundSource names a cash bucket.
type FundSource string

// Fund sources.
const (
	SourceInterest  FundSource = "INTEREST"
	SourcePrincipal FundSource = "PRINCIPAL"
	SourceAny       FundSource = "ANY" // interest first, then principal
)

// PaymentMode selects how a multi-tranche step splits cash.
type PaymentMode string

// Payment modes.
const (
	ModeSequential PaymentMode = "SEQUENTIAL"
	ModeProRata    PaymentMode = "PRO_RATA"
)

// GateCondition selects when a gated step runs.
type GateCondition string

// Gate conditions.
const (
	GateWhenPassing  GateCondition = "PASSING"  // all listed triggers passing
	GateWhenBreached GateCondition = "BREACHED" // any listed trigger breached
)

// Gate makes a step conditional on trigger status.
type Gate struct {
	Triggers []string      `yaml:"triggers"`
	When     GateCondition `yaml:"when"`
}

// WaterfallStep is one ordered allocation rule.
type WaterfallStep struct {
	Kind     StepKind        `yaml:"kind"`
	Fee      string          `yaml:"fee"`
	Tranches []string        `yaml:"tranches"`
	Group    string          `yaml:"group"`   // pro-rata group id, alternative to Tranches
	Tranche  string          `yaml:"tranche"` // PAY_SCHEDULED, PAY_RESIDUAL
	Source   FundSource      `yaml:"source"`
	Mode     PaymentMode     `yaml:"mode"`
	Gate     *Gate           `yaml:"gate"`
	Amount   decimal.Decimal `yaml:"amount"` // DEPOSIT_RESERVE target
	To       FundSource      `yaml:"to"`     // TRANSFER destination
}

// ReserveDefinition seeds the reserve account.
type ReserveDefinition struct {
	Initial decimal.Decimal `yaml:"initial"`
}

// CollateralDefinition holds the initial loan tape (or a rep line).
type CollateralDefinition struct {
	Loans []LoanState `yaml:"loans"`
}
