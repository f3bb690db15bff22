// Package deal loads deal definitions and compiles them into an index-addressed
// arena the period engines share read-only.
package deal

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// DefaultPeriodsPerYear applies when the definition leaves it unset.
const DefaultPeriodsPerYear = 12

// NoIndex marks an unused index reference in a compiled step.
const NoIndex = -1

// Gate is a compiled trigger gate.
type Gate struct {
	Triggers []int
	When     domain.GateCondition
}

// Step is a waterfall step with every reference resolved to an arena index.
type Step struct {
	Kind     domain.StepKind
	Fee      int
	Tranches []int
	Tranche  int
	Source   domain.FundSource
	To       domain.FundSource
	Mode     domain.PaymentMode
	Gate     *Gate
	Amount   decimal.Decimal
}

// Deal is a compiled, immutable deal. Safe for concurrent read by path workers.
type Deal struct {
	ID             string
	Name           string
	PeriodsPerYear int

	Tranches []domain.TrancheDefinition
	Fees     []domain.FeeDefinition
	Triggers []domain.TriggerDefinition
	Steps    []Step
	Loans    []domain.LoanState
	Reserve  decimal.Decimal

	overrides map[string]float64
	defaults  map[string]float64

	trancheIdx map[string]int
	feeIdx     map[string]int
	triggerIdx map[string]int
	groups     map[string][]int

	// seniors[i] lists the cash-paying tranches ahead of tranche i.
	seniors [][]int
	// notionalOf[i] lists tranches whose balances form IO tranche i's notional.
	notionalOf [][]int
	capped     []int
	bonds      []int
}

// TrancheIndex returns the arena index of a tranche id.
func (d *Deal) TrancheIndex(id string) (int, bool) {
	i, ok := d.trancheIdx[id]
	return i, ok
}

// FeeIndex returns the arena index of a fee id.
func (d *Deal) FeeIndex(id string) (int, bool) {
	i, ok := d.feeIdx[id]
	return i, ok
}

// TriggerIndex returns the arena index of a trigger id.
func (d *Deal) TriggerIndex(id string) (int, bool) {
	i, ok := d.triggerIdx[id]
	return i, ok
}

// Group returns the member indexes of a pro-rata group, in arena order.
func (d *Deal) Group(id string) []int {
	return d.groups[id]
}

// GroupIDs returns all pro-rata group ids, sorted.
func (d *Deal) GroupIDs() []string {
	ids := make([]string, 0, len(d.groups))
	for id := range d.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Override returns the static value for a variable, if the deal pins one.
func (d *Deal) Override(name string) (float64, bool) {
	v, ok := d.overrides[name]
	return v, ok
}

// Default returns the period-0 seed for a computed variable.
func (d *Deal) Default(name string) (float64, bool) {
	v, ok := d.defaults[name]
	return v, ok
}

// Defaults returns a copy of the period-0 variable seeds.
func (d *Deal) Defaults() map[string]float64 {
	return copyVars(d.defaults)
}

// Overrides returns a copy of the static variable overrides.
func (d *Deal) Overrides() map[string]float64 {
	return copyVars(d.overrides)
}

// IsNotional reports whether tranche i carries notional balance only.
func (d *Deal) IsNotional(i int) bool {
	t := d.Tranches[i]
	return t.Kind == domain.TrancheKindIO || t.Coupon == domain.CouponNotional
}

// IsAccrual reports whether tranche i is an accruing (Z) tranche.
func (d *Deal) IsAccrual(i int) bool {
	t := d.Tranches[i]
	return t.Kind == domain.TrancheKindAccrual || t.Coupon == domain.CouponAccruing
}

// PaysInterest reports whether tranche i can ever receive cash interest.
func (d *Deal) PaysInterest(i int) bool {
	t := d.Tranches[i]
	return t.Kind != domain.TrancheKindPO && t.Coupon != domain.CouponNone
}

// Seniors returns the cash-paying tranches senior to tranche i.
func (d *Deal) Seniors(i int) []int {
	return d.seniors[i]
}

// NotionalTranches returns the tranches whose balances form IO tranche i's
// notional, or nil when the IO uses an explicit schedule.
func (d *Deal) NotionalTranches(i int) []int {
	return d.notionalOf[i]
}

// CappedTranches returns the tranches whose coupon is limited by the
// dynamic net WAC.
func (d *Deal) CappedTranches() []int {
	return d.capped
}

// BondTranches returns every tranche carrying principal balance, excluding
// notional strips and the residual.
func (d *Deal) BondTranches() []int {
	return d.bonds
}

// IsCapped reports whether tranche i is limited by the dynamic net WAC.
func (d *Deal) IsCapped(i int) bool {
	t := d.Tranches[i]
	return t.Coupon == domain.CouponNetWAC || t.CapVariable == domain.VarNetWAC
}

// InitialTranches returns tranche states at deal inception.
func (d *Deal) InitialTranches() []domain.TrancheState {
	out := make([]domain.TrancheState, len(d.Tranches))
	for i, t := range d.Tranches {
		out[i] = domain.TrancheState{
			ID:        t.ID,
			Balance:   t.OriginalBalance,
			Accreting: d.IsAccrual(i),
		}
		if d.IsNotional(i) {
			out[i].Balance = decimal.Zero
		}
	}
	return out
}

// InitialFees returns fee states at deal inception.
func (d *Deal) InitialFees() []domain.FeeState {
	out := make([]domain.FeeState, len(d.Fees))
	for i, f := range d.Fees {
		out[i] = domain.FeeState{ID: f.ID}
	}
	return out
}
