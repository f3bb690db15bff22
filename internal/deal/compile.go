package deal

import (
	"fmt"
	"sort"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// Compile validates a definition for internal consistency and builds the arena.
// Schema correctness is the loader's concern; Compile checks that every
// reference resolves and that the structure can be simulated.
func Compile(def *domain.DealDefinition) (*Deal, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrInvalidDeal)
	}

	d := &Deal{
		ID:             def.ID,
		Name:           def.Name,
		PeriodsPerYear: def.PeriodsPerYear,
		Tranches:       append([]domain.TrancheDefinition(nil), def.Tranches...),
		Fees:           append([]domain.FeeDefinition(nil), def.Fees...),
		Triggers:       append([]domain.TriggerDefinition(nil), def.Triggers...),
		Loans:          append([]domain.LoanState(nil), def.Collateral.Loans...),
		Reserve:        def.Reserve.Initial,
		overrides:      copyVars(def.Variables),
		defaults:       copyVars(def.Defaults),
		trancheIdx:     make(map[string]int, len(def.Tranches)),
		feeIdx:         make(map[string]int, len(def.Fees)),
		triggerIdx:     make(map[string]int, len(def.Triggers)),
		groups:         make(map[string][]int),
	}
	if d.PeriodsPerYear == 0 {
		d.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if d.PeriodsPerYear < 0 {
		return nil, fmt.Errorf("%w: periods_per_year %d", ErrInvalidDeal, d.PeriodsPerYear)
	}
	if d.Reserve.IsNegative() {
		return nil, fmt.Errorf("%w: negative initial reserve", ErrInvalidDeal)
	}
	if len(d.Tranches) == 0 {
		return nil, fmt.Errorf("%w: no tranches", ErrInvalidDeal)
	}

	if err := d.indexTranches(); err != nil {
		return nil, err
	}
	if err := d.indexFees(); err != nil {
		return nil, err
	}
	if err := d.indexTriggers(); err != nil {
		return nil, err
	}
	if err := d.compileSteps(def.Steps); err != nil {
		return nil, err
	}
	d.buildSeniority()

	return d, nil
}

func copyVars(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *Deal) indexTranches() error {
	for i, t := range d.Tranches {
		if t.ID == "" {
			return fmt.Errorf("%w: tranche %d has no id", ErrInvalidDeal, i)
		}
		if _, dup := d.trancheIdx[t.ID]; dup {
			return fmt.Errorf("%w: duplicate tranche %q", ErrInvalidDeal, t.ID)
		}
		d.trancheIdx[t.ID] = i
		if t.ProRataGroup != "" {
			d.groups[t.ProRataGroup] = append(d.groups[t.ProRataGroup], i)
		}
	}

	d.notionalOf = make([][]int, len(d.Tranches))
	for i, t := range d.Tranches {
		if err := d.validateTranche(i, t); err != nil {
			return err
		}
		if d.IsCapped(i) {
			d.capped = append(d.capped, i)
		}
	}
	for i := range d.Tranches {
		if !d.IsNotional(i) && d.Tranches[i].Kind != domain.TrancheKindResidual {
			d.bonds = append(d.bonds, i)
		}
	}
	return nil
}

func (d *Deal) validateTranche(i int, t domain.TrancheDefinition) error {
	if t.OriginalBalance.IsNegative() {
		return fmt.Errorf("%w: tranche %s has negative balance", ErrInvalidDeal, t.ID)
	}
	switch t.Kind {
	case domain.TrancheKindStandard, domain.TrancheKindPAC, domain.TrancheKindSupport,
		domain.TrancheKindAccrual, domain.TrancheKindIO, domain.TrancheKindPO, domain.TrancheKindResidual:
	default:
		return fmt.Errorf("%w: tranche %s has unknown kind %q", ErrInvalidDeal, t.ID, t.Kind)
	}
	switch t.Coupon {
	case domain.CouponFixed, domain.CouponNetWAC, domain.CouponAccruing, domain.CouponNotional, domain.CouponNone:
	case domain.CouponFloating:
		if t.Index == "" {
			return fmt.Errorf("%w: floating tranche %s has no index", ErrInvalidDeal, t.ID)
		}
	default:
		return fmt.Errorf("%w: tranche %s has unknown coupon %q", ErrInvalidDeal, t.ID, t.Coupon)
	}
	if t.RateCap != nil && t.RateFloor != nil && *t.RateFloor > *t.RateCap {
		return fmt.Errorf("%w: tranche %s floor above cap", ErrInvalidDeal, t.ID)
	}
	if t.CapVariable != "" && t.CapVariable != domain.VarNetWAC {
		if _, ok := d.overridesOrDefaults(t.CapVariable); !ok {
			return fmt.Errorf("%w: tranche %s caps on unknown variable %q", ErrInvalidWaterfallReference, t.ID, t.CapVariable)
		}
	}

	if t.Kind == domain.TrancheKindPAC {
		if err := d.validateSchedule(t); err != nil {
			return err
		}
	} else if t.Schedule != nil {
		return fmt.Errorf("%w: schedule on non-PAC tranche %s", ErrInvalidDeal, t.ID)
	}

	if d.IsNotional(i) {
		return d.validateNotional(i, t)
	}
	if t.Notional != nil {
		return fmt.Errorf("%w: notional on non-IO tranche %s", ErrInvalidDeal, t.ID)
	}
	return nil
}

func (d *Deal) overridesOrDefaults(name string) (float64, bool) {
	if v, ok := d.overrides[name]; ok {
		return v, true
	}
	v, ok := d.defaults[name]
	return v, ok
}

func (d *Deal) validateSchedule(t domain.TrancheDefinition) error {
	s := t.Schedule
	if s == nil {
		return fmt.Errorf("%w: PAC %s has no schedule", ErrInvalidDeal, t.ID)
	}
	if s.LowerPSA <= 0 || s.UpperPSA <= s.LowerPSA {
		return fmt.Errorf("%w: PAC %s band %v-%v PSA", ErrInvalidDeal, t.ID, s.LowerPSA, s.UpperPSA)
	}
	if s.Support == "" {
		return fmt.Errorf("%w: PAC %s has no support tranche", ErrInvalidDeal, t.ID)
	}
	j, ok := d.trancheIdx[s.Support]
	if !ok {
		return fmt.Errorf("%w: PAC %s support %q", ErrInvalidWaterfallReference, t.ID, s.Support)
	}
	if d.IsNotional(j) || s.Support == t.ID {
		return fmt.Errorf("%w: PAC %s support %q cannot absorb principal", ErrInvalidDeal, t.ID, s.Support)
	}
	return nil
}

func (d *Deal) validateNotional(i int, t domain.TrancheDefinition) error {
	n := t.Notional
	if n == nil || (len(n.Schedule) == 0 && len(n.Tranches) == 0) {
		return fmt.Errorf("%w: IO %s has no notional", ErrInvalidDeal, t.ID)
	}
	for p := 1; p < len(n.Schedule); p++ {
		if n.Schedule[p].GreaterThan(n.Schedule[p-1]) {
			return fmt.Errorf("%w: IO %s notional increases at period %d", ErrInvalidDeal, t.ID, p+1)
		}
	}
	for _, id := range n.Tranches {
		j, ok := d.trancheIdx[id]
		if !ok {
			return fmt.Errorf("%w: IO %s notional tranche %q", ErrInvalidWaterfallReference, t.ID, id)
		}
		if d.IsNotional(j) {
			return fmt.Errorf("%w: IO %s notional references IO %s", ErrInvalidDeal, t.ID, id)
		}
		d.notionalOf[i] = append(d.notionalOf[i], j)
	}
	return nil
}

func (d *Deal) indexFees() error {
	for _, f := range d.Fees {
		if f.ID == "" {
			return fmt.Errorf("%w: fee has no id", ErrInvalidDeal)
		}
		if _, dup := d.feeIdx[f.ID]; dup {
			return fmt.Errorf("%w: duplicate fee %q", ErrInvalidDeal, f.ID)
		}
		switch f.Priority {
		case domain.FeeSenior, domain.FeeSubordinate:
		default:
			return fmt.Errorf("%w: fee %s has unknown priority %q", ErrInvalidDeal, f.ID, f.Priority)
		}
		if err := d.validateFormula(f.ID, f.Formula); err != nil {
			return err
		}
		d.feeIdx[f.ID] = len(d.feeIdx)
	}
	return nil
}

func (d *Deal) validateFormula(feeID string, f domain.FeeFormula) error {
	switch f.Kind {
	case domain.FeeFormulaFixed:
		if f.Amount.IsNegative() {
			return fmt.Errorf("%w: fee %s negative amount", ErrInvalidDeal, feeID)
		}
	case domain.FeeFormulaPct:
		if f.Rate < 0 {
			return fmt.Errorf("%w: fee %s negative rate", ErrInvalidDeal, feeID)
		}
		switch f.Base {
		case domain.FeeBaseCollateral, domain.FeeBaseBonds, domain.FeeBaseBondInterest:
		case domain.FeeBaseTranche:
			if _, ok := d.trancheIdx[f.Tranche]; !ok {
				return fmt.Errorf("%w: fee %s base tranche %q", ErrInvalidWaterfallReference, feeID, f.Tranche)
			}
		default:
			return fmt.Errorf("%w: fee %s has unknown base %q", ErrInvalidDeal, feeID, f.Base)
		}
	case domain.FeeFormulaMax, domain.FeeFormulaMin:
		if len(f.Of) == 0 {
			return fmt.Errorf("%w: fee %s %s has no operands", ErrInvalidDeal, feeID, f.Kind)
		}
		for _, sub := range f.Of {
			if err := d.validateFormula(feeID, sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: fee %s has unknown formula %q", ErrInvalidDeal, feeID, f.Kind)
	}
	return nil
}

func (d *Deal) indexTriggers() error {
	for _, t := range d.Triggers {
		if t.ID == "" {
			return fmt.Errorf("%w: trigger has no id", ErrInvalidTriggerConfig)
		}
		if _, dup := d.triggerIdx[t.ID]; dup {
			return fmt.Errorf("%w: duplicate trigger %q", ErrInvalidDeal, t.ID)
		}
		if err := d.validateTrigger(t); err != nil {
			return err
		}
		d.triggerIdx[t.ID] = len(d.triggerIdx)
	}
	return nil
}

// computedVars are the variables the runner publishes every period.
var computedVars = map[string]bool{
	domain.VarNetWAC:         true,
	domain.VarNetWACDynamic:  true,
	domain.VarCollateralWAC:  true,
	domain.VarOCRatio:        true,
	domain.VarICRatio:        true,
	domain.VarDelinquency:    true,
	domain.VarCumulativeLoss: true,
}

func (d *Deal) validateTrigger(t domain.TriggerDefinition) error {
	switch t.Metric {
	case domain.MetricDelinquency, domain.MetricCumulativeLoss, domain.MetricOCRatio, domain.MetricICRatio:
	case domain.MetricVariable:
		if t.Variable == "" {
			return fmt.Errorf("%w: trigger %s VARIABLE metric needs a variable", ErrInvalidTriggerConfig, t.ID)
		}
		if !d.knownVariable(t.Variable) {
			return fmt.Errorf("%w: trigger %s watches unknown variable %q", ErrInvalidTriggerConfig, t.ID, t.Variable)
		}
	default:
		return fmt.Errorf("%w: trigger %s has unknown metric %q", ErrInvalidTriggerConfig, t.ID, t.Metric)
	}
	switch t.Comparator {
	case domain.CompareLT, domain.CompareLE, domain.CompareGT, domain.CompareGE:
	default:
		return fmt.Errorf("%w: trigger %s has unknown comparator %q", ErrInvalidTriggerConfig, t.ID, t.Comparator)
	}
	if t.CureThreshold < 1 {
		return fmt.Errorf("%w: trigger %s cure threshold %d", ErrInvalidTriggerConfig, t.ID, t.CureThreshold)
	}
	return nil
}

// knownVariable reports whether name is computed by the runner or declared
// in the deal's variables or defaults.
func (d *Deal) knownVariable(name string) bool {
	if computedVars[name] {
		return true
	}
	if _, ok := d.overrides[name]; ok {
		return true
	}
	_, ok := d.defaults[name]
	return ok
}

func (d *Deal) compileSteps(steps []domain.WaterfallStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: empty waterfall", ErrInvalidDeal)
	}
	bondPaid := false
	d.Steps = make([]Step, 0, len(steps))
	for n, s := range steps {
		cs, err := d.compileStep(n, s)
		if err != nil {
			return err
		}
		switch cs.Kind {
		case domain.StepPayInterest, domain.StepPayPrincipal, domain.StepPayScheduled:
			bondPaid = true
		case domain.StepPayFee:
			if bondPaid && d.Fees[cs.Fee].Priority == domain.FeeSenior {
				return fmt.Errorf("%w: step %d pays senior fee %s after a bond payment", ErrInvalidDeal, n+1, d.Fees[cs.Fee].ID)
			}
		}
		d.Steps = append(d.Steps, cs)
	}
	return nil
}

func (d *Deal) compileStep(n int, s domain.WaterfallStep) (Step, error) {
	cs := Step{
		Kind:    s.Kind,
		Fee:     NoIndex,
		Tranche: NoIndex,
		Source:  s.Source,
		To:      s.To,
		Mode:    s.Mode,
		Amount:  s.Amount,
	}
	where := fmt.Sprintf("step %d (%s)", n+1, s.Kind)

	tranches, err := d.resolveTranches(where, s)
	if err != nil {
		return Step{}, err
	}
	cs.Tranches = tranches
	if s.Tranche != "" {
		j, ok := d.trancheIdx[s.Tranche]
		if !ok {
			return Step{}, fmt.Errorf("%w: %s tranche %q", ErrInvalidWaterfallReference, where, s.Tranche)
		}
		cs.Tranche = j
	}
	if s.Group != "" && cs.Mode == "" {
		cs.Mode = domain.ModeProRata
	}
	if cs.Mode == "" {
		cs.Mode = domain.ModeSequential
	}
	if cs.Mode != domain.ModeSequential && cs.Mode != domain.ModeProRata {
		return Step{}, fmt.Errorf("%w: %s unknown mode %q", ErrInvalidDeal, where, cs.Mode)
	}

	if s.Gate != nil {
		g, err := d.compileGate(where, s.Gate)
		if err != nil {
			return Step{}, err
		}
		cs.Gate = g
	}

	switch s.Kind {
	case domain.StepPayFee:
		j, ok := d.feeIdx[s.Fee]
		if !ok {
			return Step{}, fmt.Errorf("%w: %s fee %q", ErrInvalidWaterfallReference, where, s.Fee)
		}
		cs.Fee = j
		cs.Source = defaultSource(cs.Source, domain.SourceInterest)

	case domain.StepPayInterest:
		if len(cs.Tranches) == 0 {
			return Step{}, fmt.Errorf("%w: %s names no tranches", ErrInvalidDeal, where)
		}
		for _, j := range cs.Tranches {
			if d.Tranches[j].Kind == domain.TrancheKindPO {
				return Step{}, fmt.Errorf("%w: %s pays interest to PO %s", ErrInvalidDeal, where, d.Tranches[j].ID)
			}
		}
		cs.Source = defaultSource(cs.Source, domain.SourceInterest)

	case domain.StepPayPrincipal:
		if len(cs.Tranches) == 0 {
			return Step{}, fmt.Errorf("%w: %s names no tranches", ErrInvalidDeal, where)
		}
		if err := d.rejectNotional(where, cs.Tranches); err != nil {
			return Step{}, err
		}
		cs.Source = defaultSource(cs.Source, domain.SourcePrincipal)

	case domain.StepPayScheduled:
		if cs.Tranche == NoIndex || d.Tranches[cs.Tranche].Kind != domain.TrancheKindPAC {
			return Step{}, fmt.Errorf("%w: %s needs a PAC tranche", ErrInvalidDeal, where)
		}
		cs.Source = defaultSource(cs.Source, domain.SourcePrincipal)

	case domain.StepAccrue:
		if len(cs.Tranches) == 0 {
			return Step{}, fmt.Errorf("%w: %s names no tranches", ErrInvalidDeal, where)
		}
		for _, j := range cs.Tranches {
			if !d.IsAccrual(j) {
				return Step{}, fmt.Errorf("%w: %s accrues non-accrual tranche %s", ErrInvalidDeal, where, d.Tranches[j].ID)
			}
		}

	case domain.StepAllocateLoss:
		if len(cs.Tranches) == 0 {
			return Step{}, fmt.Errorf("%w: %s names no tranches", ErrInvalidDeal, where)
		}
		if err := d.rejectNotional(where, cs.Tranches); err != nil {
			return Step{}, err
		}

	case domain.StepTransfer:
		cs.Source = defaultSource(cs.Source, domain.SourceInterest)
		cs.To = defaultSource(cs.To, domain.SourcePrincipal)
		if cs.Source == cs.To || cs.Source == domain.SourceAny || cs.To == domain.SourceAny {
			return Step{}, fmt.Errorf("%w: %s transfer %s to %s", ErrInvalidDeal, where, cs.Source, cs.To)
		}

	case domain.StepDrawReserve:
		cs.To = defaultSource(cs.To, domain.SourceInterest)
		if cs.To == domain.SourceAny {
			return Step{}, fmt.Errorf("%w: %s draws into ANY", ErrInvalidDeal, where)
		}

	case domain.StepDepositReserve:
		if cs.Amount.IsNegative() {
			return Step{}, fmt.Errorf("%w: %s negative reserve target", ErrInvalidDeal, where)
		}
		cs.Source = defaultSource(cs.Source, domain.SourceInterest)

	case domain.StepPayResidual:
		if cs.Tranche == NoIndex {
			return Step{}, fmt.Errorf("%w: %s needs a tranche", ErrInvalidDeal, where)
		}
		cs.Source = defaultSource(cs.Source, domain.SourceAny)

	default:
		return Step{}, fmt.Errorf("%w: step %d unknown kind %q", ErrInvalidDeal, n+1, s.Kind)
	}

	if (cs.Source != "" && !validSource(cs.Source)) || (cs.To != "" && !validSource(cs.To)) {
		return Step{}, fmt.Errorf("%w: %s unknown fund source", ErrInvalidDeal, where)
	}
	return cs, nil
}

func (d *Deal) resolveTranches(where string, s domain.WaterfallStep) ([]int, error) {
	if s.Group != "" {
		if len(s.Tranches) > 0 {
			return nil, fmt.Errorf("%w: %s names both tranches and a group", ErrInvalidDeal, where)
		}
		members, ok := d.groups[s.Group]
		if !ok {
			return nil, fmt.Errorf("%w: %s group %q", ErrInvalidWaterfallReference, where, s.Group)
		}
		return append([]int(nil), members...), nil
	}
	out := make([]int, 0, len(s.Tranches))
	for _, id := range s.Tranches {
		j, ok := d.trancheIdx[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s tranche %q", ErrInvalidWaterfallReference, where, id)
		}
		out = append(out, j)
	}
	return out, nil
}

func (d *Deal) compileGate(where string, g *domain.Gate) (*Gate, error) {
	if len(g.Triggers) == 0 {
		return nil, fmt.Errorf("%w: %s gate names no triggers", ErrInvalidTriggerConfig, where)
	}
	when := g.When
	if when == "" {
		when = domain.GateWhenPassing
	}
	if when != domain.GateWhenPassing && when != domain.GateWhenBreached {
		return nil, fmt.Errorf("%w: %s gate condition %q", ErrInvalidTriggerConfig, where, g.When)
	}
	out := &Gate{When: when}
	for _, id := range g.Triggers {
		j, ok := d.triggerIdx[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s trigger %q", ErrInvalidWaterfallReference, where, id)
		}
		out.Triggers = append(out.Triggers, j)
	}
	return out, nil
}

func (d *Deal) rejectNotional(where string, tranches []int) error {
	for _, j := range tranches {
		if d.IsNotional(j) {
			return fmt.Errorf("%w: %s pays principal to IO %s", ErrInvalidDeal, where, d.Tranches[j].ID)
		}
	}
	return nil
}

// buildSeniority orders cash-paying tranches by (sequence, arena index).
func (d *Deal) buildSeniority() {
	order := make([]int, 0, len(d.Tranches))
	for i := range d.Tranches {
		if d.IsNotional(i) || d.Tranches[i].Kind == domain.TrancheKindResidual {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return d.Tranches[order[a]].Sequence < d.Tranches[order[b]].Sequence
	})

	d.seniors = make([][]int, len(d.Tranches))
	for pos, i := range order {
		d.seniors[i] = append([]int(nil), order[:pos]...)
	}
}

func defaultSource(s, def domain.FundSource) domain.FundSource {
	if s == "" {
		return def
	}
	return s
}

func validSource(s domain.FundSource) bool {
	switch s {
	case domain.SourceInterest, domain.SourcePrincipal, domain.SourceAny:
		return true
	}
	return false
}
