package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/collateral"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/deal"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/solver"
)

func amt(x float64) decimal.Decimal { return decimal.NewFromFloat(x) }

func fixed(id string, balance float64) domain.TrancheDefinition {
	return domain.TrancheDefinition{
		ID:              id,
		Kind:            domain.TrancheKindStandard,
		OriginalBalance: amt(balance),
		Coupon:          domain.CouponFixed,
		FixedRate:       0.05,
	}
}

func compile(t *testing.T, def *domain.DealDefinition) *deal.Deal {
	t.Helper()
	if def.ID == "" {
		def.ID = "TEST"
	}
	dl, err := deal.Compile(def)
	require.NoError(t, err)
	return dl
}

// setup builds an Input with hand-set interest due and no fees. Notionals are
// beginning balances.
func setup(dl *deal.Deal, interest, principal float64, due ...float64) Input {
	n := len(dl.Tranches)
	tranches := dl.InitialTranches()
	res := &solver.Result{
		TrancheRates: make([]float64, n),
		InterestDue:  make([]decimal.Decimal, n),
		Accretion:    make([]decimal.Decimal, n),
		Notionals:    make([]decimal.Decimal, n),
		FeesDue:      make([]decimal.Decimal, len(dl.Fees)),
	}
	for i := range tranches {
		res.Notionals[i] = tranches[i].Balance
		if i < len(due) {
			res.InterestDue[i] = amt(due[i])
		}
	}
	return Input{
		Deal:       dl,
		Period:     1,
		Collateral: domain.CollateralCashflow{Period: 1, GrossInterest: amt(interest), ScheduledPrincipal: amt(principal)},
		Tranches:   tranches,
		Fees:       dl.InitialFees(),
		Reserve:    dl.Reserve,
		Solved:     res,
		Triggers:   make([]domain.TriggerStatus, len(dl.Triggers)),
		Schedules:  make([]*Schedule, n),
	}
}

func requireBalanced(t *testing.T, out *Output) {
	t.Helper()
	assert.True(t, out.Ledger.Balanced(), "ledger %+v", out.Ledger)
	assert.True(t, out.Ledger.Available.Equal(
		out.Ledger.InterestCollected.Add(out.Ledger.PrincipalCollected).Add(out.Ledger.BeginningReserve)))
}

func TestAllocate_ProRataGroupPrincipal(t *testing.T) {
	def := &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 40), fixed("B", 40), fixed("C", 20)},
		Steps:    []domain.WaterfallStep{{Kind: domain.StepPayPrincipal, Group: "G"}},
	}
	for i := range def.Tranches {
		def.Tranches[i].ProRataGroup = "G"
	}
	dl := compile(t, def)
	e := NewEngine()

	in := setup(dl, 0, 100)
	out, err := e.Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assertDecs(t, []float64{40, 40, 20}, []decimal.Decimal{
		out.Cashflows[0].PrincipalPaid, out.Cashflows[1].PrincipalPaid, out.Cashflows[2].PrincipalPaid,
	})

	in = setup(dl, 0, 20)
	in.Tranches[0].Balance = amt(10)
	in.Tranches[1].Balance = amt(10)
	in.Tranches[2].Balance = decimal.Zero
	out, err = e.Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assertDecs(t, []float64{10, 10, 0}, []decimal.Decimal{
		out.Cashflows[0].PrincipalPaid, out.Cashflows[1].PrincipalPaid, out.Cashflows[2].PrincipalPaid,
	})
	for _, s := range out.Tranches {
		assert.True(t, s.Balance.IsZero())
	}
}

func TestAllocate_SequentialInterestShortfallCarries(t *testing.T) {
	def := &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 1000), fixed("B", 500)},
		Fees: []domain.FeeDefinition{
			{ID: "trustee", Priority: domain.FeeSenior, Formula: domain.FeeFormula{Kind: domain.FeeFormulaFixed, Amount: amt(10)}},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayFee, Fee: "trustee"},
			{Kind: domain.StepPayInterest, Tranches: []string{"A", "B"}},
		},
	}
	dl := compile(t, def)
	in := setup(dl, 50, 0, 30, 20)
	in.Solved.FeesDue[0] = amt(10)
	in.Tranches[1].InterestShortfall = amt(5)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)

	assert.True(t, out.Payments[0].Paid.Equal(amt(10)))
	assert.True(t, out.Cashflows[0].InterestPaid.Equal(amt(30)))
	assert.True(t, out.Cashflows[1].InterestDue.Equal(amt(25)))
	assert.True(t, out.Cashflows[1].InterestPaid.Equal(amt(10)))
	assert.True(t, out.Cashflows[1].InterestShortfall.Equal(amt(15)))
	assert.True(t, out.Tranches[1].InterestShortfall.Equal(amt(15)))
	assert.True(t, out.Reserve.IsZero())
}

func TestAllocate_UnpaidFeeCarries(t *testing.T) {
	def := &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 1000)},
		Fees: []domain.FeeDefinition{
			{ID: "trustee", Priority: domain.FeeSenior, Formula: domain.FeeFormula{Kind: domain.FeeFormulaFixed, Amount: amt(10)}},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayFee, Fee: "trustee"},
			{Kind: domain.StepPayInterest, Tranches: []string{"A"}},
		},
	}
	dl := compile(t, def)
	in := setup(dl, 4, 0, 5)
	in.Solved.FeesDue[0] = amt(10)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Fees[0].Unpaid.Equal(amt(6)))
	assert.True(t, out.Cashflows[0].InterestPaid.IsZero())
}

func TestAllocate_LeftoverCashRetained(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 1000)},
		Steps:    []domain.WaterfallStep{{Kind: domain.StepPayInterest, Tranches: []string{"A"}}},
		Reserve:  domain.ReserveDefinition{Initial: amt(5)},
	})
	out, err := NewEngine().Allocate(setup(dl, 100, 0, 30))
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Reserve.Equal(amt(75)))
	assert.True(t, out.Ledger.Disbursed.Equal(amt(30)))
}

func gatedDeal(t *testing.T) *deal.Deal {
	return compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 1000), {ID: "R", Kind: domain.TrancheKindResidual, Coupon: domain.CouponNone}},
		Triggers: []domain.TriggerDefinition{
			{ID: "OC", Metric: domain.MetricOCRatio, Comparator: domain.CompareGE, Threshold: 1.05, CureThreshold: 3},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayInterest, Tranches: []string{"A"}},
			{Kind: domain.StepTransfer, Source: domain.SourceInterest, To: domain.SourcePrincipal,
				Gate: &domain.Gate{Triggers: []string{"OC"}, When: domain.GateWhenBreached}},
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A"}},
			{Kind: domain.StepPayResidual, Tranche: "R"},
		},
	})
}

func TestAllocate_BreachedGateDivertsExcessInterest(t *testing.T) {
	dl := gatedDeal(t)

	in := setup(dl, 100, 50, 30)
	in.Triggers[0] = domain.TriggerBreached
	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.Empty(t, out.Skipped)
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(120)))
	assert.True(t, out.Cashflows[1].InterestPaid.IsZero())

	in = setup(dl, 100, 50, 30)
	in.Triggers[0] = domain.TriggerPassing
	out, err = NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.Equal(t, []int{1}, out.Skipped)
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(50)))
	assert.True(t, out.Cashflows[1].InterestPaid.Equal(amt(70)), "residual takes excess interest")
	assert.True(t, out.Reserve.IsZero())
}

func TestAllocate_ReserveDrawCoversShortfall(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 1000)},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayInterest, Tranches: []string{"A"}},
			{Kind: domain.StepDrawReserve, Tranches: []string{"A"}},
			{Kind: domain.StepPayInterest, Tranches: []string{"A"}},
		},
		Reserve: domain.ReserveDefinition{Initial: amt(50)},
	})
	out, err := NewEngine().Allocate(setup(dl, 10, 0, 30))
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Cashflows[0].InterestPaid.Equal(amt(30)))
	assert.True(t, out.Cashflows[0].InterestShortfall.IsZero())
	assert.True(t, out.Reserve.Equal(amt(30)))
}

func TestAllocate_DepositReserveTopsUp(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{{ID: "R", Kind: domain.TrancheKindResidual, Coupon: domain.CouponNone}},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepDepositReserve, Amount: amt(100)},
			{Kind: domain.StepPayResidual, Tranche: "R"},
		},
		Reserve: domain.ReserveDefinition{Initial: amt(20)},
	})
	out, err := NewEngine().Allocate(setup(dl, 150, 0))
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Reserve.Equal(amt(100)))
	assert.True(t, out.Cashflows[0].InterestPaid.Equal(amt(70)))
}

func TestAllocate_LossWritesDownReverseOrder(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 600), fixed("B", 400)},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A"}},
			{Kind: domain.StepAllocateLoss, Tranches: []string{"A", "B"}},
		},
	})
	in := setup(dl, 0, 50)
	in.Summary = domain.CollateralSummary{Balance: amt(900)}

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Cashflows[0].EndingBalance.Equal(amt(550)))
	assert.True(t, out.Cashflows[0].Writedown.IsZero())
	assert.True(t, out.Cashflows[1].Writedown.Equal(amt(50)))
	assert.True(t, out.Tranches[1].Balance.Equal(amt(350)))
	assert.True(t, out.Tranches[1].Writedown.Equal(amt(50)))
}

func TestAllocate_AccrualTrancheAccretes(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{
			fixed("A", 1000),
			{ID: "Z", Kind: domain.TrancheKindAccrual, OriginalBalance: amt(200), Coupon: domain.CouponAccruing, FixedRate: 0.06},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayInterest, Tranches: []string{"A", "Z"}},
			{Kind: domain.StepAccrue, Tranches: []string{"Z"}},
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A", "Z"}},
		},
	})
	in := setup(dl, 15, 0, 5)
	in.Solved.Accretion[1] = amt(10)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)

	z := out.Cashflows[1]
	assert.True(t, z.InterestPaid.IsZero())
	assert.True(t, z.InterestDue.IsZero())
	assert.True(t, z.Accretion.Equal(amt(10)))
	assert.True(t, z.EndingBalance.Equal(amt(210)))
	assert.True(t, out.Cashflows[0].InterestPaid.Equal(amt(5)))
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(10)), "accrued interest pays senior principal")
}

func TestAllocate_AccretionRedirectsOnlyRemainingInterest(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{
			fixed("A", 1000),
			{ID: "Z", Kind: domain.TrancheKindAccrual, OriginalBalance: amt(200), Coupon: domain.CouponAccruing, FixedRate: 0.06},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayInterest, Tranches: []string{"A"}},
			{Kind: domain.StepAccrue, Tranches: []string{"Z"}},
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A", "Z"}},
		},
	})
	in := setup(dl, 8, 0, 5)
	in.Solved.Accretion[1] = amt(10)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)

	// Z accretes in full; only the 3 left after A's interest reaches principal.
	assert.True(t, out.Cashflows[1].Accretion.Equal(amt(10)))
	assert.True(t, out.Cashflows[1].EndingBalance.Equal(amt(210)))
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(3)), "got %s", out.Cashflows[0].PrincipalPaid)
	assert.True(t, out.UnfundedAccretion.Equal(amt(7)), "got %s", out.UnfundedAccretion)
	assert.True(t, out.Reserve.IsZero())
}

func TestAllocate_IOReceivesInterestOnly(t *testing.T) {
	dl := compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{
			fixed("A", 1000),
			{ID: "X", Kind: domain.TrancheKindIO, Coupon: domain.CouponNotional, FixedRate: 0.01,
				Notional: &domain.NotionalDefinition{Tranches: []string{"A"}}},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayInterest, Tranches: []string{"A", "X"}},
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A"}},
		},
	})
	in := setup(dl, 10, 25, 4, 1)
	in.Solved.Notionals[1] = amt(1000)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	x := out.Cashflows[1]
	assert.True(t, x.InterestPaid.Equal(amt(1)))
	assert.True(t, x.PrincipalPaid.IsZero())
	assert.True(t, x.EndingBalance.IsZero())
}

func TestAllocate_ProRataInterestUsesNotionals(t *testing.T) {
	def := &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{fixed("A", 300), fixed("B", 100)},
		Steps:    []domain.WaterfallStep{{Kind: domain.StepPayInterest, Group: "S"}},
	}
	def.Tranches[0].ProRataGroup = "S"
	def.Tranches[1].ProRataGroup = "S"
	dl := compile(t, def)

	out, err := NewEngine().Allocate(setup(dl, 8, 0, 6, 2))
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Cashflows[0].InterestPaid.Equal(amt(6)))
	assert.True(t, out.Cashflows[1].InterestPaid.Equal(amt(2)))
	assert.True(t, out.Cashflows[1].InterestShortfall.IsZero())
}

func pacDeal(t *testing.T, fallback bool) *deal.Deal {
	return compile(t, &domain.DealDefinition{
		Tranches: []domain.TrancheDefinition{
			{ID: "P", Kind: domain.TrancheKindPAC, OriginalBalance: amt(100), Coupon: domain.CouponFixed, FixedRate: 0.05,
				Schedule: &domain.ScheduleDefinition{LowerPSA: 100, UpperPSA: 300, Support: "S", Fallback: fallback}},
			{ID: "S", Kind: domain.TrancheKindSupport, OriginalBalance: amt(200), Coupon: domain.CouponFixed, FixedRate: 0.05},
		},
		Steps: []domain.WaterfallStep{{Kind: domain.StepPayScheduled, Tranche: "P"}},
	})
}

func testSchedule() *Schedule {
	return &Schedule{
		Tranche:  0,
		Target:   []decimal.Decimal{amt(90), amt(80)},
		Amount:   []decimal.Decimal{amt(10), amt(10)},
		LowerCum: []decimal.Decimal{amt(5), amt(10)},
		UpperCum: []decimal.Decimal{amt(20), amt(40)},
	}
}

func TestAllocate_PACInBandPaysSchedule(t *testing.T) {
	dl := pacDeal(t, false)
	in := setup(dl, 0, 30)
	in.Schedules[0] = testSchedule()
	in.Summary.CumulativePaydown = amt(10)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.False(t, out.Cashflows[0].Busted)
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(10)))
	assert.True(t, out.Cashflows[1].PrincipalPaid.Equal(amt(20)), "support absorbs surplus")
}

func TestAllocate_PACBustedPaysNothing(t *testing.T) {
	dl := pacDeal(t, false)
	in := setup(dl, 0, 30)
	in.Schedules[0] = testSchedule()
	in.Summary.CumulativePaydown = amt(50)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Cashflows[0].Busted)
	assert.True(t, out.Cashflows[0].PrincipalPaid.IsZero())
	assert.True(t, out.Cashflows[1].PrincipalPaid.Equal(amt(30)))
}

func TestAllocate_PACBandIgnoresDefaults(t *testing.T) {
	dl := pacDeal(t, false)
	in := setup(dl, 0, 30)
	in.Schedules[0] = testSchedule()
	// 50 paid down, 40 of it by default: 10 scheduled and prepaid is in band.
	in.Summary.CumulativePaydown = amt(50)
	in.Summary.CumulativeDefaults = amt(40)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.False(t, out.Cashflows[0].Busted)
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(10)))
	assert.True(t, out.Cashflows[1].PrincipalPaid.Equal(amt(20)))
}

func TestAllocate_PACFallbackAfterSupportRetired(t *testing.T) {
	dl := pacDeal(t, true)
	in := setup(dl, 0, 30)
	in.Schedules[0] = testSchedule()
	in.Summary.CumulativePaydown = amt(50)
	in.Tranches[1].Balance = amt(5)

	out, err := NewEngine().Allocate(in)
	require.NoError(t, err)
	requireBalanced(t, out)
	assert.True(t, out.Cashflows[0].Busted)
	assert.True(t, out.Cashflows[1].PrincipalPaid.Equal(amt(5)))
	assert.True(t, out.Cashflows[0].PrincipalPaid.Equal(amt(25)))
}

func TestAllocate_PACMissingScheduleFails(t *testing.T) {
	dl := pacDeal(t, false)
	_, err := NewEngine().Allocate(setup(dl, 0, 30))
	require.Error(t, err)
}

func TestBuildSchedules_BandAndTargets(t *testing.T) {
	dl, err := deal.LoadAndCompile("../deal/testdata/pac_z.yaml")
	require.NoError(t, err)

	scheds, err := BuildSchedules(dl, collateral.NewEngine(nil))
	require.NoError(t, err)
	require.Len(t, scheds, len(dl.Tranches))

	s := scheds[0]
	require.NotNil(t, s)
	for i := 1; i < len(scheds); i++ {
		assert.Nil(t, scheds[i])
	}

	total := decimal.Zero
	prev := dl.Tranches[0].OriginalBalance
	for p := range s.Target {
		assert.True(t, s.LowerCum[p].LessThanOrEqual(s.UpperCum[p]), "period %d", p+1)
		assert.True(t, s.Target[p].LessThanOrEqual(prev), "period %d", p+1)
		prev = s.Target[p]
		total = total.Add(s.Amount[p])
	}
	assert.True(t, total.LessThanOrEqual(dl.Tranches[0].OriginalBalance))
	assert.True(t, s.TargetAt(len(s.Target)+5).IsZero())

	// Band edges are inclusive.
	assert.True(t, s.InBand(1, s.LowerCum[0]))
	assert.False(t, s.InBand(1, s.UpperCum[0].Add(amt(1))))
}
