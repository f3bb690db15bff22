package deal

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

func minimalDef() *domain.DealDefinition {
	return &domain.DealDefinition{
		ID: "T1",
		Collateral: domain.CollateralDefinition{Loans: []domain.LoanState{
			{ID: "L1", Balance: decimal.NewFromInt(1000), NoteRate: 0.06, RemainingTerm: 12},
		}},
		Tranches: []domain.TrancheDefinition{
			{ID: "A", Kind: domain.TrancheKindStandard, OriginalBalance: decimal.NewFromInt(800), Coupon: domain.CouponFixed, FixedRate: 0.04},
			{ID: "B", Kind: domain.TrancheKindStandard, OriginalBalance: decimal.NewFromInt(200), Coupon: domain.CouponNetWAC},
		},
		Fees: []domain.FeeDefinition{
			{ID: "trustee", Priority: domain.FeeSenior, Formula: domain.FeeFormula{Kind: domain.FeeFormulaFixed, Amount: decimal.NewFromInt(1)}},
		},
		Triggers: []domain.TriggerDefinition{
			{ID: "OC", Metric: domain.MetricOCRatio, Comparator: domain.CompareGE, Threshold: 1.0, CureThreshold: 2},
		},
		Steps: []domain.WaterfallStep{
			{Kind: domain.StepPayFee, Fee: "trustee"},
			{Kind: domain.StepPayInterest, Tranches: []string{"A", "B"}},
			{Kind: domain.StepPayPrincipal, Tranches: []string{"A", "B"}, Gate: &domain.Gate{Triggers: []string{"OC"}}},
		},
	}
}

func TestLoadFile_PACZ(t *testing.T) {
	d, err := LoadAndCompile("testdata/pac_z.yaml")
	require.NoError(t, err)

	assert.Equal(t, "PACZ-2024-1", d.ID)
	assert.Equal(t, 12, d.PeriodsPerYear)
	require.Len(t, d.Tranches, 4)
	assert.True(t, d.Tranches[0].OriginalBalance.Equal(decimal.NewFromInt(600000)))
	require.NotNil(t, d.Tranches[0].Schedule)
	assert.Equal(t, 300.0, d.Tranches[0].Schedule.UpperPSA)

	z, ok := d.TrancheIndex("Z")
	require.True(t, ok)
	assert.True(t, d.IsAccrual(z))
	assert.Equal(t, []int{0, 1}, d.Seniors(z))

	assert.Empty(t, d.CappedTranches())
	assert.Equal(t, []int{0, 1, 2}, d.BondTranches())
}

func TestLoadFile_SeniorSub(t *testing.T) {
	d, err := LoadAndCompile("testdata/senior_sub.yaml")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, d.Group("SENIOR"))
	assert.Equal(t, []string{"SENIOR"}, d.GroupIDs())

	x, _ := d.TrancheIndex("X")
	assert.True(t, d.IsNotional(x))
	assert.Equal(t, []int{0, 1}, d.NotionalTranches(x))

	// A2 (cap_variable) and B (NET_WAC) are capped.
	assert.Equal(t, []int{1, 2}, d.CappedTranches())
	assert.Equal(t, []int{0, 1, 2}, d.BondTranches())

	v, ok := d.Default(domain.VarNetWAC)
	assert.True(t, ok)
	assert.Equal(t, 0.06, v)
	_, ok = d.Override(domain.VarNetWAC)
	assert.False(t, ok)

	// Group step defaults to pro-rata; source defaults by kind.
	assert.Equal(t, domain.ModeProRata, d.Steps[1].Mode)
	assert.Equal(t, domain.SourceAny, d.Steps[1].Source)
	assert.Equal(t, domain.SourcePrincipal, d.Steps[6].Source)
	require.NotNil(t, d.Steps[3].Gate)
	assert.Equal(t, domain.GateWhenBreached, d.Steps[3].Gate.When)

	assert.True(t, d.Reserve.Equal(decimal.NewFromInt(5000)))
	states := d.InitialTranches()
	assert.True(t, states[x].Balance.IsZero())
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load(strings.NewReader("id: X\nbogus: 1\n"))
	assert.Error(t, err)
}

func TestCompile_Minimal(t *testing.T) {
	d, err := Compile(minimalDef())
	require.NoError(t, err)

	assert.Equal(t, DefaultPeriodsPerYear, d.PeriodsPerYear)
	assert.Equal(t, []int{1}, d.CappedTranches())
	assert.Equal(t, []int{0, 1}, d.BondTranches())
	assert.Equal(t, NoIndex, d.Steps[1].Fee)
	assert.Equal(t, 0, d.Steps[0].Fee)
	assert.Equal(t, domain.GateWhenPassing, d.Steps[2].Gate.When)
	assert.Equal(t, []int{0}, d.Steps[2].Gate.Triggers)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.DealDefinition)
		want   error
	}{
		{
			name:   "unknown fee",
			mutate: func(d *domain.DealDefinition) { d.Steps[0].Fee = "nope" },
			want:   ErrInvalidWaterfallReference,
		},
		{
			name:   "unknown tranche",
			mutate: func(d *domain.DealDefinition) { d.Steps[1].Tranches = []string{"A", "C"} },
			want:   ErrInvalidWaterfallReference,
		},
		{
			name:   "unknown gate trigger",
			mutate: func(d *domain.DealDefinition) { d.Steps[2].Gate.Triggers = []string{"IC"} },
			want:   ErrInvalidWaterfallReference,
		},
		{
			name:   "unknown group",
			mutate: func(d *domain.DealDefinition) { d.Steps[2] = domain.WaterfallStep{Kind: domain.StepPayPrincipal, Group: "G"} },
			want:   ErrInvalidWaterfallReference,
		},
		{
			name:   "cure threshold zero",
			mutate: func(d *domain.DealDefinition) { d.Triggers[0].CureThreshold = 0 },
			want:   ErrInvalidTriggerConfig,
		},
		{
			name:   "unknown comparator",
			mutate: func(d *domain.DealDefinition) { d.Triggers[0].Comparator = "EQ" },
			want:   ErrInvalidTriggerConfig,
		},
		{
			name:   "variable metric without name",
			mutate: func(d *domain.DealDefinition) { d.Triggers[0].Metric = domain.MetricVariable },
			want:   ErrInvalidTriggerConfig,
		},
		{
			name: "variable metric misspelled",
			mutate: func(d *domain.DealDefinition) {
				d.Triggers[0].Metric = domain.MetricVariable
				d.Triggers[0].Variable = "oc_ratoi"
			},
			want: ErrInvalidTriggerConfig,
		},
		{
			name:   "duplicate tranche",
			mutate: func(d *domain.DealDefinition) { d.Tranches[1].ID = "A" },
			want:   ErrInvalidDeal,
		},
		{
			name: "senior fee after bond payment",
			mutate: func(d *domain.DealDefinition) {
				d.Steps = append(d.Steps, domain.WaterfallStep{Kind: domain.StepPayFee, Fee: "trustee"})
			},
			want: ErrInvalidDeal,
		},
		{
			name: "PAC without support",
			mutate: func(d *domain.DealDefinition) {
				d.Tranches[0].Kind = domain.TrancheKindPAC
				d.Tranches[0].Schedule = &domain.ScheduleDefinition{LowerPSA: 100, UpperPSA: 300}
			},
			want: ErrInvalidDeal,
		},
		{
			name: "PAC support unknown",
			mutate: func(d *domain.DealDefinition) {
				d.Tranches[0].Kind = domain.TrancheKindPAC
				d.Tranches[0].Schedule = &domain.ScheduleDefinition{LowerPSA: 100, UpperPSA: 300, Support: "S"}
			},
			want: ErrInvalidWaterfallReference,
		},
		{
			name: "IO in principal step",
			mutate: func(d *domain.DealDefinition) {
				d.Tranches = append(d.Tranches, domain.TrancheDefinition{
					ID: "X", Kind: domain.TrancheKindIO, Coupon: domain.CouponNotional, FixedRate: 0.01,
					Notional: &domain.NotionalDefinition{Tranches: []string{"A"}},
				})
				d.Steps[2].Tranches = []string{"A", "X"}
			},
			want: ErrInvalidDeal,
		},
		{
			name: "PO in interest step",
			mutate: func(d *domain.DealDefinition) {
				d.Tranches[1].Kind = domain.TrancheKindPO
				d.Tranches[1].Coupon = domain.CouponNone
			},
			want: ErrInvalidDeal,
		},
		{
			name: "increasing notional schedule",
			mutate: func(d *domain.DealDefinition) {
				d.Tranches = append(d.Tranches, domain.TrancheDefinition{
					ID: "X", Kind: domain.TrancheKindIO, Coupon: domain.CouponNotional, FixedRate: 0.01,
					Notional: &domain.NotionalDefinition{Schedule: []decimal.Decimal{
						decimal.NewFromInt(100), decimal.NewFromInt(120),
					}},
				})
			},
			want: ErrInvalidDeal,
		},
		{
			name:   "floating without index",
			mutate: func(d *domain.DealDefinition) { d.Tranches[0].Coupon = domain.CouponFloating },
			want:   ErrInvalidDeal,
		},
		{
			name: "fee base tranche unknown",
			mutate: func(d *domain.DealDefinition) {
				d.Fees[0].Formula = domain.FeeFormula{Kind: domain.FeeFormulaPct, Rate: 0.01, Base: domain.FeeBaseTranche, Tranche: "Q"}
			},
			want: ErrInvalidWaterfallReference,
		},
		{
			name:   "empty waterfall",
			mutate: func(d *domain.DealDefinition) { d.Steps = nil },
			want:   ErrInvalidDeal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := minimalDef()
			tt.mutate(def)
			_, err := Compile(def)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompile_VariableTriggerNames(t *testing.T) {
	for _, name := range []string{domain.VarOCRatio, domain.VarNetWACDynamic, "excess_spread", "step_down"} {
		t.Run(name, func(t *testing.T) {
			def := minimalDef()
			def.Defaults = map[string]float64{"excess_spread": 0.01}
			def.Variables = map[string]float64{"step_down": 0}
			def.Triggers[0].Metric = domain.MetricVariable
			def.Triggers[0].Variable = name
			_, err := Compile(def)
			assert.NoError(t, err)
		})
	}
}

func TestCompile_DoesNotAliasDefinition(t *testing.T) {
	def := minimalDef()
	d, err := Compile(def)
	require.NoError(t, err)

	def.Tranches[0].ID = "CHANGED"
	assert.Equal(t, "A", d.Tranches[0].ID)
}
