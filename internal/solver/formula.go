package solver

import (
	"github.com/shopspring/decimal"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// bases are the balances fee formulas can reference, for one iteration.
type bases struct {
	collateral   decimal.Decimal // beginning collateral balance
	bonds        decimal.Decimal // bond balance plus this period's accretion
	bondInterest decimal.Decimal // current bond interest due at the iteration's rate
	tranches     []decimal.Decimal
	trancheIdx   func(id string) (int, bool)
	periods      int64
}

// feeAmount evaluates a formula to an unrounded per-period amount.
func (b bases) feeAmount(f domain.FeeFormula) decimal.Decimal {
	switch f.Kind {
	case domain.FeeFormulaFixed:
		return f.Amount
	case domain.FeeFormulaPct:
		rate := decimal.NewFromFloat(f.Rate)
		if f.Base == domain.FeeBaseBondInterest {
			// Already a per-period amount.
			return b.bondInterest.Mul(rate)
		}
		return b.base(f).Mul(rate).Div(decimal.NewFromInt(b.periods))
	case domain.FeeFormulaMax, domain.FeeFormulaMin:
		var out decimal.Decimal
		for i, sub := range f.Of {
			v := b.feeAmount(sub)
			if i == 0 ||
				(f.Kind == domain.FeeFormulaMax && v.GreaterThan(out)) ||
				(f.Kind == domain.FeeFormulaMin && v.LessThan(out)) {
				out = v
			}
		}
		return out
	}
	return decimal.Zero
}

func (b bases) base(f domain.FeeFormula) decimal.Decimal {
	switch f.Base {
	case domain.FeeBaseCollateral:
		return b.collateral
	case domain.FeeBaseBonds:
		return b.bonds
	case domain.FeeBaseTranche:
		if i, ok := b.trancheIdx(f.Tranche); ok {
			return b.tranches[i]
		}
	}
	return decimal.Zero
}
