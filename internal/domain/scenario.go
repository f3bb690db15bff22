package domain

// ScenarioInput holds one period's collateral assumptions.
// Produced by an external scenario generator or a stress builder.
type ScenarioInput struct {
	Period       int                `yaml:"period"`
	CPR          float64            `yaml:"cpr"`         // annual prepayment rate; ignored when PSA > 0
	PSA          float64            `yaml:"psa"`         // PSA speed (100 = 100% PSA)
	CDR          float64            `yaml:"cdr"`         // annual default rate
	Severity     float64            `yaml:"severity"`    // loss given default
	Delinquency  float64            `yaml:"delinquency"` // 60+ delinquency fraction for triggers
	IndexFixings map[string]float64 `yaml:"index_fixings"`
}

// ScenarioPath is one independent sequence of period inputs.
type ScenarioPath struct {
	ID     string          `yaml:"id"`
	Inputs []ScenarioInput `yaml:"inputs"`
}
