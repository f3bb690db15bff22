package domain

// RunRecord identifies one completed scenario path run.
type RunRecord struct {
	RunID        string // deterministic hash of deal, path and inputs
	DealID       string
	PathID       string
	InputsDigest string
	StateDigest  string // digest of the PeriodState sequence
	Periods      int
	Status       string // "COMPLETED" | "FAILED"
	FailedPeriod *int
	Error        string
	CreatedAt    int64 // unix ms
}

// Run status constants.
const (
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// TrancheAggregate summarizes one tranche across many paths.
type TrancheAggregate struct {
	BatchID   string // orchestrator execution that produced the paths
	DealID    string
	TrancheID string
	Paths     int

	// Weighted-average life in years
	WALMean   float64
	WALStddev float64
	WALP10    float64
	WALP50    float64
	WALP90    float64

	// Totals per path
	PrincipalMean  float64
	InterestMean   float64
	InterestStddev float64
	WritedownMean  float64
	WritedownMax   float64
	ShortfallPaths int // paths ending with unpaid interest
}
