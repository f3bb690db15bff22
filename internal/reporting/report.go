package reporting

import "time"

// Report summarizes the stored runs of one deal.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	DealID      string
	BatchID     string // aggregates shown; empty means every batch

	Summary    RunSummary
	Runs       []RunRow         // sorted by path_id
	Aggregates []AggregateRow   // sorted by batch_id, tranche_id
	Solver     SolverSummary    // across every stored period
	Triggers   []TriggerSummary // sorted by trigger_id
	Failures   []RunFailureRow  // failed runs only
}

// RunSummary counts stored runs.
type RunSummary struct {
	TotalRuns     int
	CompletedRuns int
	FailedRuns    int
	TotalPeriods  int
}

// RunRow represents one row in the runs table.
type RunRow struct {
	RunID       string
	PathID      string
	Status      string
	Periods     int
	StateDigest string
}

// RunFailureRow lists where a run stopped.
type RunFailureRow struct {
	RunID        string
	PathID       string
	FailedPeriod int
	Error        string
}

// AggregateRow represents one tranche across the paths of a batch.
type AggregateRow struct {
	BatchID        string
	TrancheID      string
	Paths          int
	WALMean        float64
	WALP10         float64
	WALP50         float64
	WALP90         float64
	PrincipalMean  float64
	InterestMean   float64
	WritedownMean  float64
	WritedownMax   float64
	ShortfallPaths int
}

// SolverSummary describes convergence behaviour.
type SolverSummary struct {
	Periods        int
	MeanIterations float64
	MaxIterations  int
	NonConverged   int
	Overridden     int
	MaxResidual    float64 // largest |applied - dynamic| under override
}

// TriggerSummary describes one trigger across runs.
type TriggerSummary struct {
	TriggerID       string
	Evaluations     int
	BreachedPeriods int
	Breaches        int // transitions into BREACHED
	RunsBreached    int
}
