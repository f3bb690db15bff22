package solver

import "errors"

// Solver errors.
var (
	// ErrNonConvergence is returned when the capped-rate iteration exceeds
	// its cap without meeting tolerance. The period is aborted.
	ErrNonConvergence = errors.New("waterfall solver did not converge")

	// ErrMissingFixing is returned when a floating tranche's index has never been fixed.
	ErrMissingFixing = errors.New("missing index fixing")
)
