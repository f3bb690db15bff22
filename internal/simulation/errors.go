package simulation

import (
	"errors"
	"fmt"
)

// Runner errors
var (
	ErrNilDeal     = errors.New("runner requires a compiled deal")
	ErrEmptyPath   = errors.New("scenario path has no inputs")
	ErrPeriodOrder = errors.New("scenario input out of period order")
)

// Stage names the part of a period that failed.
type Stage string

// Period stages, in execution order.
const (
	StageScenario   Stage = "scenario"
	StageCollateral Stage = "collateral"
	StageSolver     Stage = "solver"
	StageAllocation Stage = "allocation"
)

// PeriodError reports a period that failed. No state from the failed period
// is published; errors.Is sees through to the underlying kind.
type PeriodError struct {
	PathID string
	Period int
	Stage  Stage
	Err    error
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("path %s period %d (%s): %v", e.PathID, e.Period, e.Stage, e.Err)
}

func (e *PeriodError) Unwrap() error {
	return e.Err
}
