package lookup

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Errors returned by lookup functions.
var (
	ErrNoSchedule = errors.New("no schedule values available")
	ErrNoFixing   = errors.New("no index fixing available")
)

// ValueAt returns the schedule value in force for a 1-based period.
// Schedules are carried forward: periods past the end use the last value.
// Returns ErrNoSchedule if the schedule is empty.
func ValueAt(period int, schedule []float64) (float64, error) {
	if len(schedule) == 0 {
		return 0, ErrNoSchedule
	}
	if period < 1 {
		return schedule[0], nil
	}
	if period > len(schedule) {
		return schedule[len(schedule)-1], nil
	}
	return schedule[period-1], nil
}

// AmountAt returns a money schedule value for a 1-based period.
// Unlike ValueAt, periods past the end return zero: notional schedules
// run off rather than carry forward.
func AmountAt(period int, schedule []decimal.Decimal) (decimal.Decimal, error) {
	if len(schedule) == 0 {
		return decimal.Zero, ErrNoSchedule
	}
	if period < 1 {
		return schedule[0], nil
	}
	if period > len(schedule) {
		return decimal.Zero, nil
	}
	return schedule[period-1], nil
}

// FixingAt returns the fixing for an index in the current period, falling
// back to the most recent earlier fixing. history is ordered oldest first,
// current period last.
// Returns ErrNoFixing if the index was never fixed.
func FixingAt(index string, history []map[string]float64) (float64, error) {
	for i := len(history) - 1; i >= 0; i-- {
		if v, ok := history[i][index]; ok {
			return v, nil
		}
	}
	return 0, ErrNoFixing
}
