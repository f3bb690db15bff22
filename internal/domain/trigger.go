package domain

import "fmt"

// TriggerStatus is the state of a performance trigger.
type TriggerStatus string

// Trigger statuses.
const (
	TriggerPassing  TriggerStatus = "PASSING"
	TriggerBreached TriggerStatus = "BREACHED"
)

// TriggerState is the persistent per-trigger record.
// Owned by the trigger engine; threads through all periods of one path.
type TriggerState struct {
	Status            TriggerStatus
	ConsecutivePasses int // passing evaluations since the last failure while breached
	MonthsBreached    int // periods spent breached in the current episode
}

// TriggerSnapshot is the read-only view of one trigger after a period's evaluation.
type TriggerSnapshot struct {
	Period            int
	TriggerID         string
	Status            TriggerStatus
	ConsecutivePasses int
	CureThreshold     int
	MonthsBreached    int
	Value             float64 // observed metric value
	Threshold         float64 // threshold in force for the period
	Passed            bool    // raw predicate outcome
	CureReset         bool    // a failing evaluation wiped cure progress
}

// String renders e.g. "BREACHED(1/3)" or "PASSING". Cure progress is shown
// while it is non-zero and in the period it is reset to zero.
func (s TriggerSnapshot) String() string {
	if s.Status == TriggerBreached && (s.ConsecutivePasses > 0 || s.CureReset) {
		return fmt.Sprintf("%s(%d/%d)", s.Status, s.ConsecutivePasses, s.CureThreshold)
	}
	return string(s.Status)
}
