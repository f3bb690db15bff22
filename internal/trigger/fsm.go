// Package trigger evaluates deal performance tests and tracks breach and
// cure state across periods.
package trigger

import "github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"

// Initial is the state of every trigger before period 1.
func Initial() domain.TriggerState {
	return domain.TriggerState{Status: domain.TriggerPassing}
}

// Advance applies one evaluation to a trigger state.
//
//	PASSING  + fail -> BREACHED, passes 0
//	BREACHED + fail -> BREACHED, passes reset to 0
//	BREACHED + pass -> BREACHED, passes+1 while passes+1 < cure
//	BREACHED + pass -> PASSING when passes+1 == cure
//	PASSING  + pass -> PASSING
func Advance(s domain.TriggerState, passed bool, cure int) domain.TriggerState {
	if cure < 1 {
		cure = 1
	}

	if !passed {
		months := 1
		if s.Status == domain.TriggerBreached {
			months = s.MonthsBreached + 1
		}
		return domain.TriggerState{
			Status:         domain.TriggerBreached,
			MonthsBreached: months,
		}
	}

	if s.Status == domain.TriggerPassing {
		return domain.TriggerState{Status: domain.TriggerPassing}
	}

	passes := s.ConsecutivePasses + 1
	if passes >= cure {
		return domain.TriggerState{Status: domain.TriggerPassing}
	}
	return domain.TriggerState{
		Status:            domain.TriggerBreached,
		ConsecutivePasses: passes,
		MonthsBreached:    s.MonthsBreached + 1,
	}
}
