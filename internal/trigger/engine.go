package trigger

import (
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
)

// Evaluation is the pending outcome of one period's trigger pass.
// Nothing is published until Commit.
type Evaluation struct {
	Period    int
	States    []domain.TriggerState
	Snapshots []domain.TriggerSnapshot
}

// Statuses returns the evaluated status per trigger, in arena order.
func (ev Evaluation) Statuses() []domain.TriggerStatus {
	out := make([]domain.TriggerStatus, len(ev.States))
	for i, s := range ev.States {
		out[i] = s.Status
	}
	return out
}

// Transition describes a status change produced by an evaluation.
type Transition struct {
	TriggerID string
	From      domain.TriggerStatus
	To        domain.TriggerStatus
}

// Engine owns TriggerState for one scenario path. Not safe for concurrent
// use; each path worker creates its own engine.
type Engine struct {
	defs    []domain.TriggerDefinition
	preds   []Predicate
	states  []domain.TriggerState
	history []domain.TriggerSnapshot
}

// NewEngine creates an engine with every trigger PASSING.
func NewEngine(defs []domain.TriggerDefinition) (*Engine, error) {
	e := &Engine{
		defs:   defs,
		preds:  make([]Predicate, len(defs)),
		states: make([]domain.TriggerState, len(defs)),
	}
	for i, def := range defs {
		p, err := FromDefinition(def)
		if err != nil {
			return nil, err
		}
		e.preds[i] = p
		e.states[i] = Initial()
	}
	return e, nil
}

// Evaluate observes every trigger exactly once, in definition order, and
// computes next states without mutating the engine.
func (e *Engine) Evaluate(ps *domain.PeriodState) Evaluation {
	ev := Evaluation{
		Period:    ps.Period,
		States:    make([]domain.TriggerState, len(e.defs)),
		Snapshots: make([]domain.TriggerSnapshot, len(e.defs)),
	}
	for i, def := range e.defs {
		obs := e.preds[i].Observe(ps)
		prev := e.states[i]
		next := Advance(prev, obs.Passed, def.CureThreshold)

		ev.States[i] = next
		ev.Snapshots[i] = domain.TriggerSnapshot{
			Period:            ps.Period,
			TriggerID:         def.ID,
			Status:            next.Status,
			ConsecutivePasses: next.ConsecutivePasses,
			CureThreshold:     def.CureThreshold,
			MonthsBreached:    next.MonthsBreached,
			Value:             obs.Value,
			Threshold:         obs.Threshold,
			Passed:            obs.Passed,
			CureReset:         !obs.Passed && prev.Status == domain.TriggerBreached && prev.ConsecutivePasses > 0,
		}
	}
	return ev
}

// Commit publishes an evaluation and returns the status transitions it caused.
func (e *Engine) Commit(ev Evaluation) []Transition {
	var out []Transition
	for i, next := range ev.States {
		if e.states[i].Status != next.Status {
			out = append(out, Transition{
				TriggerID: e.defs[i].ID,
				From:      e.states[i].Status,
				To:        next.Status,
			})
		}
		e.states[i] = next
	}
	e.history = append(e.history, ev.Snapshots...)
	return out
}

// Status returns the committed status of a trigger.
func (e *Engine) Status(id string) (domain.TriggerStatus, bool) {
	for i, def := range e.defs {
		if def.ID == id {
			return e.states[i].Status, true
		}
	}
	return "", false
}

// History returns all committed snapshots, oldest first.
func (e *Engine) History() []domain.TriggerSnapshot {
	return append([]domain.TriggerSnapshot(nil), e.history...)
}
