package catalog

import "fmt"

// State is the lifecycle state of a Store.
type State string

const (
	StateUninitialized  State = "uninitialized"
	StateValidating     State = "validating"
	StateReady          State = "ready"
	StateReinitializing State = "reinitializing"
	StateFailed         State = "failed"
	StateClosed         State = "closed"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	StateUninitialized:  {StateValidating, StateClosed},
	StateValidating:     {StateReady, StateFailed, StateClosed},
	StateReady:          {StateReinitializing, StateClosed},
	StateReinitializing: {StateReady, StateFailed, StateClosed},
	StateFailed:         {StateValidating, StateReinitializing, StateClosed},
	StateClosed:         {},
}

// CanTransitionTo returns true if transitioning from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// Serving reports whether reads are answered in this state.
func (s State) Serving() bool { return s == StateReady }

// transitionError describes a rejected lifecycle change.
type transitionError struct {
	from, to State
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("catalog: invalid transition %s -> %s", e.from, e.to)
}
