package execution

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"
)

// State is the lifecycle position of one execution.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateDraining
	StateJoining
	StateCompleted
	StateLaunchFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateDraining:
		return "draining"
	case StateJoining:
		return "joining"
	case StateCompleted:
		return "completed"
	case StateLaunchFailed:
		return "launch_failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateLaunchFailed || s == StateCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateNotStarted:
		return next == StateLaunching
	case StateLaunching:
		return next == StateDraining || next == StateLaunchFailed
	case StateDraining:
		return next == StateJoining || next == StateCancelled
	case StateJoining:
		return next == StateCompleted
	default:
		return false
	}
}

// StateObserver is called synchronously on every state transition.
type StateObserver func(State)

type stateTracker struct {
	state    State
	observer StateObserver
	log      log.Logger
}

func (t *stateTracker) move(next State) {
	if !t.state.CanTransition(next) {
		t.log.Error("Invalid execution state transition", "from", t.state, "to", next)
		return
	}
	t.state = next
	if t.observer != nil {
		t.observer(next)
	}
}
