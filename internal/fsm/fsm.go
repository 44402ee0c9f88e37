package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

const (
	EventStart   Event = "start"
	EventReady   Event = "ready"
	EventStop    Event = "stop"
	EventStopped Event = "stopped"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Transition returns the state reached by applying event to current.
// Failure is only reachable from a live session; a stopping session finishes
// its teardown instead.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventReady:
			return StateActive, nil
		case EventStop:
			return StateStopping, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateActive:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventFail:
			return StateFailed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStopping:
		switch event {
		case EventStopped:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFailed:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Live reports whether a session occupies the process in state s.
func Live(s State) bool {
	return s != StateIdle
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
