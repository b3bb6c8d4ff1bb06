package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition indicates the event is not allowed in the current stage.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrGuardRejected indicates a guard blocked an otherwise valid transition.
	ErrGuardRejected = errors.New("session transition blocked")
)

// TransitionError provides details about a rejected transition.
type TransitionError struct {
	From    Stage
	Event   string
	Guarded bool
}

func (e *TransitionError) Error() string {
	if e.Guarded {
		return fmt.Sprintf("the action '%s' is blocked while the session is '%s'", e.Event, e.From)
	}
	return fmt.Sprintf("the action '%s' is not allowed while the session is '%s'", e.Event, e.From)
}

// Is allows errors.Is to match the sentinel errors.
func (e *TransitionError) Is(target error) bool {
	if e.Guarded {
		return target == ErrGuardRejected
	}
	return target == ErrInvalidTransition
}

// ErrNoSession is returned when an operation needs a server session and none is active.
var ErrNoSession = errors.New("no active session")
