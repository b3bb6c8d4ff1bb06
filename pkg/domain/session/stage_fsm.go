package session

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State constants for statekit integration.
// Values are kept in sync with the Stage constants in stage.go.
const (
	StateIdle               = "idle"
	StateCollectingInputs   = "collecting_inputs"
	StateAwaitingGeneration = "awaiting_generation"
	StateReviewing          = "reviewing"
)

func init() {
	stateMap := map[string]Stage{
		StateIdle:               StageIdle,
		StateCollectingInputs:   StageCollectingInputs,
		StateAwaitingGeneration: StageAwaitingGeneration,
		StateReviewing:          StageReviewing,
	}

	for fsmState, stage := range stateMap {
		if fsmState != string(stage) {
			panic(fmt.Sprintf("FSM state %q does not match Stage %q - constants are out of sync", fsmState, stage))
		}
	}
}

// Guard decides whether a guarded event may fire. Only submit is guarded.
type Guard func(event string) bool

// MachineContext carries the guard into statekit.
type MachineContext struct {
	Guard Guard
}

// StateMachine drives a session through its stages.
type StateMachine struct {
	interpreter *statekit.Interpreter[MachineContext]
}

// NewStateMachine builds a machine starting at initial. A nil guard allows everything.
func NewStateMachine(initial Stage, guard Guard) (*StateMachine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("invalid initial stage: %q", initial)
	}
	if guard == nil {
		guard = func(string) bool { return true }
	}

	builder := statekit.NewMachine[MachineContext]("session-machine").
		WithInitial(statekit.StateID(initial)).
		WithContext(MachineContext{Guard: guard}).
		WithGuard("inputsReady", func(ctx MachineContext, e statekit.Event) bool {
			return ctx.Guard(string(e.Type))
		})

	builder.State(StateIdle).
		On(EventSelectFlow).Target(StateCollectingInputs).
		On(EventReset).Target(StateIdle).
		Done()

	builder.State(StateCollectingInputs).
		On(EventSelectFlow).Target(StateCollectingInputs).
		On(EventSubmit).Target(StateAwaitingGeneration).Guard("inputsReady").
		On(EventReset).Target(StateIdle).
		Done()

	builder.State(StateAwaitingGeneration).
		On(EventGenerated).Target(StateReviewing).
		On(EventFail).Target(StateCollectingInputs).
		On(EventReset).Target(StateIdle).
		Done()

	builder.State(StateReviewing).
		On(EventReset).Target(StateIdle).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build session machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &StateMachine{interpreter: interpreter}, nil
}

// Transition fires event. The stage table is consulted first so self
// transitions (reset while idle) are distinguishable from rejected ones.
func (sm *StateMachine) Transition(event string) error {
	before := sm.CurrentStage()
	target, err := before.TransitionWith(event)
	if err != nil {
		return err
	}
	sm.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if sm.CurrentStage() != target {
		return &TransitionError{From: before, Event: event, Guarded: true}
	}
	return nil
}

func (sm *StateMachine) Current() string {
	return string(sm.interpreter.State().Value)
}

// CurrentStage returns the current state as a Stage.
func (sm *StateMachine) CurrentStage() Stage {
	return Stage(sm.Current())
}

// CanTransition checks if event is valid for the current stage.
func (sm *StateMachine) CanTransition(event string) bool {
	return sm.CurrentStage().CanTransitionWith(event)
}

// ValidEvents returns the valid events for the current stage.
func (sm *StateMachine) ValidEvents() []string {
	return sm.CurrentStage().ValidEvents()
}
