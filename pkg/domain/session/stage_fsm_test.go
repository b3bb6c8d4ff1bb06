package session_test

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/edimap/pkg/domain/session"
)

func TestStateMachineHappyPath(t *testing.T) {
	fsm, err := session.NewStateMachine(session.StageIdle, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for _, step := range []struct {
		event string
		want  session.Stage
	}{
		{session.EventSelectFlow, session.StageCollectingInputs},
		{session.EventSubmit, session.StageAwaitingGeneration},
		{session.EventGenerated, session.StageReviewing},
		{session.EventReset, session.StageIdle},
	} {
		if err := fsm.Transition(step.event); err != nil {
			t.Fatalf("%s failed: %v", step.event, err)
		}
		if fsm.CurrentStage() != step.want {
			t.Fatalf("after %s expected %s, got %s", step.event, step.want, fsm.Current())
		}
	}
}

func TestStateMachineFailureReturnsToCollecting(t *testing.T) {
	fsm, _ := session.NewStateMachine(session.StageAwaitingGeneration, nil)
	if err := fsm.Transition(session.EventFail); err != nil {
		t.Fatal(err)
	}
	if fsm.CurrentStage() != session.StageCollectingInputs {
		t.Errorf("expected collecting_inputs, got %s", fsm.Current())
	}
}

func TestStateMachineRejectsInvalidEvent(t *testing.T) {
	fsm, _ := session.NewStateMachine(session.StageReviewing, nil)
	err := fsm.Transition(session.EventSubmit)
	if !errors.Is(err, session.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if fsm.CurrentStage() != session.StageReviewing {
		t.Errorf("stage changed on invalid event")
	}
}

func TestStateMachineGuardBlocksSubmit(t *testing.T) {
	ready := false
	fsm, _ := session.NewStateMachine(session.StageCollectingInputs, func(string) bool { return ready })

	err := fsm.Transition(session.EventSubmit)
	if !errors.Is(err, session.ErrGuardRejected) {
		t.Fatalf("expected ErrGuardRejected, got %v", err)
	}
	if fsm.CurrentStage() != session.StageCollectingInputs {
		t.Fatalf("stage changed despite failing guard")
	}

	ready = true
	if err := fsm.Transition(session.EventSubmit); err != nil {
		t.Fatalf("submit with ready inputs: %v", err)
	}
}

func TestStateMachineResetWhileIdle(t *testing.T) {
	fsm, _ := session.NewStateMachine(session.StageIdle, nil)
	if err := fsm.Transition(session.EventReset); err != nil {
		t.Errorf("reset while idle should succeed, got %v", err)
	}
	if _, err := session.NewStateMachine(session.Stage("bogus"), nil); err == nil {
		t.Error("expected error for unknown initial stage")
	}
}
