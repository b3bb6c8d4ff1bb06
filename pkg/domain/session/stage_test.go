package session_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/edimap/pkg/domain/session"
)

func TestStageTransitionTable(t *testing.T) {
	tests := []struct {
		from  session.Stage
		event string
		want  session.Stage
		ok    bool
	}{
		{session.StageIdle, session.EventSelectFlow, session.StageCollectingInputs, true},
		{session.StageIdle, session.EventSubmit, session.StageIdle, false},
		{session.StageCollectingInputs, session.EventSubmit, session.StageAwaitingGeneration, true},
		{session.StageCollectingInputs, session.EventGenerated, session.StageCollectingInputs, false},
		{session.StageAwaitingGeneration, session.EventGenerated, session.StageReviewing, true},
		{session.StageAwaitingGeneration, session.EventFail, session.StageCollectingInputs, true},
		{session.StageReviewing, session.EventSubmit, session.StageReviewing, false},
		{session.StageReviewing, session.EventSelectFlow, session.StageReviewing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.event, func(t *testing.T) {
			got, err := tt.from.TransitionWith(tt.event)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, session.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResetAllowedFromEveryStage(t *testing.T) {
	for _, s := range session.AllStages() {
		got, err := s.TransitionWith(session.EventReset)
		if err != nil || got != session.StageIdle {
			t.Errorf("reset from %s: got %s, %v", s, got, err)
		}
	}
}

func TestStageEditable(t *testing.T) {
	for _, s := range session.AllStages() {
		if s.Editable() != (s == session.StageReviewing) {
			t.Errorf("%s editable = %v", s, s.Editable())
		}
	}
}

func TestStageJSON(t *testing.T) {
	data, err := json.Marshal(session.StageReviewing)
	if err != nil || string(data) != `"reviewing"` {
		t.Fatalf("marshal: %s %v", data, err)
	}
	var s session.Stage
	if err := json.Unmarshal([]byte(`"awaiting_generation"`), &s); err != nil || s != session.StageAwaitingGeneration {
		t.Errorf("unmarshal: %s %v", s, err)
	}
	if err := json.Unmarshal([]byte(`"finished"`), &s); err == nil {
		t.Error("expected error for unknown stage")
	}
}

func TestValidEventsSorted(t *testing.T) {
	got := session.StageCollectingInputs.ValidEvents()
	want := []string{session.EventReset, session.EventSelectFlow, session.EventSubmit}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
