// Package session models the lifecycle of one mapping workflow instance.
package session

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Stage is the user-visible lifecycle stage of a session.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageCollectingInputs   Stage = "collecting_inputs"
	StageAwaitingGeneration Stage = "awaiting_generation"
	StageReviewing          Stage = "reviewing"
)

// Events that drive the lifecycle.
const (
	EventSelectFlow = "select_flow"
	EventSubmit     = "submit"
	EventGenerated  = "generated"
	EventFail       = "fail"
	EventReset      = "reset"
)

// validTransitions defines the allowed transitions.
// Map: currentStage -> event -> targetStage
var validTransitions = map[Stage]map[string]Stage{
	StageIdle: {
		EventSelectFlow: StageCollectingInputs,
		EventReset:      StageIdle,
	},
	StageCollectingInputs: {
		EventSelectFlow: StageCollectingInputs,
		EventSubmit:     StageAwaitingGeneration,
		EventReset:      StageIdle,
	},
	StageAwaitingGeneration: {
		EventGenerated: StageReviewing,
		EventFail:      StageCollectingInputs,
		EventReset:     StageIdle,
	},
	StageReviewing: {
		EventReset: StageIdle,
	},
}

// AllStages returns every stage in lifecycle order.
func AllStages() []Stage {
	return []Stage{StageIdle, StageCollectingInputs, StageAwaitingGeneration, StageReviewing}
}

// IsValid returns true if s is a known stage.
func (s Stage) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s Stage) String() string {
	return string(s)
}

// CanTransitionWith returns true if event is allowed from s.
func (s Stage) CanTransitionWith(event string) bool {
	_, ok := validTransitions[s][event]
	return ok
}

// TransitionWith returns the target stage for event, or an error if not allowed.
func (s Stage) TransitionWith(event string) (Stage, error) {
	target, ok := validTransitions[s][event]
	if !ok {
		return s, &TransitionError{From: s, Event: event}
	}
	return target, nil
}

// ValidEvents returns the events allowed from s, sorted.
func (s Stage) ValidEvents() []string {
	transitions := validTransitions[s]
	events := make([]string, 0, len(transitions))
	for e := range transitions {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// Editable reports whether grid edits are accepted in this stage.
func (s Stage) Editable() bool {
	return s == StageReviewing
}

// DisplayName returns a human-readable name.
func (s Stage) DisplayName() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageCollectingInputs:
		return "Collecting inputs"
	case StageAwaitingGeneration:
		return "Generating"
	case StageReviewing:
		return "Reviewing"
	default:
		return string(s)
	}
}

// ParseStage parses a string into a Stage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.IsValid() {
		return "", fmt.Errorf("invalid session stage: %s", s)
	}
	return stage, nil
}

// MarshalJSON implements json.Marshaler.
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStage(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
