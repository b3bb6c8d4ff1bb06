// Package chat holds the conversational transcript of a review session.
package chat

import (
	"errors"
	"strings"

	"github.com/felixgeelhaar/edimap/pkg/domain/stream"
)

// ErrEmptyQuery is returned when a blank question is submitted.
var ErrEmptyQuery = errors.New("query is empty")

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the transcript.
type Turn struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content"`
	Reasoning []string `json:"reasoning,omitempty"`
	Collapsed bool     `json:"reasoning_collapsed,omitempty"`
	Thinking  bool     `json:"thinking,omitempty"`
	Error     string   `json:"error,omitempty"`

	response *stream.Response
}

// Clone returns a copy that shares no slices with t.
func (t Turn) Clone() Turn {
	t.Reasoning = append([]string(nil), t.Reasoning...)
	t.response = nil
	return t
}

// Transcript is an append-only sequence of turns. Only the last turn is
// ever mutated, and only while its response is streaming.
type Transcript struct {
	turns []Turn
}

// Ask appends the user's question and an assistant placeholder in the
// thinking state. It returns the placeholder's index.
func (t *Transcript) Ask(query string) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1, ErrEmptyQuery
	}
	t.turns = append(t.turns,
		Turn{Role: RoleUser, Content: query},
		Turn{Role: RoleAssistant, Thinking: true, response: &stream.Response{}},
	)
	return len(t.turns) - 1, nil
}

// Apply routes a streamed event into the last turn. Events arriving after
// Finish are ignored.
func (t *Transcript) Apply(ev stream.Event) {
	last := t.last()
	if last == nil || !last.Thinking || last.response == nil {
		return
	}
	last.response.Apply(ev)
	last.sync()
}

// Finish marks the last turn as no longer thinking. A non-nil err is kept as
// the turn's error text.
func (t *Transcript) Finish(err error) {
	last := t.last()
	if last == nil || !last.Thinking {
		return
	}
	last.Thinking = false
	if err != nil {
		if last.Error != "" {
			last.Error += "\n"
		}
		last.Error += err.Error()
	}
}

// ToggleReasoning flips the reasoning panel of turn i. It reports whether
// i addressed an assistant turn.
func (t *Transcript) ToggleReasoning(i int) bool {
	if i < 0 || i >= len(t.turns) || t.turns[i].Role != RoleAssistant {
		return false
	}
	turn := &t.turns[i]
	if turn.response == nil {
		turn.response = &stream.Response{Collapsed: turn.Collapsed}
	}
	turn.response.Toggle()
	turn.Collapsed = turn.response.Collapsed
	return true
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Turn returns a copy of turn i.
func (t *Transcript) Turn(i int) (Turn, bool) {
	if i < 0 || i >= len(t.turns) {
		return Turn{}, false
	}
	return t.turns[i].Clone(), true
}

// Last returns a copy of the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	return t.Turn(len(t.turns) - 1)
}

// Turns returns copies of every turn in order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	for i := range t.turns {
		out[i] = t.turns[i].Clone()
	}
	return out
}

// Busy reports whether a response is still streaming.
func (t *Transcript) Busy() bool {
	last := t.last()
	return last != nil && last.Thinking
}

// Clear drops every turn.
func (t *Transcript) Clear() {
	t.turns = nil
}

func (t *Transcript) last() *Turn {
	if len(t.turns) == 0 {
		return nil
	}
	return &t.turns[len(t.turns)-1]
}

func (turn *Turn) sync() {
	r := turn.response
	turn.Reasoning = append(turn.Reasoning[:0], r.Reasoning...)
	turn.Content = r.Answer
	turn.Collapsed = r.Collapsed
	turn.Error = r.ErrorText()
}
