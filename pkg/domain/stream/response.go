package stream

import "strings"

// Response accumulates the events of one assistant reply.
//
// The reasoning panel starts expanded and collapses the moment the first
// answer fragment arrives, unless the user has already toggled it.
type Response struct {
	Reasoning []string
	Answer    string
	Errors    []string
	Collapsed bool

	answered bool
	toggled  bool
}

// Apply folds ev into the response. It reports whether this event caused
// the automatic collapse.
func (r *Response) Apply(ev Event) bool {
	switch ev.Kind {
	case KindReasoning:
		r.Reasoning = append(r.Reasoning, ev.Text)
	case KindAnswer:
		r.Answer += ev.Text
		if !r.answered {
			r.answered = true
			if !r.toggled && !r.Collapsed {
				r.Collapsed = true
				return true
			}
		}
	case KindError:
		r.Errors = append(r.Errors, ev.Text)
	}
	return false
}

// Toggle flips the reasoning panel on user request.
func (r *Response) Toggle() {
	r.toggled = true
	r.Collapsed = !r.Collapsed
}

// Toggled reports whether the user has flipped the panel explicitly.
func (r *Response) Toggled() bool {
	return r.toggled
}

// Answered reports whether any answer fragment has been observed.
func (r *Response) Answered() bool {
	return r.answered
}

// ReasoningText joins the fragments in arrival order.
func (r *Response) ReasoningText() string {
	return strings.Join(r.Reasoning, "")
}

// ErrorText joins error events, one per line.
func (r *Response) ErrorText() string {
	return strings.Join(r.Errors, "\n")
}
