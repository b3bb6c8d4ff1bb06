package events

// Filter selects journal events. Zero fields match everything.
type Filter struct {
	Session string
	Types   []string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *BaseEvent) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

// EventStore persists the session journal.
type EventStore interface {
	// Append chains event to the journal tail and persists it.
	Append(event *BaseEvent) error

	// Query returns matching events in append order.
	Query(f Filter) ([]*BaseEvent, error)

	// Last returns the journal tail, or nil when empty.
	Last() (*BaseEvent, error)
}
