package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventHandlerFunc is a function that handles a domain event.
type EventHandlerFunc func(ctx context.Context, event DomainEvent) error

// EventDispatcher fans journal events out to subscribers in registration
// order. A failing subscriber never prevents later ones from running.
type EventDispatcher struct {
	mu   sync.RWMutex
	subs []subscription
}

type subscription struct {
	name    string
	handler EventHandlerFunc
	types   map[string]struct{} // nil matches every event
}

func (s subscription) matches(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{}
}

// RegisterHandler subscribes handler to the given event types.
func (d *EventDispatcher) RegisterHandler(name string, handler EventHandlerFunc, eventTypes ...string) {
	types := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}
	d.add(subscription{name: name, handler: handler, types: types})
}

// RegisterWildcard subscribes handler to every event.
func (d *EventDispatcher) RegisterWildcard(name string, handler EventHandlerFunc) {
	d.add(subscription{name: name, handler: handler})
}

func (d *EventDispatcher) add(s subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, s)
}

// Dispatch runs every matching subscriber and joins their errors.
func (d *EventDispatcher) Dispatch(ctx context.Context, event DomainEvent) error {
	eventType := event.EventType()

	d.mu.RLock()
	matched := make([]subscription, 0, len(d.subs))
	for _, s := range d.subs {
		if s.matches(eventType) {
			matched = append(matched, s)
		}
	}
	d.mu.RUnlock()

	var errs []error
	for _, s := range matched {
		if err := s.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("handler %s failed for event %s: %w", s.name, eventType, err))
		}
	}
	return errors.Join(errs...)
}
