package events

import "cdpproxy/core/types"

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as flat
// attribute maps for indexers and stream subscribers.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the indexer and
// websocket stream).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// ToTypes renders ev as a types.Event. Events that do not implement Typed
// carry only their type.
func ToTypes(ev Event) *types.Event {
	if ev == nil {
		return nil
	}
	if typed, ok := ev.(Typed); ok {
		return typed.Event()
	}
	return &types.Event{Type: ev.EventType(), Attributes: map[string]string{}}
}

// Fanout forwards every event to each wrapped emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(ev Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(ev)
		}
	}
}
