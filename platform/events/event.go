// Package events carries the in-process event bus that decouples the
// workflow modules: ingestion notices flow into detection, task lifecycle
// events flow into notification, without either side importing the other.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event. EventName doubles as the
// subscription key, so it must be stable across releases.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent supplies the timestamp common to all events; embed it in
// concrete event structs.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events delivered by the bus.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes and subscribes domain events within one process.
type Bus interface {
	// Publish fans the event out without waiting. The in-memory
	// implementation runs each handler on its own goroutine with a
	// context detached from the caller, so analysis triggered by an HTTP
	// request outlives that request; handler errors are logged, not
	// surfaced.
	Publish(ctx context.Context, event Event)

	// PublishSync runs the handlers in subscription order and returns
	// their combined errors.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under the event's EventName.
	Subscribe(eventName string, handler Handler)
}
