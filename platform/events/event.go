// Package events is the in-process event bus the modules talk over.
// A publisher raises a domain event (a lead was assigned, an escalation
// fired) without knowing which modules listen; subscribers react without
// importing the publisher.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type, e.g. "leads.lead.assigned".
	EventName() string
	// OccurredAt is when the event happened, not when it was handled.
	OccurredAt() time.Time
}

// BaseEvent carries the fields shared by all events. Embed it and set
// it with NewBaseEvent at the publish site.
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

// Handler processes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish dispatches the event asynchronously. Failures are the
	// bus's problem to log; the publisher does not wait.
	Publish(ctx context.Context, event Event)

	// PublishSync dispatches the event and waits for every handler,
	// returning the first handler error. Used where the caller's own
	// outcome depends on the handlers, such as opt-out processing.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the given EventName value.
	Subscribe(eventName string, handler Handler)
}
