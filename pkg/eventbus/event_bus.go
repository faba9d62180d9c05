// Package eventbus publishes and consumes ruleflow events over watermill.
package eventbus

import (
	"context"

	"github.com/dukex/ruleflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher is all the engine needs. key is "<model>:<record id>" and
// decides the Kafka partition, so one record's events stay ordered.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches decoded events to the handler registered for
// their type. Events without a handler are acknowledged and dropped.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the concrete event struct, for
// example *events.TransitionExecuted. Returning an error nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
