// Package eventbus carries workspace events from the components that emit
// them to the handlers that observe them.
package eventbus

import (
	"context"
	"log/slog"

	"github.com/dukex/agentbundle/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// Emit publishes each event under key. A nil publisher is allowed. Publish
// failures are logged and never returned: observers must not be able to
// break the operation that produced the event.
func Emit(ctx context.Context, publisher EventPublisher, logger *slog.Logger, key string, evs ...Event) {
	if publisher == nil {
		return
	}

	for _, event := range evs {
		err := publisher.Publish(ctx, key, event)
		if err != nil && logger != nil {
			logger.ErrorContext(ctx, "failed to publish event",
				"event_type", event.GetType(),
				"key", key,
				"error", err)
		}
	}
}

// HandleAll registers handler for every known event type.
func HandleAll(subscriber EventSubscriber, handler EventHandler) error {
	for _, eventType := range events.AllEventTypes {
		if err := subscriber.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return nil
}
