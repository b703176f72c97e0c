package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/dukex/agentbundle/pkg/events"
	"github.com/google/uuid"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// MemoryEventBus delivers events synchronously, in publish order, to the
// handlers registered for their type. Handlers run on the publisher's
// goroutine once Subscribe has been called.
type MemoryEventBus struct {
	mu         sync.RWMutex
	handlers   map[events.EventType][]EventHandler
	subscribed bool
	closed     bool
}

func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{
		handlers: make(map[events.EventType][]EventHandler),
	}
}

func (eb *MemoryEventBus) GenerateID() string {
	return uuid.New().String()
}

func (eb *MemoryEventBus) Publish(ctx context.Context, _ string, event Event) error {
	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()

		return ErrBusClosed
	}

	var handlers []EventHandler
	if eb.subscribed {
		handlers = append(handlers, eb.handlers[event.GetType()]...)
	}
	eb.mu.RUnlock()

	var errs []error

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (eb *MemoryEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)

	return nil
}

func (eb *MemoryEventBus) Subscribe(_ context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return ErrBusClosed
	}

	eb.subscribed = true

	return nil
}

func (eb *MemoryEventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.closed = true
	eb.handlers = make(map[events.EventType][]EventHandler)

	return nil
}
