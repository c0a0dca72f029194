package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/retailpos/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus implements EventBus with in-memory pub/sub. When
// constructed with a known-type set, publishing an event outside that set
// fails loudly instead of being dropped.
type InMemoryEventBus struct {
	registry   *HandlerRegistry
	knownTypes map[string]bool // nil = open set
	logger     *zap.Logger
	running    atomic.Bool
	wg         sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus. If knownTypes is
// non-empty the bus only accepts those event types.
func NewInMemoryEventBus(logger *zap.Logger, knownTypes ...string) *InMemoryEventBus {
	var known map[string]bool
	if len(knownTypes) > 0 {
		known = make(map[string]bool, len(knownTypes))
		for _, t := range knownTypes {
			known[t] = true
		}
	}
	return &InMemoryEventBus{
		registry:   NewHandlerRegistry(),
		knownTypes: known,
		logger:     logger,
	}
}

// Publish publishes events to all registered handlers synchronously.
// Every handler is given the event even when an earlier one fails; the
// failures are joined into the returned error so the caller (the outbox
// processor, or a direct publisher) can retry the delivery. Handlers are
// wrapped for idempotency at wiring time, so redelivering an event a
// handler already processed is safe.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, event := range events {
		if b.knownTypes != nil && !b.knownTypes[event.EventType()] {
			return fmt.Errorf("event type %q is not part of this bus's event set", event.EventType())
		}

		handlers := b.registry.GetHandlers(event.EventType())
		for _, handler := range handlers {
			if err := b.dispatchToHandler(ctx, handler, event); err != nil {
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", event.EventType(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for specific event types. On a closed bus
// a subscription for an unknown type is dropped with an error log, so a
// misspelled type surfaces at wiring time rather than as silently
// undelivered events.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	if b.knownTypes != nil {
		accepted := make([]string, 0, len(eventTypes))
		for _, t := range eventTypes {
			if !b.knownTypes[t] {
				b.logger.Error("subscription rejected for unknown event type",
					zap.String("event_type", t),
				)
				continue
			}
			accepted = append(accepted, t)
		}
		eventTypes = accepted
	}
	if len(eventTypes) == 0 {
		return
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed",
		zap.Strings("event_types", eventTypes),
	)
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start starts the event bus
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop stops the event bus gracefully
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.wg.Wait()
	b.logger.Info("event bus stopped")
	return nil
}

// dispatchToHandler safely dispatches an event to a handler
func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked processing %s: %v", event.EventType(), r)
		}
	}()

	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
