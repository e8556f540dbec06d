package memory

import (
	"context"
	"sync"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/events"

	"go.uber.org/zap"
)

// WildcardEventType subscribes a handler to every event type
const WildcardEventType = "*"

// EventBus dispatches events to in-process handlers. Delivery is best
// effort: a failing handler is logged and never fails the publisher.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]ports.EventHandler
	logger   *zap.Logger
}

// NewEventBus creates a new in-process event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		handlers: make(map[string][]ports.EventHandler),
		logger:   logger,
	}
}

// Publish dispatches a single event
func (b *EventBus) Publish(ctx context.Context, event events.DomainEvent) error {
	b.mu.RLock()
	handlers := append(append([]ports.EventHandler(nil), b.handlers[event.GetEventType()]...), b.handlers[WildcardEventType]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if !h.CanHandle(event.GetEventType()) {
			continue
		}
		if err := h.Handle(ctx, event); err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("eventType", event.GetEventType()),
				zap.String("aggregateID", event.GetAggregateID()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// PublishBatch dispatches events in order
func (b *EventBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := b.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for an event type
func (b *EventBus) Subscribe(eventType string, handler ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Unsubscribe removes a handler
func (b *EventBus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.handlers[eventType]
	for i, h := range existing {
		if h == handler {
			b.handlers[eventType] = append(existing[:i:i], existing[i+1:]...)
			break
		}
	}
	return nil
}

// HandlerFunc adapts a function to ports.EventHandler for the given types
type HandlerFunc struct {
	Types []string
	Fn    func(ctx context.Context, event events.DomainEvent) error
}

// Handle implements ports.EventHandler
func (h *HandlerFunc) Handle(ctx context.Context, event events.DomainEvent) error {
	return h.Fn(ctx, event)
}

// CanHandle implements ports.EventHandler; no types means every type
func (h *HandlerFunc) CanHandle(eventType string) bool {
	if len(h.Types) == 0 {
		return true
	}
	for _, t := range h.Types {
		if t == eventType {
			return true
		}
	}
	return false
}
