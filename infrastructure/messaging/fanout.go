package messaging

import (
	"context"
	"errors"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/events"

	"go.uber.org/zap"
)

// FanoutBus dispatches locally and mirrors every event to remote publishers.
// Subscriptions go to the local bus only.
type FanoutBus struct {
	local   ports.EventBus
	remotes []ports.EventPublisher
	logger  *zap.Logger
}

// NewFanoutBus creates a new fan-out bus
func NewFanoutBus(local ports.EventBus, logger *zap.Logger, remotes ...ports.EventPublisher) *FanoutBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanoutBus{local: local, remotes: remotes, logger: logger}
}

// Publish sends a single event everywhere
func (b *FanoutBus) Publish(ctx context.Context, event events.DomainEvent) error {
	return b.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends events to the local bus, then to each remote. Every
// destination is attempted; the failures are joined.
func (b *FanoutBus) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	if len(batch) == 0 {
		return nil
	}

	var errs []error
	if err := b.local.PublishBatch(ctx, batch); err != nil {
		errs = append(errs, err)
	}
	for _, remote := range b.remotes {
		if err := remote.PublishBatch(ctx, batch); err != nil {
			b.logger.Warn("Remote publish failed", zap.Int("count", len(batch)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a local handler
func (b *FanoutBus) Subscribe(eventType string, handler ports.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// Unsubscribe removes a local handler
func (b *FanoutBus) Unsubscribe(eventType string, handler ports.EventHandler) error {
	return b.local.Unsubscribe(eventType, handler)
}
