package ports

import (
	"context"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/versioning"
)

// Snapshot is a committed blueprint together with its version record
type Snapshot struct {
	Version   *versioning.BlueprintVersion
	Blueprint *aggregates.Blueprint
}

// SnapshotStore persists committed blueprint versions.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type SnapshotStore interface {
	// LoadLatest retrieves the highest committed version; NotFound if none exists
	LoadLatest(ctx context.Context, blueprintID string) (*Snapshot, error)

	// Load retrieves one committed version
	Load(ctx context.Context, blueprintID string, version int) (*Snapshot, error)

	// Save persists a new version. It fails with VersionExists when the
	// version was already written, so two writers never both commit N+1.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Delete removes one version; used to compensate a failed commit
	Delete(ctx context.Context, blueprintID string, version int) error

	// ListVersions returns version records in ascending order
	ListVersions(ctx context.Context, blueprintID string) ([]*versioning.BlueprintVersion, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// EventBus defines the interface for publishing and consuming bus events
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for an event type
	Subscribe(eventType string, handler EventHandler) error

	// Unsubscribe removes a handler
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventHandler defines the interface for handling domain events
type EventHandler interface {
	// Handle processes an event
	Handle(ctx context.Context, event events.DomainEvent) error

	// CanHandle checks if this handler can process the event
	CanHandle(eventType string) bool
}
