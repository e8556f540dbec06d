package ports

import (
	"context"
	"time"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/events"
)

// PreviewReport is the outcome of one sandbox run
type PreviewReport struct {
	OK     bool                  `json:"ok"`
	Errors []events.SandboxIssue `json:"errors"`
}

// PreviewRunner executes a candidate blueprint in a sandbox. It must not
// mutate its input and should return promptly once ctx is cancelled.
type PreviewRunner interface {
	Run(ctx context.Context, blueprint *aggregates.Blueprint) (*PreviewReport, error)
}

// Notifier pushes events to the editors attached to a session
type Notifier interface {
	Register(ctx context.Context, sessionID, connectionID string) error
	Unregister(ctx context.Context, sessionID, connectionID string) error
	Notify(ctx context.Context, sessionID string, event events.DomainEvent) error
}

// MetricsRecorder records operational metrics
type MetricsRecorder interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, err error)
	RecordConflicts(ctx context.Context, kind string, count int)
	RecordPreview(ctx context.Context, ok, stale bool)
}

// Tracer wraps an operation in a trace span
type Tracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
}
