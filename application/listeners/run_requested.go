package listeners

import (
	"context"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/application/services"
	"blueprint-drafts/domain/events"
	pkgerrors "blueprint-drafts/pkg/errors"

	"go.uber.org/zap"
)

// Previewer runs a preview for a session
type Previewer interface {
	Preview(ctx context.Context, sessionID string) (*services.PreviewOutcome, error)
}

// RunRequestedListener triggers a preview when frosty.runRequested arrives
type RunRequestedListener struct {
	previewer Previewer
	logger    *zap.Logger
}

// NewRunRequestedListener creates a new listener
func NewRunRequestedListener(previewer Previewer, logger *zap.Logger) *RunRequestedListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunRequestedListener{previewer: previewer, logger: logger}
}

// Register subscribes the listener on bus
func (l *RunRequestedListener) Register(bus ports.EventBus) error {
	return bus.Subscribe(events.TypeRunRequested, l)
}

// CanHandle implements ports.EventHandler
func (l *RunRequestedListener) CanHandle(eventType string) bool {
	return eventType == events.TypeRunRequested
}

// Handle implements ports.EventHandler. Advisory outcomes and sessions that
// are gone are logged, not returned: the request is fire and forget.
func (l *RunRequestedListener) Handle(ctx context.Context, event events.DomainEvent) error {
	sessionID := event.GetAggregateID()
	outcome, err := l.previewer.Preview(ctx, sessionID)
	switch {
	case err == nil:
		l.logger.Info("Preview completed",
			zap.String("sessionID", sessionID),
			zap.Bool("ok", outcome.Report.OK),
			zap.Bool("stale", outcome.Stale),
			zap.Int("issues", len(outcome.Report.Errors)),
		)
		return nil
	case pkgerrors.IsNotFound(err):
		l.logger.Debug("Preview requested for unknown session", zap.String("sessionID", sessionID))
		return nil
	default:
		if domainErr := pkgerrors.GetDomainError(err); domainErr != nil && domainErr.Code == pkgerrors.CodeSandboxAdvisory {
			l.logger.Warn("Preview runner unavailable", zap.String("sessionID", sessionID), zap.Error(err))
			return nil
		}
		return err
	}
}
