package di

import (
	"context"
	"net/http"
	"time"

	"blueprint-drafts/application/commands/bus"
	"blueprint-drafts/application/listeners"
	"blueprint-drafts/application/ports"
	querybus "blueprint-drafts/application/queries/bus"
	"blueprint-drafts/application/services"
	"blueprint-drafts/infrastructure/config"
	"blueprint-drafts/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      ports.SnapshotStore
	EventBus   ports.EventBus
	Sessions   *services.SessionManager
	Reconciler *services.Reconciler
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Listener   *listeners.RunRequestedListener
	Metrics    *observability.MultiRecorder
	Router     http.Handler
}

// RunBackground runs the session sweeper until ctx is done. Each sweep also
// refreshes the open session gauge.
func (c *Container) RunBackground(ctx context.Context) {
	interval := c.Config.SessionSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := c.Sessions.Sweep(); len(reaped) > 0 {
				c.Logger.Info("Reaped idle sessions", zap.Int("count", len(reaped)))
			}
			c.Metrics.RecordActiveSessions(ctx, c.Sessions.Count())
		}
	}
}

// Shutdown flushes the logger
func (c *Container) Shutdown() {
	_ = c.Logger.Sync()
}
