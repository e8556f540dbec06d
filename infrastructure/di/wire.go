//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"blueprint-drafts/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideSnapshotStore,
	ProvideLocalEventBus,
	ProvideEventBus,
	ProvideNotifier,
	ProvidePreviewRunner,
	ProvidePrometheus,
	ProvideMetrics,
	ProvideMetricsRecorder,
	ProvideTracer,
	ProvideSessionManager,
	ProvideCommitSaga,
	ProvideProposalLimiter,
	ProvideReconciler,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideRunRequestedListener,
	ProvideErrorHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
