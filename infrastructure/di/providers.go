package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"blueprint-drafts/application/commands/bus"
	commandhandlers "blueprint-drafts/application/commands/handlers"
	"blueprint-drafts/application/listeners"
	"blueprint-drafts/application/ports"
	querybus "blueprint-drafts/application/queries/bus"
	queryhandlers "blueprint-drafts/application/queries/handlers"
	"blueprint-drafts/application/sagas"
	"blueprint-drafts/application/services"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/diff"
	"blueprint-drafts/infrastructure/config"
	"blueprint-drafts/infrastructure/messaging"
	"blueprint-drafts/infrastructure/messaging/eventbridge"
	messagingmemory "blueprint-drafts/infrastructure/messaging/memory"
	"blueprint-drafts/infrastructure/messaging/websocket"
	"blueprint-drafts/infrastructure/persistence/dynamodb"
	"blueprint-drafts/infrastructure/persistence/memory"
	"blueprint-drafts/infrastructure/preview"
	"blueprint-drafts/interfaces/http/rest"
	pkgerrors "blueprint-drafts/pkg/errors"
	"blueprint-drafts/pkg/observability"
	"blueprint-drafts/pkg/ratelimit"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName names the service in traces and metric namespaces
const ServiceName = "blueprint-drafts"

// LocalEventBus is the in-process bus listeners subscribe to
type LocalEventBus struct {
	*messagingmemory.EventBus
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", ServiceName), zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideSnapshotStore selects the configured snapshot backend. Reads of the
// latest version go through a short-lived cache when a TTL is set.
func ProvideSnapshotStore(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (ports.SnapshotStore, error) {
	var store ports.SnapshotStore
	switch cfg.StorageBackend {
	case config.StorageMemory:
		store = memory.NewSnapshotStore()
	case config.StorageDynamoDB:
		store = dynamodb.NewSnapshotStore(client, cfg.SnapshotTable, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.SnapshotCacheTTL > 0 {
		store = memory.NewCachingSnapshotStore(store, cfg.SnapshotCacheTTL)
	}
	logger.Info("Snapshot store configured",
		zap.String("backend", cfg.StorageBackend),
		zap.Duration("cacheTTL", cfg.SnapshotCacheTTL),
	)
	return store, nil
}

// ProvideLocalEventBus creates the in-process event bus
func ProvideLocalEventBus(logger *zap.Logger) *LocalEventBus {
	return &LocalEventBus{EventBus: messagingmemory.NewEventBus(logger)}
}

// ProvideEventBus mirrors local events to EventBridge when a bus is configured
func ProvideEventBus(local *LocalEventBus, client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventBus {
	if cfg.EventBusName == "" {
		return local.EventBus
	}
	publisher := eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
	return messaging.NewFanoutBus(local.EventBus, logger, publisher)
}

// ProvideNotifier creates the websocket notifier, or nil when no endpoint is set
func ProvideNotifier(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.Notifier {
	if cfg.WebSocketEndpoint == "" {
		return nil
	}
	return websocket.NewNotifier(websocket.NewClient(awsCfg, cfg.WebSocketEndpoint), logger)
}

// ProvidePreviewRunner creates the sandbox client, or nil when no runner is set
func ProvidePreviewRunner(cfg *config.Config, logger *zap.Logger) ports.PreviewRunner {
	if cfg.PreviewRunnerURL == "" {
		return nil
	}
	runnerCfg := preview.DefaultRunnerConfig(cfg.PreviewRunnerURL)
	runnerCfg.RetryMax = cfg.PreviewRetries
	if cfg.PreviewBreakerTrips > 0 {
		runnerCfg.TripAfter = uint32(cfg.PreviewBreakerTrips)
	}
	if cfg.PreviewBreakerWindow > 0 {
		runnerCfg.OpenTimeout = cfg.PreviewBreakerWindow
	}
	return preview.NewHTTPRunner(runnerCfg, logger)
}

// ProvidePrometheus creates the scrape collectors, or nil when disabled
func ProvidePrometheus(cfg *config.Config) *observability.PrometheusMetrics {
	if !cfg.EnablePrometheus {
		return nil
	}
	return observability.NewPrometheusMetrics()
}

// ProvideMetrics combines the enabled metric sinks
func ProvideMetrics(cfg *config.Config, client *awscloudwatch.Client, prom *observability.PrometheusMetrics, logger *zap.Logger) *observability.MultiRecorder {
	var recorders []ports.MetricsRecorder
	if cfg.EnableMetrics {
		recorders = append(recorders, observability.NewMetrics("BlueprintDrafts", client, logger))
	}
	if prom != nil {
		recorders = append(recorders, prom)
	}
	return observability.NewMultiRecorder(recorders...)
}

// ProvideMetricsRecorder exposes the recorder to the application layer
func ProvideMetricsRecorder(metrics *observability.MultiRecorder) ports.MetricsRecorder {
	if metrics.Len() == 0 {
		return nil
	}
	return metrics
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) ports.Tracer {
	if !cfg.EnableTracing {
		return nil
	}
	return observability.NewTracer(ServiceName, true)
}

// ProvideSessionManager creates the session registry
func ProvideSessionManager(store ports.SnapshotStore, cfg *config.Config, logger *zap.Logger) *services.SessionManager {
	return services.NewSessionManager(store, cfg.Domain, logger)
}

// ProvideCommitSaga creates the commit saga
func ProvideCommitSaga(store ports.SnapshotStore, logger *zap.Logger) *sagas.CommitSaga {
	return sagas.NewCommitSaga(store, logger)
}

// ProvideProposalLimiter creates the per-source proposal limiter
func ProvideProposalLimiter(cfg *config.Config) services.ProposalLimiter {
	if cfg.Domain == nil || cfg.Domain.MaxProposalsPerMinute <= 0 {
		return nil
	}
	return ratelimit.NewSourceRateLimiter(cfg.Domain.MaxProposalsPerMinute)
}

// ProvideReconciler creates the reconciliation engine
func ProvideReconciler(
	sessions *services.SessionManager,
	eventBus ports.EventBus,
	runner ports.PreviewRunner,
	commits *sagas.CommitSaga,
	limiter services.ProposalLimiter,
	notifier ports.Notifier,
	metrics ports.MetricsRecorder,
	tracer ports.Tracer,
	logger *zap.Logger,
) *services.Reconciler {
	return services.NewReconciler(sessions, eventBus, runner, commits, limiter, notifier, metrics, tracer, logger)
}

// ProvideCommandBus creates the command bus with every handler registered
func ProvideCommandBus(reconciler *services.Reconciler, metrics ports.MetricsRecorder, logger *zap.Logger) (*bus.CommandBus, error) {
	middlewares := []bus.Middleware{bus.LoggingMiddleware(logger)}
	if metrics != nil {
		middlewares = append(middlewares, bus.MetricsMiddleware(metrics))
	}

	commandBus := bus.NewCommandBus(middlewares...)
	if err := commandhandlers.NewSessionHandlers(reconciler).Register(commandBus); err != nil {
		return nil, fmt.Errorf("failed to register command handlers: %w", err)
	}
	return commandBus, nil
}

// ProvideQueryBus creates the query bus with every handler registered
func ProvideQueryBus(
	reconciler *services.Reconciler,
	sessions *services.SessionManager,
	store ports.SnapshotStore,
	metrics ports.MetricsRecorder,
	cfg *config.Config,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus()

	var metricsMiddleware *querybus.MetricsMiddleware
	if metrics != nil {
		metricsMiddleware = querybus.NewMetricsMiddleware(metrics)
	}
	cache := querybus.NewCachingMiddleware(memory.NewCache(), cfg.SnapshotCacheTTL)
	differ := diff.NewDiffer(validators.NewBlueprintValidator(cfg.Domain))

	handlers := queryhandlers.NewSessionQueryHandlers(reconciler, sessions, store, differ, logger)
	if err := handlers.Register(queryBus, cache, metricsMiddleware); err != nil {
		return nil, fmt.Errorf("failed to register query handlers: %w", err)
	}
	return queryBus, nil
}

// ProvideRunRequestedListener subscribes the preview listener on the local bus
func ProvideRunRequestedListener(local *LocalEventBus, reconciler *services.Reconciler, logger *zap.Logger) (*listeners.RunRequestedListener, error) {
	listener := listeners.NewRunRequestedListener(reconciler, logger)
	if err := listener.Register(local.EventBus); err != nil {
		return nil, err
	}
	return listener, nil
}

// ProvideErrorHandler creates the HTTP error handler
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideRouter builds the HTTP surface
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	prom *observability.PrometheusMetrics,
	runner ports.PreviewRunner,
	logger *zap.Logger,
) http.Handler {
	opts := rest.RouterOptions{
		ReadinessChecks: readinessChecks(runner),
	}
	if cfg.EnableCORS {
		opts.CORSOrigins = cfg.CORSOrigins
	}
	if prom != nil {
		opts.Metrics = prom.Handler()
		opts.Observer = prom
	}
	return rest.NewRouter(commandBus, queryBus, errorHandler, opts, logger).Setup()
}

func readinessChecks(runner ports.PreviewRunner) []rest.ReadinessCheck {
	var checks []rest.ReadinessCheck
	if r, ok := runner.(*preview.HTTPRunner); ok {
		checks = append(checks, rest.ReadinessCheck{
			Name: "preview-runner",
			Check: func(ctx context.Context) error {
				if r.State() == gobreaker.StateOpen {
					return errors.New("circuit breaker open")
				}
				return nil
			},
		})
	}
	return checks
}
