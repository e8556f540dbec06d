package rest

import (
	"context"
	"net/http"
	"time"

	"blueprint-drafts/application/commands/bus"
	querybus "blueprint-drafts/application/queries/bus"
	"blueprint-drafts/interfaces/http/rest/handlers"
	"blueprint-drafts/interfaces/http/rest/middleware"
	v1 "blueprint-drafts/interfaces/http/rest/v1"
	"blueprint-drafts/pkg/common"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterOptions carries the optional parts of the router
type RouterOptions struct {
	// CORSOrigins enables CORS for the listed origins when non-empty
	CORSOrigins []string
	// Metrics serves /metrics when set
	Metrics http.Handler
	// Observer receives per-request measurements
	Observer        middleware.RequestObserver
	ReadinessChecks []ReadinessCheck
	RequestTimeout  time.Duration
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	opts       RouterOptions
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	opts RouterOptions,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		opts:       opts,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestContext)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	router.Use(middleware.Metrics(rt.opts.Observer))
	router.Use(versionMiddleware)

	if len(rt.opts.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.Metrics)
	}

	// Legacy read-only surface
	router.Handle("/api/v1/*", v1.NewRouter(rt.queryBus, rt.errors, rt.logger))

	router.Route("/api/v2", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(rt.opts.RequestTimeout))

		h := handlers.NewSessionHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.OpenSession)
			r.Get("/", h.ListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(middleware.SessionContext)

				r.Get("/", h.GetView)
				r.Delete("/", h.CloseSession)
				r.Get("/advisories", h.GetAdvisories)
				r.Post("/edits", h.ApplyEdit)
				r.Post("/undo", h.Undo)
				r.Post("/redo", h.Redo)
				r.Post("/suggest", h.Suggest)
				r.Post("/proposals", h.ReceiveProposal)
				r.Put("/conflicts", h.ResolveConflict)
				r.Post("/discard", h.DiscardProposal)
				r.Post("/commit", h.Commit)
				r.Post("/checkpoint", h.Checkpoint)
				r.Post("/preview", h.Preview)
				r.Post("/connections", h.Connect)
			})
		})

		r.Route("/blueprints/{blueprintID}", func(r chi.Router) {
			r.Get("/versions", h.ListVersions)
			r.Get("/versions/{version}", h.GetVersion)
			r.Get("/compare", h.CompareVersions)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck runs every registered check with a short deadline
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for _, check := range rt.opts.ReadinessChecks {
		if err := check.Check(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}

	if len(failures) > 0 {
		rt.logger.Warn("Readiness check failed", zap.Any("failures", failures))
		common.RespondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not ready",
			"failures": failures,
		})
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// versionMiddleware adds API version headers to all responses
func versionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Latest", "v2")
		next.ServeHTTP(w, r)
	})
}
