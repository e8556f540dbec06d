package v1

import (
	"encoding/json"
	"net/http"

	"blueprint-drafts/application/queries"
	querybus "blueprint-drafts/application/queries/bus"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter creates the v1 API router. v1 only exposes the draft view and
// answers with the bare payload, without the v2 response envelope.
func NewRouter(queryBus *querybus.QueryBus, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = pkgerrors.NewErrorHandler(logger, false)
	}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(versionHeaders)

	v1.HandleFunc("/sessions/{id}/view", func(w http.ResponseWriter, r *http.Request) {
		result, err := queryBus.Ask(r.Context(), queries.GetViewQuery{SessionID: mux.Vars(r)["id"]})
		if err != nil {
			errorHandler.Handle(w, r, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, result)
	}).Methods(http.MethodGet)

	v1.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "healthy", "version": "v1"})
	}).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.HandleStatus(w, r, http.StatusNotFound, "v1 only serves GET /api/v1/sessions/{id}/view; use /api/v2")
	})

	return router
}

// versionHeaders adds API version headers to responses
func versionHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Version", "v1")
		w.Header().Set("X-API-Deprecated", "true")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
