package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blueprint-drafts/application/commands/bus"
	commandhandlers "blueprint-drafts/application/commands/handlers"
	querybus "blueprint-drafts/application/queries/bus"
	queryhandlers "blueprint-drafts/application/queries/handlers"
	"blueprint-drafts/application/sagas"
	"blueprint-drafts/application/services"
	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/diff"
	messagingmemory "blueprint-drafts/infrastructure/messaging/memory"
	"blueprint-drafts/infrastructure/persistence/memory"
	pkgerrors "blueprint-drafts/pkg/errors"
	"blueprint-drafts/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, checks ...ReadinessCheck) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.DefaultDomainConfig()
	store := memory.NewSnapshotStore()
	sessions := services.NewSessionManager(store, cfg, logger)
	reconciler := services.NewReconciler(sessions, messagingmemory.NewEventBus(logger), nil,
		sagas.NewCommitSaga(store, logger), nil, nil, nil, nil, logger)

	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	require.NoError(t, commandhandlers.NewSessionHandlers(reconciler).Register(commandBus))

	queryBus := querybus.NewQueryBus()
	differ := diff.NewDiffer(validators.NewBlueprintValidator(cfg))
	require.NoError(t, queryhandlers.NewSessionQueryHandlers(reconciler, sessions, store, differ, logger).
		Register(queryBus, querybus.NewCachingMiddleware(memory.NewCache(), 0), nil))

	prom := observability.NewPrometheusMetrics()
	router := NewRouter(commandBus, queryBus, pkgerrors.NewErrorHandler(logger, false), RouterOptions{
		Metrics:         prom.Handler(),
		Observer:        prom,
		ReadinessChecks: checks,
	}, logger)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeData(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.True(t, env.Success, string(raw))
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func openSession(t *testing.T, server *httptest.Server) string {
	t.Helper()
	status, body := call(t, server, http.MethodPost, "/api/v2/sessions", `{"blueprintId":"bp-1"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var view struct {
		SessionID string `json:"sessionId"`
	}
	decodeData(t, body, &view)
	require.NotEmpty(t, view.SessionID)
	return view.SessionID
}

func TestSessionEditAndCommitOverHTTP(t *testing.T) {
	server := newTestServer(t)
	id := openSession(t, server)
	base := "/api/v2/sessions/" + id

	status, body := call(t, server, http.MethodPost, base+"/edits",
		`{"op":{"path":"nodes/A","kind":"add","value":{"id":"A","type":"trigger","position":{"x":0,"y":0}}}}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var edit struct {
		Ops  []json.RawMessage `json:"ops"`
		View struct {
			CanUndo bool `json:"canUndo"`
		} `json:"view"`
	}
	decodeData(t, body, &edit)
	assert.Len(t, edit.Ops, 1)
	assert.True(t, edit.View.CanUndo)

	status, body = call(t, server, http.MethodPost, base+"/commit", "")
	require.Equal(t, http.StatusCreated, status, string(body))
	var outcome struct {
		Version struct {
			Version int `json:"version"`
		} `json:"version"`
	}
	decodeData(t, body, &outcome)
	assert.Equal(t, 1, outcome.Version.Version)

	status, body = call(t, server, http.MethodGet, "/api/v2/blueprints/bp-1/versions", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	decodeData(t, body, &page)
	assert.Len(t, page.Items, 1)

	status, _ = call(t, server, http.MethodGet, "/api/v2/blueprints/bp-1/versions/1", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, server, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = call(t, server, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRequestErrorsMapToStatus(t *testing.T) {
	server := newTestServer(t)
	id := openSession(t, server)
	base := "/api/v2/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed json", http.MethodPost, "/api/v2/sessions", `{"blueprintId":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v2/sessions", `{"blueprint":"bp-1"}`, http.StatusBadRequest},
		{"missing blueprint id", http.MethodPost, "/api/v2/sessions", `{}`, http.StatusBadRequest},
		{"bad patch path", http.MethodPost, base + "/edits", `{"op":{"path":"widgets/A","kind":"add"}}`, http.StatusUnprocessableEntity},
		{"unknown session", http.MethodGet, "/api/v2/sessions/00000000-0000-4000-8000-000000000000", "", http.StatusNotFound},
		{"resolve outside review", http.MethodPut, base + "/conflicts", `{"path":"nodes/A","resolution":"keep-local"}`, http.StatusConflict},
		{"connect without notifier", http.MethodPost, base + "/connections", `{"connectionId":"c-1"}`, http.StatusServiceUnavailable},
		{"preview without runner", http.MethodPost, base + "/preview", "", http.StatusServiceUnavailable},
		{"non numeric version", http.MethodGet, "/api/v2/blueprints/bp-1/versions/latest", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, server, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status, string(body))
		})
	}
}

func TestLegacyViewIsBarePayload(t *testing.T) {
	server := newTestServer(t)
	id := openSession(t, server)

	resp, err := server.Client().Get(server.URL + "/api/v1/sessions/" + id + "/view")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-API-Deprecated"))

	var view map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, id, view["sessionId"])

	status, _ := call(t, server, http.MethodPost, "/api/v1/sessions/"+id+"/view", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthReadinessAndMetrics(t *testing.T) {
	failing := ReadinessCheck{Name: "snapshots", Check: func(ctx context.Context) error { return errors.New("table missing") }}
	server := newTestServer(t, failing)

	status, _ := call(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)

	status, body := call(t, server, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "table missing")

	status, body = call(t, server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `route="/ready"`)
}
