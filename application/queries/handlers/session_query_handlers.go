package handlers

import (
	"context"
	"fmt"
	"sort"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/application/queries"
	"blueprint-drafts/application/queries/bus"
	"blueprint-drafts/application/services"
	"blueprint-drafts/domain/diff"
	"blueprint-drafts/domain/patch"
	"blueprint-drafts/domain/versioning"
	"blueprint-drafts/pkg/common"

	"go.uber.org/zap"
)

// VersionComparison is the answer to a CompareVersionsQuery
type VersionComparison struct {
	Summary *versioning.VersionDiff `json:"summary"`
	Ops     []patch.Op              `json:"ops"`
}

// SessionQueryHandlers answers read-side queries over sessions and the
// committed version history
type SessionQueryHandlers struct {
	reconciler *services.Reconciler
	sessions   *services.SessionManager
	store      ports.SnapshotStore
	differ     *diff.Differ
	logger     *zap.Logger
}

// NewSessionQueryHandlers creates a new set of query handlers
func NewSessionQueryHandlers(
	reconciler *services.Reconciler,
	sessions *services.SessionManager,
	store ports.SnapshotStore,
	differ *diff.Differ,
	logger *zap.Logger,
) *SessionQueryHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionQueryHandlers{
		reconciler: reconciler,
		sessions:   sessions,
		store:      store,
		differ:     differ,
		logger:     logger,
	}
}

// Register registers every query handler on b. Either middleware may be nil.
func (h *SessionQueryHandlers) Register(b *bus.QueryBus, cache *bus.CachingMiddleware, metrics *bus.MetricsMiddleware) error {
	wrap := func(handler bus.QueryHandler) bus.QueryHandler {
		if cache != nil {
			handler = cache.Wrap(handler)
		}
		if metrics != nil {
			handler = metrics.Wrap(handler)
		}
		return handler
	}

	entries := []struct {
		query   bus.Query
		handler bus.QueryHandler
	}{
		{queries.GetViewQuery{}, bus.QueryHandlerFunc(h.getView)},
		{queries.GetAdvisoriesQuery{}, bus.QueryHandlerFunc(h.getAdvisories)},
		{queries.ListSessionsQuery{}, bus.QueryHandlerFunc(h.listSessions)},
		{queries.ListVersionsQuery{}, bus.QueryHandlerFunc(h.listVersions)},
		{queries.GetVersionQuery{}, bus.QueryHandlerFunc(h.getVersion)},
		{queries.CompareVersionsQuery{}, bus.QueryHandlerFunc(h.compareVersions)},
	}
	for _, entry := range entries {
		if err := b.Register(entry.query, wrap(entry.handler)); err != nil {
			return err
		}
	}
	return nil
}

func unexpected(query bus.Query) error {
	return fmt.Errorf("unexpected query type %T", query)
}

func (h *SessionQueryHandlers) getView(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.GetViewQuery)
	if !ok {
		return nil, unexpected(query)
	}
	return h.reconciler.View(ctx, q.SessionID)
}

func (h *SessionQueryHandlers) getAdvisories(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.GetAdvisoriesQuery)
	if !ok {
		return nil, unexpected(query)
	}
	view, err := h.reconciler.View(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}
	return view.Advisories, nil
}

func (h *SessionQueryHandlers) listSessions(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.ListSessionsQuery)
	if !ok {
		return nil, unexpected(query)
	}
	all := h.sessions.List()
	if q.BlueprintID == "" {
		return all, nil
	}
	filtered := make([]services.SessionInfo, 0, len(all))
	for _, info := range all {
		if info.BlueprintID == q.BlueprintID {
			filtered = append(filtered, info)
		}
	}
	return filtered, nil
}

func (h *SessionQueryHandlers) listVersions(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.ListVersionsQuery)
	if !ok {
		return nil, unexpected(query)
	}
	versions, err := h.store.ListVersions(ctx, q.BlueprintID)
	if err != nil {
		return nil, err
	}

	// Newest first
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })

	params := common.PaginationParams{Page: q.Page, PageSize: q.PageSize}
	start, end := params.Window(len(versions))
	return common.NewPaginatedResult(versions[start:end], q.Page, q.PageSize, len(versions)), nil
}

func (h *SessionQueryHandlers) getVersion(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.GetVersionQuery)
	if !ok {
		return nil, unexpected(query)
	}
	return h.store.Load(ctx, q.BlueprintID, q.Version)
}

func (h *SessionQueryHandlers) compareVersions(ctx context.Context, query bus.Query) (interface{}, error) {
	q, ok := query.(queries.CompareVersionsQuery)
	if !ok {
		return nil, unexpected(query)
	}
	from, err := h.store.Load(ctx, q.BlueprintID, q.From)
	if err != nil {
		return nil, err
	}
	to, err := h.store.Load(ctx, q.BlueprintID, q.To)
	if err != nil {
		return nil, err
	}

	ops, err := h.differ.Diff(from.Blueprint, to.Blueprint)
	if err != nil {
		return nil, err
	}
	summary, err := versioning.CompareWithChanges(from.Version, to.Version, versioning.Summarize(ops))
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []patch.Op{}
	}
	return &VersionComparison{Summary: summary, Ops: ops}, nil
}
