package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/application/sagas"
	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/entities"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/drafts"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/patch"
	"blueprint-drafts/domain/versioning"
	messagingmemory "blueprint-drafts/infrastructure/messaging/memory"
	"blueprint-drafts/infrastructure/persistence/memory"
	pkgerrors "blueprint-drafts/pkg/errors"
	"blueprint-drafts/pkg/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nodeDoc(id, nodeType, url string) entities.NodeDocument {
	doc := entities.NodeDocument{ID: id, Type: nodeType}
	if url != "" {
		doc.Config = map[string]interface{}{"url": url}
	}
	return doc
}

func edgeDoc(from, to string) entities.EdgeDocument {
	return entities.EdgeDocument{Source: from, SourcePort: "out", Target: to, TargetPort: "in"}
}

// exampleDoc is {nodes: A, B(url); edges: A->B}
func exampleDoc(url string) aggregates.Document {
	return aggregates.Document{
		ID:    "bp-1",
		Nodes: []entities.NodeDocument{nodeDoc("A", "trigger", ""), nodeDoc("B", "http", url)},
		Edges: []entities.EdgeDocument{edgeDoc("A", "B")},
	}
}

func exampleBase(t *testing.T) *aggregates.Blueprint {
	t.Helper()
	bp, err := aggregates.FromDocument(exampleDoc("a"))
	require.NoError(t, err)
	return bp
}

type runnerFunc func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error)

func (f runnerFunc) Run(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
	return f(ctx, bp)
}

type recordedMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	failures   map[string]int
	conflicts  map[string]int
	previews   []bool
}

func newRecordedMetrics() *recordedMetrics {
	return &recordedMetrics{operations: map[string]int{}, failures: map[string]int{}, conflicts: map[string]int{}}
}

func (m *recordedMetrics) RecordOperation(ctx context.Context, operation string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[operation]++
	if err != nil {
		m.failures[operation]++
	}
}

func (m *recordedMetrics) RecordConflicts(ctx context.Context, kind string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts[kind] += count
}

func (m *recordedMetrics) RecordPreview(ctx context.Context, ok, stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews = append(m.previews, ok)
}

// hookStore runs beforeSave ahead of every save
type hookStore struct {
	*memory.SnapshotStore
	beforeSave func()
}

func (s *hookStore) Save(ctx context.Context, snapshot *ports.Snapshot) error {
	if s.beforeSave != nil {
		s.beforeSave()
	}
	return s.SnapshotStore.Save(ctx, snapshot)
}

type fixture struct {
	r        *Reconciler
	store    *hookStore
	metrics  *recordedMetrics
	runner   runnerFunc
	mu       sync.Mutex
	received []events.DomainEvent
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, e := range f.received {
		types = append(types, e.GetEventType())
	}
	return types
}

func (f *fixture) lastEvent(eventType string) events.DomainEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.received) - 1; i >= 0; i-- {
		if f.received[i].GetEventType() == eventType {
			return f.received[i]
		}
	}
	return nil
}

func newFixture(t *testing.T, limiter ProposalLimiter) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: &hookStore{SnapshotStore: memory.NewSnapshotStore()}, metrics: newRecordedMetrics()}
	require.NoError(t, f.store.SnapshotStore.Save(ctx, &ports.Snapshot{
		Version:   &versioning.BlueprintVersion{BlueprintID: "bp-1", Version: 1},
		Blueprint: exampleBase(t),
	}))

	bus := messagingmemory.NewEventBus(zap.NewNop())
	require.NoError(t, bus.Subscribe(messagingmemory.WildcardEventType, &messagingmemory.HandlerFunc{
		Fn: func(ctx context.Context, event events.DomainEvent) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.received = append(f.received, event)
			return nil
		},
	}))

	f.runner = func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		return &ports.PreviewReport{OK: true}, nil
	}
	runner := runnerFunc(func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		return f.runner(ctx, bp)
	})

	sessions := NewSessionManager(f.store, config.DefaultDomainConfig(), zap.NewNop())
	commits := sagas.NewCommitSaga(f.store, zap.NewNop()).WithRetry(1, time.Millisecond)
	f.r = NewReconciler(sessions, bus, runner, commits, limiter, nil, f.metrics, nil, zap.NewNop())
	return f
}

func (f *fixture) open(t *testing.T) string {
	t.Helper()
	view, err := f.r.OpenSession(context.Background(), "bp-1")
	require.NoError(t, err)
	return view.SessionID
}

var nodeB = valueobjects.MustNodeID("B")

func TestReconcilerExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	edit, err := f.r.EditLocally(ctx, id, patch.Remove(valueobjects.NodePath(nodeB)))
	require.NoError(t, err)
	assert.Len(t, edit.Ops, 2, "removing B cascades to its edge")

	view, err := f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("b"))
	require.NoError(t, err)
	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, conflicts.KindStructural, view.Conflicts[0].Kind)
	assert.Equal(t, drafts.StateReviewing, view.State)
	assert.Contains(t, f.eventTypes(), events.TypeConflictDetected)
	assert.Equal(t, 1, f.metrics.conflicts[string(conflicts.KindStructural)])

	_, err = f.r.Commit(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrUnresolvedConflicts))
	latest, err := f.store.LoadLatest(ctx, "bp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version.Version, "nothing is persisted on a failed commit")

	_, err = f.r.Resolve(ctx, id, valueobjects.NodePath(nodeB), conflicts.KeepLocal, nil)
	require.NoError(t, err)

	outcome, err := f.r.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version.Version)
	assert.Equal(t, "assistant", outcome.Version.CreatedBy)
	assert.Equal(t, drafts.StateClean, outcome.View.State)
	assert.Equal(t, 2, outcome.View.BaseVersion.Int())
	assert.Empty(t, outcome.View.LocalLog.Ops)

	latest, err = f.store.LoadLatest(ctx, "bp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version.Version)
	assert.False(t, latest.Blueprint.HasNode(nodeB))
	assert.Equal(t, 0, latest.Blueprint.EdgeCount())
	assert.NoError(t, latest.Version.Verify(latest.Blueprint))

	applied, ok := f.lastEvent(events.TypeActionsApplied).(events.ActionsApplied)
	require.True(t, ok)
	assert.Equal(t, 2, applied.GetVersion())
}

func TestReconcilerRejectsStaleProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	before, err := f.r.View(ctx, id)
	require.NoError(t, err)

	_, err = f.r.ReceiveProposal(ctx, id, "assistant", 0, exampleDoc("b"))
	assert.True(t, errors.Is(err, pkgerrors.ErrStaleProposal))

	after, err := f.r.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, drafts.StateClean, after.State)
}

func TestReconcilerRejectsMalformedProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	doc := exampleDoc("b")
	doc.Edges = append(doc.Edges, edgeDoc("A", "missing"))
	_, err := f.r.ReceiveProposal(ctx, id, "assistant", 1, doc)
	require.Error(t, err)

	doc = exampleDoc("b")
	doc.Nodes[1].Type = ""
	_, err = f.r.ReceiveProposal(ctx, id, "assistant", 1, doc)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidPatchPath))

	_, err = f.r.ReceiveProposal(ctx, id, "", 1, exampleDoc("b"))
	assert.True(t, pkgerrors.IsValidation(err))

	view, err := f.r.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, drafts.StateClean, view.State)
}

func TestReconcilerRateLimitsProposalsPerSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ratelimit.NewSourceRateLimiter(1))
	id := f.open(t)

	_, err := f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("b"))
	require.NoError(t, err)
	_, err = f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("c"))
	assert.True(t, errors.Is(err, pkgerrors.ErrRateLimited))
	_, err = f.r.ReceiveProposal(ctx, id, "linter", 1, exampleDoc("c"))
	assert.NoError(t, err)
}

func TestReconcilerProposeChangePublishesRequest(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t)

	event, err := f.r.ProposeChange(context.Background(), id, "assistant", "add a retry")
	require.NoError(t, err)
	assert.Equal(t, 1, event.GetVersion())
	assert.Equal(t, "bp-1", event.BlueprintID)
	assert.Equal(t, []string{events.TypeSuggestRequested}, f.eventTypes())

	_, err = f.r.ProposeChange(context.Background(), "missing", "assistant", "")
	assert.True(t, errors.Is(err, pkgerrors.ErrSessionNotFound))
}

func TestReconcilerCommitLosesRaceForVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	_, err := f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("b"))
	require.NoError(t, err)

	// another writer commits version 2 first
	require.NoError(t, f.store.SnapshotStore.Save(ctx, &ports.Snapshot{
		Version:   &versioning.BlueprintVersion{BlueprintID: "bp-1", Version: 2},
		Blueprint: exampleBase(t),
	}))

	_, err = f.r.Commit(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrVersionExists))

	view, err := f.r.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, drafts.StateReviewing, view.State)
	assert.Equal(t, 1, view.BaseVersion.Int())
	assert.NotContains(t, f.eventTypes(), events.TypeActionsApplied)
}

func TestReconcilerCommitCompensatesWhenDraftChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	_, err := f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("b"))
	require.NoError(t, err)

	f.store.beforeSave = func() {
		f.store.beforeSave = nil
		n, err := entities.NewNode(valueobjects.MustNodeID("C"), "task", nil, valueobjects.Position{})
		require.NoError(t, err)
		_, err = f.r.EditLocally(ctx, id, patch.Add(valueobjects.NodePath(n.ID()), patch.NodePayload{Node: n}))
		require.NoError(t, err)
	}

	_, err = f.r.Commit(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDraftState))

	latest, err := f.store.LoadLatest(ctx, "bp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version.Version, "the persisted version was deleted again")

	// the draft kept the concurrent edit and can still commit
	outcome, err := f.r.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version.Version)
	assert.True(t, outcome.View.Base.HasNode(valueobjects.MustNodeID("C")))
}

func TestReconcilerCheckpointUndoRedo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	_, err := f.r.Undo(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDraftState))

	_, err = f.r.EditLocally(ctx, id, patch.Remove(valueobjects.NodePath(nodeB)))
	require.NoError(t, err)
	undone, err := f.r.Undo(ctx, id)
	require.NoError(t, err)
	assert.True(t, undone.View.Current.HasNode(nodeB))
	assert.True(t, undone.View.CanRedo)

	redone, err := f.r.Redo(ctx, id)
	require.NoError(t, err)
	assert.False(t, redone.View.Current.HasNode(nodeB))

	outcome, err := f.r.Checkpoint(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Version.Version)
	assert.Equal(t, "local", outcome.Version.CreatedBy)
	assert.False(t, outcome.View.CanUndo)

	_, err = f.r.Checkpoint(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDraftState))
}

func TestReconcilerDiscard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	_, err := f.r.Discard(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDraftState))

	_, err = f.r.ReceiveProposal(ctx, id, "assistant", 1, exampleDoc("b"))
	require.NoError(t, err)
	view, err := f.r.Discard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, drafts.StateClean, view.State)
	assert.Nil(t, view.Pending)
}

func TestReconcilerPreviewAttachesAdvisory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	var seen *aggregates.Blueprint
	f.runner = func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		seen = bp
		return &ports.PreviewReport{Errors: []events.SandboxIssue{{Path: "nodes/B", Message: "unreachable url"}}}, nil
	}

	outcome, err := f.r.Preview(ctx, id)
	require.NoError(t, err)
	assert.True(t, outcome.Attached)
	assert.False(t, outcome.Stale)
	assert.True(t, errors.Is(outcome.AdvisoryError(), pkgerrors.ErrSandboxAdvisory))
	assert.True(t, seen.Equal(exampleBase(t)))

	view, err := f.r.View(ctx, id)
	require.NoError(t, err)
	require.Len(t, view.Advisories, 1)
	assert.False(t, view.Advisories[0].OK)
	assert.Equal(t, drafts.StateClean, view.State, "advisories never change the review state")

	sandbox, ok := f.lastEvent(events.TypeSandboxError).(events.SandboxError)
	require.True(t, ok)
	assert.False(t, sandbox.Stale)

	// advisories do not block edits or commit
	_, err = f.r.EditLocally(ctx, id, patch.Remove(valueobjects.NodePath(nodeB)))
	require.NoError(t, err)
	_, err = f.r.Checkpoint(ctx, id)
	require.NoError(t, err)
}

func TestReconcilerPreviewReportsStaleResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	f.runner = func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		// the user keeps editing while the sandbox runs
		_, err := f.r.EditLocally(ctx, id, patch.Remove(valueobjects.NodePath(nodeB)))
		require.NoError(t, err)
		return &ports.PreviewReport{Errors: []events.SandboxIssue{{Path: "nodes/B", Message: "boom"}}}, nil
	}

	outcome, err := f.r.Preview(ctx, id)
	require.NoError(t, err)
	assert.True(t, outcome.Stale)
	assert.False(t, outcome.Attached)

	view, err := f.r.View(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Advisories)

	sandbox, ok := f.lastEvent(events.TypeSandboxError).(events.SandboxError)
	require.True(t, ok)
	assert.True(t, sandbox.Stale)
}

func TestReconcilerPreviewCancelled(t *testing.T) {
	f := newFixture(t, nil)
	id := f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.runner = func(runCtx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		cancel()
		<-runCtx.Done()
		return nil, runCtx.Err()
	}

	_, err := f.r.Preview(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)

	view, err := f.r.View(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, view.Advisories)
	assert.NotContains(t, f.eventTypes(), events.TypeSandboxError)
}

func TestReconcilerPreviewRunnerFailureIsAdvisory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	id := f.open(t)

	f.runner = func(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
		return nil, errors.New("sandbox unavailable")
	}

	_, err := f.r.Preview(ctx, id)
	assert.True(t, errors.Is(err, pkgerrors.ErrSandboxAdvisory))

	view, err := f.r.View(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Advisories)
	assert.Equal(t, 1, f.metrics.failures["Preview"])
}
