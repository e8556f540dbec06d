package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"blueprint-drafts/application/commands"
	"blueprint-drafts/application/commands/bus"
	"blueprint-drafts/application/ports"
	"blueprint-drafts/application/sagas"
	"blueprint-drafts/application/services"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/drafts"
	messagingmemory "blueprint-drafts/infrastructure/messaging/memory"
	"blueprint-drafts/infrastructure/persistence/memory"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type passingRunner struct{}

func (passingRunner) Run(ctx context.Context, bp *aggregates.Blueprint) (*ports.PreviewReport, error) {
	return &ports.PreviewReport{OK: true}, nil
}

func newBus(t *testing.T) *bus.CommandBus {
	t.Helper()
	store := memory.NewSnapshotStore()
	sessions := services.NewSessionManager(store, nil, zap.NewNop())
	reconciler := services.NewReconciler(
		sessions,
		messagingmemory.NewEventBus(zap.NewNop()),
		passingRunner{},
		sagas.NewCommitSaga(store, zap.NewNop()),
		nil, nil, nil, nil,
		zap.NewNop(),
	)

	b := bus.NewCommandBus(bus.LoggingMiddleware(zap.NewNop()))
	require.NoError(t, NewSessionHandlers(reconciler).Register(b))
	return b
}

func decodeOp(t *testing.T, sessionID, body string) commands.ApplyEditCommand {
	t.Helper()
	var cmd commands.ApplyEditCommand
	require.NoError(t, json.Unmarshal([]byte(body), &cmd))
	cmd.SessionID = sessionID
	return cmd
}

func TestSessionLifecycleThroughBus(t *testing.T) {
	ctx := context.Background()
	b := newBus(t)

	result, err := b.Send(ctx, commands.OpenSessionCommand{BlueprintID: "bp-1"})
	require.NoError(t, err)
	view := result.(drafts.View)
	assert.Equal(t, 0, view.BaseVersion.Int())
	session := commands.SessionCommand{SessionID: view.SessionID}

	result, err = b.Send(ctx, decodeOp(t, view.SessionID,
		`{"op":{"path":"nodes/A","kind":"add","value":{"id":"A","type":"trigger","position":{"x":0,"y":0}}}}`))
	require.NoError(t, err)
	edit := result.(*services.EditResult)
	require.Len(t, edit.Ops, 1)
	assert.True(t, edit.View.CanUndo)

	result, err = b.Send(ctx, commands.PreviewCommand{SessionCommand: session})
	require.NoError(t, err)
	assert.True(t, result.(*services.PreviewOutcome).Attached)

	result, err = b.Send(ctx, commands.CheckpointCommand{SessionCommand: session})
	require.NoError(t, err)
	outcome := result.(*services.CommitOutcome)
	assert.Equal(t, 1, outcome.Version.Version)
	assert.Equal(t, 1, outcome.View.Current.NodeCount())

	_, err = b.Send(ctx, commands.UndoCommand{SessionCommand: session})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidDraftState)

	_, err = b.Send(ctx, commands.CloseSessionCommand{SessionCommand: session})
	require.NoError(t, err)
	_, err = b.Send(ctx, commands.CommitCommand{SessionCommand: session})
	assert.ErrorIs(t, err, pkgerrors.ErrSessionNotFound)
}

func TestResolveUnknownConflict(t *testing.T) {
	ctx := context.Background()
	b := newBus(t)

	result, err := b.Send(ctx, commands.OpenSessionCommand{BlueprintID: "bp-1"})
	require.NoError(t, err)
	view := result.(drafts.View)

	_, err = b.Send(ctx, commands.ResolveConflictCommand{
		SessionCommand: commands.SessionCommand{SessionID: view.SessionID},
		Path:           "nodes/A",
		Resolution:     "keep-local",
	})
	assert.Error(t, err)
}

func TestConnectWithoutNotifier(t *testing.T) {
	ctx := context.Background()
	b := newBus(t)

	result, err := b.Send(ctx, commands.OpenSessionCommand{BlueprintID: "bp-1"})
	require.NoError(t, err)

	_, err = b.Send(ctx, commands.ConnectCommand{
		SessionCommand: commands.SessionCommand{SessionID: result.(drafts.View).SessionID},
		ConnectionID:   "conn-1",
	})
	assert.Error(t, err)
}
