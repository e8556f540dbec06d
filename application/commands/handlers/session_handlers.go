package handlers

import (
	"context"
	"fmt"

	"blueprint-drafts/application/commands"
	"blueprint-drafts/application/commands/bus"
	"blueprint-drafts/application/services"
)

// SessionHandlers executes session commands against the reconciler
type SessionHandlers struct {
	reconciler *services.Reconciler
}

// NewSessionHandlers creates a new set of session command handlers
func NewSessionHandlers(reconciler *services.Reconciler) *SessionHandlers {
	return &SessionHandlers{reconciler: reconciler}
}

// Register registers a handler for every session command on b
func (h *SessionHandlers) Register(b *bus.CommandBus) error {
	handlers := []struct {
		cmd     bus.Command
		handler bus.CommandHandlerFunc
	}{
		{commands.OpenSessionCommand{}, h.openSession},
		{commands.CloseSessionCommand{}, h.closeSession},
		{commands.ApplyEditCommand{}, h.applyEdit},
		{commands.UndoCommand{}, h.undo},
		{commands.RedoCommand{}, h.redo},
		{commands.SuggestCommand{}, h.suggest},
		{commands.ReceiveProposalCommand{}, h.receiveProposal},
		{commands.ResolveConflictCommand{}, h.resolveConflict},
		{commands.DiscardProposalCommand{}, h.discardProposal},
		{commands.CommitCommand{}, h.commit},
		{commands.CheckpointCommand{}, h.checkpoint},
		{commands.PreviewCommand{}, h.preview},
		{commands.ConnectCommand{}, h.connect},
	}
	for _, entry := range handlers {
		if err := b.Register(entry.cmd, entry.handler); err != nil {
			return err
		}
	}
	return nil
}

func unexpected(cmd bus.Command) error {
	return fmt.Errorf("unexpected command type %T", cmd)
}

func (h *SessionHandlers) openSession(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.OpenSessionCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.OpenSession(ctx, c.BlueprintID)
}

func (h *SessionHandlers) closeSession(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CloseSessionCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return nil, h.reconciler.CloseSession(ctx, c.SessionID)
}

func (h *SessionHandlers) applyEdit(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ApplyEditCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.EditLocally(ctx, c.SessionID, c.Op)
}

func (h *SessionHandlers) undo(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.UndoCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Undo(ctx, c.SessionID)
}

func (h *SessionHandlers) redo(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.RedoCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Redo(ctx, c.SessionID)
}

func (h *SessionHandlers) suggest(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.SuggestCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.ProposeChange(ctx, c.SessionID, c.Source, c.Prompt)
}

func (h *SessionHandlers) receiveProposal(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ReceiveProposalCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.ReceiveProposal(ctx, c.SessionID, c.Source, c.BaseVersion, c.Blueprint)
}

func (h *SessionHandlers) resolveConflict(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ResolveConflictCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	path, resolution, merged, err := c.Decode()
	if err != nil {
		return nil, err
	}
	return h.reconciler.Resolve(ctx, c.SessionID, path, resolution, merged)
}

func (h *SessionHandlers) discardProposal(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.DiscardProposalCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Discard(ctx, c.SessionID)
}

func (h *SessionHandlers) commit(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CommitCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Commit(ctx, c.SessionID)
}

func (h *SessionHandlers) checkpoint(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.CheckpointCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Checkpoint(ctx, c.SessionID)
}

func (h *SessionHandlers) preview(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.PreviewCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return h.reconciler.Preview(ctx, c.SessionID)
}

func (h *SessionHandlers) connect(ctx context.Context, cmd bus.Command) (interface{}, error) {
	c, ok := cmd.(commands.ConnectCommand)
	if !ok {
		return nil, unexpected(cmd)
	}
	return nil, h.reconciler.Connect(ctx, c.SessionID, c.ConnectionID)
}
