package commands

import (
	"encoding/json"

	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
	pkgerrors "blueprint-drafts/pkg/errors"
	"blueprint-drafts/pkg/utils"
)

// OpenSessionCommand opens an editing session on the latest committed
// version of a blueprint
type OpenSessionCommand struct {
	BlueprintID string `json:"blueprintId" validate:"required,max=128"`
}

// Validate validates the command
func (c OpenSessionCommand) Validate() error { return utils.ValidateStruct(c) }

// SessionCommand addresses an existing session. Commands that carry nothing
// else embed it.
type SessionCommand struct {
	SessionID string `json:"sessionId" validate:"required,uuid"`
}

// Validate validates the command
func (c SessionCommand) Validate() error { return utils.ValidateStruct(c) }

// CloseSessionCommand ends a session
type CloseSessionCommand struct{ SessionCommand }

// UndoCommand reverts the newest local edit group
type UndoCommand struct{ SessionCommand }

// RedoCommand reapplies the newest undone edit group
type RedoCommand struct{ SessionCommand }

// DiscardProposalCommand drops the pending proposal
type DiscardProposalCommand struct{ SessionCommand }

// CommitCommand commits the reconciled draft as a new version
type CommitCommand struct{ SessionCommand }

// CheckpointCommand commits the local log alone while no proposal is pending
type CheckpointCommand struct{ SessionCommand }

// PreviewCommand runs the would-be-committed state in the sandbox
type PreviewCommand struct{ SessionCommand }

// ApplyEditCommand applies one local edit
type ApplyEditCommand struct {
	SessionCommand
	Op patch.Op `json:"op"`
}

// Validate validates the command
func (c ApplyEditCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	return c.Op.Validate()
}

// SuggestCommand asks an assistant for a proposal
type SuggestCommand struct {
	SessionCommand
	Source string `json:"source" validate:"required,max=64"`
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

// Validate validates the command
func (c SuggestCommand) Validate() error { return utils.ValidateStruct(c) }

// ReceiveProposalCommand delivers an assistant's full proposed blueprint
type ReceiveProposalCommand struct {
	SessionCommand
	Source      string              `json:"source" validate:"required,max=64"`
	BaseVersion int                 `json:"baseVersion" validate:"min=0"`
	Blueprint   aggregates.Document `json:"blueprint"`
}

// Validate validates the command. The blueprint itself is validated by the
// reconciler against the domain limits.
func (c ReceiveProposalCommand) Validate() error { return utils.ValidateStruct(c) }

// ResolveConflictCommand records the user's decision for one conflict
type ResolveConflictCommand struct {
	SessionCommand
	Path       string          `json:"path" validate:"required"`
	Resolution string          `json:"resolution" validate:"required,oneof=unresolved keep-local take-proposed merged-value"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// Validate validates the command
func (c ResolveConflictCommand) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}
	if _, err := valueobjects.ParsePath(c.Path); err != nil {
		return pkgerrors.InvalidPatchPath(c.Path, err.Error())
	}
	if conflicts.Resolution(c.Resolution) == conflicts.MergedValue && len(c.Value) == 0 {
		return pkgerrors.NewValidationError("value is required for merged-value")
	}
	return nil
}

// Decode returns the typed path, resolution and merged payload
func (c ResolveConflictCommand) Decode() (valueobjects.Path, conflicts.Resolution, patch.Payload, error) {
	path, err := valueobjects.ParsePath(c.Path)
	if err != nil {
		return valueobjects.Path{}, "", nil, pkgerrors.InvalidPatchPath(c.Path, err.Error())
	}
	resolution := conflicts.Resolution(c.Resolution)
	if resolution != conflicts.MergedValue {
		return path, resolution, nil, nil
	}
	merged, err := patch.DecodePayload(path, c.Value)
	if err != nil {
		return valueobjects.Path{}, "", nil, pkgerrors.InvalidPatchPath(c.Path, err.Error())
	}
	return path, resolution, merged, nil
}

// ConnectCommand registers an editor's websocket connection with a session
type ConnectCommand struct {
	SessionCommand
	ConnectionID string `json:"connectionId" validate:"required,max=256"`
}

// Validate validates the command
func (c ConnectCommand) Validate() error { return utils.ValidateStruct(c) }
