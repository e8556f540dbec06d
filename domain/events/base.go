package events

import (
	"time"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields. AggregateID is the editing
// session id and Version the draft's base version when the event happened.
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Bus topics
const (
	TypeSuggestRequested = "builder.suggestRequested"
	TypeConflictDetected = "drafts.conflictDetected"
	TypeActionsApplied   = "frosty.actionsApplied"
	TypeRunRequested     = "frosty.runRequested"
	TypeSandboxError     = "preview.sandboxError"
)

// SuggestRequested is raised when a change is requested from an assistant
type SuggestRequested struct {
	BaseEvent
	BlueprintID string `json:"blueprint_id"`
	Source      string `json:"source"`
	Prompt      string `json:"prompt,omitempty"`
}

// NewSuggestRequested creates a SuggestRequested event
func NewSuggestRequested(sessionID, blueprintID, source, prompt string, baseVersion int, timestamp time.Time) SuggestRequested {
	return SuggestRequested{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeSuggestRequested,
			Timestamp:   timestamp,
			Version:     baseVersion,
		},
		BlueprintID: blueprintID,
		Source:      source,
		Prompt:      prompt,
	}
}

// ConflictSummary names one conflict without its payloads
type ConflictSummary struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// ConflictDetected is raised when a proposal yields at least one conflict
type ConflictDetected struct {
	BaseEvent
	ProposalID string            `json:"proposal_id"`
	Source     string            `json:"source"`
	Conflicts  []ConflictSummary `json:"conflicts"`
}

// NewConflictDetected creates a ConflictDetected event
func NewConflictDetected(sessionID, proposalID, source string, conflicts []ConflictSummary, baseVersion int, timestamp time.Time) ConflictDetected {
	return ConflictDetected{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeConflictDetected,
			Timestamp:   timestamp,
			Version:     baseVersion,
		},
		ProposalID: proposalID,
		Source:     source,
		Conflicts:  conflicts,
	}
}

// ActionsApplied is raised when a commit produced a new base version
type ActionsApplied struct {
	BaseEvent
	BlueprintID     string   `json:"blueprint_id"`
	PreviousVersion int      `json:"previous_version"`
	Paths           []string `json:"paths"`
	ProposalID      string   `json:"proposal_id,omitempty"`
}

// NewActionsApplied creates an ActionsApplied event. Version is the new version.
func NewActionsApplied(sessionID, blueprintID, proposalID string, newVersion int, paths []string, timestamp time.Time) ActionsApplied {
	return ActionsApplied{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeActionsApplied,
			Timestamp:   timestamp,
			Version:     newVersion,
		},
		BlueprintID:     blueprintID,
		PreviousVersion: newVersion - 1,
		Paths:           paths,
		ProposalID:      proposalID,
	}
}

// RunRequested asks for a preview run of a session's would-be-committed state
type RunRequested struct {
	BaseEvent
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewRunRequested creates a RunRequested event
func NewRunRequested(sessionID, requestedBy string, timestamp time.Time) RunRequested {
	return RunRequested{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeRunRequested,
			Timestamp:   timestamp,
		},
		RequestedBy: requestedBy,
	}
}

// SandboxIssue is one problem reported by a preview run
type SandboxIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SandboxError relays a failed preview run
type SandboxError struct {
	BaseEvent
	Revision int            `json:"revision"`
	Stale    bool           `json:"stale"`
	Errors   []SandboxIssue `json:"errors"`
}

// NewSandboxError creates a SandboxError event
func NewSandboxError(sessionID string, baseVersion, revision int, stale bool, issues []SandboxIssue, timestamp time.Time) SandboxError {
	return SandboxError{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   TypeSandboxError,
			Timestamp:   timestamp,
			Version:     baseVersion,
		},
		Revision: revision,
		Stale:    stale,
		Errors:   issues,
	}
}
