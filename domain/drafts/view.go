package drafts

import (
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
)

// View is a read-only copy of a draft for diff-rendering clients
type View struct {
	SessionID   string                `json:"sessionId"`
	BlueprintID string                `json:"blueprintId"`
	State       State                 `json:"state"`
	BaseVersion valueobjects.Version  `json:"baseVersion"`
	Revision    int                   `json:"revision"`
	Base        *aggregates.Blueprint `json:"base"`
	Current     *aggregates.Blueprint `json:"current"`
	Candidate   *aggregates.Blueprint `json:"candidate"`
	LocalLog    patch.Set             `json:"localLog"`
	Pending     *patch.Set            `json:"pending,omitempty"`
	ProposalID  string                `json:"proposalId,omitempty"`
	Conflicts   []conflicts.Record    `json:"conflicts"`
	Advisories  []Advisory            `json:"advisories"`
	CanUndo     bool                  `json:"canUndo"`
	CanRedo     bool                  `json:"canRedo"`
	// CandidateError is set when the would-be-committed state cannot be built
	CandidateError string `json:"candidateError,omitempty"`
}

// View returns a read-only copy of the draft
func (d *Draft) View() View {
	v := View{
		SessionID:   d.sessionID,
		BlueprintID: d.blueprintID,
		State:       d.st.state,
		BaseVersion: d.st.baseVersion,
		Revision:    d.st.revision,
		Base:        d.BaseSnapshot(),
		Current:     d.Current(),
		LocalLog:    d.LocalLog(),
		Conflicts:   d.Conflicts(),
		Advisories:  d.Advisories(),
		CanUndo:     d.CanUndo(),
		CanRedo:     d.CanRedo(),
	}
	if v.Conflicts == nil {
		v.Conflicts = []conflicts.Record{}
	}
	if v.Advisories == nil {
		v.Advisories = []Advisory{}
	}
	if p := d.PendingProposal(); p != nil {
		v.Pending = &p.Set
		v.ProposalID = p.ID
	}
	candidate, err := d.Candidate()
	if err != nil {
		v.CandidateError = err.Error()
	} else {
		v.Candidate = candidate
	}
	return v
}
