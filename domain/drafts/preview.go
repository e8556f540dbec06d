package drafts

import (
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/patch"
)

// PreviewRequest is an immutable snapshot of the would-be-committed state,
// tagged with the exact draft state it was taken from
type PreviewRequest struct {
	SessionID   string
	BaseVersion valueobjects.Version
	Revision    int
	Blueprint   *aggregates.Blueprint
}

// Candidate materializes the would-be-committed state without mutating the
// draft. Unresolved records count as keep-local.
func (d *Draft) Candidate() (*aggregates.Blueprint, error) {
	intents, err := d.outcomeIntents(false)
	if err != nil {
		return nil, err
	}
	_, state, err := patch.Materialize(d.st.current, intents)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// PreparePreview snapshots the candidate for a preview run
func (d *Draft) PreparePreview() (*PreviewRequest, error) {
	candidate, err := d.Candidate()
	if err != nil {
		return nil, err
	}
	return &PreviewRequest{
		SessionID:   d.sessionID,
		BaseVersion: d.st.baseVersion,
		Revision:    d.st.revision,
		Blueprint:   candidate,
	}, nil
}

// AttachAdvisory attaches a preview report if the draft is still exactly in
// the state the preview was taken from. It never changes the review state
// or the revision. It reports whether the advisory was attached.
func (d *Draft) AttachAdvisory(req *PreviewRequest, ok bool, issues []events.SandboxIssue) (Advisory, bool) {
	advisory := Advisory{
		BaseVersion: req.BaseVersion,
		Revision:    req.Revision,
		OK:          ok,
		Issues:      append([]events.SandboxIssue(nil), issues...),
		ReportedAt:  d.now(),
	}
	if req.BaseVersion != d.st.baseVersion || req.Revision != d.st.revision {
		return advisory, false
	}
	d.st.advisories = append(d.st.advisories, advisory)
	return advisory, true
}
