package drafts

import (
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/patch"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// CommitResult is a fully computed commit that has not been installed yet
type CommitResult struct {
	BlueprintID string
	ProposalID  string
	Version     valueobjects.Version
	Blueprint   *aggregates.Blueprint
	Applied     patch.Set

	fromVersion  valueobjects.Version
	fromRevision int
}

// Commit merges the pending proposal into a new base version. Every record
// must be resolved; otherwise it fails with UnresolvedConflicts and the
// draft is unchanged.
func (d *Draft) Commit() (*CommitResult, error) {
	result, err := d.PrepareCommit()
	if err != nil {
		return nil, err
	}
	if err := d.ApplyCommit(result); err != nil {
		return nil, err
	}
	return result, nil
}

// PrepareCommit computes what Commit would install without mutating the draft
func (d *Draft) PrepareCommit() (*CommitResult, error) {
	if d.st.state != StateReviewing {
		return nil, d.invalidState("commit")
	}
	intents, err := d.outcomeIntents(true)
	if err != nil {
		return nil, err
	}
	outcomes, _, err := patch.Materialize(d.st.current, intents)
	if err != nil {
		return nil, err
	}
	return d.prepare(append(d.st.log.Ops(), outcomes...), d.st.pending.Set.Origin, d.st.pending.ID)
}

// PrepareCheckpoint computes a commit of the local edits alone. It is valid
// in the clean state when the log is not empty.
func (d *Draft) PrepareCheckpoint() (*CommitResult, error) {
	if d.st.state != StateClean {
		return nil, d.invalidState("checkpoint")
	}
	if d.st.log.IsEmpty() {
		return nil, pkgerrors.InvalidDraftState("checkpoint", "no local edits")
	}
	return d.prepare(d.st.log.Ops(), patch.OriginLocal, "")
}

func (d *Draft) prepare(merged []patch.Op, origin patch.Origin, proposalID string) (*CommitResult, error) {
	next, err := patch.Apply(d.st.baseSnapshot, merged)
	if err != nil {
		return nil, err
	}
	if err := d.validator.Validate(next); err != nil {
		return nil, err
	}
	return &CommitResult{
		BlueprintID:  d.blueprintID,
		ProposalID:   proposalID,
		Version:      d.st.baseVersion.Next(),
		Blueprint:    next,
		Applied:      patch.NewSet(d.st.baseVersion, origin, merged),
		fromVersion:  d.st.baseVersion,
		fromRevision: d.st.revision,
	}, nil
}

// ApplyCommit installs a prepared commit: the base advances by exactly one
// version and the log, redo stack, proposal, conflicts and advisories are
// cleared. It fails if the draft changed since the result was prepared.
func (d *Draft) ApplyCommit(result *CommitResult) error {
	if result == nil || result.fromVersion != d.st.baseVersion || result.fromRevision != d.st.revision {
		return pkgerrors.InvalidDraftState("apply commit", "draft changed since the commit was prepared")
	}

	next := d.st.clone()
	next.state = StateClean
	next.baseVersion = result.Version
	next.baseSnapshot = result.Blueprint.Clone()
	next.current = next.baseSnapshot
	next.log.Clear()
	next.pending = nil
	next.detection = conflicts.Result{}
	d.install(next)

	d.events = append(d.events, events.NewActionsApplied(
		d.sessionID, d.blueprintID, result.ProposalID, result.Version.Int(), result.Applied.Paths(), d.now(),
	))
	return nil
}

// Checkpoint commits the local edits without a proposal
func (d *Draft) Checkpoint() (*CommitResult, error) {
	result, err := d.PrepareCheckpoint()
	if err != nil {
		return nil, err
	}
	if err := d.ApplyCommit(result); err != nil {
		return nil, err
	}
	return result, nil
}

// outcomeIntents turns the pending proposal into edit intents, in proposal
// order: clean ops, then for each record the outcome of its resolution.
// With requireResolved unset, unresolved records count as keep-local.
func (d *Draft) outcomeIntents(requireResolved bool) ([]patch.Op, error) {
	if d.st.pending == nil {
		return nil, nil
	}

	records := make(map[valueobjects.Path]conflicts.Record, len(d.st.detection.Records))
	var unresolved []string
	for _, rec := range d.st.detection.Records {
		records[rec.Path] = rec
		if !rec.IsResolved() {
			unresolved = append(unresolved, rec.Path.String())
		}
	}
	if requireResolved && len(unresolved) > 0 {
		return nil, pkgerrors.UnresolvedConflicts(unresolved)
	}

	clean := make(map[valueobjects.Path]bool, len(d.st.detection.Clean))
	for _, op := range d.st.detection.Clean {
		clean[op.Path] = true
	}

	var intents []patch.Op
	for _, op := range d.st.pending.Set.Ops {
		if clean[op.Path] {
			intents = append(intents, rebase(op)...)
			continue
		}
		rec, ok := records[op.Path]
		if !ok {
			// superseded ops are redundant
			continue
		}
		switch rec.Resolution {
		case conflicts.TakeProposed:
			intents = append(intents, rec.ProposedOp)
		case conflicts.MergedValue:
			intents = append(intents, patch.Op{Path: rec.Path, Kind: patch.KindUpdate, Value: rec.MergedValue})
		}
	}
	return intents, nil
}

// rebase expresses a clean proposed node update as updates of the fields it
// actually changes, so local edits to the node's other fields survive
func rebase(op patch.Op) []patch.Op {
	if op.Kind != patch.KindUpdate || op.Path.Kind() != valueobjects.PathKindNode || op.Prior == nil {
		return []patch.Op{op}
	}
	var out []patch.Op
	for _, f := range patch.ChangedFields(op.Value, op.Prior) {
		fp, ok := patch.Project(op.Value, f)
		if !ok {
			return []patch.Op{op}
		}
		out = append(out, patch.Op{Path: valueobjects.FieldPath(op.Path.NodeID(), f), Kind: patch.KindUpdate, Value: fp})
	}
	return out
}
