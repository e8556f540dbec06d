package drafts

import (
	"time"

	"blueprint-drafts/domain/config"
	"blueprint-drafts/domain/conflicts"
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/diff"
	"blueprint-drafts/domain/events"
	"blueprint-drafts/domain/patch"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/google/uuid"
)

// State is the draft's position in its review cycle
type State string

const (
	// StateClean means no proposal is pending
	StateClean State = "clean"
	// StateReviewing means a proposal is pending and its conflicts are computed
	StateReviewing State = "reviewing"
)

// Proposal is a pending external patch set and the candidate it came from
type Proposal struct {
	ID         string
	Source     string
	Set        patch.Set
	Candidate  *aggregates.Blueprint
	ReceivedAt time.Time
}

// Advisory is a non-blocking preview report attached to the draft
type Advisory struct {
	BaseVersion valueobjects.Version  `json:"baseVersion"`
	Revision    int                   `json:"revision"`
	OK          bool                  `json:"ok"`
	Issues      []events.SandboxIssue `json:"issues"`
	ReportedAt  time.Time             `json:"reportedAt"`
}

// draftState is everything a mutating operation may change. Operations
// build the next state on a copy and swap it in only on success, so a
// failed operation leaves the draft exactly as it was.
type draftState struct {
	state        State
	baseVersion  valueobjects.Version
	baseSnapshot *aggregates.Blueprint
	current      *aggregates.Blueprint
	log          *patch.Log
	pending      *Proposal
	detection    conflicts.Result
	advisories   []Advisory
	revision     int
}

func (s draftState) clone() draftState {
	next := s
	next.log = s.log.Clone()
	next.detection = conflicts.Result{
		Clean:      append([]patch.Op(nil), s.detection.Clean...),
		Superseded: append([]patch.Op(nil), s.detection.Superseded...),
		Records:    append([]conflicts.Record(nil), s.detection.Records...),
	}
	next.advisories = append([]Advisory(nil), s.advisories...)
	return next
}

// Draft is the live, session-scoped editable state: a committed base plus
// uncommitted local edits and at most one pending proposal. A Draft is not
// safe for concurrent use; its session serializes access.
type Draft struct {
	sessionID   string
	blueprintID string

	st draftState

	differ    *diff.Differ
	detector  *conflicts.Detector
	validator *validators.BlueprintValidator
	now       func() time.Time

	// Domain events that occurred since the last MarkEventsAsCommitted
	events []events.DomainEvent
}

// NewDraft opens a draft on a committed base snapshot
func NewDraft(sessionID, blueprintID string, baseVersion valueobjects.Version, base *aggregates.Blueprint, cfg *config.DomainConfig) (*Draft, error) {
	if sessionID == "" {
		return nil, pkgerrors.NewValidationError("sessionID cannot be empty")
	}
	if base == nil {
		base = aggregates.NewBlueprint(blueprintID)
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	validator := validators.NewBlueprintValidator(cfg)
	if err := validator.Validate(base); err != nil {
		return nil, err
	}

	snapshot := base.Clone()
	return &Draft{
		sessionID:   sessionID,
		blueprintID: blueprintID,
		st: draftState{
			state:        StateClean,
			baseVersion:  baseVersion,
			baseSnapshot: snapshot,
			current:      snapshot,
			log:          patch.NewLog(cfg.MaxUndoDepth),
		},
		differ:    diff.NewDiffer(validator),
		detector:  conflicts.NewDetector(cfg.SurfaceSuperseded),
		validator: validator,
		now:       time.Now,
	}, nil
}

// SessionID returns the owning session
func (d *Draft) SessionID() string { return d.sessionID }

// BlueprintID returns the edited blueprint
func (d *Draft) BlueprintID() string { return d.blueprintID }

// State returns the review state
func (d *Draft) State() State { return d.st.state }

// BaseVersion returns the committed version the draft builds on
func (d *Draft) BaseVersion() valueobjects.Version { return d.st.baseVersion }

// Revision increments on every successful state change. Together with the
// base version it identifies one exact draft state.
func (d *Draft) Revision() int { return d.st.revision }

// BaseSnapshot returns a copy of the committed base
func (d *Draft) BaseSnapshot() *aggregates.Blueprint { return d.st.baseSnapshot.Clone() }

// Current returns a copy of the materialized state: base plus local edits
func (d *Draft) Current() *aggregates.Blueprint { return d.st.current.Clone() }

// LocalLog returns the local edits as a patch set against the base
func (d *Draft) LocalLog() patch.Set { return d.st.log.Snapshot(d.st.baseVersion) }

// CanUndo reports whether a local edit can be undone
func (d *Draft) CanUndo() bool { return d.st.log.CanUndo() }

// CanRedo reports whether an undone edit can be re-applied
func (d *Draft) CanRedo() bool { return d.st.log.CanRedo() }

// PendingProposal returns the pending proposal, or nil in the clean state
func (d *Draft) PendingProposal() *Proposal {
	if d.st.pending == nil {
		return nil
	}
	p := *d.st.pending
	p.Set = patch.NewSet(p.Set.BaseVersion, p.Set.Origin, p.Set.Ops)
	p.Candidate = p.Candidate.Clone()
	return &p
}

// Conflicts returns a copy of the conflict records
func (d *Draft) Conflicts() []conflicts.Record {
	return append([]conflicts.Record(nil), d.st.detection.Records...)
}

// Advisories returns the preview reports attached to the current state
func (d *Draft) Advisories() []Advisory {
	return append([]Advisory(nil), d.st.advisories...)
}

// GetUncommittedEvents returns events raised since the last commit of events
func (d *Draft) GetUncommittedEvents() []events.DomainEvent {
	return d.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (d *Draft) MarkEventsAsCommitted() {
	d.events = nil
}

// SetClock overrides the time source
func (d *Draft) SetClock(now func() time.Time) {
	d.now = now
}

// install swaps in the next state and bumps the revision. Any state change
// invalidates attached advisories.
func (d *Draft) install(next draftState) {
	next.revision = d.st.revision + 1
	next.advisories = nil
	d.st = next
}

func (d *Draft) invalidState(operation string) error {
	return pkgerrors.InvalidDraftState(operation, string(d.st.state))
}

// ApplyLocalEdit normalizes and applies one local edit, appending the
// resulting ops to the log. While reviewing, conflicts are re-detected.
// It returns the concrete ops recorded; an edit that changes nothing
// records nothing.
func (d *Draft) ApplyLocalEdit(op patch.Op) ([]patch.Op, error) {
	next := d.st.clone()

	ops, current, err := patch.Materialize(next.current, []patch.Op{op})
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	if err := d.validator.Validate(current); err != nil {
		return nil, err
	}

	next.current = current
	next.log.Append(ops...)
	d.redetect(&next)
	d.install(next)
	return ops, nil
}

// ReceiveProposal reconciles a candidate blueprint suggested by source.
// The proposal must target the current base version; otherwise it fails
// with StaleProposal and the draft is unchanged. A proposal received while
// reviewing replaces the pending one.
func (d *Draft) ReceiveProposal(candidate *aggregates.Blueprint, baseVersion valueobjects.Version, source string) (*Proposal, error) {
	if baseVersion != d.st.baseVersion {
		return nil, pkgerrors.StaleProposal(d.st.baseVersion.Int(), baseVersion.Int())
	}
	if candidate == nil {
		return nil, pkgerrors.InvalidPatchPath("", "proposal has no blueprint")
	}

	set, err := d.differ.DiffSet(d.st.baseSnapshot, candidate, baseVersion, patch.ProposalOrigin(source))
	if err != nil {
		return nil, err
	}

	next := d.st.clone()
	next.state = StateReviewing
	next.pending = &Proposal{
		ID:         uuid.New().String(),
		Source:     source,
		Set:        set,
		Candidate:  candidate.Clone(),
		ReceivedAt: d.now(),
	}
	next.detection = d.detector.Detect(next.log.Ops(), set.Ops)
	d.install(next)

	if d.st.detection.HasConflicts() {
		var summaries []events.ConflictSummary
		for _, rec := range d.st.detection.Blocking() {
			summaries = append(summaries, events.ConflictSummary{Path: rec.Path.String(), Kind: string(rec.Kind)})
		}
		d.events = append(d.events, events.NewConflictDetected(
			d.sessionID, next.pending.ID, source, summaries, d.st.baseVersion.Int(), d.now(),
		))
	}
	return d.PendingProposal(), nil
}

// ResolveConflict records the user's decision for the record at path.
// merged is required for MergedValue and ignored otherwise.
func (d *Draft) ResolveConflict(path valueobjects.Path, resolution conflicts.Resolution, merged patch.Payload) error {
	if d.st.state != StateReviewing {
		return d.invalidState("resolve conflict")
	}
	if !resolution.IsValid() {
		return pkgerrors.NewValidationError("unknown resolution " + string(resolution))
	}

	idx := -1
	for i, rec := range d.st.detection.Records {
		if rec.Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pkgerrors.ConflictNotFound(path.String())
	}

	if resolution == conflicts.MergedValue {
		if err := (patch.Op{Path: path, Kind: patch.KindUpdate, Value: merged}).Validate(); err != nil {
			return err
		}
	} else {
		merged = nil
	}

	next := d.st.clone()
	next.detection.Records[idx].Resolution = resolution
	next.detection.Records[idx].MergedValue = merged
	d.install(next)
	return nil
}

// DiscardProposal drops the pending proposal and its conflicts. Local
// edits are untouched.
func (d *Draft) DiscardProposal() error {
	if d.st.state != StateReviewing {
		return d.invalidState("discard proposal")
	}
	next := d.st.clone()
	next.state = StateClean
	next.pending = nil
	next.detection = conflicts.Result{}
	d.install(next)
	return nil
}

// Undo reverts the last local edit atomically
func (d *Draft) Undo() ([]patch.Op, error) {
	entry, ok := d.st.log.PeekUndo()
	if !ok {
		return nil, pkgerrors.InvalidDraftState("undo", "nothing to undo")
	}
	inverse, err := patch.Invert(entry)
	if err != nil {
		return nil, err
	}
	current, err := patch.Apply(d.st.current, inverse)
	if err != nil {
		return nil, err
	}

	next := d.st.clone()
	next.log.Undo()
	next.current = current
	d.redetect(&next)
	d.install(next)
	return inverse, nil
}

// Redo re-applies the most recently undone edit
func (d *Draft) Redo() ([]patch.Op, error) {
	entry, ok := d.st.log.PeekRedo()
	if !ok {
		return nil, pkgerrors.InvalidDraftState("redo", "nothing to redo")
	}
	current, err := patch.Apply(d.st.current, entry)
	if err != nil {
		return nil, err
	}

	next := d.st.clone()
	next.log.Redo()
	next.current = current
	d.redetect(&next)
	d.install(next)
	return append([]patch.Op(nil), entry...), nil
}

// redetect recomputes conflicts while reviewing, keeping earlier decisions
// for records that still describe the same overlap
func (d *Draft) redetect(next *draftState) {
	if next.state != StateReviewing || next.pending == nil {
		return
	}
	previous := next.detection.Records
	result := d.detector.Detect(next.log.Ops(), next.pending.Set.Ops)
	for i := range result.Records {
		for _, old := range previous {
			if result.Records[i].SameConflict(old) {
				result.Records[i].Resolution = old.Resolution
				result.Records[i].MergedValue = old.MergedValue
				break
			}
		}
	}
	next.detection = result
}
