package conflicts

import (
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
)

// Kind classifies a conflict
type Kind string

const (
	// KindValue means both sides set the same path to different values
	KindValue Kind = "value-value"
	// KindStructural means one side removes what the other side edits or references
	KindStructural Kind = "structural"
	// KindSuperseded means both sides reached the same result. Only surfaced
	// when configured to.
	KindSuperseded Kind = "superseded"
)

// IsBlocking reports whether a record of this kind must be resolved before commit
func (k Kind) IsBlocking() bool {
	return k != KindSuperseded
}

// Resolution is the user's decision for a record
type Resolution string

const (
	Unresolved   Resolution = "unresolved"
	KeepLocal    Resolution = "keep-local"
	TakeProposed Resolution = "take-proposed"
	MergedValue  Resolution = "merged-value"
)

// IsValid checks if the resolution is known
func (r Resolution) IsValid() bool {
	switch r {
	case Unresolved, KeepLocal, TakeProposed, MergedValue:
		return true
	}
	return false
}

// Record is one overlap between the local log and a proposed op
type Record struct {
	Path                valueobjects.Path `json:"path"`
	Kind                Kind              `json:"kind"`
	LocalOp             patch.Op          `json:"localOp"`
	ProposedOp          patch.Op          `json:"proposedOp"`
	Resolution          Resolution        `json:"resolution"`
	SuggestedResolution Resolution        `json:"suggestedResolution"`
	MergedValue         patch.Payload     `json:"-"`
}

// IsResolved reports whether the record no longer blocks commit
func (r Record) IsResolved() bool {
	return !r.Kind.IsBlocking() || r.Resolution != Unresolved
}

// SameConflict reports whether two records describe the same overlap, so an
// earlier resolution can carry over after re-detection
func (r Record) SameConflict(other Record) bool {
	return r.Path == other.Path && r.Kind == other.Kind && r.ProposedOp.Equal(other.ProposedOp)
}

// Result is the classification of a proposed patch against the local log
type Result struct {
	// Clean holds the proposed ops that can be applied directly, in proposal order
	Clean []patch.Op
	// Superseded holds proposed ops that are redundant with local edits
	Superseded []patch.Op
	// Records holds the conflicts in proposal order
	Records []Record
}

// HasConflicts reports whether any record blocks commit
func (r Result) HasConflicts() bool {
	for _, rec := range r.Records {
		if rec.Kind.IsBlocking() {
			return true
		}
	}
	return false
}

// Blocking returns the records that need a decision
func (r Result) Blocking() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Kind.IsBlocking() {
			out = append(out, rec)
		}
	}
	return out
}
