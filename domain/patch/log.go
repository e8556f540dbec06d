package patch

import "blueprint-drafts/domain/core/valueobjects"

// Log records the local edits applied since the last agreed base version.
// Each entry is the group of ops produced by one edit, so a cascading node
// removal is undone as a unit. Undone entries move to a redo stack, which
// any new edit clears.
type Log struct {
	entries [][]Op
	redo    [][]Op
	maxRedo int
}

// NewLog creates an empty log whose redo stack keeps at most maxRedo entries
func NewLog(maxRedo int) *Log {
	return &Log{maxRedo: maxRedo}
}

// Append records one edit and invalidates the redo stack
func (l *Log) Append(ops ...Op) {
	if len(ops) == 0 {
		return
	}
	l.entries = append(l.entries, append([]Op(nil), ops...))
	l.redo = nil
}

// Ops returns every recorded op in order
func (l *Log) Ops() []Op {
	var out []Op
	for _, e := range l.entries {
		out = append(out, e...)
	}
	return out
}

// Snapshot returns the log as a local patch set against base
func (l *Log) Snapshot(base valueobjects.Version) Set {
	return Set{BaseVersion: base, Origin: OriginLocal, Ops: l.Ops()}
}

// Invert returns the ops that restore the base state from the current one
func (l *Log) Invert() ([]Op, error) {
	return Invert(l.Ops())
}

// Len returns the number of recorded edits
func (l *Log) Len() int { return len(l.entries) }

// IsEmpty reports whether no edits are recorded
func (l *Log) IsEmpty() bool { return len(l.entries) == 0 }

// CanUndo reports whether there is an edit to undo
func (l *Log) CanUndo() bool { return len(l.entries) > 0 }

// CanRedo reports whether there is an undone edit to re-apply
func (l *Log) CanRedo() bool { return len(l.redo) > 0 }

// PeekUndo returns the ops of the last edit without removing it
func (l *Log) PeekUndo() ([]Op, bool) {
	if len(l.entries) == 0 {
		return nil, false
	}
	return l.entries[len(l.entries)-1], true
}

// PeekRedo returns the ops of the most recently undone edit
func (l *Log) PeekRedo() ([]Op, bool) {
	if len(l.redo) == 0 {
		return nil, false
	}
	return l.redo[len(l.redo)-1], true
}

// Undo moves the last edit to the redo stack
func (l *Log) Undo() ([]Op, bool) {
	entry, ok := l.PeekUndo()
	if !ok {
		return nil, false
	}
	l.entries = l.entries[:len(l.entries)-1]
	l.redo = append(l.redo, entry)
	if l.maxRedo > 0 && len(l.redo) > l.maxRedo {
		l.redo = l.redo[len(l.redo)-l.maxRedo:]
	}
	return entry, true
}

// Redo moves the most recently undone edit back onto the log
func (l *Log) Redo() ([]Op, bool) {
	entry, ok := l.PeekRedo()
	if !ok {
		return nil, false
	}
	l.redo = l.redo[:len(l.redo)-1]
	l.entries = append(l.entries, entry)
	return entry, true
}

// Clear drops all edits and the redo stack
func (l *Log) Clear() {
	l.entries = nil
	l.redo = nil
}

// Clone returns an independent copy. Ops are values, so the entry slices
// can be shared.
func (l *Log) Clone() *Log {
	return &Log{
		entries: append([][]Op(nil), l.entries...),
		redo:    append([][]Op(nil), l.redo...),
		maxRedo: l.maxRedo,
	}
}
