package patch

import (
	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// Apply applies ops in order to a copy of bp. It is strict and
// all-or-nothing: the first op that does not fit fails the whole set with
// InvalidPatchPath and bp is never touched.
func Apply(bp *aggregates.Blueprint, ops []Op) (*aggregates.Blueprint, error) {
	out := bp.Clone()
	for _, op := range ops {
		if err := applyOp(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOp(bp *aggregates.Blueprint, op Op) error {
	if err := op.Validate(); err != nil {
		return err
	}

	switch op.Path.Kind() {
	case valueobjects.PathKindNode:
		switch op.Kind {
		case KindAdd:
			return bp.AddNode(op.Value.(NodePayload).Node)
		case KindUpdate:
			return bp.ReplaceNode(op.Value.(NodePayload).Node)
		case KindRemove:
			return bp.RemoveNode(op.Path.NodeID())
		}
	case valueobjects.PathKindField:
		if op.Kind == KindAdd {
			return pkgerrors.InvalidPatchPath(op.Path.String(), "node fields can only be updated")
		}
		n, ok := bp.Node(op.Path.NodeID())
		if !ok {
			return pkgerrors.InvalidPatchPath(op.Path.String(), "node does not exist")
		}
		fp := op.Value.(FieldPayload)
		updated, err := n.WithField(fp.Field, fp.Value)
		if err != nil {
			return pkgerrors.InvalidPatchPath(op.Path.String(), err.Error())
		}
		return bp.ReplaceNode(updated)
	case valueobjects.PathKindEdge:
		switch op.Kind {
		case KindAdd:
			return bp.AddEdge(op.Value.(EdgePayload).Edge)
		case KindUpdate:
			return bp.ReplaceEdge(op.Value.(EdgePayload).Edge)
		case KindRemove:
			return bp.RemoveEdge(op.Path.EdgeKey())
		}
	}
	return pkgerrors.InvalidPatchPath(op.Path.String(), "unsupported op")
}

// Normalize turns an edit intent into ops that apply cleanly to bp, with
// Prior filled from bp:
//
//   - add on an existing path becomes update
//   - update on a missing node or edge becomes add
//   - remove on a missing path is dropped
//   - removing a node first removes every edge touching it
//   - an update that changes nothing is dropped
//
// Field ops on a missing node still fail with InvalidPatchPath.
func Normalize(bp *aggregates.Blueprint, op Op) ([]Op, error) {
	if op.Kind == KindAdd && op.Path.Kind() == valueobjects.PathKindField {
		op.Kind = KindUpdate
	}
	op.Prior = nil
	if err := op.Validate(); err != nil {
		return nil, err
	}

	current, exists := Lookup(bp, op.Path)
	switch op.Kind {
	case KindAdd, KindUpdate:
		if !exists {
			if op.Path.Kind() == valueobjects.PathKindField {
				return nil, pkgerrors.InvalidPatchPath(op.Path.String(), "node does not exist")
			}
			return []Op{{Path: op.Path, Kind: KindAdd, Value: op.Value}}, nil
		}
		if PayloadEqual(current, op.Value) {
			return nil, nil
		}
		return []Op{{Path: op.Path, Kind: KindUpdate, Value: op.Value, Prior: current}}, nil
	case KindRemove:
		if !exists {
			return nil, nil
		}
		var ops []Op
		if op.Path.Kind() == valueobjects.PathKindNode {
			for _, e := range bp.EdgesOf(op.Path.NodeID()) {
				ops = append(ops, Op{
					Path:  valueobjects.EdgePath(e.Key()),
					Kind:  KindRemove,
					Prior: EdgePayload{Edge: e},
				})
			}
		}
		return append(ops, Op{Path: op.Path, Kind: KindRemove, Prior: current}), nil
	}
	return nil, pkgerrors.InvalidPatchPath(op.Path.String(), "unsupported op")
}

// Materialize normalizes each intent against the state left by the previous
// ones and applies it. It returns the concrete ops and the resulting state;
// bp is never touched.
func Materialize(bp *aggregates.Blueprint, intents []Op) ([]Op, *aggregates.Blueprint, error) {
	state := bp.Clone()
	var applied []Op
	for _, intent := range intents {
		ops, err := Normalize(state, intent)
		if err != nil {
			return nil, nil, err
		}
		for _, op := range ops {
			if err := applyOp(state, op); err != nil {
				return nil, nil, err
			}
		}
		applied = append(applied, ops...)
	}
	return applied, state, nil
}

// Invert returns the ops that undo ops when applied in order: reversed,
// with add and remove swapped and updates restoring their prior value.
func Invert(ops []Op) ([]Op, error) {
	out := make([]Op, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		inv, err := ops[i].Inverse()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}
