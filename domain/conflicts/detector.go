package conflicts

import (
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
)

// severity orders classifications; the most severe overlap wins
type severity int

const (
	clean severity = iota
	superseded
	valueConflict
	structural
)

// Detector classifies proposed ops against the local patch log.
// It never resolves a true conflict; it only classifies.
type Detector struct {
	surfaceSuperseded bool
}

// NewDetector creates a detector. When surfaceSuperseded is set, redundant
// proposed ops are reported as pre-resolved records instead of being dropped.
func NewDetector(surfaceSuperseded bool) *Detector {
	return &Detector{surfaceSuperseded: surfaceSuperseded}
}

// Detect compares each proposed op with every overlapping op in the net
// local effect and classifies it as clean, superseded or conflicting
func (d *Detector) Detect(local, proposed []patch.Op) Result {
	net := NetEffect(local)

	var result Result
	for _, p := range proposed {
		worst := clean
		var against patch.Op
		for _, l := range net {
			if !p.Path.Overlaps(l.Path) {
				continue
			}
			if s := classify(l, p); s > worst {
				worst = s
				against = l
			}
		}

		switch worst {
		case clean:
			result.Clean = append(result.Clean, p)
		case superseded:
			result.Superseded = append(result.Superseded, p)
			if d.surfaceSuperseded {
				result.Records = append(result.Records, newRecord(KindSuperseded, against, p, KeepLocal))
			}
		case valueConflict:
			result.Records = append(result.Records, newRecord(KindValue, against, p, Unresolved))
		case structural:
			result.Records = append(result.Records, newRecord(KindStructural, against, p, Unresolved))
		}
	}
	return result
}

func newRecord(kind Kind, local, proposed patch.Op, resolution Resolution) Record {
	return Record{
		Path:                proposed.Path,
		Kind:                kind,
		LocalOp:             local,
		ProposedOp:          proposed,
		Resolution:          resolution,
		SuggestedResolution: KeepLocal,
	}
}

// classify compares two overlapping ops
func classify(local, proposed patch.Op) severity {
	localRemoves := local.Kind == patch.KindRemove
	proposedRemoves := proposed.Kind == patch.KindRemove

	if local.Path == proposed.Path {
		switch {
		case localRemoves && proposedRemoves:
			return superseded
		case localRemoves != proposedRemoves:
			return structural
		case patch.PayloadEqual(local.Value, proposed.Value):
			return superseded
		default:
			return valueConflict
		}
	}

	// Exactly one side removes something that contains or is referenced by
	// what the other side touches
	if localRemoves != proposedRemoves {
		removed, other := local, proposed
		if proposedRemoves {
			removed, other = proposed, local
		}
		if removed.Path.Contains(other.Path) || removed.Path.References(other.Path) {
			return structural
		}
		return clean
	}
	if localRemoves && proposedRemoves {
		return clean
	}

	// A whole-node update against an update of one of its fields
	if local.Path.Contains(proposed.Path) {
		return compareProjection(local, proposed)
	}
	if proposed.Path.Contains(local.Path) {
		return compareProjection(proposed, local)
	}

	// Edge ops against node updates leave each other alone
	return clean
}

// compareProjection compares a node op with a field op on the same node.
// Fields the node op does not actually change do not overlap.
func compareProjection(nodeOp, fieldOp patch.Op) severity {
	field := fieldOp.Path.Field()
	changed := patch.ChangedFields(nodeOp.Value, nodeOp.Prior)
	if nodeOp.Kind == patch.KindAdd {
		changed = patch.ChangedFields(nodeOp.Value, nil)
	}
	if !containsField(changed, field) {
		return clean
	}
	projection, ok := patch.Project(nodeOp.Value, field)
	if !ok {
		return valueConflict
	}
	if patch.PayloadEqual(projection, fieldOp.Value) {
		if len(changed) == 1 {
			return superseded
		}
		// the node op still carries other changes
		return clean
	}
	return valueConflict
}

func containsField(fields []valueobjects.Field, f valueobjects.Field) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}

// NetEffect folds the local log per exact path so that only the combined
// effect of several edits to one path is compared:
//
//	add then update     -> add
//	add then remove     -> nothing
//	remove then add     -> update
//	update then remove  -> remove
//	otherwise           -> the last op wins
//
// Field edits are folded into a live add or update of their node, and a
// node-level op absorbs earlier edits of the node's fields. The result keeps
// the order in which paths were first touched.
func NetEffect(ops []patch.Op) []patch.Op {
	index := make(map[valueobjects.Path]int)
	var folded []patch.Op
	var live []bool

	for _, op := range ops {
		if op.Path.Kind() == valueobjects.PathKindField {
			if i, ok := index[op.Path.NodeRoot()]; ok && live[i] && foldField(&folded[i], op) {
				continue
			}
		}
		if op.Path.Kind() == valueobjects.PathKindNode {
			for path, i := range index {
				if path.Kind() == valueobjects.PathKindField && op.Path.Contains(path) {
					live[i] = false
				}
			}
		}

		i, seen := index[op.Path]
		if !seen || !live[i] {
			index[op.Path] = len(folded)
			folded = append(folded, op)
			live = append(live, true)
			continue
		}

		prev := folded[i]
		switch {
		case prev.Kind == patch.KindAdd && op.Kind == patch.KindUpdate:
			folded[i] = patch.Op{Path: op.Path, Kind: patch.KindAdd, Value: op.Value}
		case prev.Kind == patch.KindAdd && op.Kind == patch.KindRemove:
			live[i] = false
		case prev.Kind == patch.KindRemove && op.Kind == patch.KindAdd:
			folded[i] = patch.Op{Path: op.Path, Kind: patch.KindUpdate, Value: op.Value, Prior: prev.Prior}
		case prev.Kind == patch.KindUpdate && op.Kind == patch.KindRemove:
			folded[i] = patch.Op{Path: op.Path, Kind: patch.KindRemove, Prior: prev.Prior}
		case prev.Kind == patch.KindUpdate && op.Kind == patch.KindUpdate:
			folded[i] = patch.Op{Path: op.Path, Kind: patch.KindUpdate, Value: op.Value, Prior: prev.Prior}
		default:
			folded[i] = op
		}
	}

	out := make([]patch.Op, 0, len(folded))
	for i, op := range folded {
		if !live[i] {
			continue
		}
		if op.Kind == patch.KindUpdate && op.Prior != nil && patch.PayloadEqual(op.Value, op.Prior) {
			// edits that cancel out leave nothing to compare
			continue
		}
		out = append(out, op)
	}
	return out
}

// foldField applies a field edit to the value of a node add or update
func foldField(nodeOp *patch.Op, fieldOp patch.Op) bool {
	if nodeOp.Kind == patch.KindRemove {
		return false
	}
	np, ok := nodeOp.Value.(patch.NodePayload)
	if !ok {
		return false
	}
	fp, ok := fieldOp.Value.(patch.FieldPayload)
	if !ok {
		return false
	}
	updated, err := np.Node.WithField(fp.Field, fp.Value)
	if err != nil {
		return false
	}
	nodeOp.Value = patch.NodePayload{Node: updated}
	return true
}
