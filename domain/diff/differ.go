package diff

import (
	"sort"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/validators"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// Differ computes the minimal ordered patch between two blueprint snapshots.
// It is pure: inputs are never mutated.
type Differ struct {
	validator *validators.BlueprintValidator
}

// NewDiffer creates a new differ. A nil validator only checks graph invariants.
func NewDiffer(validator *validators.BlueprintValidator) *Differ {
	return &Differ{validator: validator}
}

// Diff returns the ops that turn from into to, grouped as edge removes, node
// removes, node adds, node updates, edge adds, edge updates, each group
// ascending by path. That order always applies cleanly to from. Updates
// carry the whole new payload and every remove or update carries its prior.
func (d *Differ) Diff(from, to *aggregates.Blueprint) ([]patch.Op, error) {
	if err := d.check(from); err != nil {
		return nil, err
	}
	if err := d.check(to); err != nil {
		return nil, err
	}

	var edgeRemoves, nodeRemoves, nodeAdds, nodeUpdates, edgeAdds, edgeUpdates []patch.Op

	for _, n := range from.Nodes() {
		path := valueobjects.NodePath(n.ID())
		next, ok := to.Node(n.ID())
		switch {
		case !ok:
			nodeRemoves = append(nodeRemoves, patch.Op{Path: path, Kind: patch.KindRemove, Prior: patch.NodePayload{Node: n}})
		case !n.Equal(next):
			nodeUpdates = append(nodeUpdates, patch.Op{Path: path, Kind: patch.KindUpdate, Value: patch.NodePayload{Node: next}, Prior: patch.NodePayload{Node: n}})
		}
	}
	for _, n := range to.Nodes() {
		if !from.HasNode(n.ID()) {
			nodeAdds = append(nodeAdds, patch.Op{Path: valueobjects.NodePath(n.ID()), Kind: patch.KindAdd, Value: patch.NodePayload{Node: n}})
		}
	}

	for _, e := range from.Edges() {
		path := valueobjects.EdgePath(e.Key())
		next, ok := to.Edge(e.Key())
		switch {
		case !ok:
			edgeRemoves = append(edgeRemoves, patch.Op{Path: path, Kind: patch.KindRemove, Prior: patch.EdgePayload{Edge: e}})
		case !e.Equal(next):
			edgeUpdates = append(edgeUpdates, patch.Op{Path: path, Kind: patch.KindUpdate, Value: patch.EdgePayload{Edge: next}, Prior: patch.EdgePayload{Edge: e}})
		}
	}
	for _, e := range to.Edges() {
		if !from.HasEdge(e.Key()) {
			edgeAdds = append(edgeAdds, patch.Op{Path: valueobjects.EdgePath(e.Key()), Kind: patch.KindAdd, Value: patch.EdgePayload{Edge: e}})
		}
	}

	var ops []patch.Op
	for _, group := range [][]patch.Op{edgeRemoves, nodeRemoves, nodeAdds, nodeUpdates, edgeAdds, edgeUpdates} {
		sortByPath(group)
		ops = append(ops, group...)
	}
	return ops, nil
}

// DiffSet diffs and tags the result with a base version and origin
func (d *Differ) DiffSet(from, to *aggregates.Blueprint, base valueobjects.Version, origin patch.Origin) (patch.Set, error) {
	ops, err := d.Diff(from, to)
	if err != nil {
		return patch.Set{}, err
	}
	return patch.Set{BaseVersion: base, Origin: origin, Ops: ops}, nil
}

// DiffDocuments validates two wire documents and diffs them
func (d *Differ) DiffDocuments(from, to aggregates.Document) ([]patch.Op, error) {
	v := d.validator
	if v == nil {
		v = validators.NewBlueprintValidator(nil)
	}
	fromBP, err := v.Decode(from)
	if err != nil {
		return nil, err
	}
	toBP, err := v.Decode(to)
	if err != nil {
		return nil, err
	}
	return d.Diff(fromBP, toBP)
}

func (d *Differ) check(bp *aggregates.Blueprint) error {
	if bp == nil {
		return pkgerrors.InvalidPatchPath("", "blueprint is nil")
	}
	if d.validator != nil {
		return d.validator.Validate(bp)
	}
	return bp.Validate()
}

// Node and edge accessors already return sorted slices; sorting again keeps
// the contract independent of that detail.
func sortByPath(ops []patch.Op) {
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Path.String() < ops[j].Path.String() })
}
