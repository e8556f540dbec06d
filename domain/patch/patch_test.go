package patch

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/entities"
	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(s string) valueobjects.NodeID { return valueobjects.MustNodeID(s) }

func mkNode(t *testing.T, nodeID, nodeType string, config entities.Config) entities.Node {
	t.Helper()
	n, err := entities.NewNode(id(nodeID), nodeType, config, valueobjects.Position{})
	require.NoError(t, err)
	return n
}

func mkEdge(t *testing.T, from, to string) entities.Edge {
	t.Helper()
	e, err := entities.NewEdge(valueobjects.NewEdgeKey(id(from), "out", id(to), "in"), nil)
	require.NoError(t, err)
	return e
}

// base is {nodes: A, B; edges: A->B}
func base(t *testing.T) *aggregates.Blueprint {
	t.Helper()
	bp, err := aggregates.ReconstructBlueprint("bp",
		[]entities.Node{mkNode(t, "A", "trigger", nil), mkNode(t, "B", "http", entities.Config{"url": "a"})},
		[]entities.Edge{mkEdge(t, "A", "B")})
	require.NoError(t, err)
	return bp
}

func nodeOp(kind Kind, n entities.Node) Op {
	return Op{Path: valueobjects.NodePath(n.ID()), Kind: kind, Value: NodePayload{Node: n}}
}

func TestApplyIsStrictAndAtomic(t *testing.T) {
	tests := []struct {
		name string
		ops  func(t *testing.T) []Op
	}{
		{"add existing node", func(t *testing.T) []Op {
			return []Op{nodeOp(KindAdd, mkNode(t, "A", "x", nil))}
		}},
		{"update missing node", func(t *testing.T) []Op {
			return []Op{nodeOp(KindUpdate, mkNode(t, "Z", "x", nil))}
		}},
		{"remove node with edges", func(t *testing.T) []Op {
			return []Op{Remove(valueobjects.NodePath(id("B")))}
		}},
		{"edge to missing node", func(t *testing.T) []Op {
			e := mkEdge(t, "A", "Z")
			return []Op{Add(valueobjects.EdgePath(e.Key()), EdgePayload{Edge: e})}
		}},
		{"second op fails", func(t *testing.T) []Op {
			return []Op{nodeOp(KindAdd, mkNode(t, "C", "x", nil)), Remove(valueobjects.NodePath(id("Z")))}
		}},
		{"payload does not match path", func(t *testing.T) []Op {
			return []Op{{Path: valueobjects.NodePath(id("A")), Kind: KindUpdate, Value: NodePayload{Node: mkNode(t, "B", "x", nil)}}}
		}},
		{"remove a field", func(t *testing.T) []Op {
			return []Op{Remove(valueobjects.FieldPath(id("A"), valueobjects.FieldConfig))}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := base(t)
			before := bp.Clone()

			out, err := Apply(bp, tt.ops(t))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidPatchPath))
			assert.True(t, before.Equal(bp))
		})
	}
}

func TestApplyFieldUpdate(t *testing.T) {
	bp := base(t)
	fp, err := NewFieldPayload(valueobjects.FieldConfig, map[string]interface{}{"url": "b"})
	require.NoError(t, err)

	out, err := Apply(bp, []Op{Update(valueobjects.FieldPath(id("B"), valueobjects.FieldConfig), fp)})
	require.NoError(t, err)

	n, _ := out.Node(id("B"))
	assert.Equal(t, "b", n.Config()["url"])
	orig, _ := bp.Node(id("B"))
	assert.Equal(t, "a", orig.Config()["url"])
}

func TestNormalize(t *testing.T) {
	bp := base(t)

	t.Run("remove node cascades edges first", func(t *testing.T) {
		ops, err := Normalize(bp, Remove(valueobjects.NodePath(id("B"))))
		require.NoError(t, err)
		require.Len(t, ops, 2)
		assert.Equal(t, "remove edges/A:out->B:in", ops[0].String())
		assert.Equal(t, "remove nodes/B", ops[1].String())
		assert.NotNil(t, ops[0].Prior)
		assert.NotNil(t, ops[1].Prior)
	})

	t.Run("add on existing becomes update", func(t *testing.T) {
		ops, err := Normalize(bp, nodeOp(KindAdd, mkNode(t, "A", "cron", nil)))
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, KindUpdate, ops[0].Kind)
		assert.NotNil(t, ops[0].Prior)
	})

	t.Run("update on missing becomes add", func(t *testing.T) {
		ops, err := Normalize(bp, nodeOp(KindUpdate, mkNode(t, "C", "x", nil)))
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, KindAdd, ops[0].Kind)
	})

	t.Run("remove missing is dropped", func(t *testing.T) {
		ops, err := Normalize(bp, Remove(valueobjects.NodePath(id("Z"))))
		require.NoError(t, err)
		assert.Empty(t, ops)
	})

	t.Run("no-op update is dropped", func(t *testing.T) {
		n, _ := bp.Node(id("A"))
		ops, err := Normalize(bp, nodeOp(KindUpdate, n))
		require.NoError(t, err)
		assert.Empty(t, ops)
	})

	t.Run("field on missing node fails", func(t *testing.T) {
		_, err := Normalize(bp, Update(valueobjects.FieldPath(id("Z"), valueobjects.FieldType), FieldPayload{Field: valueobjects.FieldType, Value: "x"}))
		assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidPatchPath))
	})
}

func TestMaterializeAndInvertRestoreBase(t *testing.T) {
	bp := base(t)
	c := mkNode(t, "C", "email", nil)
	ac := mkEdge(t, "A", "C")
	intents := []Op{
		Remove(valueobjects.NodePath(id("B"))),
		nodeOp(KindAdd, c),
		Add(valueobjects.EdgePath(ac.Key()), EdgePayload{Edge: ac}),
		Update(valueobjects.FieldPath(id("A"), valueobjects.FieldType), FieldPayload{Field: valueobjects.FieldType, Value: "webhook"}),
	}

	ops, state, err := Materialize(bp, intents)
	require.NoError(t, err)

	replayed, err := Apply(bp, ops)
	require.NoError(t, err)
	assert.True(t, replayed.Equal(state), "applying the concrete ops must reproduce the materialized state")

	inverse, err := Invert(ops)
	require.NoError(t, err)
	restored, err := Apply(state, inverse)
	require.NoError(t, err)
	assert.True(t, restored.Equal(bp))
}

func TestInverseNeedsPrior(t *testing.T) {
	_, err := Remove(valueobjects.NodePath(id("A"))).Inverse()
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidPatchPath))

	add := nodeOp(KindAdd, mkNode(t, "A", "x", nil))
	inv, err := add.Inverse()
	require.NoError(t, err)
	assert.Equal(t, KindRemove, inv.Kind)
	assert.True(t, PayloadEqual(add.Value, inv.Prior))
}

func TestOpJSON(t *testing.T) {
	tests := []struct {
		name string
		op   Op
	}{
		{"node add", nodeOp(KindAdd, mkNode(t, "C", "http", entities.Config{"url": "x"}))},
		{"edge remove", Op{Path: valueobjects.EdgePath(mkEdge(t, "A", "B").Key()), Kind: KindRemove, Prior: EdgePayload{Edge: mkEdge(t, "A", "B")}}},
		{"position update", Update(valueobjects.FieldPath(id("A"), valueobjects.FieldPosition), FieldPayload{Field: valueobjects.FieldPosition, Value: valueobjects.Position{X: 1, Y: 2}})},
		{"config update", Update(valueobjects.FieldPath(id("A"), valueobjects.FieldConfig), FieldPayload{Field: valueobjects.FieldConfig, Value: entities.Config{"k": "v"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.op)
			require.NoError(t, err)

			var back Op
			require.NoError(t, json.Unmarshal(data, &back))
			assert.True(t, tt.op.Equal(back), "got %s from %s", back, data)
		})
	}
}

func TestOpJSONRejectsBadPath(t *testing.T) {
	var op Op
	err := json.Unmarshal([]byte(`{"path":"widgets/A","kind":"add"}`), &op)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrInvalidPatchPath))
}

func TestOrigin(t *testing.T) {
	o := ProposalOrigin("assistant")
	assert.True(t, o.IsProposal())
	assert.Equal(t, "assistant", o.Source())
	assert.False(t, OriginLocal.IsProposal())
	assert.Equal(t, "", OriginLocal.Source())
}

func TestLogUndoRedo(t *testing.T) {
	add := nodeOp(KindAdd, mkNode(t, "C", "x", nil))
	upd := nodeOp(KindUpdate, mkNode(t, "A", "y", nil))

	log := NewLog(1)
	log.Append(add)
	log.Append(upd)
	assert.Len(t, log.Ops(), 2)

	entry, ok := log.Undo()
	require.True(t, ok)
	assert.True(t, entry[0].Equal(upd))

	_, ok = log.Undo()
	require.True(t, ok)
	assert.False(t, log.CanUndo())
	assert.True(t, log.CanRedo())

	// depth 1 keeps only the most recently undone entry
	redo, ok := log.Redo()
	require.True(t, ok)
	assert.True(t, redo[0].Equal(add))
	assert.False(t, log.CanRedo())

	log.Undo()
	log.Append(upd)
	assert.False(t, log.CanRedo(), "new edits invalidate redo")

	snap := log.Snapshot(3)
	assert.Equal(t, valueobjects.Version(3), snap.BaseVersion)
	assert.Equal(t, OriginLocal, snap.Origin)
}

func TestLogCloneIsIndependent(t *testing.T) {
	log := NewLog(10)
	log.Append(nodeOp(KindAdd, mkNode(t, "C", "x", nil)))

	clone := log.Clone()
	clone.Append(nodeOp(KindAdd, mkNode(t, "D", "x", nil)))
	clone.Undo()
	clone.Undo()

	assert.Equal(t, 1, log.Len())
	assert.False(t, log.CanRedo())
}
