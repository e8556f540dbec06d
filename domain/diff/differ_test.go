package diff

import (
	"fmt"
	"math/rand"
	"testing"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/entities"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(nodes []entities.NodeDocument, edges []entities.EdgeDocument) aggregates.Document {
	return aggregates.Document{ID: "bp", Nodes: nodes, Edges: edges}
}

func mustBlueprint(t *testing.T, d aggregates.Document) *aggregates.Blueprint {
	t.Helper()
	bp, err := aggregates.FromDocument(d)
	require.NoError(t, err)
	return bp
}

func opStrings(ops []patch.Op) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

func TestDiffExampleUpdate(t *testing.T) {
	from := mustBlueprint(t, doc(
		[]entities.NodeDocument{{ID: "A", Type: "trigger"}, {ID: "B", Type: "http", Config: map[string]interface{}{"url": "a"}}},
		[]entities.EdgeDocument{{Source: "A", Target: "B"}},
	))
	to := mustBlueprint(t, doc(
		[]entities.NodeDocument{{ID: "A", Type: "trigger"}, {ID: "B", Type: "http", Config: map[string]interface{}{"url": "b"}}},
		[]entities.EdgeDocument{{Source: "A", Target: "B"}},
	))

	ops, err := NewDiffer(nil).Diff(from, to)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "update nodes/B", ops[0].String())
	assert.NotNil(t, ops[0].Prior)
}

func TestDiffOrdering(t *testing.T) {
	from := mustBlueprint(t, doc(
		[]entities.NodeDocument{{ID: "A", Type: "a"}, {ID: "B", Type: "b"}, {ID: "C", Type: "c"}},
		[]entities.EdgeDocument{{Source: "A", Target: "B"}, {Source: "B", Target: "C", Metadata: map[string]interface{}{"w": "1"}}},
	))
	to := mustBlueprint(t, doc(
		[]entities.NodeDocument{{ID: "C", Type: "c2"}, {ID: "D", Type: "d"}, {ID: "B", Type: "b"}},
		[]entities.EdgeDocument{{Source: "B", Target: "C", Metadata: map[string]interface{}{"w": "2"}}, {Source: "D", Target: "B"}},
	))

	ops, err := NewDiffer(nil).Diff(from, to)
	require.NoError(t, err)

	want := []string{
		"remove edges/A:->B:",
		"remove nodes/A",
		"add nodes/D",
		"update nodes/C",
		"add edges/D:->B:",
		"update edges/B:->C:",
	}
	if diff := cmp.Diff(want, opStrings(ops)); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	bp := mustBlueprint(t, doc([]entities.NodeDocument{{ID: "A", Type: "a", Config: map[string]interface{}{}}}, nil))
	other := mustBlueprint(t, doc([]entities.NodeDocument{{ID: "A", Type: "a"}}, nil))

	ops, err := NewDiffer(nil).Diff(bp, other)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDiffDocumentsRejectsMalformed(t *testing.T) {
	good := doc([]entities.NodeDocument{{ID: "A", Type: "a"}}, nil)
	bad := doc([]entities.NodeDocument{{ID: "A"}}, nil)

	_, err := NewDiffer(nil).DiffDocuments(good, bad)
	assert.Error(t, err)
}

// randomBlueprint builds a blueprint over a small id space so that two random
// blueprints share most paths.
func randomBlueprint(r *rand.Rand) *aggregates.Blueprint {
	bp := aggregates.NewBlueprint("bp")
	types := []string{"http", "email", "cron"}
	for i := 0; i < 6; i++ {
		if r.Intn(3) == 0 {
			continue
		}
		n, _ := entities.NewNode(
			valueobjects.MustNodeID(fmt.Sprintf("n%d", i)),
			types[r.Intn(len(types))],
			entities.Config{"v": fmt.Sprintf("%d", r.Intn(2))},
			valueobjects.Position{X: float64(r.Intn(2)), Y: 0},
		)
		_ = bp.AddNode(n)
	}
	nodes := bp.Nodes()
	for i := 0; i < 8 && len(nodes) > 1; i++ {
		a := nodes[r.Intn(len(nodes))]
		b := nodes[r.Intn(len(nodes))]
		key := valueobjects.NewEdgeKey(a.ID(), "out", b.ID(), "in")
		e, _ := entities.NewEdge(key, entities.Config{"w": fmt.Sprintf("%d", r.Intn(2))})
		_ = bp.AddEdge(e)
	}
	return bp
}

func TestDiffPatchInverseLaw(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	d := NewDiffer(nil)

	for i := 0; i < 200; i++ {
		a := randomBlueprint(r)
		b := randomBlueprint(r)
		aCopy := a.Clone()

		ops, err := d.Diff(a, b)
		require.NoError(t, err)
		assert.True(t, aCopy.Equal(a), "diff must not mutate its input")

		applied, err := patch.Apply(a, ops)
		require.NoError(t, err, "iteration %d: %v", i, opStrings(ops))
		require.True(t, applied.Equal(b), "iteration %d: diff(A,B) applied to A must equal B", i)

		inverse, err := patch.Invert(ops)
		require.NoError(t, err)
		restored, err := patch.Apply(b, inverse)
		require.NoError(t, err, "iteration %d", i)
		require.True(t, restored.Equal(a), "iteration %d: invert(diff(A,B)) applied to B must equal A", i)

		again, err := d.Diff(a, b)
		require.NoError(t, err)
		assert.Equal(t, opStrings(ops), opStrings(again), "diff must be deterministic")
	}
}
