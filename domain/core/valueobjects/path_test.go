package valueobjects

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "A", false},
		{"with punctuation", "http-call_2.v1", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"colon", "a:b", true},
		{"too long", strings.Repeat("x", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewNodeID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestNodeIDJSON(t *testing.T) {
	data, err := json.Marshal(MustNodeID("trigger"))
	require.NoError(t, err)
	assert.Equal(t, `"trigger"`, string(data))

	var id NodeID
	require.NoError(t, json.Unmarshal(data, &id))
	assert.True(t, id.Equals(MustNodeID("trigger")))

	assert.Error(t, json.Unmarshal([]byte(`"bad/id"`), &id))
}

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y    float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"negative", -10.5, 3, false},
		{"NaN", math.NaN(), 0, true},
		{"infinite", 0, math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPosition(tt.x, tt.y)
			if tt.wantErr {
				assert.EqualError(t, err, "invalid coordinates")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePathRoundTrip(t *testing.T) {
	tests := []struct {
		input string
		kind  PathKind
	}{
		{"nodes/A", PathKindNode},
		{"nodes/A/config", PathKindField},
		{"nodes/my-node.1/position", PathKindField},
		{"edges/A:out->B:in", PathKindEdge},
		{"edges/A:->B:", PathKindEdge},
		{"edges/a-b:out->c-d:in", PathKindEdge},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind())
			assert.Equal(t, tt.input, p.String())
		})
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		"",
		"nodes",
		"nodes/",
		"nodes/A/label",
		"nodes/A/config/extra",
		"graphs/A",
		"edges/A:out",
		"edges/A:out->",
		"edges/:out->B:in",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			assert.Error(t, err)
		})
	}
}

func TestEdgeKeyParsing(t *testing.T) {
	key, err := ParseEdgeKey("A->B")
	require.NoError(t, err)
	assert.Equal(t, "A", key.Source().String())
	assert.Equal(t, PortName(""), key.SourcePort())
	assert.Equal(t, "A:->B:", key.String())
}

func TestPathRelations(t *testing.T) {
	a := MustNodeID("A")
	b := MustNodeID("B")
	nodeA := NodePath(a)
	configA := FieldPath(a, FieldConfig)
	configB := FieldPath(b, FieldConfig)
	edgeAB := EdgePath(NewEdgeKey(a, "out", b, "in"))

	tests := []struct {
		name     string
		p, q     Path
		overlaps bool
	}{
		{"same node", nodeA, NodePath(a), true},
		{"node contains field", nodeA, configA, true},
		{"field inside node", configA, nodeA, true},
		{"node referenced by edge", nodeA, edgeAB, true},
		{"edge referencing node", edgeAB, NodePath(b), true},
		{"different fields", configA, FieldPath(a, FieldType), false},
		{"field of other node", nodeA, configB, false},
		{"field vs edge", configA, edgeAB, false},
		{"unrelated node", NodePath(MustNodeID("C")), edgeAB, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.p.Overlaps(tt.q))
			assert.Equal(t, tt.overlaps, tt.q.Overlaps(tt.p))
		})
	}

	assert.True(t, nodeA.Contains(configA))
	assert.False(t, configA.Contains(nodeA))
	assert.True(t, nodeA.References(edgeAB))
	assert.False(t, edgeAB.References(nodeA))
	assert.Equal(t, nodeA, configA.NodeRoot())
}

func TestPathTextMarshaling(t *testing.T) {
	m := map[Path]int{FieldPath(MustNodeID("A"), FieldType): 1}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes/A/type":1}`, string(data))

	var back map[Path]int
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)
}
