package aggregates

import (
	"fmt"
	"sort"

	"blueprint-drafts/domain/core/entities"
	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// Blueprint is the aggregate root for a workflow graph.
// It ensures consistency boundaries: node ids are unique and every edge
// references existing nodes. All mutators check those rules and fail with
// InvalidPatchPath, leaving the blueprint unchanged.
type Blueprint struct {
	id    string
	nodes map[valueobjects.NodeID]entities.Node
	edges map[valueobjects.EdgeKey]entities.Edge
}

// NewBlueprint creates an empty blueprint
func NewBlueprint(id string) *Blueprint {
	return &Blueprint{
		id:    id,
		nodes: make(map[valueobjects.NodeID]entities.Node),
		edges: make(map[valueobjects.EdgeKey]entities.Edge),
	}
}

// ReconstructBlueprint rebuilds a blueprint from its parts, enforcing invariants
func ReconstructBlueprint(id string, nodes []entities.Node, edges []entities.Edge) (*Blueprint, error) {
	bp := NewBlueprint(id)
	for _, n := range nodes {
		if err := bp.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range edges {
		if err := bp.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return bp, nil
}

// ID returns the blueprint identifier
func (b *Blueprint) ID() string { return b.id }

// NodeCount returns the number of nodes
func (b *Blueprint) NodeCount() int { return len(b.nodes) }

// EdgeCount returns the number of edges
func (b *Blueprint) EdgeCount() int { return len(b.edges) }

// Node looks up a node by id
func (b *Blueprint) Node(id valueobjects.NodeID) (entities.Node, bool) {
	n, ok := b.nodes[id]
	return n, ok
}

// HasNode checks if a node exists
func (b *Blueprint) HasNode(id valueobjects.NodeID) bool {
	_, ok := b.nodes[id]
	return ok
}

// Edge looks up an edge by key
func (b *Blueprint) Edge(key valueobjects.EdgeKey) (entities.Edge, bool) {
	e, ok := b.edges[key]
	return e, ok
}

// HasEdge checks if an edge exists
func (b *Blueprint) HasEdge(key valueobjects.EdgeKey) bool {
	_, ok := b.edges[key]
	return ok
}

// Nodes returns all nodes ordered by id
func (b *Blueprint) Nodes() []entities.Node {
	out := make([]entities.Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().String() < out[j].ID().String() })
	return out
}

// Edges returns all edges ordered by key
func (b *Blueprint) Edges() []entities.Edge {
	out := make([]entities.Edge, 0, len(b.edges))
	for _, e := range b.edges {
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

// EdgesOf returns the edges touching a node ordered by key
func (b *Blueprint) EdgesOf(id valueobjects.NodeID) []entities.Edge {
	var out []entities.Edge
	for key, e := range b.edges {
		if key.Touches(id) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []entities.Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().String() < edges[j].Key().String() })
}

// AddNode adds a node that must not exist yet
func (b *Blueprint) AddNode(n entities.Node) error {
	path := valueobjects.NodePath(n.ID()).String()
	if n.IsZero() {
		return pkgerrors.InvalidPatchPath(path, "node is empty")
	}
	if b.HasNode(n.ID()) {
		return pkgerrors.InvalidPatchPath(path, "node already exists")
	}
	b.nodes[n.ID()] = n
	return nil
}

// ReplaceNode replaces an existing node
func (b *Blueprint) ReplaceNode(n entities.Node) error {
	if !b.HasNode(n.ID()) {
		return pkgerrors.InvalidPatchPath(valueobjects.NodePath(n.ID()).String(), "node does not exist")
	}
	b.nodes[n.ID()] = n
	return nil
}

// RemoveNode removes a node with no remaining edges
func (b *Blueprint) RemoveNode(id valueobjects.NodeID) error {
	path := valueobjects.NodePath(id).String()
	if !b.HasNode(id) {
		return pkgerrors.InvalidPatchPath(path, "node does not exist")
	}
	if edges := b.EdgesOf(id); len(edges) > 0 {
		return pkgerrors.InvalidPatchPath(path, fmt.Sprintf("node still has %d edge(s)", len(edges)))
	}
	delete(b.nodes, id)
	return nil
}

// AddEdge adds an edge whose endpoints exist
func (b *Blueprint) AddEdge(e entities.Edge) error {
	path := valueobjects.EdgePath(e.Key()).String()
	if b.HasEdge(e.Key()) {
		return pkgerrors.InvalidPatchPath(path, "edge already exists")
	}
	if !b.HasNode(e.Source()) {
		return pkgerrors.InvalidPatchPath(path, "source node does not exist")
	}
	if !b.HasNode(e.Target()) {
		return pkgerrors.InvalidPatchPath(path, "target node does not exist")
	}
	b.edges[e.Key()] = e
	return nil
}

// ReplaceEdge replaces the metadata of an existing edge
func (b *Blueprint) ReplaceEdge(e entities.Edge) error {
	if !b.HasEdge(e.Key()) {
		return pkgerrors.InvalidPatchPath(valueobjects.EdgePath(e.Key()).String(), "edge does not exist")
	}
	b.edges[e.Key()] = e
	return nil
}

// RemoveEdge removes an existing edge
func (b *Blueprint) RemoveEdge(key valueobjects.EdgeKey) error {
	if !b.HasEdge(key) {
		return pkgerrors.InvalidPatchPath(valueobjects.EdgePath(key).String(), "edge does not exist")
	}
	delete(b.edges, key)
	return nil
}

// Clone returns an independent copy. Nodes and edges are immutable values,
// so copying the maps is enough.
func (b *Blueprint) Clone() *Blueprint {
	c := &Blueprint{
		id:    b.id,
		nodes: make(map[valueobjects.NodeID]entities.Node, len(b.nodes)),
		edges: make(map[valueobjects.EdgeKey]entities.Edge, len(b.edges)),
	}
	for k, v := range b.nodes {
		c.nodes[k] = v
	}
	for k, v := range b.edges {
		c.edges[k] = v
	}
	return c
}

// Equal reports structural equality of nodes and edges; the id is ignored
func (b *Blueprint) Equal(other *Blueprint) bool {
	if b == nil || other == nil {
		return b == other
	}
	if len(b.nodes) != len(other.nodes) || len(b.edges) != len(other.edges) {
		return false
	}
	for id, n := range b.nodes {
		o, ok := other.nodes[id]
		if !ok || !n.Equal(o) {
			return false
		}
	}
	for key, e := range b.edges {
		o, ok := other.edges[key]
		if !ok || !e.Equal(o) {
			return false
		}
	}
	return true
}

// Validate re-checks the graph invariants
func (b *Blueprint) Validate() error {
	for key := range b.edges {
		if !b.HasNode(key.Source()) || !b.HasNode(key.Target()) {
			return pkgerrors.InvalidPatchPath(valueobjects.EdgePath(key).String(), "dangling edge")
		}
	}
	return nil
}
