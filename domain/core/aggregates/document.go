package aggregates

import (
	"encoding/json"

	"blueprint-drafts/domain/core/entities"
)

// Document is the wire form of a blueprint, shared by the JSON and YAML codecs
type Document struct {
	ID    string                  `json:"id" yaml:"id"`
	Nodes []entities.NodeDocument `json:"nodes" yaml:"nodes" validate:"dive"`
	Edges []entities.EdgeDocument `json:"edges" yaml:"edges" validate:"dive"`
}

// ToDocument converts the blueprint to its wire form with stable ordering
func (b *Blueprint) ToDocument() Document {
	doc := Document{
		ID:    b.id,
		Nodes: make([]entities.NodeDocument, 0, len(b.nodes)),
		Edges: make([]entities.EdgeDocument, 0, len(b.edges)),
	}
	for _, n := range b.Nodes() {
		doc.Nodes = append(doc.Nodes, n.ToDocument())
	}
	for _, e := range b.Edges() {
		doc.Edges = append(doc.Edges, e.ToDocument())
	}
	return doc
}

// FromDocument builds a blueprint from its wire form, enforcing invariants
func FromDocument(doc Document) (*Blueprint, error) {
	nodes := make([]entities.Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		n, err := entities.NodeFromDocument(nd)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	edges := make([]entities.Edge, 0, len(doc.Edges))
	for _, ed := range doc.Edges {
		e, err := entities.EdgeFromDocument(ed)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return ReconstructBlueprint(doc.ID, nodes, edges)
}

// MarshalJSON implements json.Marshaler
func (b *Blueprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.ToDocument())
}

// UnmarshalJSON implements json.Unmarshaler
func (b *Blueprint) UnmarshalJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	bp, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*b = *bp
	return nil
}
