package entities

import (
	"encoding/json"

	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// Edge connects an output port of one node to an input port of another.
// Its identity is the EdgeKey; Metadata is the updatable payload.
type Edge struct {
	key      valueobjects.EdgeKey
	metadata Config
}

// NewEdge creates an edge
func NewEdge(key valueobjects.EdgeKey, metadata Config) (Edge, error) {
	if key.Source().IsZero() || key.Target().IsZero() {
		return Edge{}, pkgerrors.NewValidationError("edge endpoints cannot be empty")
	}
	return Edge{key: key, metadata: cloneConfig(metadata)}, nil
}

// Key returns the edge identity
func (e Edge) Key() valueobjects.EdgeKey { return e.key }

// Source returns the source node id
func (e Edge) Source() valueobjects.NodeID { return e.key.Source() }

// Target returns the target node id
func (e Edge) Target() valueobjects.NodeID { return e.key.Target() }

// Metadata returns a copy of the edge metadata
func (e Edge) Metadata() Config { return cloneConfig(e.metadata) }

// IsZero reports whether e is the zero edge
func (e Edge) IsZero() bool { return e.key.Source().IsZero() }

// Equal reports structural equality
func (e Edge) Equal(other Edge) bool {
	return e.key == other.key && ConfigEqual(e.metadata, other.metadata)
}

// EdgeDocument is the wire form of an edge
type EdgeDocument struct {
	Source     string                 `json:"source" yaml:"source" validate:"required,max=128"`
	SourcePort string                 `json:"sourcePort,omitempty" yaml:"sourcePort,omitempty" validate:"max=128"`
	Target     string                 `json:"target" yaml:"target" validate:"required,max=128"`
	TargetPort string                 `json:"targetPort,omitempty" yaml:"targetPort,omitempty" validate:"max=128"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToDocument converts the edge to its wire form
func (e Edge) ToDocument() EdgeDocument {
	return EdgeDocument{
		Source:     e.key.Source().String(),
		SourcePort: string(e.key.SourcePort()),
		Target:     e.key.Target().String(),
		TargetPort: string(e.key.TargetPort()),
		Metadata:   cloneConfig(e.metadata),
	}
}

// EdgeFromDocument builds an edge from its wire form
func EdgeFromDocument(doc EdgeDocument) (Edge, error) {
	source, err := valueobjects.NewNodeID(doc.Source)
	if err != nil {
		return Edge{}, pkgerrors.NewValidationError("edge source: " + err.Error())
	}
	target, err := valueobjects.NewNodeID(doc.Target)
	if err != nil {
		return Edge{}, pkgerrors.NewValidationError("edge target: " + err.Error())
	}
	sourcePort := valueobjects.PortName(doc.SourcePort)
	targetPort := valueobjects.PortName(doc.TargetPort)
	if err := sourcePort.Validate(); err != nil {
		return Edge{}, pkgerrors.NewValidationError(err.Error())
	}
	if err := targetPort.Validate(); err != nil {
		return Edge{}, pkgerrors.NewValidationError(err.Error())
	}
	return NewEdge(valueobjects.NewEdgeKey(source, sourcePort, target, targetPort), doc.Metadata)
}

// MarshalJSON implements json.Marshaler
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToDocument())
}

// UnmarshalJSON implements json.Unmarshaler
func (e *Edge) UnmarshalJSON(data []byte) error {
	var doc EdgeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	edge, err := EdgeFromDocument(doc)
	if err != nil {
		return err
	}
	*e = edge
	return nil
}
