package entities

import (
	"encoding/json"
	"fmt"

	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/google/go-cmp/cmp"
)

// Config is the opaque per-node configuration. It is treated as an atomic
// value: updates replace it wholesale.
type Config map[string]interface{}

// Node is a single step of a blueprint. Nodes are immutable values; the
// With* methods return modified copies.
type Node struct {
	id       valueobjects.NodeID
	nodeType string
	config   Config
	position valueobjects.Position
}

// NewNode creates a node with business rule validation
func NewNode(id valueobjects.NodeID, nodeType string, config Config, position valueobjects.Position) (Node, error) {
	if id.IsZero() {
		return Node{}, pkgerrors.NewValidationError("node id cannot be empty")
	}
	if nodeType == "" {
		return Node{}, pkgerrors.NewValidationError(fmt.Sprintf("node %s: type cannot be empty", id))
	}
	if _, err := valueobjects.NewPosition(position.X, position.Y); err != nil {
		return Node{}, pkgerrors.NewValidationError(fmt.Sprintf("node %s: %v", id, err))
	}
	return Node{
		id:       id,
		nodeType: nodeType,
		config:   cloneConfig(config),
		position: position,
	}, nil
}

// ID returns the node's identifier
func (n Node) ID() valueobjects.NodeID { return n.id }

// Type returns the node type
func (n Node) Type() string { return n.nodeType }

// Config returns a copy of the node configuration
func (n Node) Config() Config { return cloneConfig(n.config) }

// Position returns the canvas position
func (n Node) Position() valueobjects.Position { return n.position }

// IsZero reports whether n is the zero node
func (n Node) IsZero() bool { return n.id.IsZero() }

// Field returns the value of a single addressable field
func (n Node) Field(f valueobjects.Field) (interface{}, error) {
	switch f {
	case valueobjects.FieldType:
		return n.nodeType, nil
	case valueobjects.FieldConfig:
		return n.Config(), nil
	case valueobjects.FieldPosition:
		return n.position, nil
	default:
		return nil, fmt.Errorf("unknown node field %q", f)
	}
}

// WithField returns a copy of n with one field replaced. The value must
// have the field's type: string, Config (or map[string]interface{}), Position.
func (n Node) WithField(f valueobjects.Field, value interface{}) (Node, error) {
	switch f {
	case valueobjects.FieldType:
		s, ok := value.(string)
		if !ok || s == "" {
			return Node{}, fmt.Errorf("field type expects a non-empty string, got %T", value)
		}
		return NewNode(n.id, s, n.config, n.position)
	case valueobjects.FieldConfig:
		switch c := value.(type) {
		case Config:
			return NewNode(n.id, n.nodeType, c, n.position)
		case map[string]interface{}:
			return NewNode(n.id, n.nodeType, Config(c), n.position)
		case nil:
			return NewNode(n.id, n.nodeType, nil, n.position)
		}
		return Node{}, fmt.Errorf("field config expects an object, got %T", value)
	case valueobjects.FieldPosition:
		p, ok := value.(valueobjects.Position)
		if !ok {
			return Node{}, fmt.Errorf("field position expects a position, got %T", value)
		}
		return NewNode(n.id, n.nodeType, n.config, p)
	default:
		return Node{}, fmt.Errorf("unknown node field %q", f)
	}
}

// Equal reports structural equality. go-cmp picks this method up.
func (n Node) Equal(other Node) bool {
	return n.id.Equals(other.id) &&
		n.nodeType == other.nodeType &&
		n.position.Equals(other.position) &&
		ConfigEqual(n.config, other.config)
}

// ConfigEqual compares two configurations, treating nil and empty as equal
func ConfigEqual(a, b Config) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return cmp.Equal(map[string]interface{}(a), map[string]interface{}(b))
}

// NodeDocument is the wire form of a node
type NodeDocument struct {
	ID       string                 `json:"id" yaml:"id" validate:"required,max=128"`
	Type     string                 `json:"type" yaml:"type" validate:"required"`
	Config   map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Position valueobjects.Position  `json:"position" yaml:"position"`
}

// ToDocument converts the node to its wire form
func (n Node) ToDocument() NodeDocument {
	return NodeDocument{
		ID:       n.id.String(),
		Type:     n.nodeType,
		Config:   cloneConfig(n.config),
		Position: n.position,
	}
}

// NodeFromDocument builds a node from its wire form
func NodeFromDocument(doc NodeDocument) (Node, error) {
	id, err := valueobjects.NewNodeID(doc.ID)
	if err != nil {
		return Node{}, pkgerrors.NewValidationError(err.Error())
	}
	return NewNode(id, doc.Type, doc.Config, doc.Position)
}

// MarshalJSON implements json.Marshaler
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToDocument())
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Node) UnmarshalJSON(data []byte) error {
	var doc NodeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	node, err := NodeFromDocument(doc)
	if err != nil {
		return err
	}
	*n = node
	return nil
}
