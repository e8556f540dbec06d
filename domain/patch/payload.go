package patch

import (
	"encoding/json"
	"fmt"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/entities"
	"blueprint-drafts/domain/core/valueobjects"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Payload is the value carried by an op. It is a closed sum type: one of
// NodePayload, EdgePayload or FieldPayload, matching the path shape.
type Payload interface {
	kind() valueobjects.PathKind
}

// NodePayload carries a whole node
type NodePayload struct {
	Node entities.Node
}

// EdgePayload carries a whole edge
type EdgePayload struct {
	Edge entities.Edge
}

// FieldPayload carries a single node field
type FieldPayload struct {
	Field valueobjects.Field
	Value interface{}
}

func (NodePayload) kind() valueobjects.PathKind  { return valueobjects.PathKindNode }
func (EdgePayload) kind() valueobjects.PathKind  { return valueobjects.PathKindEdge }
func (FieldPayload) kind() valueobjects.PathKind { return valueobjects.PathKindField }

// NewFieldPayload builds a field payload, coercing the value to the field's type
func NewFieldPayload(field valueobjects.Field, value interface{}) (FieldPayload, error) {
	switch field {
	case valueobjects.FieldType:
		s, ok := value.(string)
		if !ok || s == "" {
			return FieldPayload{}, fmt.Errorf("type must be a non-empty string")
		}
		return FieldPayload{Field: field, Value: s}, nil
	case valueobjects.FieldConfig:
		switch c := value.(type) {
		case nil:
			return FieldPayload{Field: field, Value: entities.Config(nil)}, nil
		case entities.Config:
			return FieldPayload{Field: field, Value: c}, nil
		case map[string]interface{}:
			return FieldPayload{Field: field, Value: entities.Config(c)}, nil
		}
		return FieldPayload{}, fmt.Errorf("config must be an object, got %T", value)
	case valueobjects.FieldPosition:
		switch p := value.(type) {
		case valueobjects.Position:
			return FieldPayload{Field: field, Value: p}, nil
		case map[string]interface{}:
			x, okX := p["x"].(float64)
			y, okY := p["y"].(float64)
			if !okX || !okY {
				return FieldPayload{}, fmt.Errorf("position needs numeric x and y")
			}
			pos, err := valueobjects.NewPosition(x, y)
			if err != nil {
				return FieldPayload{}, err
			}
			return FieldPayload{Field: field, Value: pos}, nil
		}
		return FieldPayload{}, fmt.Errorf("position must be an object, got %T", value)
	default:
		return FieldPayload{}, fmt.Errorf("unknown node field %q", field)
	}
}

// PayloadEqual reports structural equality of two payloads. Nil and empty
// configs compare equal.
func PayloadEqual(a, b Payload) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// Lookup returns the current value at path, or false if nothing is there.
// A field exists whenever its node exists.
func Lookup(bp *aggregates.Blueprint, path valueobjects.Path) (Payload, bool) {
	switch path.Kind() {
	case valueobjects.PathKindNode:
		n, ok := bp.Node(path.NodeID())
		if !ok {
			return nil, false
		}
		return NodePayload{Node: n}, true
	case valueobjects.PathKindField:
		n, ok := bp.Node(path.NodeID())
		if !ok {
			return nil, false
		}
		v, err := n.Field(path.Field())
		if err != nil {
			return nil, false
		}
		return FieldPayload{Field: path.Field(), Value: v}, true
	case valueobjects.PathKindEdge:
		e, ok := bp.Edge(path.EdgeKey())
		if !ok {
			return nil, false
		}
		return EdgePayload{Edge: e}, true
	}
	return nil, false
}

// Project returns the field projection of a node payload
func Project(p Payload, field valueobjects.Field) (FieldPayload, bool) {
	np, ok := p.(NodePayload)
	if !ok {
		return FieldPayload{}, false
	}
	v, err := np.Node.Field(field)
	if err != nil {
		return FieldPayload{}, false
	}
	return FieldPayload{Field: field, Value: v}, true
}

// ChangedFields lists the node fields that differ between prior and value.
// Without a prior every field counts as changed.
func ChangedFields(value, prior Payload) []valueobjects.Field {
	all := []valueobjects.Field{valueobjects.FieldType, valueobjects.FieldConfig, valueobjects.FieldPosition}
	if prior == nil {
		return all
	}
	var changed []valueobjects.Field
	for _, f := range all {
		v, okV := Project(value, f)
		p, okP := Project(prior, f)
		if !okV || !okP || !PayloadEqual(v, p) {
			changed = append(changed, f)
		}
	}
	return changed
}

// validatePayload checks that the payload shape matches the path
func validatePayload(path valueobjects.Path, p Payload) error {
	if p.kind() != path.Kind() {
		return fmt.Errorf("%s payload does not fit a %s path", p.kind(), path.Kind())
	}
	switch v := p.(type) {
	case NodePayload:
		if !v.Node.ID().Equals(path.NodeID()) {
			return fmt.Errorf("node payload id %q does not match path", v.Node.ID())
		}
	case EdgePayload:
		if v.Edge.Key() != path.EdgeKey() {
			return fmt.Errorf("edge payload key %q does not match path", v.Edge.Key())
		}
	case FieldPayload:
		if v.Field != path.Field() {
			return fmt.Errorf("field payload %q does not match path", v.Field)
		}
		if _, err := NewFieldPayload(v.Field, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodePayload decodes a JSON payload for the given path shape
func DecodePayload(path valueobjects.Path, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch path.Kind() {
	case valueobjects.PathKindNode:
		var n entities.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return NodePayload{Node: n}, nil
	case valueobjects.PathKindEdge:
		var e entities.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return EdgePayload{Edge: e}, nil
	case valueobjects.PathKindField:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return NewFieldPayload(path.Field(), v)
	}
	return nil, fmt.Errorf("unknown path kind %q", path.Kind())
}

// encodePayload renders a payload as plain JSON
func encodePayload(p Payload) (json.RawMessage, error) {
	switch v := p.(type) {
	case nil:
		return nil, nil
	case NodePayload:
		return json.Marshal(v.Node)
	case EdgePayload:
		return json.Marshal(v.Edge)
	case FieldPayload:
		return json.Marshal(v.Value)
	}
	return nil, fmt.Errorf("unknown payload %T", p)
}
