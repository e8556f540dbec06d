package valueobjects

import (
	"fmt"
	"strings"
)

// EdgeKey is the identity of an edge: source node and port to target node and port
type EdgeKey struct {
	source     NodeID
	sourcePort PortName
	target     NodeID
	targetPort PortName
}

// NewEdgeKey builds an edge identity
func NewEdgeKey(source NodeID, sourcePort PortName, target NodeID, targetPort PortName) EdgeKey {
	return EdgeKey{source: source, sourcePort: sourcePort, target: target, targetPort: targetPort}
}

// ParseEdgeKey parses "source:port->target:port"
func ParseEdgeKey(s string) (EdgeKey, error) {
	from, to, ok := strings.Cut(s, "->")
	if !ok {
		return EdgeKey{}, fmt.Errorf("edge key %q missing '->'", s)
	}
	source, sourcePort, err := parseEndpoint(from)
	if err != nil {
		return EdgeKey{}, err
	}
	target, targetPort, err := parseEndpoint(to)
	if err != nil {
		return EdgeKey{}, err
	}
	return NewEdgeKey(source, sourcePort, target, targetPort), nil
}

func parseEndpoint(s string) (NodeID, PortName, error) {
	id, port, _ := strings.Cut(s, ":")
	nodeID, err := NewNodeID(id)
	if err != nil {
		return NodeID{}, "", err
	}
	p := PortName(port)
	if err := p.Validate(); err != nil {
		return NodeID{}, "", err
	}
	return nodeID, p, nil
}

// Source returns the source node
func (k EdgeKey) Source() NodeID { return k.source }

// SourcePort returns the source port
func (k EdgeKey) SourcePort() PortName { return k.sourcePort }

// Target returns the target node
func (k EdgeKey) Target() NodeID { return k.target }

// TargetPort returns the target port
func (k EdgeKey) TargetPort() PortName { return k.targetPort }

// Touches reports whether either endpoint is node
func (k EdgeKey) Touches(node NodeID) bool {
	return k.source.Equals(node) || k.target.Equals(node)
}

// String renders the key as "source:port->target:port"
func (k EdgeKey) String() string {
	return fmt.Sprintf("%s:%s->%s:%s", k.source, k.sourcePort, k.target, k.targetPort)
}

// PathKind discriminates the three address shapes
type PathKind string

const (
	PathKindNode  PathKind = "node"
	PathKindField PathKind = "field"
	PathKindEdge  PathKind = "edge"
)

// Field names a node attribute addressable on its own
type Field string

const (
	FieldType     Field = "type"
	FieldConfig   Field = "config"
	FieldPosition Field = "position"
)

// IsValid reports whether f is an addressable node field
func (f Field) IsValid() bool {
	switch f {
	case FieldType, FieldConfig, FieldPosition:
		return true
	}
	return false
}

// Path is a structural address inside a blueprint:
//
//	nodes/<id>
//	nodes/<id>/<field>
//	edges/<source:port->target:port>
//
// Paths are comparable and usable as map keys.
type Path struct {
	kind  PathKind
	node  NodeID
	field Field
	edge  EdgeKey
}

// NodePath addresses a whole node
func NodePath(id NodeID) Path {
	return Path{kind: PathKindNode, node: id}
}

// FieldPath addresses one field of a node
func FieldPath(id NodeID, field Field) Path {
	return Path{kind: PathKindField, node: id, field: field}
}

// EdgePath addresses an edge
func EdgePath(key EdgeKey) Path {
	return Path{kind: PathKindEdge, edge: key}
}

// ParsePath parses the textual form of a path
func ParsePath(s string) (Path, error) {
	root, rest, ok := strings.Cut(s, "/")
	if !ok || rest == "" {
		return Path{}, fmt.Errorf("path %q has no address", s)
	}

	switch root {
	case "nodes":
		id, field, hasField := strings.Cut(rest, "/")
		nodeID, err := NewNodeID(id)
		if err != nil {
			return Path{}, fmt.Errorf("path %q: %w", s, err)
		}
		if !hasField {
			return NodePath(nodeID), nil
		}
		f := Field(field)
		if !f.IsValid() {
			return Path{}, fmt.Errorf("path %q: unknown node field %q", s, field)
		}
		return FieldPath(nodeID, f), nil
	case "edges":
		key, err := ParseEdgeKey(rest)
		if err != nil {
			return Path{}, fmt.Errorf("path %q: %w", s, err)
		}
		return EdgePath(key), nil
	default:
		return Path{}, fmt.Errorf("path %q: unknown root %q", s, root)
	}
}

// Kind returns the address shape
func (p Path) Kind() PathKind { return p.kind }

// NodeID returns the node addressed by a node or field path
func (p Path) NodeID() NodeID { return p.node }

// Field returns the field of a field path
func (p Path) Field() Field { return p.field }

// EdgeKey returns the key of an edge path
func (p Path) EdgeKey() EdgeKey { return p.edge }

// IsZero reports whether p is the zero path
func (p Path) IsZero() bool { return p.kind == "" }

// NodeRoot returns the node path owning a field path, or p itself otherwise
func (p Path) NodeRoot() Path {
	if p.kind == PathKindField {
		return NodePath(p.node)
	}
	return p
}

// Contains reports whether p is a node path and q addresses one of its fields
func (p Path) Contains(q Path) bool {
	return p.kind == PathKindNode && q.kind == PathKindField && p.node.Equals(q.node)
}

// References reports whether p is a node path and q is an edge touching that node
func (p Path) References(q Path) bool {
	return p.kind == PathKindNode && q.kind == PathKindEdge && q.edge.Touches(p.node)
}

// Overlaps reports whether changes at p and q can interfere
func (p Path) Overlaps(q Path) bool {
	return p == q || p.Contains(q) || q.Contains(p) || p.References(q) || q.References(p)
}

// String renders the path
func (p Path) String() string {
	switch p.kind {
	case PathKindNode:
		return "nodes/" + p.node.String()
	case PathKindField:
		return "nodes/" + p.node.String() + "/" + string(p.field)
	case PathKindEdge:
		return "edges/" + p.edge.String()
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
