package valueobjects

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// identifierPattern is shared by node ids and port names. It excludes '/',
// ':' and '>' so paths and edge keys stay unambiguous.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

const maxIdentifierLength = 128

// NodeID is a value object identifying a node within a blueprint.
// Value objects are immutable and have no identity beyond their value.
type NodeID struct {
	value string
}

// NewNodeID creates a NodeID from an existing string
func NewNodeID(id string) (NodeID, error) {
	if id == "" {
		return NodeID{}, errors.New("node ID cannot be empty")
	}
	if len(id) > maxIdentifierLength {
		return NodeID{}, fmt.Errorf("node ID exceeds %d characters", maxIdentifierLength)
	}
	if !identifierPattern.MatchString(id) {
		return NodeID{}, fmt.Errorf("node ID %q contains invalid characters", id)
	}
	return NodeID{value: id}, nil
}

// MustNodeID is NewNodeID for literals known to be valid
func MustNodeID(id string) NodeID {
	nodeID, err := NewNodeID(id)
	if err != nil {
		panic(err)
	}
	return nodeID
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsZero checks if the NodeID is the zero value
func (id NodeID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *NodeID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.New("NodeID must be a string")
	}
	parsed, err := NewNodeID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PortName names an input or output port on a node. Empty means the default port.
type PortName string

// Validate checks the port name charset
func (p PortName) Validate() error {
	if p == "" {
		return nil
	}
	if len(p) > maxIdentifierLength || !identifierPattern.MatchString(string(p)) {
		return fmt.Errorf("port name %q is invalid", string(p))
	}
	return nil
}

// Version identifies a committed base snapshot. Only the draft store advances it.
type Version int

// Next returns the version following v
func (v Version) Next() Version {
	return v + 1
}

// Int returns the version as a plain int
func (v Version) Int() int {
	return int(v)
}
