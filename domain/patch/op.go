package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"blueprint-drafts/domain/core/valueobjects"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// Kind is the type of structural change an op makes
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindUpdate Kind = "update"
)

// IsValid checks if the kind is known
func (k Kind) IsValid() bool {
	return k == KindAdd || k == KindRemove || k == KindUpdate
}

// Op is a single structural change addressed by path. Value is the new
// payload (none for remove); Prior is the payload the op replaced (none for add).
type Op struct {
	Path  valueobjects.Path
	Kind  Kind
	Value Payload
	Prior Payload
}

// Add creates an add op for a payload
func Add(path valueobjects.Path, value Payload) Op {
	return Op{Path: path, Kind: KindAdd, Value: value}
}

// Update creates an update op for a payload
func Update(path valueobjects.Path, value Payload) Op {
	return Op{Path: path, Kind: KindUpdate, Value: value}
}

// Remove creates a remove op
func Remove(path valueobjects.Path) Op {
	return Op{Path: path, Kind: KindRemove}
}

// Validate checks that the op is well formed
func (o Op) Validate() error {
	path := o.Path.String()
	if o.Path.IsZero() {
		return pkgerrors.InvalidPatchPath(path, "op has no path")
	}
	if !o.Kind.IsValid() {
		return pkgerrors.InvalidPatchPath(path, fmt.Sprintf("unknown op kind %q", o.Kind))
	}
	if o.Path.Kind() == valueobjects.PathKindField && o.Kind == KindRemove {
		return pkgerrors.InvalidPatchPath(path, "node fields cannot be removed")
	}
	switch o.Kind {
	case KindAdd, KindUpdate:
		if o.Value == nil {
			return pkgerrors.InvalidPatchPath(path, string(o.Kind)+" requires a value")
		}
		if err := validatePayload(o.Path, o.Value); err != nil {
			return pkgerrors.InvalidPatchPath(path, err.Error())
		}
	case KindRemove:
		if o.Value != nil {
			return pkgerrors.InvalidPatchPath(path, "remove carries no value")
		}
	}
	if o.Prior != nil {
		if err := validatePayload(o.Path, o.Prior); err != nil {
			return pkgerrors.InvalidPatchPath(path, "prior: "+err.Error())
		}
	}
	return nil
}

// Inverse returns the op that undoes o. Removes and updates need a prior.
func (o Op) Inverse() (Op, error) {
	switch o.Kind {
	case KindAdd:
		return Op{Path: o.Path, Kind: KindRemove, Prior: o.Value}, nil
	case KindRemove:
		if o.Prior == nil {
			return Op{}, pkgerrors.InvalidPatchPath(o.Path.String(), "remove has no prior value to restore")
		}
		return Op{Path: o.Path, Kind: KindAdd, Value: o.Prior}, nil
	case KindUpdate:
		if o.Prior == nil {
			return Op{}, pkgerrors.InvalidPatchPath(o.Path.String(), "update has no prior value to restore")
		}
		return Op{Path: o.Path, Kind: KindUpdate, Value: o.Prior, Prior: o.Value}, nil
	}
	return Op{}, pkgerrors.InvalidPatchPath(o.Path.String(), fmt.Sprintf("unknown op kind %q", o.Kind))
}

// Equal reports whether two ops make the same change
func (o Op) Equal(other Op) bool {
	return o.Path == other.Path &&
		o.Kind == other.Kind &&
		PayloadEqual(o.Value, other.Value) &&
		PayloadEqual(o.Prior, other.Prior)
}

// String renders a compact description such as "update nodes/B"
func (o Op) String() string {
	return string(o.Kind) + " " + o.Path.String()
}

type opJSON struct {
	Path  string          `json:"path"`
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
	Prior json.RawMessage `json:"prior,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (o Op) MarshalJSON() ([]byte, error) {
	value, err := encodePayload(o.Value)
	if err != nil {
		return nil, err
	}
	prior, err := encodePayload(o.Prior)
	if err != nil {
		return nil, err
	}
	return json.Marshal(opJSON{Path: o.Path.String(), Kind: o.Kind, Value: value, Prior: prior})
}

// UnmarshalJSON implements json.Unmarshaler. Malformed paths and payloads
// fail with InvalidPatchPath.
func (o *Op) UnmarshalJSON(data []byte) error {
	var raw opJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	path, err := valueobjects.ParsePath(raw.Path)
	if err != nil {
		return pkgerrors.InvalidPatchPath(raw.Path, err.Error())
	}
	value, err := DecodePayload(path, raw.Value)
	if err != nil {
		return pkgerrors.InvalidPatchPath(raw.Path, "value: "+err.Error())
	}
	prior, err := DecodePayload(path, raw.Prior)
	if err != nil {
		return pkgerrors.InvalidPatchPath(raw.Path, "prior: "+err.Error())
	}
	*o = Op{Path: path, Kind: raw.Kind, Value: value, Prior: prior}
	return nil
}

// Origin tags where a patch set came from: "local" or "proposal:<source>"
type Origin string

const OriginLocal Origin = "local"

const proposalPrefix = "proposal:"

// ProposalOrigin builds the origin for a proposal from source
func ProposalOrigin(source string) Origin {
	return Origin(proposalPrefix + source)
}

// IsProposal reports whether the origin is a proposal
func (o Origin) IsProposal() bool {
	return strings.HasPrefix(string(o), proposalPrefix)
}

// Source returns the proposal source id, or "" for local
func (o Origin) Source() string {
	if !o.IsProposal() {
		return ""
	}
	return strings.TrimPrefix(string(o), proposalPrefix)
}

// Set is an ordered sequence of ops computed against a base version
type Set struct {
	BaseVersion valueobjects.Version `json:"baseVersion"`
	Origin      Origin               `json:"origin"`
	Ops         []Op                 `json:"ops"`
}

// NewSet creates a patch set; the ops slice is copied
func NewSet(base valueobjects.Version, origin Origin, ops []Op) Set {
	return Set{BaseVersion: base, Origin: origin, Ops: append([]Op(nil), ops...)}
}

// IsEmpty reports whether the set has no ops
func (s Set) IsEmpty() bool { return len(s.Ops) == 0 }

// Paths lists the path of every op in order
func (s Set) Paths() []string {
	paths := make([]string, len(s.Ops))
	for i, op := range s.Ops {
		paths[i] = op.Path.String()
	}
	return paths
}
