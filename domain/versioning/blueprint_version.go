package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"blueprint-drafts/domain/core/aggregates"
	"blueprint-drafts/domain/core/valueobjects"
	"blueprint-drafts/domain/patch"
)

// BlueprintVersion describes one committed version of a blueprint
type BlueprintVersion struct {
	BlueprintID string    `json:"blueprint_id"`
	Version     int       `json:"version"`
	Checksum    string    `json:"checksum"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	ProposalID  string    `json:"proposal_id,omitempty"`
	Changes     []Change  `json:"changes,omitempty"`
}

// Change represents one applied op in this version
type Change struct {
	Type ChangeType `json:"type"`
	Path string     `json:"path"`
}

// ChangeType represents the type of change
type ChangeType string

const (
	ChangeTypeNodeAdded   ChangeType = "node_added"
	ChangeTypeNodeRemoved ChangeType = "node_removed"
	ChangeTypeNodeUpdated ChangeType = "node_updated"
	ChangeTypeEdgeAdded   ChangeType = "edge_added"
	ChangeTypeEdgeRemoved ChangeType = "edge_removed"
	ChangeTypeEdgeUpdated ChangeType = "edge_updated"
)

// NewBlueprintVersion records a committed blueprint and the ops that produced it
func NewBlueprintVersion(
	bp *aggregates.Blueprint,
	version valueobjects.Version,
	applied patch.Set,
	proposalID string,
	createdAt time.Time,
) (*BlueprintVersion, error) {
	if bp == nil {
		return nil, fmt.Errorf("blueprint cannot be nil")
	}

	checksum, err := Checksum(bp)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	createdBy := applied.Origin.Source()
	if createdBy == "" {
		createdBy = string(patch.OriginLocal)
	}

	return &BlueprintVersion{
		BlueprintID: bp.ID(),
		Version:     version.Int(),
		Checksum:    checksum,
		NodeCount:   bp.NodeCount(),
		EdgeCount:   bp.EdgeCount(),
		CreatedAt:   createdAt,
		CreatedBy:   createdBy,
		ProposalID:  proposalID,
		Changes:     Summarize(applied.Ops),
	}, nil
}

// Verify checks that bp is the blueprint this version was recorded for
func (v *BlueprintVersion) Verify(bp *aggregates.Blueprint) error {
	checksum, err := Checksum(bp)
	if err != nil {
		return err
	}
	if checksum != v.Checksum {
		return fmt.Errorf("checksum mismatch for %s@%d", v.BlueprintID, v.Version)
	}
	return nil
}

// Checksum hashes the canonical JSON form of a blueprint. Nodes and edges
// are serialized in sorted order and config keys are sorted by encoding/json.
func Checksum(bp *aggregates.Blueprint) (string, error) {
	data, err := json.Marshal(bp.ToDocument())
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Summarize maps applied ops to changes. Field ops count as node updates.
func Summarize(ops []patch.Op) []Change {
	changes := make([]Change, 0, len(ops))
	for _, op := range ops {
		changes = append(changes, Change{Type: changeType(op), Path: op.Path.String()})
	}
	return changes
}

func changeType(op patch.Op) ChangeType {
	if op.Path.Kind() == valueobjects.PathKindEdge {
		switch op.Kind {
		case patch.KindAdd:
			return ChangeTypeEdgeAdded
		case patch.KindRemove:
			return ChangeTypeEdgeRemoved
		default:
			return ChangeTypeEdgeUpdated
		}
	}
	if op.Path.Kind() == valueobjects.PathKindField {
		return ChangeTypeNodeUpdated
	}
	switch op.Kind {
	case patch.KindAdd:
		return ChangeTypeNodeAdded
	case patch.KindRemove:
		return ChangeTypeNodeRemoved
	default:
		return ChangeTypeNodeUpdated
	}
}

// CompareVersions compares two adjacent blueprint versions using the
// changes recorded on v2
func CompareVersions(v1, v2 *BlueprintVersion) (*VersionDiff, error) {
	if v2 == nil {
		return nil, fmt.Errorf("versions cannot be nil")
	}
	return CompareWithChanges(v1, v2, v2.Changes)
}

// CompareWithChanges compares two versions of the same blueprint given the
// changes that lead from v1 to v2
func CompareWithChanges(v1, v2 *BlueprintVersion, changes []Change) (*VersionDiff, error) {
	if v1 == nil || v2 == nil {
		return nil, fmt.Errorf("versions cannot be nil")
	}
	if v1.BlueprintID != v2.BlueprintID {
		return nil, fmt.Errorf("versions belong to different blueprints")
	}

	diff := &VersionDiff{
		FromVersion: v1.Version,
		ToVersion:   v2.Version,
		TimeDiff:    v2.CreatedAt.Sub(v1.CreatedAt),
	}

	for _, change := range changes {
		switch change.Type {
		case ChangeTypeNodeAdded:
			diff.NodesDiff.Added++
		case ChangeTypeNodeRemoved:
			diff.NodesDiff.Removed++
		case ChangeTypeNodeUpdated:
			diff.NodesDiff.Updated++
		case ChangeTypeEdgeAdded:
			diff.EdgesDiff.Added++
		case ChangeTypeEdgeRemoved:
			diff.EdgesDiff.Removed++
		case ChangeTypeEdgeUpdated:
			diff.EdgesDiff.Updated++
		}
	}

	return diff, nil
}

// VersionDiff represents the difference between two versions
type VersionDiff struct {
	FromVersion int           `json:"from_version"`
	ToVersion   int           `json:"to_version"`
	NodesDiff   CountDiff     `json:"nodes_diff"`
	EdgesDiff   CountDiff     `json:"edges_diff"`
	TimeDiff    time.Duration `json:"time_diff"`
}

// CountDiff counts changes of one entity kind
type CountDiff struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// RetentionPolicy decides which old versions a store keeps
type RetentionPolicy struct {
	MaxVersions     int           `json:"max_versions"`
	RetentionPeriod time.Duration `json:"retention_period"`
}

// DefaultRetentionPolicy returns the default retention policy
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MaxVersions:     50,
		RetentionPeriod: 30 * 24 * time.Hour, // 30 days
	}
}

// ShouldPrune reports whether v may be dropped given the latest version.
// The latest version is always kept.
func (p RetentionPolicy) ShouldPrune(v *BlueprintVersion, latest int, now time.Time) bool {
	if v.Version >= latest {
		return false
	}
	if p.MaxVersions > 0 && latest-v.Version >= p.MaxVersions {
		return true
	}
	if p.RetentionPeriod > 0 && now.Sub(v.CreatedAt) > p.RetentionPeriod {
		return true
	}
	return false
}
