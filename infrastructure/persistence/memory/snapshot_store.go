package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/versioning"
	pkgerrors "blueprint-drafts/pkg/errors"
)

// SnapshotStore keeps committed versions in process memory. Blueprints are
// cloned on the way in and out so callers never share state with the store.
type SnapshotStore struct {
	mu        sync.RWMutex
	versions  map[string]map[int]*ports.Snapshot
	retention versioning.RetentionPolicy
	now       func() time.Time
}

// NewSnapshotStore creates an empty store that keeps every version
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		versions: make(map[string]map[int]*ports.Snapshot),
		now:      time.Now,
	}
}

// WithRetention prunes old versions on every save
func (s *SnapshotStore) WithRetention(policy versioning.RetentionPolicy) *SnapshotStore {
	s.retention = policy
	return s
}

// LoadLatest retrieves the highest committed version
func (s *SnapshotStore) LoadLatest(ctx context.Context, blueprintID string) (*ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latest(blueprintID)
	if latest == 0 {
		return nil, pkgerrors.NewNotFoundError("blueprint " + blueprintID)
	}
	return copySnapshot(s.versions[blueprintID][latest]), nil
}

// Load retrieves one committed version
func (s *SnapshotStore) Load(ctx context.Context, blueprintID string, version int) (*ports.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.versions[blueprintID][version]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("blueprint version")
	}
	return copySnapshot(snap), nil
}

// Save persists a new version; an existing version is never overwritten
func (s *SnapshotStore) Save(ctx context.Context, snapshot *ports.Snapshot) error {
	if snapshot == nil || snapshot.Version == nil || snapshot.Blueprint == nil {
		return pkgerrors.NewValidationError("snapshot requires a version and a blueprint")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := snapshot.Version.BlueprintID
	byVersion, ok := s.versions[id]
	if !ok {
		byVersion = make(map[int]*ports.Snapshot)
		s.versions[id] = byVersion
	}
	if _, exists := byVersion[snapshot.Version.Version]; exists {
		return pkgerrors.VersionExists(id, snapshot.Version.Version)
	}
	byVersion[snapshot.Version.Version] = copySnapshot(snapshot)
	s.prune(id)
	return nil
}

// Delete removes one version
func (s *SnapshotStore) Delete(ctx context.Context, blueprintID string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[blueprintID][version]; !ok {
		return pkgerrors.NewNotFoundError("blueprint version")
	}
	delete(s.versions[blueprintID], version)
	return nil
}

// ListVersions returns version records in ascending order
func (s *SnapshotStore) ListVersions(ctx context.Context, blueprintID string) ([]*versioning.BlueprintVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*versioning.BlueprintVersion, 0, len(s.versions[blueprintID]))
	for _, snap := range s.versions[blueprintID] {
		record := *snap.Version
		records = append(records, &record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

func (s *SnapshotStore) latest(blueprintID string) int {
	latest := 0
	for v := range s.versions[blueprintID] {
		if v > latest {
			latest = v
		}
	}
	return latest
}

func (s *SnapshotStore) prune(blueprintID string) {
	if s.retention.MaxVersions <= 0 && s.retention.RetentionPeriod <= 0 {
		return
	}
	latest := s.latest(blueprintID)
	now := s.now()
	for v, snap := range s.versions[blueprintID] {
		if s.retention.ShouldPrune(snap.Version, latest, now) {
			delete(s.versions[blueprintID], v)
		}
	}
}

func copySnapshot(snap *ports.Snapshot) *ports.Snapshot {
	record := *snap.Version
	record.Changes = append([]versioning.Change(nil), snap.Version.Changes...)
	return &ports.Snapshot{Version: &record, Blueprint: snap.Blueprint.Clone()}
}
