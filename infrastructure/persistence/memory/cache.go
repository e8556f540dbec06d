package memory

import (
	"context"
	"sync"
	"time"

	"blueprint-drafts/application/ports"
	"blueprint-drafts/domain/versioning"
)

// Cache provides a simple in-memory TTL cache
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	now   func() time.Time
}

type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// NewCache creates a new in-memory cache
func NewCache() *Cache {
	return &Cache{
		items: make(map[string]cacheItem),
		now:   time.Now,
	}
}

// Get retrieves a value from cache
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

// Set stores a value in cache with a TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = cacheItem{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes a value from cache
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// CleanupExpired removes expired items and returns how many were dropped
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// CachingSnapshotStore caches LoadLatest of another store. Writes through
// the wrapper invalidate the cached entry of the blueprint.
type CachingSnapshotStore struct {
	inner ports.SnapshotStore
	cache *Cache
	ttl   time.Duration
}

// NewCachingSnapshotStore wraps inner with a latest-version cache
func NewCachingSnapshotStore(inner ports.SnapshotStore, ttl time.Duration) *CachingSnapshotStore {
	return &CachingSnapshotStore{inner: inner, cache: NewCache(), ttl: ttl}
}

func latestKey(blueprintID string) string { return "latest:" + blueprintID }

// LoadLatest serves the latest version from cache when present
func (s *CachingSnapshotStore) LoadLatest(ctx context.Context, blueprintID string) (*ports.Snapshot, error) {
	if cached, ok := s.cache.Get(ctx, latestKey(blueprintID)); ok {
		snap := cached.(*ports.Snapshot)
		return &ports.Snapshot{Version: snap.Version, Blueprint: snap.Blueprint.Clone()}, nil
	}
	snap, err := s.inner.LoadLatest(ctx, blueprintID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, latestKey(blueprintID), &ports.Snapshot{Version: snap.Version, Blueprint: snap.Blueprint.Clone()}, s.ttl)
	return snap, nil
}

// Load reads through to the inner store
func (s *CachingSnapshotStore) Load(ctx context.Context, blueprintID string, version int) (*ports.Snapshot, error) {
	return s.inner.Load(ctx, blueprintID, version)
}

// Save writes through and invalidates the latest entry
func (s *CachingSnapshotStore) Save(ctx context.Context, snapshot *ports.Snapshot) error {
	err := s.inner.Save(ctx, snapshot)
	if snapshot != nil && snapshot.Version != nil {
		s.cache.Delete(ctx, latestKey(snapshot.Version.BlueprintID))
	}
	return err
}

// Delete writes through and invalidates the latest entry
func (s *CachingSnapshotStore) Delete(ctx context.Context, blueprintID string, version int) error {
	err := s.inner.Delete(ctx, blueprintID, version)
	s.cache.Delete(ctx, latestKey(blueprintID))
	return err
}

// ListVersions reads through to the inner store
func (s *CachingSnapshotStore) ListVersions(ctx context.Context, blueprintID string) ([]*versioning.BlueprintVersion, error) {
	return s.inner.ListVersions(ctx, blueprintID)
}
