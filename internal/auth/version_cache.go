package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// VersionStore is the authoritative source for a user's token version.
type VersionStore interface {
	GetTokenVersion(ctx context.Context, userID string) (int64, error)
}

type versionEntry struct {
	version   int64
	fetchedAt time.Time
}

// VersionCache caches token versions with a TTL so token validation does not
// hit storage on every request. Revocation latency for passive callers is
// bounded by the TTL; Invalidate drops a user's entry synchronously so the
// next read is authoritative.
//
// Safe for concurrent use; reads do not block each other.
type VersionCache struct {
	store VersionStore
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]versionEntry

	// gens counts invalidations per user and resetGen counts Resets. A
	// miss snapshots both before reading the store and discards its result
	// if either moved, so a read that raced an invalidation can never
	// cache a revoked version back in.
	gens     map[string]uint64
	resetGen uint64

	// now is swappable for tests.
	now func() time.Time
}

// NewVersionCache creates a cache backed by the given store.
func NewVersionCache(store VersionStore, ttl time.Duration) *VersionCache {
	return &VersionCache{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]versionEntry),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

// Get returns the user's current token version, from cache if the entry is
// younger than the TTL, otherwise re-read from the store.
func (c *VersionCache) Get(ctx context.Context, userID string) (int64, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	gen, resetGen := c.gens[userID], c.resetGen
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.version, nil
	}

	version, err := c.store.GetTokenVersion(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reading token version: %w", err)
	}

	c.mu.Lock()
	// An invalidation that landed while the store read was in flight may
	// have been followed by a newer version. Serve this result to the
	// caller that began before the invalidation, but never cache it.
	if c.gens[userID] == gen && c.resetGen == resetGen {
		c.entries[userID] = versionEntry{version: version, fetchedAt: c.now()}
	}
	c.mu.Unlock()

	return version, nil
}

// Invalidate removes a user's cached entry. The next Get re-reads the store,
// so a revocation followed by Invalidate is enforced immediately.
func (c *VersionCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.gens[userID]++
	c.mu.Unlock()
}

// Reset drops every cached entry. Used on reconfiguration and in tests.
func (c *VersionCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]versionEntry)
	c.gens = make(map[string]uint64)
	c.resetGen++
	c.mu.Unlock()
}
