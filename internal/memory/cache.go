package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/meliorhq/melior/internal/types"
)

// SnapshotBuilder produces a fresh snapshot for a user.
type SnapshotBuilder interface {
	Aggregate(ctx context.Context, userID string) (types.MemorySnapshot, error)
}

// Cache is the per-user single-flight snapshot cache. Entries are TTL- and
// capacity-bounded; eviction never touches source-of-truth data.
type Cache struct {
	builder SnapshotBuilder
	store   *ristretto.Cache
	group   singleflight.Group
	ttl     time.Duration
	// rebuilds bounds in-flight rebuilds across all users; nil means unbounded.
	rebuilds chan struct{}
}

// CacheConfig bounds the cache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int64
	// RebuildCap limits concurrent rebuilds across different users; 0 means
	// no cross-user limit.
	RebuildCap int
}

// NewCache creates a snapshot cache in front of the builder.
func NewCache(builder SnapshotBuilder, cfg CacheConfig) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	c := &Cache{
		builder: builder,
		store:   store,
		ttl:     cfg.TTL,
	}
	if cfg.RebuildCap > 0 {
		c.rebuilds = make(chan struct{}, cfg.RebuildCap)
	}
	return c, nil
}

// GetOrBuild returns the cached snapshot for a user, rebuilding at most once
// per miss regardless of concurrent request fan-in. A failed rebuild is not
// cached; the next call retries.
func (c *Cache) GetOrBuild(ctx context.Context, userID string) (types.MemorySnapshot, error) {
	if snap, ok := c.lookup(userID); ok {
		return snap, nil
	}

	v, err, _ := c.group.Do(userID, func() (any, error) {
		// A rebuild may have completed while this caller waited on the flight.
		if snap, ok := c.lookup(userID); ok {
			return snap, nil
		}

		if c.rebuilds != nil {
			select {
			case c.rebuilds <- struct{}{}:
				defer func() { <-c.rebuilds }()
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		snap, err := c.builder.Aggregate(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.store.SetWithTTL(userID, snap, 1, c.ttl)
		// Make the entry visible before returning so follow-up calls hit.
		c.store.Wait()
		return snap, nil
	})
	if err != nil {
		return types.MemorySnapshot{}, fmt.Errorf("failed to build memory snapshot: %w", err)
	}
	return v.(types.MemorySnapshot), nil
}

// Invalidate drops the cached snapshot for a user.
func (c *Cache) Invalidate(userID string) {
	c.store.Del(userID)
	c.store.Wait()
}

func (c *Cache) lookup(userID string) (types.MemorySnapshot, bool) {
	v, ok := c.store.Get(userID)
	if !ok {
		return types.MemorySnapshot{}, false
	}
	snap, ok := v.(types.MemorySnapshot)
	return snap, ok
}
