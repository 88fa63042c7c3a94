package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meliorhq/melior/internal/types"
)

type fakeBuilder struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (b *fakeBuilder) Aggregate(ctx context.Context, userID string) (types.MemorySnapshot, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.err != nil {
		return types.MemorySnapshot{}, b.err
	}
	return types.MemorySnapshot{UserID: userID, BuiltAt: time.Now()}, nil
}

func TestGetOrBuildHitSkipsBuilder(t *testing.T) {
	builder := &fakeBuilder{}
	cache, err := NewCache(builder, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err != nil {
		t.Fatalf("first GetOrBuild returned error: %v", err)
	}
	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err != nil {
		t.Fatalf("second GetOrBuild returned error: %v", err)
	}
	if got := builder.calls.Load(); got != 1 {
		t.Fatalf("expected 1 aggregation, got %d", got)
	}
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	builder := &fakeBuilder{delay: 50 * time.Millisecond}
	cache, err := NewCache(builder, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	const concurrency = 20
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrBuild(context.Background(), "cold-user"); err != nil {
				t.Errorf("GetOrBuild returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := builder.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 aggregation for %d concurrent callers, got %d", concurrency, got)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	builder := &fakeBuilder{}
	cache, err := NewCache(builder, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetOrBuild returned error: %v", err)
	}
	cache.Invalidate("user-1")
	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err != nil {
		t.Fatalf("GetOrBuild after invalidate returned error: %v", err)
	}
	if got := builder.calls.Load(); got != 2 {
		t.Fatalf("expected rebuild after invalidation, got %d aggregations", got)
	}
}

func TestRebuildFailureNotCached(t *testing.T) {
	builder := &fakeBuilder{err: fmt.Errorf("sources down")}
	cache, err := NewCache(builder, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error from failing builder")
	}

	builder.err = nil
	if _, err := cache.GetOrBuild(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected recovery on next call, got %v", err)
	}
	if got := builder.calls.Load(); got != 2 {
		t.Fatalf("expected 2 aggregation attempts, got %d", got)
	}
}

func TestCacheIsolatesUsers(t *testing.T) {
	builder := &fakeBuilder{}
	cache, err := NewCache(builder, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewCache returned error: %v", err)
	}

	snapA, err := cache.GetOrBuild(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("GetOrBuild returned error: %v", err)
	}
	snapB, err := cache.GetOrBuild(context.Background(), "user-b")
	if err != nil {
		t.Fatalf("GetOrBuild returned error: %v", err)
	}
	if snapA.UserID == snapB.UserID {
		t.Fatal("expected distinct snapshots per user")
	}
	if got := builder.calls.Load(); got != 2 {
		t.Fatalf("expected one aggregation per user, got %d", got)
	}
}
