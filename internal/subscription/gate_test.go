package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meliorhq/melior/internal/types"
)

// memStore is an in-memory Store with the same guarded-increment semantics
// as the database implementation.
type memStore struct {
	mu     sync.Mutex
	states map[string]*types.SubscriptionState
	getErr error
}

func newMemStore() *memStore {
	return &memStore{states: map[string]*types.SubscriptionState{}}
}

func (s *memStore) put(userID string, tier types.Tier, used int, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = &types.SubscriptionState{
		UserID:           userID,
		Tier:             tier,
		PeriodUsageCount: used,
		PeriodStart:      start,
	}
}

func (s *memStore) Get(ctx context.Context, userID string) (types.SubscriptionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return types.SubscriptionState{}, s.getErr
	}
	state, ok := s.states[userID]
	if !ok {
		state = &types.SubscriptionState{UserID: userID, Tier: types.TierFree, PeriodStart: time.Now()}
		s.states[userID] = state
	}
	return *state, nil
}

func (s *memStore) ResetPeriod(ctx context.Context, userID string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[userID]; ok {
		state.PeriodUsageCount = 0
		state.PeriodStart = start
	}
	return nil
}

func (s *memStore) IncrementUsage(ctx context.Context, userID string, cap int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return false, nil
	}
	if state.PeriodUsageCount >= cap {
		return false, nil
	}
	state.PeriodUsageCount++
	return true, nil
}

func TestAuthorizeBasicOnFreeTier(t *testing.T) {
	store := newMemStore()
	store.put("user-1", types.TierFree, 0, time.Now())
	gate := NewGate(store, Config{})

	grant, err := gate.Authorize(context.Background(), "user-1", types.AnalysisBasic)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if grant.DomainCount != 1 {
		t.Fatalf("basic analysis must grant exactly 1 domain, got %d", grant.DomainCount)
	}
}

func TestAuthorizeComprehensiveRequiresPaidTier(t *testing.T) {
	store := newMemStore()
	store.put("free-user", types.TierFree, 0, time.Now())
	store.put("premium-user", types.TierPremium, 0, time.Now())
	store.put("pro-user", types.TierProfessional, 0, time.Now())
	gate := NewGate(store, Config{})

	if _, err := gate.Authorize(context.Background(), "free-user", types.AnalysisComprehensive); !errors.Is(err, ErrTierRequired) {
		t.Fatalf("expected ErrTierRequired for free tier, got %v", err)
	}
	for _, userID := range []string{"premium-user", "pro-user"} {
		grant, err := gate.Authorize(context.Background(), userID, types.AnalysisComprehensive)
		if err != nil {
			t.Fatalf("Authorize(%s): %v", userID, err)
		}
		if grant.DomainCount != 9 {
			t.Fatalf("comprehensive grant for %s should cover 9 domains, got %d", userID, grant.DomainCount)
		}
	}
}

func TestAuthorizeSingleDomainRequiresPaidTier(t *testing.T) {
	store := newMemStore()
	store.put("free-user", types.TierFree, 0, time.Now())
	gate := NewGate(store, Config{})

	if _, err := gate.Authorize(context.Background(), "free-user", types.AnalysisSingleDomain); !errors.Is(err, ErrTierRequired) {
		t.Fatalf("expected ErrTierRequired, got %v", err)
	}
}

func TestAuthorizeUnknownUserDefaultsToFree(t *testing.T) {
	gate := NewGate(newMemStore(), Config{})

	grant, err := gate.Authorize(context.Background(), "never-seen", types.AnalysisBasic)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if grant.Tier != types.TierFree {
		t.Fatalf("unknown users default to free, got %s", grant.Tier)
	}
}

func TestConsumeQuotaStopsAtCap(t *testing.T) {
	store := newMemStore()
	store.put("user-1", types.TierFree, 0, time.Now())
	gate := NewGate(store, Config{FreeQuota: 3})

	for i := 0; i < 3; i++ {
		if err := gate.ConsumeQuota(context.Background(), "user-1"); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
	if err := gate.ConsumeQuota(context.Background(), "user-1"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded past the cap, got %v", err)
	}
}

func TestConsumeQuotaConcurrentNeverExceedsCap(t *testing.T) {
	store := newMemStore()
	store.put("user-1", types.TierFree, 0, time.Now())
	gate := NewGate(store, Config{FreeQuota: 3})

	const attempts = 50
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- gate.ConsumeQuota(context.Background(), "user-1")
		}()
	}
	wg.Wait()
	close(errs)

	granted := 0
	for err := range errs {
		if err == nil {
			granted++
		} else if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if granted != 3 {
		t.Fatalf("expected exactly 3 grants under contention, got %d", granted)
	}
	state, _, err := gate.Status(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.PeriodUsageCount != 3 {
		t.Fatalf("usage count overran the cap: %d", state.PeriodUsageCount)
	}
}

func TestQuotaResetsAfterPeriodLapses(t *testing.T) {
	start := time.Now().Add(-31 * 24 * time.Hour)
	store := newMemStore()
	store.put("user-1", types.TierFree, 3, start)
	gate := NewGate(store, Config{FreeQuota: 3, Period: 30 * 24 * time.Hour})

	if err := gate.ConsumeQuota(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected rollover to free the quota, got %v", err)
	}
	state, remaining, err := gate.Status(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if state.PeriodUsageCount != 1 || remaining != 2 {
		t.Fatalf("post-rollover state wrong: used=%d remaining=%d", state.PeriodUsageCount, remaining)
	}
}

func TestPremiumQuotaIsLarger(t *testing.T) {
	store := newMemStore()
	store.put("user-1", types.TierPremium, 0, time.Now())
	gate := NewGate(store, Config{FreeQuota: 3, PremiumQuota: 500})

	_, remaining, err := gate.Status(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if remaining != 500 {
		t.Fatalf("premium remaining should be 500, got %d", remaining)
	}
}

func TestStoreErrorSurfacesFromAuthorize(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("db offline")
	gate := NewGate(store, Config{})

	if _, err := gate.Authorize(context.Background(), "user-1", types.AnalysisBasic); err == nil {
		t.Fatal("expected store error to surface")
	}
}
