// Package subscription enforces tier-based feature and quota restrictions.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meliorhq/melior/internal/types"
)

var (
	// ErrTierRequired means the requested analysis kind needs a paid tier.
	ErrTierRequired = errors.New("premium subscription required")
	// ErrQuotaExceeded means the billing period's analysis quota is spent.
	ErrQuotaExceeded = errors.New("analysis quota exceeded")
)

// Store reads and mutates persisted subscription state.
type Store interface {
	Get(ctx context.Context, userID string) (types.SubscriptionState, error)
	ResetPeriod(ctx context.Context, userID string, start time.Time) error
	IncrementUsage(ctx context.Context, userID string, cap int) (bool, error)
}

// comprehensiveDomainCount is fixed by the analysis schema.
const comprehensiveDomainCount = 9

// Gate wraps the analyzer pipeline with tier and quota checks. The quota
// check-and-increment is atomic per user so concurrent requests cannot race
// past the cap.
type Gate struct {
	store        Store
	freeQuota    int
	premiumQuota int
	period       time.Duration
	nowFunc      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config holds the gate's quota settings.
type Config struct {
	FreeQuota    int
	PremiumQuota int
	Period       time.Duration
}

// NewGate returns a Gate.
func NewGate(store Store, cfg Config) *Gate {
	if cfg.FreeQuota <= 0 {
		cfg.FreeQuota = 3
	}
	if cfg.PremiumQuota <= 0 {
		cfg.PremiumQuota = 500
	}
	if cfg.Period <= 0 {
		cfg.Period = 30 * 24 * time.Hour
	}
	return &Gate{
		store:        store,
		freeQuota:    cfg.FreeQuota,
		premiumQuota: cfg.PremiumQuota,
		period:       cfg.Period,
		nowFunc:      time.Now,
		locks:        map[string]*sync.Mutex{},
	}
}

// Authorize resolves the domain count the user's tier allows for the
// requested analysis kind.
func (g *Gate) Authorize(ctx context.Context, userID string, kind types.AnalysisKind) (types.Grant, error) {
	state, err := g.currentState(ctx, userID)
	if err != nil {
		return types.Grant{}, err
	}

	paid := state.Tier == types.TierPremium || state.Tier == types.TierProfessional
	switch kind {
	case types.AnalysisBasic:
		// Basic is always one domain, whatever the tier.
		return types.Grant{Tier: state.Tier, DomainCount: 1}, nil
	case types.AnalysisComprehensive:
		if !paid {
			return types.Grant{}, ErrTierRequired
		}
		return types.Grant{Tier: state.Tier, DomainCount: comprehensiveDomainCount}, nil
	case types.AnalysisSingleDomain:
		if !paid {
			return types.Grant{}, ErrTierRequired
		}
		return types.Grant{Tier: state.Tier, DomainCount: 1}, nil
	default:
		return types.Grant{}, fmt.Errorf("unknown analysis kind %q", kind)
	}
}

// ConsumeQuota increments the user's period usage, failing once the tier's
// cap is reached. The increment happens before the gated operation runs.
func (g *Gate) ConsumeQuota(ctx context.Context, userID string) error {
	lock := g.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := g.currentState(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := g.store.IncrementUsage(ctx, userID, g.quotaFor(state.Tier))
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

// Status returns the subscription state plus the quota remaining this period.
func (g *Gate) Status(ctx context.Context, userID string) (types.SubscriptionState, int, error) {
	state, err := g.currentState(ctx, userID)
	if err != nil {
		return types.SubscriptionState{}, 0, err
	}
	remaining := g.quotaFor(state.Tier) - state.PeriodUsageCount
	if remaining < 0 {
		remaining = 0
	}
	return state, remaining, nil
}

// currentState loads the state, rolling the billing period over when it has
// lapsed.
func (g *Gate) currentState(ctx context.Context, userID string) (types.SubscriptionState, error) {
	state, err := g.store.Get(ctx, userID)
	if err != nil {
		return types.SubscriptionState{}, fmt.Errorf("failed to load subscription state: %w", err)
	}

	now := g.nowFunc()
	if now.Sub(state.PeriodStart) >= g.period {
		if err := g.store.ResetPeriod(ctx, userID, now); err != nil {
			return types.SubscriptionState{}, fmt.Errorf("failed to roll billing period: %w", err)
		}
		state.PeriodUsageCount = 0
		state.PeriodStart = now
	}
	return state, nil
}

func (g *Gate) quotaFor(tier types.Tier) int {
	if tier == types.TierPremium || tier == types.TierProfessional {
		return g.premiumQuota
	}
	return g.freeQuota
}

func (g *Gate) userLock(userID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[userID] = lock
	}
	return lock
}
