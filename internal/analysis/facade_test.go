package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/meliorhq/melior/internal/types"
)

type fakeGate struct {
	grant        types.Grant
	authorizeErr error
	quotaErr     error
	lastKind     types.AnalysisKind
	consumed     int
}

func (g *fakeGate) Authorize(ctx context.Context, userID string, kind types.AnalysisKind) (types.Grant, error) {
	g.lastKind = kind
	if g.authorizeErr != nil {
		return types.Grant{}, g.authorizeErr
	}
	return g.grant, nil
}

func (g *fakeGate) ConsumeQuota(ctx context.Context, userID string) error {
	if g.quotaErr != nil {
		return g.quotaErr
	}
	g.consumed++
	return nil
}

type fakeProvider struct {
	snapshot types.MemorySnapshot
	err      error
}

func (p *fakeProvider) GetOrBuild(ctx context.Context, userID string) (types.MemorySnapshot, error) {
	if p.err != nil {
		return types.MemorySnapshot{}, p.err
	}
	return p.snapshot, nil
}

type fakeRunner struct {
	degraded bool
}

func (r *fakeRunner) AnalyzeAll(ctx context.Context, domains []types.Domain, snapshot types.MemorySnapshot) ([]types.DomainAnalysis, bool) {
	results := make([]types.DomainAnalysis, 0, len(domains))
	for _, domain := range domains {
		results = append(results, Fallback(domain, snapshot))
	}
	return results, r.degraded
}

func TestGetAnalysisFreeTierRunsOneDomain(t *testing.T) {
	gate := &fakeGate{grant: types.Grant{Tier: types.TierFree, DomainCount: 1}}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{})

	result, err := facade.GetAnalysis(context.Background(), "user-1", types.AnalysisBasic)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if len(result.Domains) != 1 {
		t.Fatalf("expected 1 domain for free tier, got %d", len(result.Domains))
	}
	if result.Domains[0].Domain != types.AllDomains()[0] {
		t.Fatalf("free tier should get the first domain, got %s", result.Domains[0].Domain)
	}
	if gate.consumed != 1 {
		t.Fatalf("expected exactly 1 quota consumption, got %d", gate.consumed)
	}
}

func TestGetAnalysisPremiumRunsAllDomains(t *testing.T) {
	gate := &fakeGate{grant: types.Grant{Tier: types.TierPremium, DomainCount: 9}}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{degraded: true})

	result, err := facade.GetAnalysis(context.Background(), "user-1", types.AnalysisComprehensive)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if len(result.Domains) != 9 {
		t.Fatalf("expected all 9 domains, got %d", len(result.Domains))
	}
	if !result.Degraded {
		t.Fatal("degraded runner output must surface on the result")
	}
}

func TestGetAnalysisGateDenialSkipsQuota(t *testing.T) {
	denied := errors.New("tier required")
	gate := &fakeGate{authorizeErr: denied}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{})

	_, err := facade.GetAnalysis(context.Background(), "user-1", types.AnalysisComprehensive)
	if !errors.Is(err, denied) {
		t.Fatalf("expected gate denial to propagate, got %v", err)
	}
	if gate.consumed != 0 {
		t.Fatal("denied request must not consume quota")
	}
}

func TestGetAnalysisQuotaErrorPropagates(t *testing.T) {
	exhausted := errors.New("quota exceeded")
	gate := &fakeGate{grant: types.Grant{Tier: types.TierFree, DomainCount: 1}, quotaErr: exhausted}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{})

	_, err := facade.GetAnalysis(context.Background(), "user-1", types.AnalysisBasic)
	if !errors.Is(err, exhausted) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestGetAnalysisAggregationFailureIsUnavailable(t *testing.T) {
	gate := &fakeGate{grant: types.Grant{Tier: types.TierPremium, DomainCount: 9}}
	facade := NewFacade(gate, &fakeProvider{err: errors.New("all sources failed")}, &fakeRunner{})

	_, err := facade.GetAnalysis(context.Background(), "user-1", types.AnalysisComprehensive)
	if !errors.Is(err, ErrAnalysisUnavailable) {
		t.Fatalf("expected ErrAnalysisUnavailable, got %v", err)
	}
}

func TestGetDomainRejectsUnknownDomain(t *testing.T) {
	gate := &fakeGate{grant: types.Grant{Tier: types.TierPremium, DomainCount: 1}}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{})

	if _, err := facade.GetDomain(context.Background(), "user-1", types.Domain("astrology")); err == nil {
		t.Fatal("expected unknown domain to be rejected")
	}
	if gate.consumed != 0 {
		t.Fatal("rejected domain must not consume quota")
	}
}

func TestGetDomainUsesSingleDomainKind(t *testing.T) {
	gate := &fakeGate{grant: types.Grant{Tier: types.TierProfessional, DomainCount: 1}}
	facade := NewFacade(gate, &fakeProvider{snapshot: testSnapshot()}, &fakeRunner{})

	result, err := facade.GetDomain(context.Background(), "user-1", types.DomainEmotional)
	if err != nil {
		t.Fatalf("GetDomain: %v", err)
	}
	if gate.lastKind != types.AnalysisSingleDomain {
		t.Fatalf("expected single_domain authorization, got %s", gate.lastKind)
	}
	if len(result.Domains) != 1 || result.Domains[0].Domain != types.DomainEmotional {
		t.Fatalf("expected only the emotional domain, got %+v", result.Domains)
	}
}

func TestConfidenceScalesWithStrength(t *testing.T) {
	weak := types.MemorySnapshot{Strength: types.StrengthWeak, SignalCount: 2}
	strong := types.MemorySnapshot{Strength: types.StrengthStrong, SignalCount: 40}
	if c := confidence(weak); c <= 10 || c >= confidence(strong) {
		t.Fatalf("weak confidence %v should sit between the floor and strong %v", c, confidence(strong))
	}
	if c := confidence(strong); c > 95 {
		t.Fatalf("confidence must cap at 95, got %v", c)
	}
}

func TestRecommendationsSortedLowestFirst(t *testing.T) {
	snapshot := testSnapshot()
	result := types.AnalysisResult{UserID: "user-1"}
	for _, domain := range types.AllDomains() {
		result.Domains = append(result.Domains, Fallback(domain, snapshot))
	}

	recs := Recommendations(result)
	if len(recs) != 9 {
		t.Fatalf("expected one recommendation per domain, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Score < recs[i-1].Score {
			t.Fatalf("recommendations out of order at %d: %v then %v", i, recs[i-1].Score, recs[i].Score)
		}
	}
	for _, rec := range recs {
		if rec.Suggestion == "" || rec.Dimension == "" {
			t.Fatalf("incomplete recommendation: %+v", rec)
		}
	}
}
