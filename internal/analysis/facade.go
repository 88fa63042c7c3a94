package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/meliorhq/melior/internal/types"
)

// ErrAnalysisUnavailable is the façade's only hard failure besides gate
// denials: context aggregation failed catastrophically.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// TierGate authorizes and meters analysis requests.
type TierGate interface {
	Authorize(ctx context.Context, userID string, kind types.AnalysisKind) (types.Grant, error)
	ConsumeQuota(ctx context.Context, userID string) error
}

// SnapshotProvider returns the user's current memory snapshot.
type SnapshotProvider interface {
	GetOrBuild(ctx context.Context, userID string) (types.MemorySnapshot, error)
}

// DomainRunner runs the per-domain analyses.
type DomainRunner interface {
	AnalyzeAll(ctx context.Context, domains []types.Domain, snapshot types.MemorySnapshot) ([]types.DomainAnalysis, bool)
}

// state tracks the façade's progression for observability.
type state string

const (
	stateAuthorizing      state = "authorizing"
	stateContextReady     state = "context_ready"
	stateDomainsPending   state = "domains_pending"
	stateComplete         state = "complete"
	stateDegradedComplete state = "degraded_complete"
)

// Facade is the externally callable analysis operation, composing
// gate -> memory cache -> domain analyzer.
type Facade struct {
	gate     TierGate
	cache    SnapshotProvider
	analyzer DomainRunner
	nowFunc  func() time.Time
}

// NewFacade returns a Facade.
func NewFacade(gate TierGate, cache SnapshotProvider, analyzer DomainRunner) *Facade {
	return &Facade{
		gate:     gate,
		cache:    cache,
		analyzer: analyzer,
		nowFunc:  time.Now,
	}
}

// GetAnalysis runs a tier-shaped analysis. A degraded result is still a
// complete, successful response; errors surface only for gate denials and
// total aggregation failure.
func (f *Facade) GetAnalysis(ctx context.Context, userID string, kind types.AnalysisKind) (types.AnalysisResult, error) {
	grant, err := f.gate.Authorize(ctx, userID, kind)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	if err := f.gate.ConsumeQuota(ctx, userID); err != nil {
		return types.AnalysisResult{}, err
	}

	return f.run(ctx, userID, types.AllDomains()[:grant.DomainCount], stateAuthorizing)
}

// GetDomain runs the analysis for one named domain, gated like comprehensive.
func (f *Facade) GetDomain(ctx context.Context, userID string, domain types.Domain) (types.AnalysisResult, error) {
	if _, ok := ParseDomain(string(domain)); !ok {
		return types.AnalysisResult{}, fmt.Errorf("unknown analysis domain %q", domain)
	}
	if _, err := f.gate.Authorize(ctx, userID, types.AnalysisSingleDomain); err != nil {
		return types.AnalysisResult{}, err
	}
	if err := f.gate.ConsumeQuota(ctx, userID); err != nil {
		return types.AnalysisResult{}, err
	}

	return f.run(ctx, userID, []types.Domain{domain}, stateAuthorizing)
}

func (f *Facade) run(ctx context.Context, userID string, domains []types.Domain, current state) (types.AnalysisResult, error) {
	snapshot, err := f.cache.GetOrBuild(ctx, userID)
	if err != nil {
		slog.Error("context aggregation failed", "user_id", userID, "state", current, "error", err.Error())
		return types.AnalysisResult{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	current = stateContextReady
	slog.Debug("context ready", "user_id", userID, "state", current, "strength", snapshot.Strength)

	current = stateDomainsPending
	results, degraded := f.analyzer.AnalyzeAll(ctx, domains, snapshot)

	current = stateComplete
	if degraded {
		current = stateDegradedComplete
	}
	slog.Info("analysis finished",
		"user_id", userID,
		"state", current,
		"domains", len(results),
		"strength", snapshot.Strength,
	)

	return types.AnalysisResult{
		UserID:       userID,
		Domains:      results,
		Confidence:   confidence(snapshot),
		DataRichness: dataRichness(snapshot),
		Degraded:     degraded,
		GeneratedAt:  f.nowFunc(),
	}, nil
}

// confidence estimates 0-100 support for the analysis from memory strength
// and signal volume. InsufficientSignal is not an error; it just lands near
// the floor.
func confidence(snapshot types.MemorySnapshot) float64 {
	base := 10.0
	switch snapshot.Strength {
	case types.StrengthStrong:
		base = 80
	case types.StrengthModerate:
		base = 55
	case types.StrengthWeak:
		base = 25
	}
	bonus := math.Min(float64(snapshot.SignalCount), 20) * 0.75
	return math.Min(base+bonus, 95)
}

// dataRichness measures 0-100 source diversity and volume.
func dataRichness(snapshot types.MemorySnapshot) float64 {
	sources := 0
	messages := snapshot.SignalCount - snapshot.JournalCount - snapshot.MoodCount
	if messages > 0 {
		sources++
	}
	if snapshot.JournalCount > 0 {
		sources++
	}
	if snapshot.MoodCount > 0 {
		sources++
	}
	diversity := float64(sources) / 3 * 50
	volume := math.Min(float64(snapshot.SignalCount), 50) / 50 * 50
	return math.Round((diversity+volume)*100) / 100
}

// Recommendations derives therapeutic suggestions from a full result: the
// weakest dimension of each domain, lowest scores first.
func Recommendations(result types.AnalysisResult) []types.Recommendation {
	recs := make([]types.Recommendation, 0, len(result.Domains))
	for _, domain := range result.Domains {
		dims := Dimensions(domain.Domain)
		if len(dims) == 0 {
			continue
		}
		low := lowestDimension(domain.Traits, dims)
		recs = append(recs, types.Recommendation{
			Domain:     domain.Domain,
			Dimension:  low,
			Score:      domain.Traits[low],
			Suggestion: recommendationText(domain.Domain, low),
		})
	}
	// Lowest scores first so the most actionable items lead.
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score < recs[j].Score })
	return recs
}

func recommendationText(domain types.Domain, dimension string) string {
	label := strings.ReplaceAll(dimension, "_", " ")
	return fmt.Sprintf("In the %s area, %s scored lowest. %s", strings.ReplaceAll(string(domain), "_", " "), label, suggestion(dimension))
}
