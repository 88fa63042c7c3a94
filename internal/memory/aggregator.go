package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meliorhq/melior/internal/types"
)

// SignalSource provides the three recency-ordered signal reads, each newest
// first.
type SignalSource interface {
	RecentMessages(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error)
	RecentJournals(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error)
	RecentMoods(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error)
}

// SimilaritySearcher retrieves semantically similar past signals.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int, threshold float64) ([]types.RawSignal, error)
}

// ErrAllSourcesFailed is returned when no signal source could be read at all.
// Partial source failure is absorbed; total failure is not.
var ErrAllSourcesFailed = fmt.Errorf("all signal sources failed")

// AggregatorConfig bounds the aggregation work.
type AggregatorConfig struct {
	SourceLimit         int
	SourceTimeout       time.Duration
	MaxSignalAge        time.Duration
	MaxContextChars     int
	WindowSize          int
	TopK                int
	SimilarityThreshold float64
}

// Aggregator fans out to the signal sources and assembles a bounded snapshot.
type Aggregator struct {
	source   SignalSource
	search   SimilaritySearcher
	embedder Embedder
	cfg      AggregatorConfig
	nowFunc  func() time.Time
}

// NewAggregator creates an Aggregator. search and embedder are optional; when
// either is nil semantic recall is skipped.
func NewAggregator(source SignalSource, search SimilaritySearcher, embedder Embedder, cfg AggregatorConfig) *Aggregator {
	if cfg.SourceLimit <= 0 {
		cfg.SourceLimit = 30
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 2 * time.Second
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 6000
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	return &Aggregator{
		source:   source,
		search:   search,
		embedder: embedder,
		cfg:      cfg,
		nowFunc:  time.Now,
	}
}

// sourceResult is the explicit per-source outcome; a failed source contributes
// an empty record list instead of failing the aggregation.
type sourceResult struct {
	kind    types.SignalKind
	records []types.RawSignal
	err     error
}

// Aggregate queries the three signal sources concurrently and merges them
// into a bounded snapshot. It fails only when every source errored.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) (types.MemorySnapshot, error) {
	reads := []struct {
		kind types.SignalKind
		fn   func(context.Context, string, int, time.Duration) ([]types.RawSignal, error)
	}{
		{types.SignalKindMessage, a.source.RecentMessages},
		{types.SignalKindJournal, a.source.RecentJournals},
		{types.SignalKindMood, a.source.RecentMoods},
	}

	results := make([]sourceResult, len(reads))
	g, gctx := errgroup.WithContext(ctx)
	for i, read := range reads {
		g.Go(func() error {
			srcCtx, cancel := context.WithTimeout(gctx, a.cfg.SourceTimeout)
			defer cancel()
			records, err := read.fn(srcCtx, userID, a.cfg.SourceLimit, a.cfg.MaxSignalAge)
			results[i] = sourceResult{kind: read.kind, records: records, err: err}
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]types.RawSignal, 0, 3*a.cfg.SourceLimit)
	failures := 0
	for _, res := range results {
		if res.err != nil {
			failures++
			slog.Warn("signal source failed, contributing empty", "kind", res.kind, "user_id", userID, "error", res.err.Error())
			continue
		}
		merged = append(merged, res.records...)
	}
	if failures == len(results) {
		return types.MemorySnapshot{}, ErrAllSourcesFailed
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	journals, moods := 0, 0
	for _, sig := range merged {
		switch sig.Kind {
		case types.SignalKindJournal:
			journals++
		case types.SignalKindMood:
			moods++
		}
	}

	window := merged
	if len(window) > a.cfg.WindowSize {
		window = window[:a.cfg.WindowSize]
	}

	assembled := a.assembleContext(merged)
	if recall := a.recallContext(ctx, userID, merged); recall != "" {
		assembled = assembled + "\n\n" + recall
	}

	return types.MemorySnapshot{
		UserID:           userID,
		AssembledContext: assembled,
		MessageWindow:    window,
		Strength:         ClassifyStrength(len(merged), journals),
		SignalCount:      len(merged),
		JournalCount:     journals,
		MoodCount:        moods,
		BuiltAt:          a.nowFunc(),
	}, nil
}

// ClassifyStrength is a pure function of the merged input counts.
func ClassifyStrength(total, journals int) types.MemoryStrength {
	switch {
	case total >= 20 && journals >= 1:
		return types.StrengthStrong
	case total >= 5:
		return types.StrengthModerate
	default:
		return types.StrengthWeak
	}
}

// assembleContext serializes signals into role-tagged lines, oldest first,
// truncated to the character budget by dropping oldest content.
func (a *Aggregator) assembleContext(signals []types.RawSignal) string {
	// signals arrive newest first; walk forward accumulating until the budget
	// is spent, then emit in chronological order.
	kept := make([]string, 0, len(signals))
	budget := a.cfg.MaxContextChars
	for _, sig := range signals {
		line := formatSignal(sig)
		cost := len(line) + 1
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(kept, line)
	}

	var sb strings.Builder
	for i := len(kept) - 1; i >= 0; i-- {
		sb.WriteString(kept[i])
		if i > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatSignal(sig types.RawSignal) string {
	switch sig.Kind {
	case types.SignalKindMessage:
		role := sig.Role
		if role == "" {
			role = "user"
		}
		return fmt.Sprintf("%s: %s", role, sig.Content)
	case types.SignalKindJournal:
		return fmt.Sprintf("journal: %s", sig.Content)
	case types.SignalKindMood:
		if sig.Intensity > 0 {
			return fmt.Sprintf("mood: %s (intensity %d)", sig.Mood, sig.Intensity)
		}
		return fmt.Sprintf("mood: %s", sig.Mood)
	default:
		return sig.Content
	}
}

// recallContext appends semantically similar past moments when an embedder
// and searcher are available. Failures degrade to an empty section.
func (a *Aggregator) recallContext(ctx context.Context, userID string, merged []types.RawSignal) string {
	if a.embedder == nil || a.search == nil {
		return ""
	}
	var seed string
	for _, sig := range merged {
		if sig.Kind == types.SignalKindMessage && sig.Role != "assistant" {
			seed = sig.Content
			break
		}
	}
	if seed == "" {
		return ""
	}

	recallCtx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	vec, err := a.embedder.EmbedQuery(recallCtx, seed)
	if err != nil {
		slog.Warn("semantic recall embedding failed", "user_id", userID, "error", err.Error())
		return ""
	}
	similar, err := a.search.SearchSimilar(recallCtx, userID, vec, a.cfg.TopK, a.cfg.SimilarityThreshold)
	if err != nil {
		slog.Warn("semantic recall search failed", "user_id", userID, "error", err.Error())
		return ""
	}
	if len(similar) == 0 {
		return ""
	}

	recent := make(map[string]bool, len(merged))
	for _, sig := range merged {
		recent[sig.ID] = true
	}

	var sb strings.Builder
	sb.WriteString("Relevant past moments:")
	count := 0
	for _, sig := range similar {
		if recent[sig.ID] {
			continue
		}
		sb.WriteString("\n- ")
		sb.WriteString(formatSignal(sig))
		count++
	}
	if count == 0 {
		return ""
	}
	return sb.String()
}
