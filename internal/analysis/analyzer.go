package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/meliorhq/melior/internal/types"
)

// Analyzer produces one structured result per domain, calling the generative
// backend under a shared deadline and falling back to the heuristic per
// domain. AnalyzeDomain never fails: a flaky generative call degrades one
// domain's richness, not the whole analysis.
type Analyzer struct {
	model    model.LLM
	deadline time.Duration
}

// NewAnalyzer returns an Analyzer. m may be nil, in which case every domain
// is produced by the heuristic.
func NewAnalyzer(m model.LLM, deadline time.Duration) *Analyzer {
	if deadline <= 0 {
		deadline = 20 * time.Second
	}
	return &Analyzer{model: m, deadline: deadline}
}

// AnalyzeAll analyzes the requested domains concurrently under one shared
// deadline. The returned bool reports whether any domain used the fallback.
func (a *Analyzer) AnalyzeAll(ctx context.Context, domains []types.Domain, snapshot types.MemorySnapshot) ([]types.DomainAnalysis, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	results := make([]types.DomainAnalysis, len(domains))
	var wg sync.WaitGroup
	for i, domain := range domains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = a.AnalyzeDomain(ctx, domain, snapshot)
		}()
	}
	wg.Wait()

	degraded := false
	for _, result := range results {
		if result.Source == types.SourceFallback {
			degraded = true
			break
		}
	}
	return results, degraded
}

// AnalyzeDomain returns a complete, schema-valid analysis for one domain.
func (a *Analyzer) AnalyzeDomain(ctx context.Context, domain types.Domain, snapshot types.MemorySnapshot) types.DomainAnalysis {
	if a.model == nil {
		return Fallback(domain, snapshot)
	}

	payload, err := a.generate(ctx, domain, snapshot)
	if err != nil {
		slog.Warn("generation failed, using heuristic", "domain", domain, "user_id", snapshot.UserID, "error", err.Error())
		return Fallback(domain, snapshot)
	}

	return types.DomainAnalysis{
		Domain:              domain,
		Score:               payload.Score,
		KeyFindings:         payload.KeyFindings,
		Traits:              payload.Traits,
		Narrative:           payload.Narrative,
		GrowthOpportunities: payload.GrowthOpportunities,
		Source:              types.SourceGenerated,
	}
}

func (a *Analyzer) generate(ctx context.Context, domain types.Domain, snapshot types.MemorySnapshot) (generatedPayload, error) {
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText(analystInstruction, "system"),
			genai.NewContentFromText(buildPrompt(domain, snapshot), "user"),
		},
		Config: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   analysisOutputSchema(domain),
		},
	}

	seq := a.model.GenerateContent(ctx, req, false)
	var resp *model.LLMResponse
	var err error
	seq(func(r *model.LLMResponse, e error) bool {
		resp = r
		err = e
		return false
	})
	if err != nil {
		return generatedPayload{}, fmt.Errorf("generative backend call failed: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return generatedPayload{}, fmt.Errorf("empty generation response")
	}
	return parseGenerated(domain, text)
}

func extractText(resp *model.LLMResponse) string {
	if resp == nil || resp.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
