package types

import "time"

// Domain is one of the nine fixed psychological assessment categories.
type Domain string

const (
	DomainCognitive        Domain = "cognitive"
	DomainEmotional        Domain = "emotional"
	DomainInterpersonal    Domain = "interpersonal"
	DomainBehavioral       Domain = "behavioral"
	DomainMotivational     Domain = "motivational"
	DomainStressCoping     Domain = "stress_coping"
	DomainSelfPerception   Domain = "self_perception"
	DomainLifeSatisfaction Domain = "life_satisfaction"
	DomainGrowthMindset    Domain = "growth_mindset"
)

// AllDomains returns the fixed set of assessment domains, in presentation order.
func AllDomains() []Domain {
	return []Domain{
		DomainCognitive,
		DomainEmotional,
		DomainInterpersonal,
		DomainBehavioral,
		DomainMotivational,
		DomainStressCoping,
		DomainSelfPerception,
		DomainLifeSatisfaction,
		DomainGrowthMindset,
	}
}

// AnalysisSource records how a domain result was produced.
type AnalysisSource string

const (
	// SourceGenerated means the generative backend produced the result.
	SourceGenerated AnalysisSource = "generated"
	// SourceFallback means the deterministic heuristic produced the result.
	SourceFallback AnalysisSource = "fallback"
)

// DomainAnalysis is the structured result for a single domain. Score and all
// trait dimensions are always populated, including under fallback.
type DomainAnalysis struct {
	Domain      Domain   `json:"domain"`
	Score       float64  `json:"score"`
	KeyFindings []string `json:"key_findings"`
	// Traits maps the domain's fixed dimension names to 0-10 values.
	Traits              map[string]float64 `json:"traits"`
	Narrative           string             `json:"narrative"`
	GrowthOpportunities []string           `json:"growth_opportunities"`
	Source              AnalysisSource     `json:"source"`
}

// AnalysisResult is the complete, tier-shaped response for one analysis run.
type AnalysisResult struct {
	UserID  string           `json:"user_id"`
	Domains []DomainAnalysis `json:"domains"`
	// Confidence is a 0-100 estimate of how well the signal history supports
	// the analysis.
	Confidence float64 `json:"confidence"`
	// DataRichness is a 0-100 measure of source diversity and volume.
	DataRichness float64 `json:"data_richness"`
	// Degraded is true when at least one domain used the fallback path. A
	// degraded result is still complete and successful.
	Degraded    bool      `json:"degraded"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Recommendation is one derived therapeutic suggestion.
type Recommendation struct {
	Domain     Domain  `json:"domain"`
	Dimension  string  `json:"dimension"`
	Score      float64 `json:"score"`
	Suggestion string  `json:"suggestion"`
}
