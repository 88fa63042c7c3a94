// Package analysis produces the multi-domain personality analysis from a
// memory snapshot, with a deterministic heuristic fallback per domain.
package analysis

import (
	"strings"

	"github.com/meliorhq/melior/internal/types"
)

// domainDimensions fixes the named trait dimensions per domain. The lists are
// versioned with the schema: traits maps are validated against them and every
// dimension is always populated in a result.
var domainDimensions = map[types.Domain][]string{
	types.DomainCognitive:        {"clarity", "focus", "reflection", "problem_solving"},
	types.DomainEmotional:        {"awareness", "regulation", "expression", "resilience"},
	types.DomainInterpersonal:    {"connection", "empathy", "communication", "boundaries"},
	types.DomainBehavioral:       {"consistency", "activation", "habits", "self_care"},
	types.DomainMotivational:     {"drive", "purpose", "persistence", "initiative"},
	types.DomainStressCoping:     {"stress_load", "coping_skills", "recovery", "adaptability"},
	types.DomainSelfPerception:   {"self_esteem", "self_compassion", "identity_clarity", "confidence"},
	types.DomainLifeSatisfaction: {"contentment", "gratitude", "meaning", "balance"},
	types.DomainGrowthMindset:    {"openness", "curiosity", "learning_orientation", "challenge_seeking"},
}

// domainFocus is the one-line assessment focus used in prompts and narratives.
var domainFocus = map[types.Domain]string{
	types.DomainCognitive:        "thinking patterns, mental clarity, and problem solving",
	types.DomainEmotional:        "emotional awareness, regulation, and resilience",
	types.DomainInterpersonal:    "relationships, empathy, and communication",
	types.DomainBehavioral:       "daily habits, consistency, and self-care",
	types.DomainMotivational:     "drive, sense of purpose, and persistence",
	types.DomainStressCoping:     "stress levels and coping strategies",
	types.DomainSelfPerception:   "self-esteem, self-compassion, and identity",
	types.DomainLifeSatisfaction: "contentment, gratitude, and life balance",
	types.DomainGrowthMindset:    "openness to growth, curiosity, and learning",
}

// Dimensions returns the fixed dimension list for a domain, in schema order.
func Dimensions(domain types.Domain) []string {
	return domainDimensions[domain]
}

// ParseDomain maps a path segment to a known domain.
func ParseDomain(s string) (types.Domain, bool) {
	d := types.Domain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := domainDimensions[d]; ok {
		return d, true
	}
	return "", false
}
