package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/meliorhq/melior/internal/types"
)

// dimensionKeywords maps trait dimensions to indicator words counted over the
// assembled context. Dimension names are unique across domains.
var dimensionKeywords = map[string][]string{
	"clarity":             {"clear", "understand", "realize"},
	"focus":               {"focus", "concentrate", "distracted"},
	"reflection":          {"reflect", "think about", "looking back"},
	"problem_solving":     {"solve", "figure out", "plan"},
	"awareness":           {"feel", "feeling", "notice"},
	"regulation":          {"calm", "breathe", "manage"},
	"expression":          {"express", "talk about", "share"},
	"resilience":          {"bounce back", "recover", "keep going"},
	"connection":          {"friend", "family", "together"},
	"empathy":             {"understand them", "their feelings", "listen"},
	"communication":       {"told", "conversation", "talked"},
	"boundaries":          {"boundary", "say no", "space"},
	"consistency":         {"every day", "routine", "regular"},
	"activation":          {"started", "did", "finished"},
	"habits":              {"habit", "sleep", "exercise"},
	"self_care":           {"rest", "self-care", "took care"},
	"drive":               {"want to", "goal", "ambition"},
	"purpose":             {"purpose", "meaning", "matters"},
	"persistence":         {"keep trying", "didn't give up", "stuck with"},
	"initiative":          {"decided", "initiative", "took the first step"},
	"stress_load":         {"stressed", "overwhelmed", "pressure"},
	"coping_skills":       {"cope", "handle", "deal with"},
	"recovery":            {"relax", "unwind", "slept well"},
	"adaptability":        {"adjust", "adapt", "change of plans"},
	"self_esteem":         {"proud", "worth", "confident"},
	"self_compassion":     {"kind to myself", "forgive myself", "it's okay"},
	"identity_clarity":    {"who i am", "my values", "myself"},
	"confidence":          {"i can", "capable", "believe in"},
	"contentment":         {"content", "satisfied", "happy with"},
	"gratitude":           {"grateful", "thankful", "appreciate"},
	"meaning":             {"meaningful", "fulfilling", "worthwhile"},
	"balance":             {"balance", "work and life", "time for"},
	"openness":            {"new", "try", "curious"},
	"curiosity":           {"wonder", "interested", "learn more"},
	"learning_orientation": {"learned", "lesson", "improve"},
	"challenge_seeking":   {"challenge", "push myself", "out of my comfort"},
}

// Fallback computes a complete, schema-valid domain analysis from simple
// statistics over the snapshot. Same input always yields the same output.
func Fallback(domain types.Domain, snapshot types.MemorySnapshot) types.DomainAnalysis {
	base := baseScore(snapshot)
	context := strings.ToLower(snapshot.AssembledContext)

	dims := Dimensions(domain)
	traits := make(map[string]float64, len(dims))
	total := 0.0
	for _, dim := range dims {
		score := clampScore(base + keywordBoost(context, dim))
		traits[dim] = score
		total += score
	}
	score := clampScore(total / float64(len(dims)))

	low := lowestDimension(traits, dims)
	return types.DomainAnalysis{
		Domain:      domain,
		Score:       score,
		KeyFindings: findings(snapshot),
		Traits:      traits,
		Narrative: fmt.Sprintf(
			"Based on %d recent signals, this is a heuristic estimate of %s. More conversation and journaling will sharpen it.",
			snapshot.SignalCount, domainFocus[domain]),
		GrowthOpportunities: []string{suggestion(low)},
		Source:              types.SourceFallback,
	}
}

// baseScore derives a 2.5-8.5 baseline from engagement counts and mood
// intensity averages.
func baseScore(snapshot types.MemorySnapshot) float64 {
	engagement := math.Min(float64(snapshot.SignalCount), 30) / 30
	journalFactor := math.Min(float64(snapshot.JournalCount), 5) / 5

	moodAvg := 0.5
	moodCount := 0
	moodTotal := 0
	for _, sig := range snapshot.MessageWindow {
		if sig.Kind == types.SignalKindMood && sig.Intensity > 0 {
			moodTotal += sig.Intensity
			moodCount++
		}
	}
	if moodCount > 0 {
		moodAvg = float64(moodTotal) / float64(moodCount) / 10
	}

	return 2.5 + 3.0*engagement + 1.5*journalFactor + 1.5*moodAvg
}

func keywordBoost(context, dimension string) float64 {
	boost := 0.0
	for _, word := range dimensionKeywords[dimension] {
		if strings.Contains(context, word) {
			boost += 0.4
		}
	}
	if boost > 1.2 {
		boost = 1.2
	}
	return boost
}

func findings(snapshot types.MemorySnapshot) []string {
	results := []string{
		fmt.Sprintf("Recent history holds %d signals (%s memory strength)", snapshot.SignalCount, snapshot.Strength),
	}
	if snapshot.JournalCount > 0 {
		results = append(results, fmt.Sprintf("%d journal entries add depth to the picture", snapshot.JournalCount))
	}
	if snapshot.MoodCount > 0 {
		results = append(results, fmt.Sprintf("%d mood check-ins recorded", snapshot.MoodCount))
	}
	return results
}

// lowestDimension picks the weakest dimension, iterating the fixed order so
// ties resolve deterministically.
func lowestDimension(traits map[string]float64, dims []string) string {
	low := dims[0]
	for _, dim := range dims[1:] {
		if traits[dim] < traits[low] {
			low = dim
		}
	}
	return low
}

func suggestion(dimension string) string {
	label := strings.ReplaceAll(dimension, "_", " ")
	return fmt.Sprintf("Focus on %s: small, regular check-ins in this area tend to move it most.", label)
}

func clampScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	// Round to two decimals so repeated runs are byte-identical when encoded.
	return math.Round(score*100) / 100
}

// sortedDimensions returns the dimension names in a stable order; used by
// validation errors to make output reproducible.
func sortedDimensions(traits map[string]float64) []string {
	names := make([]string, 0, len(traits))
	for name := range traits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
