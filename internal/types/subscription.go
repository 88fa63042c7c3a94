package types

import "time"

// Tier is a subscription level.
type Tier string

const (
	TierFree         Tier = "free"
	TierPremium      Tier = "premium"
	TierProfessional Tier = "professional"
)

// SubscriptionState tracks a user's tier and usage for the current billing
// period. Mutated only through the quota-increment path.
type SubscriptionState struct {
	UserID           string    `json:"user_id"`
	Tier             Tier      `json:"tier"`
	PeriodUsageCount int       `json:"period_usage_count"`
	PeriodStart      time.Time `json:"period_start"`
}

// AnalysisKind identifies the requested analysis shape.
type AnalysisKind string

const (
	// AnalysisBasic is the single-domain analysis available on every tier.
	AnalysisBasic AnalysisKind = "basic"
	// AnalysisComprehensive is the full nine-domain analysis.
	AnalysisComprehensive AnalysisKind = "comprehensive"
	// AnalysisSingleDomain is one named domain, gated like comprehensive.
	AnalysisSingleDomain AnalysisKind = "single_domain"
)

// Grant is the tier gate's authorization outcome.
type Grant struct {
	Tier        Tier `json:"tier"`
	DomainCount int  `json:"domain_count"`
}
