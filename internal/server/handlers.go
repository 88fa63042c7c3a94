package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meliorhq/melior/internal/analysis"
	"github.com/meliorhq/melior/internal/subscription"
	"github.com/meliorhq/melior/internal/types"
)

// AnalysisService is the façade surface the handlers call.
type AnalysisService interface {
	GetAnalysis(ctx context.Context, userID string, kind types.AnalysisKind) (types.AnalysisResult, error)
	GetDomain(ctx context.Context, userID string, domain types.Domain) (types.AnalysisResult, error)
}

// SubscriptionService reports tier and remaining quota.
type SubscriptionService interface {
	Status(ctx context.Context, userID string) (types.SubscriptionState, int, error)
}

// SignalRecorder is the ingestion write path.
type SignalRecorder interface {
	Record(ctx context.Context, sig types.RawSignal) (types.RawSignal, error)
}

// Handler serves the analysis endpoints.
type Handler struct {
	analyses      AnalysisService
	subscriptions SubscriptionService
	signals       SignalRecorder
}

// NewHandler returns a Handler.
func NewHandler(analyses AnalysisService, subscriptions SubscriptionService, signals SignalRecorder) *Handler {
	return &Handler{
		analyses:      analyses,
		subscriptions: subscriptions,
		signals:       signals,
	}
}

// BasicAnalysis serves the single-domain analysis available on every tier.
func (h *Handler) BasicAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyses.GetAnalysis(r.Context(), userID(r), types.AnalysisBasic)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// PremiumAnalysis serves the full nine-domain analysis.
func (h *Handler) PremiumAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyses.GetAnalysis(r.Context(), userID(r), types.AnalysisComprehensive)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// DomainAnalysis serves one named domain, premium-gated.
func (h *Handler) DomainAnalysis(w http.ResponseWriter, r *http.Request) {
	domain, ok := analysis.ParseDomain(chi.URLParam(r, "domain"))
	if !ok {
		respondError(w, http.StatusBadRequest, "UNKNOWN_DOMAIN", "unknown analysis domain")
		return
	}
	result, err := h.analyses.GetDomain(r.Context(), userID(r), domain)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Recommendations serves the derived view over a full analysis.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	result, err := h.analyses.GetAnalysis(r.Context(), userID(r), types.AnalysisComprehensive)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":         result.UserID,
		"degraded":        result.Degraded,
		"generated_at":    result.GeneratedAt,
		"recommendations": analysis.Recommendations(result),
	})
}

// SubscriptionStatus returns the subscription state plus quota remaining.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	state, remaining, err := h.subscriptions.Status(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"subscription":    state,
		"quota_remaining": remaining,
	})
}

// signalRequest is the ingestion payload.
type signalRequest struct {
	Kind      types.SignalKind `json:"kind"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Mood      string           `json:"mood"`
	Intensity int              `json:"intensity"`
	Tags      []string         `json:"tags"`
}

// RecordSignal ingests a raw signal: persisted first, cache invalidated after.
func (h *Handler) RecordSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "malformed signal payload")
		return
	}
	if !req.Kind.Valid() {
		respondError(w, http.StatusBadRequest, "INVALID_KIND", "kind must be message, journal or mood")
		return
	}
	if req.Kind != types.SignalKindMood && req.Content == "" {
		respondError(w, http.StatusBadRequest, "EMPTY_CONTENT", "content is required")
		return
	}
	if req.Intensity < 0 || req.Intensity > 10 {
		respondError(w, http.StatusBadRequest, "INVALID_INTENSITY", "intensity must be between 1 and 10")
		return
	}

	sig, err := h.signals.Record(r.Context(), types.RawSignal{
		UserID:    userID(r),
		Kind:      req.Kind,
		Role:      req.Role,
		Content:   req.Content,
		Mood:      req.Mood,
		Intensity: req.Intensity,
		Tags:      req.Tags,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sig)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service failures to the response contract. Only
// gate denials and total aggregation failure surface; everything else is a
// plain internal error.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrTierRequired):
		respondError(w, http.StatusForbidden, "TIER_REQUIRED", "premium subscription required")
	case errors.Is(err, subscription.ErrQuotaExceeded):
		respondError(w, http.StatusPaymentRequired, "QUOTA_EXCEEDED", "analysis quota exceeded for this period")
	case errors.Is(err, analysis.ErrAnalysisUnavailable):
		respondError(w, http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE", "signal sources are unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
