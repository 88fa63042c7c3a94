package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meliorhq/melior/internal/types"
)

// SignalWriter durably persists a raw signal.
type SignalWriter interface {
	AddSignal(ctx context.Context, sig types.RawSignal, embedding []float32) error
}

// Invalidator drops a user's cached snapshot.
type Invalidator interface {
	Invalidate(userID string)
}

// Ingestor is the write path for new signals. Persistence always completes
// before the cache invalidation is acted on, so an ingested signal is never
// lost to a downstream failure.
type Ingestor struct {
	writer   SignalWriter
	cache    Invalidator
	embedder Embedder
	nowFunc  func() time.Time
}

// NewIngestor creates an Ingestor. embedder is optional; when nil signals are
// stored without vectors.
func NewIngestor(writer SignalWriter, cache Invalidator, embedder Embedder) *Ingestor {
	return &Ingestor{
		writer:   writer,
		cache:    cache,
		embedder: embedder,
		nowFunc:  time.Now,
	}
}

// Record persists the signal and then invalidates the user's snapshot.
func (i *Ingestor) Record(ctx context.Context, sig types.RawSignal) (types.RawSignal, error) {
	if sig.UserID == "" {
		return types.RawSignal{}, fmt.Errorf("signal user id cannot be empty")
	}
	if !sig.Kind.Valid() {
		return types.RawSignal{}, fmt.Errorf("unknown signal kind %q", sig.Kind)
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = i.nowFunc()
	}

	var embedding []float32
	if i.embedder != nil && sig.Content != "" {
		vec, err := i.embedder.EmbedDocument(ctx, sig.Content)
		if err != nil {
			// The signal is still written; it just stays out of semantic recall.
			slog.Warn("signal embedding failed", "user_id", sig.UserID, "kind", sig.Kind, "error", err.Error())
		} else {
			embedding = vec
		}
	}

	if err := i.writer.AddSignal(ctx, sig, embedding); err != nil {
		return types.RawSignal{}, fmt.Errorf("failed to persist signal: %w", err)
	}

	if i.cache != nil {
		i.cache.Invalidate(sig.UserID)
	}
	return sig, nil
}
