package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/meliorhq/melior/internal/types"
)

// signalModel maps to the raw_signals table.
type signalModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index:idx_signals_user_kind"`
	Kind      string `gorm:"index:idx_signals_user_kind"`
	Role      string
	Content   string
	Mood      string
	Intensity int
	// Tags are stored as JSONB for filtering.
	Tags json.RawMessage `gorm:"type:jsonb"`
	// Embedding stores the vector representation for similarity search; nil
	// when embedding was unavailable at ingestion time.
	Embedding *pgvector.Vector `gorm:"type:vector"`
	CreatedAt time.Time        `gorm:"index"`
}

func (signalModel) TableName() string {
	return "raw_signals"
}

// SignalRepo accesses raw signal data. Signals are append-only.
type SignalRepo struct {
	db *gorm.DB
}

// NewSignalRepo returns a SignalRepo.
func NewSignalRepo(db *gorm.DB) *SignalRepo {
	return &SignalRepo{db: db}
}

// AddSignal durably persists a raw signal. This insert must complete before
// any cache invalidation for the same user is performed.
func (r *SignalRepo) AddSignal(ctx context.Context, sig types.RawSignal, embedding []float32) error {
	if sig.ID == "" {
		return fmt.Errorf("signal id cannot be empty")
	}
	var vector *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vector = &v
	}
	tags, err := marshalJSON(sig.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode signal tags: %w", err)
	}
	record := signalModel{
		ID:        sig.ID,
		UserID:    sig.UserID,
		Kind:      string(sig.Kind),
		Role:      sig.Role,
		Content:   sig.Content,
		Mood:      sig.Mood,
		Intensity: sig.Intensity,
		Tags:      tags,
		Embedding: vector,
		CreatedAt: sig.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// RecentMessages returns the newest message signals first.
func (r *SignalRepo) RecentMessages(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error) {
	return r.recent(ctx, userID, types.SignalKindMessage, limit, maxAge)
}

// RecentJournals returns the newest journal signals first.
func (r *SignalRepo) RecentJournals(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error) {
	return r.recent(ctx, userID, types.SignalKindJournal, limit, maxAge)
}

// RecentMoods returns the newest mood signals first.
func (r *SignalRepo) RecentMoods(ctx context.Context, userID string, limit int, maxAge time.Duration) ([]types.RawSignal, error) {
	return r.recent(ctx, userID, types.SignalKindMood, limit, maxAge)
}

func (r *SignalRepo) recent(ctx context.Context, userID string, kind types.SignalKind, limit int, maxAge time.Duration) ([]types.RawSignal, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("kind = ?", string(kind)).
		Order("created_at DESC").
		Limit(limit)
	if maxAge > 0 {
		query = query.Where("created_at > ?", time.Now().Add(-maxAge))
	}

	var records []signalModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s signals: %w", kind, err)
	}

	results := make([]types.RawSignal, 0, len(records))
	for _, record := range records {
		results = append(results, signalFromModel(record))
	}
	return results, nil
}

// SearchSimilar returns past signals whose embeddings are cosine-similar to
// the query embedding, most similar first.
func (r *SignalRepo) SearchSimilar(ctx context.Context, userID string, embedding []float32, topK int, threshold float64) ([]types.RawSignal, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, kind, role, content, mood, intensity, created_at
		FROM raw_signals
		WHERE user_id = $2
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) > $3
		ORDER BY 1 - (embedding <=> $1) DESC
		LIMIT $4`

	vector := pgvector.NewVector(embedding)
	var records []signalModel
	if err := r.db.WithContext(ctx).
		Raw(query, vector, userID, threshold, topK).
		Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar signals: %w", err)
	}

	results := make([]types.RawSignal, 0, len(records))
	for _, record := range records {
		results = append(results, signalFromModel(record))
	}
	return results, nil
}

func signalFromModel(model signalModel) types.RawSignal {
	var tags []string
	if len(model.Tags) > 0 {
		_ = json.Unmarshal(model.Tags, &tags)
	}
	return types.RawSignal{
		ID:        model.ID,
		UserID:    model.UserID,
		Kind:      types.SignalKind(model.Kind),
		Role:      model.Role,
		Content:   model.Content,
		Mood:      model.Mood,
		Intensity: model.Intensity,
		Tags:      tags,
		CreatedAt: model.CreatedAt,
	}
}

func marshalJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}
