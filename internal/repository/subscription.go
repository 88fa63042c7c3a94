package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meliorhq/melior/internal/types"
)

// subscriptionModel maps to the subscriptions table.
type subscriptionModel struct {
	ID               int
	UserID           string `gorm:"uniqueIndex"`
	Tier             string
	PeriodUsageCount int
	PeriodStart      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (subscriptionModel) TableName() string {
	return "subscriptions"
}

// SubscriptionRepo accesses subscription state.
type SubscriptionRepo struct {
	db *gorm.DB
}

// NewSubscriptionRepo returns a SubscriptionRepo.
func NewSubscriptionRepo(db *gorm.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Get returns the subscription state for a user, creating a free-tier row on
// first sight.
func (r *SubscriptionRepo) Get(ctx context.Context, userID string) (types.SubscriptionState, error) {
	record := subscriptionModel{
		UserID:      userID,
		Tier:        string(types.TierFree),
		PeriodStart: time.Now(),
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&record).Error; err != nil {
		return types.SubscriptionState{}, fmt.Errorf("failed to ensure subscription row: %w", err)
	}

	var found subscriptionModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&found).Error; err != nil {
		return types.SubscriptionState{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	return subscriptionFromModel(found), nil
}

// ResetPeriod starts a fresh billing period with a zeroed usage count.
func (r *SubscriptionRepo) ResetPeriod(ctx context.Context, userID string, start time.Time) error {
	if err := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"period_usage_count": 0,
			"period_start":       start,
		}).Error; err != nil {
		return fmt.Errorf("failed to reset subscription period: %w", err)
	}
	return nil
}

// IncrementUsage raises the period usage count by one, guarded so the count
// never exceeds the cap. Returns false when the cap was already reached.
func (r *SubscriptionRepo) IncrementUsage(ctx context.Context, userID string, cap int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&subscriptionModel{}).
		Where("user_id = ?", userID).
		Where("period_usage_count < ?", cap).
		Update("period_usage_count", gorm.Expr("period_usage_count + 1"))
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment usage: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func subscriptionFromModel(model subscriptionModel) types.SubscriptionState {
	return types.SubscriptionState{
		UserID:           model.UserID,
		Tier:             types.Tier(model.Tier),
		PeriodUsageCount: model.PeriodUsageCount,
		PeriodStart:      model.PeriodStart,
	}
}
