package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Repository handles subscription reads. Rows are written by the billing
// service; this core never mutates them.
type Repository interface {
	FindApplicable(ctx context.Context, userID uuid.UUID, at time.Time) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindApplicable returns the most recently started active subscription whose
// end date is unset or in the future, or nil when the user has none.
func (r *repository) FindApplicable(ctx context.Context, userID uuid.UUID, at time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ?", userID).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("end_date IS NULL OR end_date > ?", at).
		Order("start_date DESC").
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
