package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
)

// Repository handles the append-only escape activation log.
type Repository interface {
	FindForDay(ctx context.Context, userID uuid.UUID, day time.Time) (*models.EscapeActivation, error)
	// Create inserts the day's activation row. The (user, day) unique index
	// is the idempotence guard; callers inspect unique violations to detect
	// a concurrent grant.
	Create(ctx context.Context, activation *models.EscapeActivation) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escape activation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindForDay(ctx context.Context, userID uuid.UUID, day time.Time) (*models.EscapeActivation, error) {
	var row models.EscapeActivation
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Create(ctx context.Context, activation *models.EscapeActivation) error {
	if activation.ID == uuid.Nil {
		activation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(activation).Error
}
