package featureflags

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
)

// Repository handles feature flag persistence.
type Repository interface {
	FindFlag(ctx context.Context, name string) (*models.FeatureFlag, error)
	ListFlags(ctx context.Context) ([]models.FeatureFlag, error)
	UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error
	DeleteFlag(ctx context.Context, name string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a feature flag repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindFlag(ctx context.Context, name string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&flag).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &flag, nil
}

func (r *repository) ListFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	var flags []models.FeatureFlag
	if err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&flags).Error; err != nil {
		return nil, err
	}
	return flags, nil
}

func (r *repository) UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "metadata", "updated_at"}),
		}).
		Create(flag).Error
}

func (r *repository) DeleteFlag(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).
		Where("name = ?", name).
		Delete(&models.FeatureFlag{}).Error
}
