package plans

import (
	"context"

	"gorm.io/gorm"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Repository handles plan catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreatePlan(ctx context.Context, plan *models.Plan) error
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, params ListPlansQuery) ([]models.Plan, error)
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
}

type repository struct {
	db *gorm.DB
}

// ListPlansQuery configures plan list queries.
type ListPlansQuery struct {
	Status *enums.PlanStatus
}

// NewRepository returns a plan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreatePlan(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) ListPlans(ctx context.Context, params ListPlansQuery) ([]models.Plan, error) {
	query := r.db.WithContext(ctx).Model(&models.Plan{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var plans []models.Plan
	if err := query.Order("name ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) FindPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	if id == "" {
		return nil, nil
	}
	var plan models.Plan
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}
