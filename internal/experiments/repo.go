package experiments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
)

// Repository handles experiment, assignment, and metric persistence.
type Repository interface {
	FindExperimentByName(ctx context.Context, name string) (*models.Experiment, error)
	ListExperiments(ctx context.Context) ([]models.Experiment, error)
	CreateExperiment(ctx context.Context, experiment *models.Experiment) error
	UpdateExperiment(ctx context.Context, experiment *models.Experiment) error

	FindAssignment(ctx context.Context, experimentID, userID uuid.UUID) (*models.ExperimentAssignment, error)
	// CreateAssignment inserts a sticky assignment row. The
	// (experiment, user) unique index rejects a second writer; callers
	// re-fetch on a unique violation.
	CreateAssignment(ctx context.Context, assignment *models.ExperimentAssignment) error

	CreateMetric(ctx context.Context, metric *models.ExperimentMetric) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an experiment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindExperimentByName(ctx context.Context, name string) (*models.Experiment, error) {
	var experiment models.Experiment
	if err := r.db.WithContext(ctx).
		Where("name = ?", name).
		First(&experiment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &experiment, nil
}

func (r *repository) ListExperiments(ctx context.Context) ([]models.Experiment, error) {
	var experiments []models.Experiment
	if err := r.db.WithContext(ctx).
		Order("name ASC").
		Find(&experiments).Error; err != nil {
		return nil, err
	}
	return experiments, nil
}

func (r *repository) CreateExperiment(ctx context.Context, experiment *models.Experiment) error {
	if experiment.ID == uuid.Nil {
		experiment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(experiment).Error
}

func (r *repository) UpdateExperiment(ctx context.Context, experiment *models.Experiment) error {
	return r.db.WithContext(ctx).
		Model(&models.Experiment{}).
		Where("id = ?", experiment.ID).
		Updates(map[string]any{
			"enabled":             experiment.Enabled,
			"starts_at":           experiment.StartsAt,
			"ends_at":             experiment.EndsAt,
			"control_percentage":  experiment.ControlPercentage,
			"variant_percentage":  experiment.VariantPercentage,
			"assignment_strategy": experiment.AssignmentStrategy,
			"metadata":            experiment.Metadata,
		}).Error
}

func (r *repository) FindAssignment(ctx context.Context, experimentID, userID uuid.UUID) (*models.ExperimentAssignment, error) {
	var assignment models.ExperimentAssignment
	if err := r.db.WithContext(ctx).
		Where("experiment_id = ? AND user_id = ?", experimentID, userID).
		First(&assignment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) CreateAssignment(ctx context.Context, assignment *models.ExperimentAssignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) CreateMetric(ctx context.Context, metric *models.ExperimentMetric) error {
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(metric).Error
}
