package experiments

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/db"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
	"github.com/aprovia/aprovia-backend/pkg/metrics"
)

// Assignment is the outcome of one bucketing call. Group is empty when the
// experiment is missing, disabled, or outside its target window.
type Assignment struct {
	Group enums.ExperimentGroup `json:"group"`
	IsNew bool                  `json:"is_new"`
}

// Assigned reports whether the user landed in a group.
func (a Assignment) Assigned() bool {
	return a.Group != ""
}

// Config is the user's view of an experiment: their group plus the
// experiment's full metadata blob. Callers extract their group's overrides.
type Config struct {
	Group    enums.ExperimentGroup `json:"group"`
	Metadata json.RawMessage       `json:"metadata"`
}

// ServiceParams groups dependencies for the experiment service.
type ServiceParams struct {
	Repo    Repository
	Clock   func() time.Time
	RandInt func(n int) int
	Log     *logger.Logger
	Metrics *metrics.EntitlementMetrics
}

// Service owns sticky experiment bucketing and best-effort metrics.
type Service struct {
	repo    Repository
	clock   func() time.Time
	randInt func(n int) int
	log     *logger.Logger
	metrics *metrics.EntitlementMetrics
}

// NewService builds an experiment service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Log == nil {
		return nil, errors.New("log is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	randInt := params.RandInt
	if randInt == nil {
		randInt = rand.IntN
	}
	return &Service{
		repo:    params.Repo,
		clock:   clock,
		randInt: randInt,
		log:     params.Log,
		metrics: params.Metrics,
	}, nil
}

// Assign buckets the user into the named experiment. Assignments are sticky:
// once a row exists it is returned unchanged forever, regardless of later
// edits to the experiment's split. A missing or stopped experiment yields an
// empty assignment, not an error.
func (s *Service) Assign(ctx context.Context, name string, userID uuid.UUID) (Assignment, error) {
	if name == "" {
		return Assignment{}, pkgerrors.New(pkgerrors.CodeValidation, "experiment name is required")
	}
	if userID == uuid.Nil {
		return Assignment{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	experiment, err := s.repo.FindExperimentByName(ctx, name)
	if err != nil {
		return Assignment{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if !experiment.RunningAt(s.clock()) {
		return Assignment{}, nil
	}

	existing, err := s.repo.FindAssignment(ctx, experiment.ID, userID)
	if err != nil {
		return Assignment{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment assignment")
	}
	if existing != nil {
		return Assignment{Group: existing.Group}, nil
	}

	group := s.bucket(experiment, userID)
	assignment := &models.ExperimentAssignment{
		ExperimentID: experiment.ID,
		UserID:       userID,
		Group:        group,
		AssignedAt:   s.clock(),
	}
	if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
		if db.IsUniqueViolation(err, "idx_assignment_experiment_user") {
			// A concurrent call assigned first; its row wins.
			winner, ferr := s.repo.FindAssignment(ctx, experiment.ID, userID)
			if ferr != nil || winner == nil {
				return Assignment{}, pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "re-reading experiment assignment")
			}
			return Assignment{Group: winner.Group}, nil
		}
		return Assignment{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving experiment assignment")
	}

	s.metrics.ObserveAssignment(name, group.String())
	return Assignment{Group: group, IsNew: true}, nil
}

func (s *Service) bucket(experiment *models.Experiment, userID uuid.UUID) enums.ExperimentGroup {
	switch experiment.AssignmentStrategy {
	case enums.AssignmentStrategyHashModulo:
		// The leading bytes of a v4 uuid are uniformly random, so the
		// modulo is an even split and reproducible for the same user.
		bucket := int(binary.BigEndian.Uint32(userID[:4]) % 100)
		if bucket < experiment.ControlPercentage {
			return enums.ExperimentGroupControl
		}
		return enums.ExperimentGroupVariant
	case enums.AssignmentStrategyRandom:
		if s.randInt(100) < experiment.ControlPercentage {
			return enums.ExperimentGroupControl
		}
		return enums.ExperimentGroupVariant
	}
	// Manual and unrecognized strategies park new users in control until an
	// operator moves them.
	return enums.ExperimentGroupControl
}

// GetConfig returns the user's group together with the experiment's metadata
// blob. Users without an assignment are bucketed first, so a decision path
// and an explicit assign call always agree.
func (s *Service) GetConfig(ctx context.Context, name string, userID uuid.UUID) (Config, error) {
	assignment, err := s.Assign(ctx, name, userID)
	if err != nil {
		return Config{}, err
	}
	if !assignment.Assigned() {
		return Config{}, nil
	}
	experiment, err := s.repo.FindExperimentByName(ctx, name)
	if err != nil {
		return Config{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if experiment == nil {
		return Config{}, nil
	}
	return Config{Group: assignment.Group, Metadata: experiment.Metadata}, nil
}

// SessionLimitOverride resolves the user's per-group sessions_per_day
// override from the named experiment. ok is false when the experiment is not
// running, the user has no group, or the group carries no override.
func (s *Service) SessionLimitOverride(ctx context.Context, name string, userID uuid.UUID) (limit int, ok bool, err error) {
	if name == "" {
		return 0, false, nil
	}
	experiment, err := s.repo.FindExperimentByName(ctx, name)
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if !experiment.RunningAt(s.clock()) {
		return 0, false, nil
	}

	assignment, err := s.Assign(ctx, name, userID)
	if err != nil {
		return 0, false, err
	}
	if !assignment.Assigned() {
		return 0, false, nil
	}

	overrides := experiment.GroupOverrides(assignment.Group)
	raw, found := overrides["sessions_per_day"]
	if !found {
		return 0, false, nil
	}
	if err := json.Unmarshal(raw, &limit); err != nil {
		ctx = s.log.WithExperiment(ctx, name)
		s.log.Warn(ctx, "malformed sessions_per_day override, ignoring")
		return 0, false, nil
	}
	return limit, true, nil
}

// RecordMetric appends one observation tagged with the user's current group.
// It degrades to ok=false when the experiment is stopped or the user was
// never assigned; analytics must not fail a request.
func (s *Service) RecordMetric(ctx context.Context, name string, userID uuid.UUID, metricName string, value float64, metadata json.RawMessage) (bool, error) {
	if name == "" || metricName == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "experiment and metric names are required")
	}
	if userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	experiment, err := s.repo.FindExperimentByName(ctx, name)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if !experiment.RunningAt(s.clock()) {
		return false, nil
	}
	assignment, err := s.repo.FindAssignment(ctx, experiment.ID, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment assignment")
	}
	if assignment == nil {
		return false, nil
	}

	metric := &models.ExperimentMetric{
		ExperimentID: experiment.ID,
		UserID:       userID,
		Group:        assignment.Group,
		MetricName:   metricName,
		Value:        value,
		Metadata:     metadata,
		RecordedAt:   s.clock(),
	}
	if err := s.repo.CreateMetric(ctx, metric); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving experiment metric")
	}
	return true, nil
}

// List returns every experiment ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Experiment, error) {
	experiments, err := s.repo.ListExperiments(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing experiments")
	}
	return experiments, nil
}

// Create registers a new experiment.
func (s *Service) Create(ctx context.Context, experiment *models.Experiment) error {
	if err := validateExperiment(experiment); err != nil {
		return err
	}
	existing, err := s.repo.FindExperimentByName(ctx, experiment.Name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if existing != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "experiment already exists")
	}
	if err := s.repo.CreateExperiment(ctx, experiment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving experiment")
	}
	return nil
}

// Update edits an experiment's configuration. Existing assignments are never
// rewritten; only new users see the edited split.
func (s *Service) Update(ctx context.Context, experiment *models.Experiment) error {
	if err := validateExperiment(experiment); err != nil {
		return err
	}
	existing, err := s.repo.FindExperimentByName(ctx, experiment.Name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading experiment")
	}
	if existing == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "experiment not found")
	}
	experiment.ID = existing.ID
	if err := s.repo.UpdateExperiment(ctx, experiment); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving experiment")
	}
	return nil
}

func validateExperiment(experiment *models.Experiment) error {
	if experiment == nil || experiment.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "experiment name is required")
	}
	if !experiment.AssignmentStrategy.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid assignment strategy")
	}
	if experiment.ControlPercentage < 0 || experiment.ControlPercentage > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "control percentage must be within 0-100")
	}
	if experiment.VariantPercentage < 0 || experiment.VariantPercentage > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant percentage must be within 0-100")
	}
	if experiment.ControlPercentage+experiment.VariantPercentage != 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentages must sum to 100")
	}
	if experiment.StartsAt != nil && experiment.EndsAt != nil && !experiment.EndsAt.After(*experiment.StartsAt) {
		return pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at")
	}
	return nil
}
