package plans

import (
	"context"
	"errors"
	"strings"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
)

// ServiceParams groups dependencies for the plan catalog service.
type ServiceParams struct {
	Repo Repository
}

// Service administers the plan catalog.
type Service struct {
	repo Repository
}

// NewService builds a plan catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

func (s *Service) CreatePlan(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	existing, err := s.repo.FindPlanByID(ctx, plan.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading plan")
	}
	if existing != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "plan id already exists")
	}
	return s.repo.CreatePlan(ctx, plan)
}

func (s *Service) UpdatePlan(ctx context.Context, plan *models.Plan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}
	existing, err := s.repo.FindPlanByID(ctx, plan.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading plan")
	}
	if existing == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return s.repo.UpdatePlan(ctx, plan)
}

func (s *Service) ListPlans(ctx context.Context, params ListPlansQuery) ([]models.Plan, error) {
	return s.repo.ListPlans(ctx, params)
}

func (s *Service) FindPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	return s.repo.FindPlanByID(ctx, id)
}

func validatePlan(plan *models.Plan) error {
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if strings.TrimSpace(plan.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if strings.TrimSpace(plan.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if !plan.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan status")
	}
	if plan.SessionsPerDay != nil && *plan.SessionsPerDay < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sessions_per_day must not be negative")
	}
	if plan.QuestionsPerSession != nil && *plan.QuestionsPerSession < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "questions_per_session must not be negative")
	}
	if plan.PiecesPerMonth != nil && *plan.PiecesPerMonth < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "pieces_per_month must not be negative")
	}
	if plan.ConditionalExtraSessions < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "conditional_extra_sessions must not be negative")
	}
	if plan.MaxSessionMinutes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max_session_minutes must be positive")
	}
	return nil
}
