package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
)

// Resolution pairs the applicable subscription with its plan.
type Resolution struct {
	Subscription *models.Subscription
	Plan         *models.Plan
}

// Resolver resolves the applicable subscription+plan for a user at decision
// time. Every downstream entitlement decision starts here.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*Resolution, error)
}

// ServiceParams groups dependencies for the subscription resolver.
type ServiceParams struct {
	Repo  Repository
	Plans PlanFinder
	Clock func() time.Time
}

// PlanFinder loads plans when the subscription row arrives without a preloaded
// plan.
type PlanFinder interface {
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
}

// Service implements Resolver against the repository.
type Service struct {
	repo  Repository
	plans PlanFinder
	clock func() time.Time
}

// NewService builds a subscription resolver.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plan finder is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: params.Repo, plans: params.Plans, clock: clock}, nil
}

// Resolve returns the applicable subscription+plan pair or a typed
// NO_ACTIVE_SUBSCRIPTION error.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) (*Resolution, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	sub, err := s.repo.FindApplicable(ctx, userID, s.clock())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNoActiveSubscription, "no active subscription")
	}

	plan := sub.Plan
	if plan == nil {
		plan, err = s.plans.FindPlanByID(ctx, sub.PlanID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading plan")
		}
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription references unknown plan")
	}

	return &Resolution{Subscription: sub, Plan: plan}, nil
}

// ListByUser returns the user's full subscription history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}
