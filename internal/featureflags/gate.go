package featureflags

import (
	"context"
	"errors"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// Gate answers whether a named feature is currently on. Decision paths only
// need the boolean; admin surfaces use the Service below.
type Gate interface {
	Enabled(ctx context.Context, name string) bool
}

// ServiceParams groups dependencies for the feature flag service.
type ServiceParams struct {
	Repo Repository
	Log  *logger.Logger
}

// Service implements Gate over the flag store and exposes the admin
// operations the console needs.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService builds a feature flag service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Log == nil {
		return nil, errors.New("log is required")
	}
	return &Service{repo: params.Repo, log: params.Log}, nil
}

// Enabled reports whether the flag exists and is switched on. A missing flag
// reads as disabled, and a storage failure also reads as disabled so that
// gated features fail closed rather than flapping open during an outage.
func (s *Service) Enabled(ctx context.Context, name string) bool {
	flag, err := s.repo.FindFlag(ctx, name)
	if err != nil {
		ctx = s.log.WithField(ctx, "flag", name)
		s.log.Error(ctx, "feature flag lookup failed, treating as disabled", err)
		return false
	}
	return flag != nil && flag.Enabled
}

// List returns every flag ordered by name.
func (s *Service) List(ctx context.Context) ([]models.FeatureFlag, error) {
	flags, err := s.repo.ListFlags(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing feature flags")
	}
	return flags, nil
}

// Set creates or updates a flag by name.
func (s *Service) Set(ctx context.Context, flag *models.FeatureFlag) error {
	if flag == nil || flag.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "flag name is required")
	}
	if err := s.repo.UpsertFlag(ctx, flag); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving feature flag")
	}
	ctx = s.log.WithField(ctx, "flag", flag.Name)
	ctx = s.log.WithField(ctx, "enabled", flag.Enabled)
	s.log.Info(ctx, "feature flag updated")
	return nil
}

// Delete removes a flag. Removing a flag and disabling it are equivalent for
// every gate that reads it.
func (s *Service) Delete(ctx context.Context, name string) error {
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "flag name is required")
	}
	if err := s.repo.DeleteFlag(ctx, name); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting feature flag")
	}
	return nil
}
