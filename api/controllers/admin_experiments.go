package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aprovia/aprovia-backend/api/responses"
	"github.com/aprovia/aprovia-backend/api/validators"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// ExperimentAdminService describes the experiment administration methods used
// by the HTTP controllers.
type ExperimentAdminService interface {
	List(ctx context.Context) ([]models.Experiment, error)
	Create(ctx context.Context, experiment *models.Experiment) error
	Update(ctx context.Context, experiment *models.Experiment) error
}

type experimentResponse struct {
	Name               string          `json:"name"`
	Enabled            bool            `json:"enabled"`
	StartsAt           *time.Time      `json:"starts_at,omitempty"`
	EndsAt             *time.Time      `json:"ends_at,omitempty"`
	ControlPercentage  int             `json:"control_percentage"`
	VariantPercentage  int             `json:"variant_percentage"`
	AssignmentStrategy string          `json:"assignment_strategy"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

type experimentUpsertRequest struct {
	Name               string          `json:"name,omitempty"`
	Enabled            bool            `json:"enabled"`
	StartsAt           *time.Time      `json:"starts_at"`
	EndsAt             *time.Time      `json:"ends_at"`
	ControlPercentage  int             `json:"control_percentage" validate:"min=0,max=100"`
	VariantPercentage  int             `json:"variant_percentage" validate:"min=0,max=100"`
	AssignmentStrategy string          `json:"assignment_strategy"`
	Metadata           json.RawMessage `json:"metadata"`
}

func experimentToResponse(experiment models.Experiment) experimentResponse {
	return experimentResponse{
		Name:               experiment.Name,
		Enabled:            experiment.Enabled,
		StartsAt:           experiment.StartsAt,
		EndsAt:             experiment.EndsAt,
		ControlPercentage:  experiment.ControlPercentage,
		VariantPercentage:  experiment.VariantPercentage,
		AssignmentStrategy: experiment.AssignmentStrategy.String(),
		Metadata:           experiment.Metadata,
	}
}

func experimentFromRequest(req experimentUpsertRequest, name string) (*models.Experiment, error) {
	experiment := &models.Experiment{
		Name:               name,
		Enabled:            req.Enabled,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		ControlPercentage:  req.ControlPercentage,
		VariantPercentage:  req.VariantPercentage,
		AssignmentStrategy: enums.AssignmentStrategyHashModulo,
		Metadata:           req.Metadata,
	}
	if req.AssignmentStrategy != "" {
		strategy, err := enums.ParseAssignmentStrategy(req.AssignmentStrategy)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid assignment strategy")
		}
		experiment.AssignmentStrategy = strategy
	}
	return experiment, nil
}

func AdminExperimentsList(svc ExperimentAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		experiments, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]experimentResponse, 0, len(experiments))
		for _, experiment := range experiments {
			out = append(out, experimentToResponse(experiment))
		}
		responses.WriteSuccess(w, map[string]any{"experiments": out})
	}
}

func AdminExperimentCreate(svc ExperimentAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req experimentUpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		experiment, err := experimentFromRequest(req, req.Name)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Create(ctx, experiment); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, experimentToResponse(*experiment))
	}
}

func AdminExperimentUpdate(svc ExperimentAdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req experimentUpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		experiment, err := experimentFromRequest(req, chi.URLParam(r, "name"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Update(ctx, experiment); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, experimentToResponse(*experiment))
	}
}
