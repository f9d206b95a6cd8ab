package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/api/responses"
	"github.com/aprovia/aprovia-backend/api/validators"
	"github.com/aprovia/aprovia-backend/internal/experiments"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// ExperimentService describes the bucketing methods used by the HTTP
// controllers.
type ExperimentService interface {
	Assign(ctx context.Context, name string, userID uuid.UUID) (experiments.Assignment, error)
	GetConfig(ctx context.Context, name string, userID uuid.UUID) (experiments.Config, error)
	RecordMetric(ctx context.Context, name string, userID uuid.UUID, metricName string, value float64, metadata json.RawMessage) (bool, error)
}

type assignmentResponse struct {
	Group string `json:"group"`
	IsNew bool   `json:"is_new"`
}

func ExperimentAssign(svc ExperimentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		assignment, err := svc.Assign(ctx, chi.URLParam(r, "name"), userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignmentResponse{
			Group: assignment.Group.String(),
			IsNew: assignment.IsNew,
		})
	}
}

func ExperimentConfig(svc ExperimentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		cfg, err := svc.GetConfig(ctx, chi.URLParam(r, "name"), userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"group":    cfg.Group.String(),
			"metadata": cfg.Metadata,
		})
	}
}

type recordMetricRequest struct {
	MetricName string          `json:"metric_name" validate:"required"`
	Value      float64         `json:"value"`
	Metadata   json.RawMessage `json:"metadata"`
}

func ExperimentRecordMetric(svc ExperimentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req recordMetricRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ok, err := svc.RecordMetric(ctx, chi.URLParam(r, "name"), userID, req.MetricName, req.Value, req.Metadata)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": ok})
	}
}
