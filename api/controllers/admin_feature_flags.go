package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aprovia/aprovia-backend/api/responses"
	"github.com/aprovia/aprovia-backend/api/validators"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// FeatureFlagService describes the kill-switch methods used by the HTTP
// controllers.
type FeatureFlagService interface {
	List(ctx context.Context) ([]models.FeatureFlag, error)
	Set(ctx context.Context, flag *models.FeatureFlag) error
	Delete(ctx context.Context, name string) error
}

type featureFlagResponse struct {
	Name     string          `json:"name"`
	Enabled  bool            `json:"enabled"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type featureFlagUpsertRequest struct {
	Enabled  bool            `json:"enabled"`
	Metadata json.RawMessage `json:"metadata"`
}

func AdminFeatureFlagsList(svc FeatureFlagService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		flags, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]featureFlagResponse, 0, len(flags))
		for _, flag := range flags {
			out = append(out, featureFlagResponse{
				Name:     flag.Name,
				Enabled:  flag.Enabled,
				Metadata: flag.Metadata,
			})
		}
		responses.WriteSuccess(w, map[string]any{"flags": out})
	}
}

func AdminFeatureFlagSet(svc FeatureFlagService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req featureFlagUpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		flag := &models.FeatureFlag{
			Name:     chi.URLParam(r, "name"),
			Enabled:  req.Enabled,
			Metadata: req.Metadata,
		}
		if err := svc.Set(ctx, flag); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, featureFlagResponse{
			Name:     flag.Name,
			Enabled:  flag.Enabled,
			Metadata: flag.Metadata,
		})
	}
}

func AdminFeatureFlagDelete(svc FeatureFlagService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := svc.Delete(ctx, chi.URLParam(r, "name")); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}
