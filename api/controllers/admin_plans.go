package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/aprovia/aprovia-backend/api/responses"
	"github.com/aprovia/aprovia-backend/api/validators"
	planssvc "github.com/aprovia/aprovia-backend/internal/plans"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// PlanService describes the catalog methods used by the HTTP controllers.
type PlanService interface {
	CreatePlan(ctx context.Context, plan *models.Plan) error
	UpdatePlan(ctx context.Context, plan *models.Plan) error
	ListPlans(ctx context.Context, params planssvc.ListPlansQuery) ([]models.Plan, error)
	FindPlanByID(ctx context.Context, id string) (*models.Plan, error)
}

type planResponse struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Status                   string          `json:"status"`
	PriceAmount              string          `json:"price_amount"`
	CurrencyCode             string          `json:"currency_code"`
	SessionsPerDay           *int            `json:"sessions_per_day"`
	QuestionsPerSession      *int            `json:"questions_per_session"`
	PiecesPerMonth           *int            `json:"pieces_per_month"`
	ConditionalExtraSessions int             `json:"conditional_extra_sessions"`
	AllowsContinuousMode     bool            `json:"allows_continuous_mode"`
	AllowsExtendedSession    bool            `json:"allows_extended_session"`
	EscalationEligible       bool            `json:"escalation_eligible"`
	MaxSessionMinutes        int             `json:"max_session_minutes"`
	Features                 []string        `json:"features"`
	UI                       json.RawMessage `json:"ui,omitempty"`
	CreatedAt                string          `json:"created_at"`
	UpdatedAt                string          `json:"updated_at"`
}

type planUpsertRequest struct {
	ID                       string          `json:"id,omitempty"`
	Name                     string          `json:"name" validate:"required"`
	Status                   string          `json:"status"`
	PriceAmount              string          `json:"price_amount"`
	CurrencyCode             string          `json:"currency_code"`
	SessionsPerDay           *int            `json:"sessions_per_day"`
	QuestionsPerSession      *int            `json:"questions_per_session"`
	PiecesPerMonth           *int            `json:"pieces_per_month"`
	ConditionalExtraSessions *int            `json:"conditional_extra_sessions"`
	AllowsContinuousMode     *bool           `json:"allows_continuous_mode"`
	AllowsExtendedSession    *bool           `json:"allows_extended_session"`
	EscalationEligible       *bool           `json:"escalation_eligible"`
	MaxSessionMinutes        *int            `json:"max_session_minutes"`
	Features                 []string        `json:"features"`
	UI                       json.RawMessage `json:"ui"`
}

func planToResponse(plan models.Plan) planResponse {
	return planResponse{
		ID:                       plan.ID,
		Name:                     plan.Name,
		Status:                   plan.Status.String(),
		PriceAmount:              plan.PriceAmount.StringFixed(2),
		CurrencyCode:             plan.CurrencyCode,
		SessionsPerDay:           plan.SessionsPerDay,
		QuestionsPerSession:      plan.QuestionsPerSession,
		PiecesPerMonth:           plan.PiecesPerMonth,
		ConditionalExtraSessions: plan.ConditionalExtraSessions,
		AllowsContinuousMode:     plan.AllowsContinuousMode,
		AllowsExtendedSession:    plan.AllowsExtendedSession,
		EscalationEligible:       plan.EscalationEligible,
		MaxSessionMinutes:        plan.MaxSessionMinutes,
		Features:                 plan.Features,
		UI:                       plan.UI,
		CreatedAt:                plan.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:                plan.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func planFromRequest(req planUpsertRequest, id string) (*models.Plan, error) {
	plan := &models.Plan{
		ID:                  id,
		Name:                req.Name,
		Status:              enums.PlanStatusActive,
		CurrencyCode:        "BRL",
		SessionsPerDay:      req.SessionsPerDay,
		QuestionsPerSession: req.QuestionsPerSession,
		PiecesPerMonth:      req.PiecesPerMonth,
		MaxSessionMinutes:   60,
		Features:            pq.StringArray(req.Features),
		UI:                  req.UI,
	}
	if req.Status != "" {
		status, err := enums.ParsePlanStatus(req.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		plan.Status = status
	}
	if req.PriceAmount != "" {
		amount, err := decimal.NewFromString(req.PriceAmount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price amount")
		}
		plan.PriceAmount = amount
	}
	if req.CurrencyCode != "" {
		plan.CurrencyCode = strings.ToUpper(req.CurrencyCode)
	}
	if req.ConditionalExtraSessions != nil {
		plan.ConditionalExtraSessions = *req.ConditionalExtraSessions
	}
	if req.AllowsContinuousMode != nil {
		plan.AllowsContinuousMode = *req.AllowsContinuousMode
	}
	if req.AllowsExtendedSession != nil {
		plan.AllowsExtendedSession = *req.AllowsExtendedSession
	}
	if req.EscalationEligible != nil {
		plan.EscalationEligible = *req.EscalationEligible
	}
	if req.MaxSessionMinutes != nil {
		plan.MaxSessionMinutes = *req.MaxSessionMinutes
	}
	return plan, nil
}

func AdminPlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		statusParam := strings.TrimSpace(r.URL.Query().Get("status"))
		var status *enums.PlanStatus
		if statusParam != "" {
			parsed, err := enums.ParsePlanStatus(statusParam)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		plans, err := svc.ListPlans(ctx, planssvc.ListPlansQuery{Status: status})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		out := make([]planResponse, 0, len(plans))
		for _, plan := range plans {
			out = append(out, planToResponse(plan))
		}
		responses.WriteSuccess(w, map[string]any{"plans": out})
	}
}

func AdminPlanCreate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planUpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := planFromRequest(req, req.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.CreatePlan(ctx, plan); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, planToResponse(*plan))
	}
}

func AdminPlanUpdate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req planUpsertRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := planFromRequest(req, chi.URLParam(r, "planId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.UpdatePlan(ctx, plan); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(*plan))
	}
}
