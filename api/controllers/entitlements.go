package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/api/middleware"
	"github.com/aprovia/aprovia-backend/api/responses"
	"github.com/aprovia/aprovia-backend/api/validators"
	"github.com/aprovia/aprovia-backend/internal/escalation"
	"github.com/aprovia/aprovia-backend/internal/quota"
	"github.com/aprovia/aprovia-backend/internal/usage"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

// QuotaService describes the decision methods used by the HTTP controllers.
type QuotaService interface {
	CanStartSession(ctx context.Context, userID uuid.UUID, continuous, consume bool) (quota.Decision, error)
	CheckLimit(ctx context.Context, userID uuid.UUID, resource enums.ResourceType) (quota.Decision, error)
}

// UsageService describes the ledger methods used by the HTTP controllers.
type UsageService interface {
	GetDailyUsage(ctx context.Context, userID uuid.UUID, date *time.Time) (usage.DailyCounts, error)
	Increment(ctx context.Context, userID uuid.UUID, event enums.UsageEventType, amount int) error
}

// EscalationService describes the escape valve methods used by the HTTP
// controllers.
type EscalationService interface {
	Check(ctx context.Context, userID uuid.UUID) (escalation.Result, error)
	ExtraSessionsToday(ctx context.Context, userID uuid.UUID) (int, error)
}

type canStartSessionRequest struct {
	ContinuousMode bool `json:"continuous_mode"`
	Consume        bool `json:"consume"`
}

type decisionResponse struct {
	Allowed   bool           `json:"allowed"`
	Reason    string         `json:"reason"`
	Used      int            `json:"used"`
	Available quota.Capacity `json:"available"`
}

func decisionToResponse(d quota.Decision) decisionResponse {
	return decisionResponse{
		Allowed:   d.Allowed,
		Reason:    d.Reason,
		Used:      d.Used,
		Available: d.Available,
	}
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user identity")
	}
	return userID, nil
}

func CanStartSession(svc QuotaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req canStartSessionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		decision, err := svc.CanStartSession(ctx, userID, req.ContinuousMode, req.Consume)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decisionToResponse(decision))
	}
}

func CheckLimit(svc QuotaService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resource, err := enums.ParseResourceType(chi.URLParam(r, "resource"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resource type"))
			return
		}

		decision, err := svc.CheckLimit(ctx, userID, resource)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, decisionToResponse(decision))
	}
}

func UsageToday(svc UsageService, logg *logger.Logger, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var date *time.Time
		if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
			parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid date, expected YYYY-MM-DD"))
				return
			}
			date = &parsed
		}

		counts, err := svc.GetDailyUsage(ctx, userID, date)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, counts)
	}
}

type usageEventRequest struct {
	EventType string `json:"event_type" validate:"required"`
	Amount    *int   `json:"amount" validate:"omitempty,min=1"`
}

func RecordUsageEvent(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req usageEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := enums.ParseUsageEventType(req.EventType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event type"))
			return
		}
		amount := 1
		if req.Amount != nil {
			amount = *req.Amount
		}

		if err := svc.Increment(ctx, userID, event, amount); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"success": true})
	}
}

func EscalationCheck(svc EscalationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Check(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func EscalationStatus(svc EscalationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		extra, err := svc.ExtraSessionsToday(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"has_escape_today": extra > 0,
			"extra_sessions":   extra,
		})
	}
}
