package escalation

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/internal/featureflags"
	"github.com/aprovia/aprovia-backend/internal/subscriptions"
	"github.com/aprovia/aprovia-backend/internal/usage"
	"github.com/aprovia/aprovia-backend/pkg/civiltime"
	"github.com/aprovia/aprovia-backend/pkg/db"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
	"github.com/aprovia/aprovia-backend/pkg/metrics"
)

// EscapeValveFlag is the global kill switch consulted before any detection
// logic runs.
const EscapeValveFlag = "heavy_user_escape_valve"

// CriterionTrailingWindow tags activations granted by the rolling-window
// heavy-user detector.
const CriterionTrailingWindow = "trailing_window_sessions"

// Outcome reasons reported to callers.
const (
	ReasonValveDisabled    = "escape valve disabled"
	ReasonPlanNotEligible  = "plan not eligible"
	ReasonAlreadyActivated = "already activated today"
	ReasonCriterionNotMet  = "heavy-user criterion not met"
	ReasonBaselineNotSpent = "daily baseline not yet exhausted"
	ReasonActivated        = "activated"
)

// Result reports one on-demand escalation evaluation.
type Result struct {
	Activated     bool   `json:"activated"`
	Reason        string `json:"reason"`
	ExtraSessions int    `json:"extra_sessions"`
	WindowCount   int    `json:"window_count"`
	Threshold     int    `json:"threshold"`
}

// ServiceParams groups dependencies for the heavy-user escalation service.
type ServiceParams struct {
	Repo          Repository
	Subscriptions subscriptions.Resolver
	Usage         usage.Ledger
	Flags         featureflags.Gate
	WindowDays    int
	Ratio         float64
	Location      *time.Location
	Clock         func() time.Time
	Log           *logger.Logger
	Metrics       *metrics.EntitlementMetrics
}

// Service detects sustained heavy usage over the trailing window and grants
// at most one extra-capacity activation per user per civil day.
type Service struct {
	repo       Repository
	subs       subscriptions.Resolver
	usage      usage.Ledger
	flags      featureflags.Gate
	windowDays int
	ratio      float64
	loc        *time.Location
	clock      func() time.Time
	log        *logger.Logger
	metrics    *metrics.EntitlementMetrics
}

// NewService builds an escalation service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscription resolver is required")
	}
	if params.Usage == nil {
		return nil, errors.New("usage ledger is required")
	}
	if params.Flags == nil {
		return nil, errors.New("flag gate is required")
	}
	if params.WindowDays <= 0 {
		return nil, errors.New("window days must be positive")
	}
	if params.Ratio <= 0 || params.Ratio > 1 {
		return nil, errors.New("ratio must be in (0, 1]")
	}
	if params.Location == nil {
		return nil, errors.New("location is required")
	}
	if params.Log == nil {
		return nil, errors.New("log is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:       params.Repo,
		subs:       params.Subscriptions,
		usage:      params.Usage,
		flags:      params.Flags,
		windowDays: params.WindowDays,
		ratio:      params.Ratio,
		loc:        params.Location,
		clock:      clock,
		log:        params.Log,
		metrics:    params.Metrics,
	}, nil
}

// Threshold is the window count at which a plan's user qualifies as heavy.
func (s *Service) Threshold(sessionsPerDay int) int {
	return int(math.Ceil(float64(sessionsPerDay) * float64(s.windowDays) * s.ratio))
}

// Check evaluates the escape valve for the user right now. It is evaluated on
// demand, never on a schedule, and activates at most once per civil day.
func (s *Service) Check(ctx context.Context, userID uuid.UUID) (Result, error) {
	if userID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	res, err := s.subs.Resolve(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	plan := res.Plan

	if !s.flags.Enabled(ctx, EscapeValveFlag) {
		return s.miss(Result{Reason: ReasonValveDisabled}), nil
	}
	sessionsPerDay, unlimited := plan.DailySessionLimit()
	if unlimited || !plan.EscalationEligible || plan.ConditionalExtraSessions <= 0 {
		return s.miss(Result{Reason: ReasonPlanNotEligible}), nil
	}

	today := civiltime.Day(s.clock(), s.loc)
	existing, err := s.repo.FindForDay(ctx, userID, today)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading escape activations")
	}
	threshold := s.Threshold(sessionsPerDay)
	if existing != nil {
		return s.miss(Result{
			Reason:        ReasonAlreadyActivated,
			ExtraSessions: existing.ExtraSessions,
			WindowCount:   existing.WindowCount,
			Threshold:     threshold,
		}), nil
	}

	windowCount, err := s.usage.SessionsInTrailingWindow(ctx, userID, s.windowDays)
	if err != nil {
		return Result{}, err
	}
	if windowCount < threshold {
		return s.miss(Result{Reason: ReasonCriterionNotMet, WindowCount: windowCount, Threshold: threshold}), nil
	}

	todayCount, err := s.usage.CountableSessionsToday(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if todayCount < sessionsPerDay {
		return s.miss(Result{Reason: ReasonBaselineNotSpent, WindowCount: windowCount, Threshold: threshold}), nil
	}

	activation := &models.EscapeActivation{
		UserID:        userID,
		Day:           today,
		Criterion:     CriterionTrailingWindow,
		WindowCount:   windowCount,
		ExtraSessions: plan.ConditionalExtraSessions,
	}
	if err := s.repo.Create(ctx, activation); err != nil {
		if db.IsUniqueViolation(err, "idx_escape_activation_user_day") {
			// A concurrent check won the race; same day, same outcome.
			return s.miss(Result{
				Reason:        ReasonAlreadyActivated,
				ExtraSessions: plan.ConditionalExtraSessions,
				WindowCount:   windowCount,
				Threshold:     threshold,
			}), nil
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording escape activation")
	}

	ctx = s.log.WithUserID(ctx, userID.String())
	ctx = s.log.WithField(ctx, "window_count", windowCount)
	ctx = s.log.WithField(ctx, "extra_sessions", plan.ConditionalExtraSessions)
	s.log.Info(ctx, "heavy-user escape valve activated")
	s.metrics.ObserveEscalation(true)

	return Result{
		Activated:     true,
		Reason:        ReasonActivated,
		ExtraSessions: plan.ConditionalExtraSessions,
		WindowCount:   windowCount,
		Threshold:     threshold,
	}, nil
}

// ExtraSessionsToday reports the extra capacity already granted today, zero
// when no activation exists. Quota decisions read this instead of re-running
// the detector.
func (s *Service) ExtraSessionsToday(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	today := civiltime.Day(s.clock(), s.loc)
	activation, err := s.repo.FindForDay(ctx, userID, today)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading escape activations")
	}
	if activation == nil {
		return 0, nil
	}
	return activation.ExtraSessions, nil
}

func (s *Service) miss(r Result) Result {
	s.metrics.ObserveEscalation(false)
	return r
}
