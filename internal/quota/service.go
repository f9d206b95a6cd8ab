package quota

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/internal/subscriptions"
	"github.com/aprovia/aprovia-backend/internal/usage"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
	"github.com/aprovia/aprovia-backend/pkg/metrics"
)

// DefaultOverrideExperiment is the experiment consulted for per-group
// sessions_per_day overrides.
const DefaultOverrideExperiment = "daily_session_limit"

// Decision reasons reported to callers.
const (
	ReasonContinuousMode         = "continuous mode"
	ReasonContinuousNotPermitted = "continuous mode not permitted"
	ReasonUnlimited              = "unlimited"
	ReasonWithinLimit            = "within limit"
	ReasonDailyLimitReached      = "daily session limit reached"
	ReasonLimitReached           = "limit reached"
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason"`
	Used      int      `json:"used"`
	Available Capacity `json:"available"`
}

// ExtraReader reports extra session capacity already granted today.
type ExtraReader interface {
	ExtraSessionsToday(ctx context.Context, userID uuid.UUID) (int, error)
}

// OverrideSource resolves a per-group session limit override from an
// experiment.
type OverrideSource interface {
	SessionLimitOverride(ctx context.Context, name string, userID uuid.UUID) (limit int, ok bool, err error)
}

// ServiceParams groups dependencies for the quota decision service.
type ServiceParams struct {
	Subscriptions      subscriptions.Resolver
	Usage              usage.Ledger
	Escalation         ExtraReader
	Experiments        OverrideSource
	Locker             Locker
	OverrideExperiment string
	Log                *logger.Logger
	Metrics            *metrics.EntitlementMetrics
}

// Service is the decision core: it resolves the effective limit and compares
// it against the ledger under a per-user lock.
type Service struct {
	subs               subscriptions.Resolver
	usage              usage.Ledger
	escalation         ExtraReader
	experiments        OverrideSource
	locker             Locker
	overrideExperiment string
	log                *logger.Logger
	metrics            *metrics.EntitlementMetrics
}

// NewService builds a quota decision service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, errors.New("subscription resolver is required")
	}
	if params.Usage == nil {
		return nil, errors.New("usage ledger is required")
	}
	if params.Escalation == nil {
		return nil, errors.New("escalation reader is required")
	}
	if params.Experiments == nil {
		return nil, errors.New("override source is required")
	}
	if params.Locker == nil {
		return nil, errors.New("locker is required")
	}
	if params.Log == nil {
		return nil, errors.New("log is required")
	}
	overrideExperiment := params.OverrideExperiment
	if overrideExperiment == "" {
		overrideExperiment = DefaultOverrideExperiment
	}
	return &Service{
		subs:               params.Subscriptions,
		usage:              params.Usage,
		escalation:         params.Escalation,
		experiments:        params.Experiments,
		locker:             params.Locker,
		overrideExperiment: overrideExperiment,
		log:                params.Log,
		metrics:            params.Metrics,
	}, nil
}

// CanStartSession decides whether the user may start a study session now.
// With consume set, an allowed decision also increments today's counter
// before the per-user lock is released, so two concurrent callers cannot
// both spend the last slot.
func (s *Service) CanStartSession(ctx context.Context, userID uuid.UUID, continuous, consume bool) (Decision, error) {
	if userID == uuid.Nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	res, err := s.subs.Resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	plan := res.Plan

	if continuous {
		if !plan.AllowsContinuousMode {
			return s.deny(Decision{Reason: ReasonContinuousNotPermitted}), nil
		}
		// Continuous mode never consumes quota.
		return s.allow(Decision{Reason: ReasonContinuousMode, Available: UnlimitedCapacity()}), nil
	}

	limit, unlimited := plan.DailySessionLimit()
	if override, ok, err := s.experiments.SessionLimitOverride(ctx, s.overrideExperiment, userID); err != nil {
		return Decision{}, err
	} else if ok {
		limit, unlimited = override, false
	}

	if unlimited {
		if consume {
			if err := s.usage.Increment(ctx, userID, enums.UsageEventCountableSession, 1); err != nil {
				return Decision{}, err
			}
		}
		used, err := s.usage.CountableSessionsToday(ctx, userID)
		if err != nil {
			return Decision{}, err
		}
		return s.allow(Decision{Reason: ReasonUnlimited, Used: used, Available: UnlimitedCapacity()}), nil
	}

	extra, err := s.escalation.ExtraSessionsToday(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	effective := limit + extra

	lease, err := s.locker.Acquire(ctx, userID.String())
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquiring decision lock")
	}
	defer func() {
		if rerr := lease.Release(ctx); rerr != nil {
			s.log.Warn(s.log.WithUserID(ctx, userID.String()), "failed to release decision lock")
		}
	}()

	used, err := s.usage.CountableSessionsToday(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if used >= effective {
		return s.deny(Decision{
			Reason:    ReasonDailyLimitReached,
			Used:      used,
			Available: LimitedCapacity(0),
		}), nil
	}

	if consume {
		if err := s.usage.Increment(ctx, userID, enums.UsageEventCountableSession, 1); err != nil {
			return Decision{}, err
		}
		used++
	}
	return s.allow(Decision{
		Reason:    ReasonWithinLimit,
		Used:      used,
		Available: LimitedCapacity(effective - used),
	}), nil
}

// CheckLimit decides whether the user has headroom for one more unit of the
// resource against the plan's configured limit. Sessions and questions meter
// per civil day, pieces per civil month. Exactly at the limit is a denial.
func (s *Service) CheckLimit(ctx context.Context, userID uuid.UUID, resource enums.ResourceType) (Decision, error) {
	if userID == uuid.Nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !resource.IsValid() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid resource type")
	}

	res, err := s.subs.Resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	plan := res.Plan

	limit, unlimited := plan.LimitFor(resource)
	if unlimited {
		used, err := s.currentUsage(ctx, userID, resource)
		if err != nil {
			return Decision{}, err
		}
		return s.allow(Decision{Reason: ReasonUnlimited, Used: used, Available: UnlimitedCapacity()}), nil
	}

	used, err := s.currentUsage(ctx, userID, resource)
	if err != nil {
		return Decision{}, err
	}
	if used >= limit {
		return s.deny(Decision{Reason: ReasonLimitReached, Used: used, Available: LimitedCapacity(0)}), nil
	}
	return s.allow(Decision{
		Reason:    ReasonWithinLimit,
		Used:      used,
		Available: LimitedCapacity(limit - used),
	}), nil
}

func (s *Service) currentUsage(ctx context.Context, userID uuid.UUID, resource enums.ResourceType) (int, error) {
	switch resource {
	case enums.ResourceTypeSession:
		return s.usage.CountableSessionsToday(ctx, userID)
	case enums.ResourceTypeQuestion:
		counts, err := s.usage.GetDailyUsage(ctx, userID, nil)
		if err != nil {
			return 0, err
		}
		return counts.Questions, nil
	case enums.ResourceTypePiece:
		return s.usage.PiecesThisMonth(ctx, userID)
	}
	return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid resource type")
}

func (s *Service) allow(d Decision) Decision {
	d.Allowed = true
	s.metrics.ObserveDecision(true, d.Reason)
	return d
}

func (s *Service) deny(d Decision) Decision {
	d.Allowed = false
	s.metrics.ObserveDecision(false, d.Reason)
	return d
}
