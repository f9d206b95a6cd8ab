package escalation

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/internal/subscriptions"
	"github.com/aprovia/aprovia-backend/internal/usage"
	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
	"github.com/aprovia/aprovia-backend/pkg/logger"
)

type stubActivationRepo struct {
	rows      map[string]*models.EscapeActivation
	createErr error
	findErr   error
	created   int
}

func activationKey(userID uuid.UUID, day time.Time) string {
	return userID.String() + "/" + day.Format("2006-01-02")
}

func (s *stubActivationRepo) FindForDay(_ context.Context, userID uuid.UUID, day time.Time) (*models.EscapeActivation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.rows[activationKey(userID, day)], nil
}

func (s *stubActivationRepo) Create(_ context.Context, activation *models.EscapeActivation) error {
	if s.createErr != nil {
		return s.createErr
	}
	key := activationKey(activation.UserID, activation.Day)
	if _, ok := s.rows[key]; ok {
		return errors.New(`duplicate key value violates unique constraint "idx_escape_activation_user_day"`)
	}
	if s.rows == nil {
		s.rows = map[string]*models.EscapeActivation{}
	}
	s.rows[key] = activation
	s.created++
	return nil
}

type stubResolver struct {
	plan *models.Plan
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, _ uuid.UUID) (*subscriptions.Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &subscriptions.Resolution{Plan: s.plan}, nil
}

type stubLedger struct {
	todaySessions int
	windowTotal   int
	err           error
}

func (s *stubLedger) GetDailyUsage(context.Context, uuid.UUID, *time.Time) (usage.DailyCounts, error) {
	panic("not used")
}

func (s *stubLedger) Increment(context.Context, uuid.UUID, enums.UsageEventType, int) error {
	panic("not used")
}

func (s *stubLedger) CountableSessionsToday(context.Context, uuid.UUID) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.todaySessions, nil
}

func (s *stubLedger) SessionsInTrailingWindow(context.Context, uuid.UUID, int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.windowTotal, nil
}

func (s *stubLedger) PiecesThisMonth(context.Context, uuid.UUID) (int, error) {
	panic("not used")
}

type stubGate struct {
	enabled bool
}

func (s *stubGate) Enabled(context.Context, string) bool {
	return s.enabled
}

func intPtr(v int) *int { return &v }

func eligiblePlan() *models.Plan {
	return &models.Plan{
		ID:                       "intermediario",
		SessionsPerDay:           intPtr(3),
		ConditionalExtraSessions: 2,
		EscalationEligible:       true,
	}
}

type fixture struct {
	repo     *stubActivationRepo
	resolver *stubResolver
	ledger   *stubLedger
	gate     *stubGate
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     &stubActivationRepo{rows: map[string]*models.EscapeActivation{}},
		resolver: &stubResolver{plan: eligiblePlan()},
		ledger:   &stubLedger{},
		gate:     &stubGate{enabled: true},
	}
	svc, err := NewService(ServiceParams{
		Repo:          f.repo,
		Subscriptions: f.resolver,
		Usage:         f.ledger,
		Flags:         f.gate,
		WindowDays:    7,
		Ratio:         0.8,
		Location:      time.UTC,
		Clock:         func() time.Time { return time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC) },
		Log:           logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	f.svc = svc
	return f
}

func TestThreshold(t *testing.T) {
	f := newFixture(t)
	// ceil(3 * 7 * 0.8) = ceil(16.8) = 17
	if got := f.svc.Threshold(3); got != 17 {
		t.Fatalf("expected threshold 17, got %d", got)
	}
	if got := f.svc.Threshold(5); got != 28 {
		t.Fatalf("expected threshold 28, got %d", got)
	}
}

func TestCheckActivatesHeavyUser(t *testing.T) {
	f := newFixture(t)
	f.ledger.windowTotal = 17
	f.ledger.todaySessions = 3
	userID := uuid.New()

	result, err := f.svc.Check(context.Background(), userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Activated || result.ExtraSessions != 2 {
		t.Fatalf("expected activation with 2 extra sessions, got %+v", result)
	}
	if result.WindowCount != 17 || result.Threshold != 17 {
		t.Fatalf("expected window 17 threshold 17, got %+v", result)
	}
	if f.repo.created != 1 {
		t.Fatalf("expected one activation row, got %d", f.repo.created)
	}
}

func TestCheckIsIdempotentPerDay(t *testing.T) {
	f := newFixture(t)
	f.ledger.windowTotal = 20
	f.ledger.todaySessions = 3
	userID := uuid.New()
	ctx := context.Background()

	first, err := f.svc.Check(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Activated {
		t.Fatalf("expected first call to activate, got %+v", first)
	}

	second, err := f.svc.Check(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Activated {
		t.Fatal("expected second call not to activate")
	}
	if second.Reason != ReasonAlreadyActivated {
		t.Fatalf("expected %q, got %q", ReasonAlreadyActivated, second.Reason)
	}
	if second.ExtraSessions != 2 {
		t.Fatalf("expected existing grant reported, got %+v", second)
	}
	if f.repo.created != 1 {
		t.Fatalf("expected exactly one activation row, got %d", f.repo.created)
	}
}

func TestCheckSurvivesInsertRace(t *testing.T) {
	f := newFixture(t)
	f.ledger.windowTotal = 17
	f.ledger.todaySessions = 3
	f.repo.createErr = errors.New(`duplicate key value violates unique constraint "idx_escape_activation_user_day"`)

	result, err := f.svc.Check(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Activated || result.Reason != ReasonAlreadyActivated {
		t.Fatalf("expected race to report already activated, got %+v", result)
	}
}

func TestCheckShortCircuits(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *fixture)
		reason string
	}{
		{
			name:   "valve disabled",
			mutate: func(f *fixture) { f.gate.enabled = false },
			reason: ReasonValveDisabled,
		},
		{
			name: "plan not eligible",
			mutate: func(f *fixture) {
				f.resolver.plan.EscalationEligible = false
			},
			reason: ReasonPlanNotEligible,
		},
		{
			name: "no conditional extras",
			mutate: func(f *fixture) {
				f.resolver.plan.ConditionalExtraSessions = 0
			},
			reason: ReasonPlanNotEligible,
		},
		{
			name: "unlimited plan",
			mutate: func(f *fixture) {
				f.resolver.plan.SessionsPerDay = nil
			},
			reason: ReasonPlanNotEligible,
		},
		{
			name: "criterion not met",
			mutate: func(f *fixture) {
				f.ledger.windowTotal = 16
				f.ledger.todaySessions = 3
			},
			reason: ReasonCriterionNotMet,
		},
		{
			name: "baseline not exhausted",
			mutate: func(f *fixture) {
				f.ledger.windowTotal = 17
				f.ledger.todaySessions = 2
			},
			reason: ReasonBaselineNotSpent,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.mutate(f)
			result, err := f.svc.Check(context.Background(), uuid.New())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Activated {
				t.Fatal("expected no activation")
			}
			if result.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, result.Reason)
			}
			if f.repo.created != 0 {
				t.Fatalf("expected no activation rows, got %d", f.repo.created)
			}
		})
	}
}

func TestCheckPropagatesNoSubscription(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = pkgerrors.New(pkgerrors.CodeNoActiveSubscription, "no applicable subscription")

	_, err := f.svc.Check(context.Background(), uuid.New())
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeNoActiveSubscription {
		t.Fatalf("expected no-subscription error, got %v", err)
	}
}

func TestCheckFailsClosedOnStorageError(t *testing.T) {
	f := newFixture(t)
	f.repo.findErr = errors.New("connection reset")

	_, err := f.svc.Check(context.Background(), uuid.New())
	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestExtraSessionsToday(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	extra, err := f.svc.ExtraSessionsToday(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extra != 0 {
		t.Fatalf("expected 0 before activation, got %d", extra)
	}

	f.ledger.windowTotal = 17
	f.ledger.todaySessions = 3
	if _, err := f.svc.Check(ctx, userID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	extra, err = f.svc.ExtraSessionsToday(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extra != 2 {
		t.Fatalf("expected 2 after activation, got %d", extra)
	}
}
