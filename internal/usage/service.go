package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/civiltime"
	"github.com/aprovia/aprovia-backend/pkg/enums"
	pkgerrors "github.com/aprovia/aprovia-backend/pkg/errors"
)

// DailyCounts is the read view of one civil day's ledger row.
type DailyCounts struct {
	Day               time.Time `json:"day"`
	CountableSessions int       `json:"countable_sessions"`
	Questions         int       `json:"questions"`
	Pieces            int       `json:"pieces"`
}

// Ledger is the surface the decision components read usage through.
type Ledger interface {
	GetDailyUsage(ctx context.Context, userID uuid.UUID, date *time.Time) (DailyCounts, error)
	Increment(ctx context.Context, userID uuid.UUID, event enums.UsageEventType, amount int) error
	CountableSessionsToday(ctx context.Context, userID uuid.UUID) (int, error)
	SessionsInTrailingWindow(ctx context.Context, userID uuid.UUID, days int) (int, error)
	PiecesThisMonth(ctx context.Context, userID uuid.UUID) (int, error)
}

// ServiceParams groups dependencies for the usage ledger service.
type ServiceParams struct {
	Repo     Repository
	Location *time.Location
	Clock    func() time.Time
}

// Service owns the civil-timezone day math around the ledger repository.
type Service struct {
	repo  Repository
	loc   *time.Location
	clock func() time.Time
}

// NewService builds a usage ledger service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Location == nil {
		return nil, errors.New("location is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: params.Repo, loc: params.Location, clock: clock}, nil
}

// GetDailyUsage returns the counters for the given civil day, defaulting to
// today. A missing row reads as zeros and never creates one.
func (s *Service) GetDailyUsage(ctx context.Context, userID uuid.UUID, date *time.Time) (DailyCounts, error) {
	if userID == uuid.Nil {
		return DailyCounts{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	at := s.clock()
	if date != nil {
		at = *date
	}
	day := civiltime.Day(at, s.loc)

	row, err := s.repo.GetDay(ctx, userID, day)
	if err != nil {
		return DailyCounts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading usage ledger")
	}
	counts := DailyCounts{Day: day}
	if row != nil {
		counts.CountableSessions = row.CountableSessions
		counts.Questions = row.Questions
		counts.Pieces = row.Pieces
	}
	return counts, nil
}

// Increment adds amount to today's counter for the event type.
func (s *Service) Increment(ctx context.Context, userID uuid.UUID, event enums.UsageEventType, amount int) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !event.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid usage event type")
	}
	if amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	now := s.clock()
	day := civiltime.Day(now, s.loc)
	if err := s.repo.Increment(ctx, userID, day, event, amount, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "incrementing usage ledger")
	}
	return nil
}

// CountableSessionsToday reads today's session counter.
func (s *Service) CountableSessionsToday(ctx context.Context, userID uuid.UUID) (int, error) {
	counts, err := s.GetDailyUsage(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	return counts.CountableSessions, nil
}

// SessionsInTrailingWindow sums countable sessions over the trailing window of
// civil days ending today, inclusive.
func (s *Service) SessionsInTrailingWindow(ctx context.Context, userID uuid.UUID, days int) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	now := s.clock()
	from := civiltime.WindowStart(now, days, s.loc)
	to := civiltime.Day(now, s.loc)

	total, err := s.repo.SumSessionsRange(ctx, userID, from, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing usage window")
	}
	return total, nil
}

// PiecesThisMonth sums the month-capped piece counter across the current
// month's daily rows. There is no separate monthly table.
func (s *Service) PiecesThisMonth(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	now := s.clock()
	from := civiltime.MonthStart(now, s.loc)
	to := civiltime.Day(now, s.loc)

	total, err := s.repo.SumPiecesRange(ctx, userID, from, to)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summing monthly usage")
	}
	return total, nil
}
