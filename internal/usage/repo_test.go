package usage

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// One connection keeps the shared in-memory database alive and serializes
	// writers, which sqlite requires anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.DailyUsage{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIncrementCreatesRowLazily(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	today := day(2026, 3, 10)
	now := today.Add(9 * time.Hour)

	row, err := repo.GetDay(ctx, userID, today)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row != nil {
		t.Fatal("read must not create a row")
	}

	if err := repo.Increment(ctx, userID, today, enums.UsageEventCountableSession, 1, now); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	row, err = repo.GetDay(ctx, userID, today)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row == nil || row.CountableSessions != 1 {
		t.Fatalf("expected 1 countable session, got %+v", row)
	}
	// The insert assigns the id itself so sqlite needs no column default.
	if row.ID == uuid.Nil {
		t.Fatal("expected a generated row id")
	}
	if !row.FirstActivityAt.Equal(now) || !row.LastActivityAt.Equal(now) {
		t.Fatalf("expected activity timestamps set, got %+v", row)
	}
}

func TestIncrementAccumulatesPerCounter(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	today := day(2026, 3, 10)
	first := today.Add(8 * time.Hour)
	later := today.Add(20 * time.Hour)

	if err := repo.Increment(ctx, userID, today, enums.UsageEventCountableSession, 1, first); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := repo.Increment(ctx, userID, today, enums.UsageEventCountableSession, 2, later); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := repo.Increment(ctx, userID, today, enums.UsageEventQuestion, 10, later); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	row, err := repo.GetDay(ctx, userID, today)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row.CountableSessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", row.CountableSessions)
	}
	if row.Questions != 10 {
		t.Fatalf("expected 10 questions, got %d", row.Questions)
	}
	if row.Pieces != 0 {
		t.Fatalf("unmatched counter must stay untouched, got %d", row.Pieces)
	}
	if !row.FirstActivityAt.Equal(first) {
		t.Fatalf("first activity must keep the original timestamp, got %v", row.FirstActivityAt)
	}
	if !row.LastActivityAt.Equal(later) {
		t.Fatalf("last activity must advance, got %v", row.LastActivityAt)
	}
}

func TestIncrementIsAtomicUnderConcurrency(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	today := day(2026, 3, 10)
	now := today.Add(10 * time.Hour)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Increment(ctx, userID, today, enums.UsageEventCountableSession, 1, now)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent increment failed: %v", err)
		}
	}

	row, err := repo.GetDay(ctx, userID, today)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if row.CountableSessions != workers {
		t.Fatalf("expected %d sessions after concurrent increments, got %d", workers, row.CountableSessions)
	}
}

func TestSumSessionsRangeSpansWindow(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	otherUser := uuid.New()

	for d := 4; d <= 10; d++ {
		when := day(2026, 3, d)
		if err := repo.Increment(ctx, userID, when, enums.UsageEventCountableSession, 2, when.Add(12*time.Hour)); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	// Outside the window and another user's rows must not leak in.
	if err := repo.Increment(ctx, userID, day(2026, 3, 3), enums.UsageEventCountableSession, 5, day(2026, 3, 3)); err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if err := repo.Increment(ctx, otherUser, day(2026, 3, 8), enums.UsageEventCountableSession, 5, day(2026, 3, 8)); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	total, err := repo.SumSessionsRange(ctx, userID, day(2026, 3, 4), day(2026, 3, 10))
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if total != 14 {
		t.Fatalf("expected 14 sessions in window, got %d", total)
	}
}

func TestSumPiecesRangeDefaultsToZero(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	total, err := repo.SumPiecesRange(context.Background(), uuid.New(), day(2026, 3, 1), day(2026, 3, 31))
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected zero for empty ledger, got %d", total)
	}
}
