package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aprovia/aprovia-backend/pkg/db/models"
	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Repository handles the per-user per-day usage ledger.
type Repository interface {
	GetDay(ctx context.Context, userID uuid.UUID, day time.Time) (*models.DailyUsage, error)
	// Increment upserts the day's row, adding amount to the counter matching
	// the event type. It is a single conflict-resolving statement, never a
	// read-modify-write pair.
	Increment(ctx context.Context, userID uuid.UUID, day time.Time, event enums.UsageEventType, amount int, now time.Time) error
	SumSessionsRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
	SumPiecesRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a usage ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetDay(ctx context.Context, userID uuid.UUID, day time.Time) (*models.DailyUsage, error) {
	var row models.DailyUsage
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func counterColumn(event enums.UsageEventType) (string, error) {
	switch event {
	case enums.UsageEventCountableSession:
		return "countable_sessions", nil
	case enums.UsageEventQuestion:
		return "questions", nil
	case enums.UsageEventPiece:
		return "pieces", nil
	}
	return "", fmt.Errorf("no counter column for event type %q", event)
}

func (r *repository) Increment(ctx context.Context, userID uuid.UUID, day time.Time, event enums.UsageEventType, amount int, now time.Time) error {
	column, err := counterColumn(event)
	if err != nil {
		return err
	}

	row := &models.DailyUsage{
		ID:              uuid.New(),
		UserID:          userID,
		Day:             day,
		FirstActivityAt: now,
		LastActivityAt:  now,
	}
	switch event {
	case enums.UsageEventCountableSession:
		row.CountableSessions = amount
	case enums.UsageEventQuestion:
		row.Questions = amount
	case enums.UsageEventPiece:
		row.Pieces = amount
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				column:             gorm.Expr(column+" + ?", amount),
				"last_activity_at": now,
				"updated_at":       now,
			}),
		}).
		Create(row).Error
}

func (r *repository) SumSessionsRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	return r.sumRange(ctx, "countable_sessions", userID, from, to)
}

func (r *repository) SumPiecesRange(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	return r.sumRange(ctx, "pieces", userID, from, to)
}

func (r *repository) sumRange(ctx context.Context, column string, userID uuid.UUID, from, to time.Time) (int, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.DailyUsage{}).
		Select("COALESCE(SUM("+column+"), 0)").
		Where("user_id = ? AND day >= ? AND day <= ?", userID, from, to).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}
