package models

import (
	"time"

	"github.com/google/uuid"
)

// DailyUsage holds one user's counters for one civil calendar day. Rows are
// created lazily on the first event of the day, mutated only through the
// ledger's atomic increment, and never deleted.
type DailyUsage struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_daily_usage_user_day"`
	Day               time.Time `gorm:"column:day;type:date;not null;uniqueIndex:idx_daily_usage_user_day"`
	CountableSessions int       `gorm:"column:countable_sessions;not null;default:0"`
	Questions         int       `gorm:"column:questions;not null;default:0"`
	Pieces            int       `gorm:"column:pieces;not null;default:0"`
	FirstActivityAt   time.Time `gorm:"column:first_activity_at;not null"`
	LastActivityAt    time.Time `gorm:"column:last_activity_at;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the legacy table name used by analytics exports.
func (DailyUsage) TableName() string {
	return "daily_usage"
}
