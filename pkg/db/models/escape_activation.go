package models

import (
	"time"

	"github.com/google/uuid"
)

// EscapeActivation records one heavy-user capacity grant. At most one row may
// exist per (user, day); the unique index is the idempotence guard.
type EscapeActivation struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_escape_activation_user_day"`
	Day           time.Time `gorm:"column:day;type:date;not null;uniqueIndex:idx_escape_activation_user_day"`
	Criterion     string    `gorm:"column:criterion;not null"`
	WindowCount   int       `gorm:"column:window_count;not null"`
	ExtraSessions int       `gorm:"column:extra_sessions;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (EscapeActivation) TableName() string {
	return "escape_activations"
}
