package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Subscription binds a user to a plan for a period. Rows are written by the
// billing service and never deleted; historical rows accumulate per user.
type Subscription struct {
	ID        uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	PlanID    string                   `gorm:"column:plan_id;not null;index"`
	Plan      *Plan                    `gorm:"foreignKey:PlanID"`
	Status    enums.SubscriptionStatus `gorm:"column:status;not null;default:'active'"`
	StartDate time.Time                `gorm:"column:start_date;not null"`
	EndDate   *time.Time               `gorm:"column:end_date"`
	Metadata  json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// ApplicableAt reports whether the row can back an entitlement decision at the
// given instant: status active and not yet ended.
func (s *Subscription) ApplicableAt(t time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != enums.SubscriptionStatusActive {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(t)
}
