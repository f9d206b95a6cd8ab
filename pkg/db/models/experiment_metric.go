package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// ExperimentMetric is one append-only observation for an assigned user.
type ExperimentMetric struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ExperimentID uuid.UUID             `gorm:"column:experiment_id;type:uuid;not null;index"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Group        enums.ExperimentGroup `gorm:"column:group_name;not null"`
	MetricName   string                `gorm:"column:metric_name;not null"`
	Value        float64               `gorm:"column:value;not null"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	RecordedAt   time.Time             `gorm:"column:recorded_at;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
