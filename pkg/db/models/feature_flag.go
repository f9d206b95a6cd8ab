package models

import (
	"encoding/json"
	"time"
)

// FeatureFlag is a named global kill switch, written by the admin console.
type FeatureFlag struct {
	Name      string          `gorm:"column:name;primaryKey"`
	Enabled   bool            `gorm:"column:enabled;not null;default:false"`
	Metadata  json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
