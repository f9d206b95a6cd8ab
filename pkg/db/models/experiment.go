package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Experiment describes one A/B experiment and its bucketing configuration.
// Metadata carries per-group override blobs, e.g.
// {"variant": {"sessions_per_day": 4}}.
type Experiment struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string                   `gorm:"column:name;not null;uniqueIndex"`
	Enabled            bool                     `gorm:"column:enabled;not null;default:false"`
	StartsAt           *time.Time               `gorm:"column:starts_at"`
	EndsAt             *time.Time               `gorm:"column:ends_at"`
	ControlPercentage  int                      `gorm:"column:control_percentage;not null;default:50"`
	VariantPercentage  int                      `gorm:"column:variant_percentage;not null;default:50"`
	AssignmentStrategy enums.AssignmentStrategy `gorm:"column:assignment_strategy;not null;default:'hash_modulo'"`
	Metadata           json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// RunningAt reports whether the experiment accepts traffic at the instant:
// enabled and inside the optional target window.
func (e *Experiment) RunningAt(t time.Time) bool {
	if e == nil || !e.Enabled {
		return false
	}
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && !t.Before(*e.EndsAt) {
		return false
	}
	return true
}

// GroupOverrides decodes the per-group override blob for the given group, or
// nil when the metadata carries none.
func (e *Experiment) GroupOverrides(group enums.ExperimentGroup) map[string]json.RawMessage {
	if e == nil || len(e.Metadata) == 0 {
		return nil
	}
	var byGroup map[string]map[string]json.RawMessage
	if err := json.Unmarshal(e.Metadata, &byGroup); err != nil {
		return nil
	}
	return byGroup[group.String()]
}
