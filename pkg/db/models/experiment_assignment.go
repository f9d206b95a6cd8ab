package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// ExperimentAssignment pins a user to a group for the life of an experiment.
// Rows are created once and never updated; editing the experiment's split
// later must not move existing users.
type ExperimentAssignment struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ExperimentID uuid.UUID             `gorm:"column:experiment_id;type:uuid;not null;uniqueIndex:idx_assignment_experiment_user"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_assignment_experiment_user"`
	Group        enums.ExperimentGroup `gorm:"column:group_name;not null"`
	AssignedAt   time.Time             `gorm:"column:assigned_at;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
