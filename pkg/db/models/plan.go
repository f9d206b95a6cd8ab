package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/aprovia/aprovia-backend/pkg/enums"
)

// Plan is the administered catalog entry defining resource limits and feature
// permissions. Nil limits mean unlimited.
type Plan struct {
	ID                       string           `gorm:"column:id;primaryKey"`
	Name                     string           `gorm:"column:name;not null"`
	Status                   enums.PlanStatus `gorm:"column:status;not null;default:'active'"`
	PriceAmount              decimal.Decimal  `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode             string           `gorm:"column:currency_code;not null;default:'BRL'"`
	SessionsPerDay           *int             `gorm:"column:sessions_per_day"`
	QuestionsPerSession      *int             `gorm:"column:questions_per_session"`
	PiecesPerMonth           *int             `gorm:"column:pieces_per_month"`
	ConditionalExtraSessions int              `gorm:"column:conditional_extra_sessions;not null;default:0"`
	AllowsContinuousMode     bool             `gorm:"column:allows_continuous_mode;not null;default:false"`
	AllowsExtendedSession    bool             `gorm:"column:allows_extended_session;not null;default:false"`
	EscalationEligible       bool             `gorm:"column:escalation_eligible;not null;default:false"`
	MaxSessionMinutes        int              `gorm:"column:max_session_minutes;not null;default:60"`
	Features                 pq.StringArray   `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	UI                       json.RawMessage  `gorm:"column:ui;type:jsonb"`
	CreatedAt                time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// DailySessionLimit resolves the plan's base session limit, honoring the
// nil-means-unlimited convention.
func (p *Plan) DailySessionLimit() (limit int, unlimited bool) {
	if p == nil || p.SessionsPerDay == nil {
		return 0, true
	}
	return *p.SessionsPerDay, false
}

// LimitFor returns the configured limit for a metered resource.
func (p *Plan) LimitFor(resource enums.ResourceType) (limit int, unlimited bool) {
	if p == nil {
		return 0, true
	}
	switch resource {
	case enums.ResourceTypeSession:
		if p.SessionsPerDay == nil {
			return 0, true
		}
		return *p.SessionsPerDay, false
	case enums.ResourceTypeQuestion:
		if p.QuestionsPerSession == nil {
			return 0, true
		}
		return *p.QuestionsPerSession, false
	case enums.ResourceTypePiece:
		if p.PiecesPerMonth == nil {
			return 0, true
		}
		return *p.PiecesPerMonth, false
	}
	return 0, true
}
