package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SchedulerMarker persists the last fired period per trigger so a
// process restart does not re-fire a trigger within the same period.
type SchedulerMarker struct {
	bun.BaseModel `bun:"table:scheduler_markers,alias:sm"`

	Trigger   string    `bun:"trigger,pk"`
	PeriodKey string    `bun:"period_key,notnull"`
	FiredAt   time.Time `bun:"fired_at,notnull"`
}
