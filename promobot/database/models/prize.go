package models

import (
	"time"

	"github.com/uptrace/bun"
)

// PrizeAssignment is a manually pre-assigned prize for a guest known by
// phone. UserID is filled in once that phone registers with the bot;
// the weekly broadcast consumes (deletes) assignments after dispatch.
type PrizeAssignment struct {
	bun.BaseModel `bun:"table:prize_assignments,alias:p"`

	ID         int64     `bun:"id,pk,autoincrement"`
	GuestName  string    `bun:"guest_name,notnull"`
	GuestPhone string    `bun:"guest_phone,notnull"`
	Prize      string    `bun:"prize,notnull"`
	UserID     int64     `bun:"user_id,nullzero"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}
