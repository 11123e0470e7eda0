package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Code is a single-use daily discount code. At most one row exists per
// (user, day_key); the unique index in the schema enforces it.
type Code struct {
	bun.BaseModel `bun:"table:codes,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    int64     `bun:"user_id,notnull"`
	Code      string    `bun:"code,notnull"`
	IssuedAt  time.Time `bun:"issued_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	DayKey    string    `bun:"day_key,notnull"`
	Valid     bool      `bun:"valid,notnull,default:true"`
}
