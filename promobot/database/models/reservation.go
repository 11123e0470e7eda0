package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationNew       ReservationStatus = "new"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations,alias:r"`

	ID         int64             `bun:"id,pk,autoincrement"`
	UserID     int64             `bun:"user_id,nullzero"`
	GuestName  string            `bun:"guest_name,notnull"`
	GuestPhone string            `bun:"guest_phone,notnull"`
	Covers     int               `bun:"covers,notnull"`
	Date       string            `bun:"r_date,notnull"` // 2006-01-02
	Time       string            `bun:"r_time,notnull"` // 15:04
	Note       string            `bun:"note,nullzero"`
	Status     ReservationStatus `bun:"status,notnull,default:'new'"`
	CreatedAt  time.Time         `bun:"created_at,notnull"`
	UpdatedAt  time.Time         `bun:"updated_at,notnull"`
}
