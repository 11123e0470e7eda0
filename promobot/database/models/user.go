package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	TelegramID int64  `bun:"tg_id,pk"`
	FirstName  string `bun:"tg_first_name"`
	LastName   string `bun:"tg_last_name"`
	Username   string `bun:"tg_username"`

	// Contact details supplied during guest registration.
	Name  string `bun:"name,nullzero"`
	Phone string `bun:"phone,nullzero"`

	Source   string `bun:"source,nullzero"`
	Approved bool   `bun:"approved,notnull,default:false"`
	Blocked  bool   `bun:"blocked,notnull,default:false"`

	JoinedAt time.Time `bun:"joined_at,notnull"`
	LastSeen time.Time `bun:"last_seen,notnull"`
}
