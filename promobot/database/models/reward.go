package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reward is one lottery win. The code is redeemable exactly once; the
// redeemed_* columns record who consumed it and when.
type Reward struct {
	bun.BaseModel `bun:"table:rewards,alias:rw"`

	ID             int64  `bun:"id,pk,autoincrement"`
	UserID         int64  `bun:"user_id,notnull"`
	Prize          string `bun:"prize,notnull"`
	Code           string `bun:"reward_code,notnull,unique"`
	WinnerUsername string `bun:"winner_username,nullzero"`
	WinnerFullName string `bun:"winner_fullname,nullzero"`

	IssuedAt  time.Time `bun:"issued_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`

	Notified24h bool `bun:"notified_24h,notnull,default:false"`
	Expired     bool `bun:"expired,notnull,default:false"`

	Redeemed           bool      `bun:"redeemed,notnull,default:false"`
	RedeemedByID       int64     `bun:"redeemed_by_id,nullzero"`
	RedeemedByUsername string    `bun:"redeemed_by_username,nullzero"`
	RedeemedByFullName string    `bun:"redeemed_by_fullname,nullzero"`
	RedeemedAt         time.Time `bun:"redeemed_at,nullzero"`
}

func (r *Reward) RedeemedBy() Actor {
	return Actor{
		ID:        r.RedeemedByID,
		Username:  r.RedeemedByUsername,
		FirstName: r.RedeemedByFullName,
	}
}
