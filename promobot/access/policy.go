package access

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
)

type Mode string

const (
	ModeOpen   Mode = "open"
	ModeClosed Mode = "closed"
)

const (
	cacheSize = 2048
	cacheTTL  = time.Minute
)

// UserLookup is the slice of UserRepository the policy needs.
type UserLookup interface {
	GetByTelegramID(ctx context.Context, id int64) (*models.User, error)
}

// Policy answers blocked/approved questions against the user registry.
// Lookups are cached briefly; Forget must be called after an admin
// approve/block so the change is visible immediately.
type Policy struct {
	users UserLookup
	mode  Mode
	cache *lru.Cache
}

type cacheEntry struct {
	approved bool
	blocked  bool
	at       time.Time
}

func NewPolicy(users UserLookup, mode Mode) *Policy {
	cache, _ := lru.New(cacheSize)
	if mode != ModeClosed {
		mode = ModeOpen
	}
	return &Policy{users: users, mode: mode, cache: cache}
}

func (p *Policy) Mode() Mode {
	return p.mode
}

func (p *Policy) IsBlocked(ctx context.Context, id int64) (bool, error) {
	entry, err := p.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	return entry.blocked, nil
}

// IsApproved is always true in open mode; in closed mode an unknown
// user counts as unapproved.
func (p *Policy) IsApproved(ctx context.Context, id int64) (bool, error) {
	if p.mode == ModeOpen {
		return true, nil
	}
	entry, err := p.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	return entry.approved, nil
}

func (p *Policy) Forget(id int64) {
	p.cache.Remove(id)
}

func (p *Policy) lookup(ctx context.Context, id int64) (cacheEntry, error) {
	if v, ok := p.cache.Get(id); ok {
		entry := v.(cacheEntry)
		if time.Since(entry.at) < cacheTTL {
			return entry, nil
		}
	}

	user, err := p.users.GetByTelegramID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			entry := cacheEntry{at: time.Now()}
			p.cache.Add(id, entry)
			return entry, nil
		}
		return cacheEntry{}, err
	}

	entry := cacheEntry{approved: user.Approved, blocked: user.Blocked, at: time.Now()}
	p.cache.Add(id, entry)
	return entry, nil
}
