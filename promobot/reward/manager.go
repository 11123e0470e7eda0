package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/notify"
	"github.com/restobar/promo-bot/promobot/promo"
)

var ErrCodeNotFound = errors.New("reward code not found")

// CooldownError means the user played within the cooldown period. The
// carried reward is the most recent one; any play inside the cooldown
// is blocked outright.
type CooldownError struct {
	Last *models.Reward
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("reward cooldown active since %s", e.Last.IssuedAt.Format("2006-01-02 15:04"))
}

// AlreadyRedeemedError carries the original redeemer for display.
type AlreadyRedeemedError struct {
	By models.Actor
	At time.Time
}

func (e *AlreadyRedeemedError) Error() string {
	return fmt.Sprintf("code already redeemed by %s at %s", e.By.Display(), e.At.Format("2006-01-02 15:04"))
}

// Prize is one catalog entry. Weight 0 counts as 1; weights beyond
// that skew the otherwise uniform draw.
type Prize struct {
	Label  string
	Weight int
}

// Receipt is returned from a successful redemption.
type Receipt struct {
	Reward     *models.Reward
	RedeemedBy models.Actor
	RedeemedAt time.Time
}

type Config struct {
	Catalog  []Prize
	Cooldown time.Duration
	Horizon  time.Duration
}

const (
	codeAttempts = 5
	noticeLead   = 24 * time.Hour
)

// Manager owns the reward lifecycle: draw, 24h notice, expiry,
// redemption.
type Manager struct {
	rewards  repositories.RewardRepository
	notifier *notify.Notifier
	cfg      Config

	// Swapped in tests for a deterministic pick.
	randInt func(n int) int
}

func NewManager(rewards repositories.RewardRepository, notifier *notify.Notifier, cfg Config) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 7 * 24 * time.Hour
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 7 * 24 * time.Hour
	}
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = []Prize{{Label: "Free dessert"}, {Label: "Free cocktail"}, {Label: "10% off the bill"}}
	}
	return &Manager{
		rewards:  rewards,
		notifier: notifier,
		cfg:      cfg,
		randInt:  rand.Intn,
	}
}

// Draw issues a new reward unless the user's most recent one is still
// inside the cooldown period. The insert itself carries the cooldown
// guard, so two concurrent draws from one user yield one reward.
func (m *Manager) Draw(ctx context.Context, actor models.Actor, now time.Time) (*models.Reward, error) {
	last, err := m.rewards.LatestByUser(ctx, actor.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}
	if last != nil && now.Sub(last.IssuedAt) < m.cfg.Cooldown {
		return nil, &CooldownError{Last: last}
	}

	prize := m.pick()
	reward := &models.Reward{
		UserID:         actor.ID,
		Prize:          prize,
		WinnerUsername: actor.Username,
		WinnerFullName: actor.FullName(),
		IssuedAt:       now,
		ExpiresAt:      now.Add(m.cfg.Horizon),
	}
	since := now.Add(-m.cfg.Cooldown)

	for attempt := 0; ; attempt++ {
		code, err := gonanoid.Generate(promo.CodeAlphabet, promo.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate reward code: %w", err)
		}
		reward.Code = code
		inserted, err := m.rewards.InsertUnlessRecent(ctx, reward, since)
		if err == nil && inserted {
			break
		}
		if err == nil {
			// A concurrent draw claimed the cooldown slot first.
			fresh, err := m.rewards.LatestByUser(ctx, actor.ID)
			if err != nil {
				return nil, err
			}
			return nil, &CooldownError{Last: fresh}
		}
		if !errors.Is(err, repositories.ErrDuplicate) || attempt >= codeAttempts {
			return nil, err
		}
	}

	slog.Info("Reward drawn",
		slog.String("type", "cmd"),
		slog.Int64("user_id", actor.ID),
		slog.String("prize", prize))
	m.notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Player %s won: %s (code %s)", actor.Display(), prize, reward.Code))
	return reward, nil
}

func (m *Manager) pick() string {
	total := 0
	for _, p := range m.cfg.Catalog {
		total += weightOf(p)
	}
	n := m.randInt(total)
	for _, p := range m.cfg.Catalog {
		n -= weightOf(p)
		if n < 0 {
			return p.Label
		}
	}
	return m.cfg.Catalog[len(m.cfg.Catalog)-1].Label
}

func weightOf(p Prize) int {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

// Redeem consumes a reward code exactly once. The conditional update
// in the store is the single writer; a caller losing the race gets
// AlreadyRedeemedError built from the fresh row.
func (m *Manager) Redeem(ctx context.Context, code string, redeemer models.Actor, now time.Time) (*Receipt, error) {
	reward, err := m.rewards.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	if reward.Redeemed {
		return nil, &AlreadyRedeemedError{By: reward.RedeemedBy(), At: reward.RedeemedAt}
	}

	won, err := m.rewards.Redeem(ctx, code, redeemer, now)
	if err != nil {
		return nil, err
	}
	if !won {
		fresh, err := m.rewards.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		return nil, &AlreadyRedeemedError{By: fresh.RedeemedBy(), At: fresh.RedeemedAt}
	}

	slog.Info("Reward redeemed",
		slog.String("type", "cmd"),
		slog.String("code", code),
		slog.Int64("redeemed_by", redeemer.ID))
	winner := models.Actor{ID: reward.UserID, Username: reward.WinnerUsername, FirstName: reward.WinnerFullName}
	m.notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Code redeemed: %s\nPrize: %s\nRedeemed by: %s at %s\nWinner: %s",
		code, reward.Prize, redeemer.Display(), now.Format("2006-01-02 15:04"), winner.Display()))
	if err := m.notifier.SendUser(ctx, reward.UserID, fmt.Sprintf(
		"Your code %s was used. Thank you!", code)); err != nil {
		slog.Warn("Failed to notify winner about redemption",
			slog.String("type", "sys"),
			slog.Int64("user_id", reward.UserID),
			slog.String("error", err.Error()))
	}

	return &Receipt{Reward: reward, RedeemedBy: redeemer, RedeemedAt: now}, nil
}

// SweepReport summarizes one expiry sweep pass.
type SweepReport struct {
	Noticed int
	Expired int
}

// SweepExpiry sends the one-time 24h notice for rewards about to
// expire and marks overdue ones expired. Both actions are one-shot per
// reward, guarded by their flags; re-running never duplicates them.
func (m *Manager) SweepExpiry(ctx context.Context, now time.Time) (SweepReport, error) {
	pending, err := m.rewards.ListUnredeemed(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, reward := range pending {
		remaining := reward.ExpiresAt.Sub(now)

		if remaining > 0 && remaining <= noticeLead && !reward.Notified24h {
			if err := m.rewards.MarkNotified24h(ctx, reward.ID); err != nil {
				slog.Error("Failed to set 24h notice flag",
					slog.String("type", "db"),
					slog.Int64("reward_id", reward.ID),
					slog.String("error", err.Error()))
				continue
			}
			if err := m.notifier.SendUser(ctx, reward.UserID, fmt.Sprintf(
				"Your prize %q (code %s) expires in 24 hours. Collect it from the administrator!",
				reward.Prize, reward.Code)); err != nil {
				slog.Warn("Failed to send 24h expiry notice",
					slog.String("type", "sys"),
					slog.Int64("reward_id", reward.ID),
					slog.String("error", err.Error()))
			}
			report.Noticed++
		}

		if remaining <= 0 && !reward.Expired {
			if err := m.rewards.MarkExpired(ctx, reward.ID); err != nil {
				slog.Error("Failed to mark reward expired",
					slog.String("type", "db"),
					slog.Int64("reward_id", reward.ID),
					slog.String("error", err.Error()))
				continue
			}
			if err := m.notifier.SendUser(ctx, reward.UserID, fmt.Sprintf(
				"Your prize %q (code %s) has expired.", reward.Prize, reward.Code)); err != nil {
				slog.Warn("Failed to notify winner about expiry",
					slog.String("type", "sys"),
					slog.Int64("reward_id", reward.ID),
					slog.String("error", err.Error()))
			}
			m.notifier.NotifyAdmins(ctx, fmt.Sprintf(
				"Prize expired\nCode: %s\nPrize: %s\nUser ID: %d", reward.Code, reward.Prize, reward.UserID))
			report.Expired++
		}
	}
	return report, nil
}

// History lists the user's rewards, newest first.
func (m *Manager) History(ctx context.Context, userID int64) ([]*models.Reward, error) {
	return m.rewards.ListByUser(ctx, userID)
}
