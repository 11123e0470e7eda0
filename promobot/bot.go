package promobot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/restobar/promo-bot/promobot/access"
	"github.com/restobar/promo-bot/promobot/database"
	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/notify"
	"github.com/restobar/promo-bot/promobot/promo"
	"github.com/restobar/promo-bot/promobot/reservation"
	"github.com/restobar/promo-bot/promobot/reward"
	"github.com/restobar/promo-bot/promobot/scheduler"
	"github.com/restobar/promo-bot/promobot/stats"
)

// Bot wires the storage, managers, and scheduler into one unit. The
// transport layer calls into its exported surface; the scheduler runs
// the time-driven side on its own goroutine.
type Bot struct {
	Cfg     *Config
	Version string
	Commit  string

	DB                    *database.DB
	UserRepository        repositories.UserRepository
	CodeRepository        repositories.CodeRepository
	ReservationRepository repositories.ReservationRepository
	RewardRepository      repositories.RewardRepository
	PrizeRepository       repositories.PrizeRepository

	Policy       *access.Policy
	Notifier     *notify.Notifier
	Issuer       *promo.Issuer
	Reservations *reservation.Manager
	Rewards      *reward.Manager
	Reporter     *stats.Reporter
	Scheduler    *scheduler.Scheduler

	loc *time.Location
}

func New(cfg *Config, db *database.DB, messenger notify.Messenger, version, commit string) (*Bot, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve timezone: %w", err)
	}

	bunDB := db.BunDB()
	b := &Bot{
		Cfg:                   cfg,
		Version:               version,
		Commit:                commit,
		DB:                    db,
		UserRepository:        repositories.NewUserRepository(bunDB),
		CodeRepository:        repositories.NewCodeRepository(bunDB),
		ReservationRepository: repositories.NewReservationRepository(bunDB),
		RewardRepository:      repositories.NewRewardRepository(bunDB),
		PrizeRepository:       repositories.NewPrizeRepository(bunDB),
		loc:                   loc,
	}

	b.Policy = access.NewPolicy(b.UserRepository, access.Mode(cfg.Access.Mode))
	b.Notifier = notify.NewNotifier(messenger, cfg.Notify.AdminIDs, cfg.Notify.ExtraTargets, cfg.Notify.BroadcastConcurrency)
	b.Issuer = promo.NewIssuer(b.CodeRepository, b.Policy, promo.IssuerConfig{
		WindowStart: cfg.Promo.WindowStart,
		WindowEnd:   cfg.Promo.WindowEnd,
		ValidUntil:  cfg.Promo.ValidUntil,
		AccessHint:  cfg.Access.Hint,
		Discounts:   cfg.DiscountTable(),
	})
	b.Reservations = reservation.NewManager(b.ReservationRepository, b.Notifier,
		time.Duration(cfg.Schedule.SessionTTLMinutes)*time.Minute)
	b.Rewards = reward.NewManager(b.RewardRepository, b.Notifier, reward.Config{
		Catalog:  cfg.PrizeCatalog(),
		Cooldown: time.Duration(cfg.Rewards.CooldownDays) * 24 * time.Hour,
		Horizon:  time.Duration(cfg.Rewards.ExpiryDays) * 24 * time.Hour,
	})
	b.Reporter = stats.NewReporter(b.UserRepository, b.CodeRepository,
		b.ReservationRepository, b.RewardRepository, cfg.DiscountTable(), loc)

	b.Scheduler = scheduler.New(repositories.NewMarkerRepository(bunDB),
		time.Duration(cfg.Schedule.WakeSeconds)*time.Second)
	b.registerTriggers()
	b.registerJobs()

	return b, nil
}

// Start launches the background goroutines and announces readiness.
func (b *Bot) Start(ctx context.Context) {
	slog.Info("Promo bot is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	b.Reservations.StartCleanupRoutine(ctx)
	go b.Scheduler.Run(ctx)
}

func (b *Bot) Close() {
	if b.DB != nil {
		b.DB.Close()
	}
}

func (b *Bot) now() time.Time {
	return time.Now().In(b.loc)
}

func (b *Bot) registerTriggers() {
	cfg := b.Cfg.Schedule

	reminderAt := b.Cfg.Promo.WindowStart.Minus(time.Duration(cfg.ReminderLeadMin) * time.Minute)
	b.Scheduler.AddTrigger(&scheduler.Trigger{
		Name:      "window_reminder",
		At:        reminderAt,
		Tolerance: time.Duration(cfg.ReminderTolerance) * time.Second,
		Period:    scheduler.DailyPeriod,
		Action:    b.sendWindowReminder,
	})

	b.Scheduler.AddTrigger(&scheduler.Trigger{
		Name:      "daily_report",
		At:        cfg.ReportAt,
		Tolerance: time.Duration(cfg.ReportTolerance) * time.Second,
		Period:    scheduler.DailyPeriod,
		Action:    b.sendDailyReport,
	})

	weeklyDay := time.Weekday(cfg.WeeklyDay)
	b.Scheduler.AddTrigger(&scheduler.Trigger{
		Name:      "weekly_report",
		At:        cfg.WeeklyAt,
		Weekday:   &weeklyDay,
		Tolerance: time.Duration(cfg.ReportTolerance) * time.Second,
		Period:    scheduler.ISOWeekPeriod,
		Action:    b.sendWeeklyReport,
	})

	prizeDay := time.Weekday(cfg.PrizeDay)
	b.Scheduler.AddTrigger(&scheduler.Trigger{
		Name:      "prize_broadcast",
		At:        cfg.PrizeAt,
		Weekday:   &prizeDay,
		Tolerance: time.Duration(cfg.ReportTolerance) * time.Second,
		Period:    scheduler.ISOWeekPeriod,
		Action:    b.broadcastPrizes,
	})
}

func (b *Bot) registerJobs() {
	sweep := time.Duration(b.Cfg.Schedule.SweepMinutes) * time.Minute

	b.Scheduler.AddJob(&scheduler.IntervalJob{
		Name:  "reward_expiry_sweep",
		Every: sweep,
		Action: func(ctx context.Context) error {
			report, err := b.Rewards.SweepExpiry(ctx, b.now())
			if err != nil {
				return err
			}
			if report.Noticed > 0 || report.Expired > 0 {
				slog.Info("Reward sweep finished",
					slog.String("type", "sched"),
					slog.Int("noticed", report.Noticed),
					slog.Int("expired", report.Expired))
			}
			return nil
		},
	})

	b.Scheduler.AddJob(&scheduler.IntervalJob{
		Name:  "code_expiry_sweep",
		Every: sweep,
		Action: func(ctx context.Context) error {
			before, after, err := b.Issuer.SweepExpired(ctx, b.now())
			if err != nil {
				return err
			}
			if before != after {
				slog.Info("Code sweep finished",
					slog.String("type", "sched"),
					slog.Int("invalidated", before-after))
			}
			return nil
		},
	})
}

func (b *Bot) sendWindowReminder(ctx context.Context) error {
	now := b.now()
	seenSince := now.AddDate(0, 0, -b.Cfg.Notify.InactiveAfterDays)
	ids, err := b.UserRepository.ActiveApprovedIDs(ctx, seenSince)
	if err != nil {
		return fmt.Errorf("list reminder audience: %w", err)
	}

	start, end := b.Issuer.Window()
	text := fmt.Sprintf("The discount window opens at %s! Today's discount: %d%%. Codes are issued until %s.",
		start, b.Issuer.Discount(now), end)
	sent, failed := b.Notifier.Broadcast(ctx, ids, text)
	b.Notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Window reminder sent: %d delivered, %d failed", sent, failed))
	return nil
}

func (b *Bot) sendDailyReport(ctx context.Context) error {
	// The trigger fires at an off-peak hour and summarizes the day
	// that just ended.
	summary, err := b.Reporter.Day(ctx, previousDay(b.now()))
	if err != nil {
		return err
	}
	b.Notifier.NotifyAdmins(ctx, summary.FormatDay())
	return nil
}

func previousDay(now time.Time) time.Time {
	return now.AddDate(0, 0, -1)
}

func (b *Bot) sendWeeklyReport(ctx context.Context) error {
	now := b.now()
	summary, err := b.Reporter.Week(ctx, now)
	if err != nil {
		return err
	}
	audience, err := b.Reporter.AudienceNow(ctx, now.AddDate(0, 0, -b.Cfg.Notify.InactiveAfterDays))
	if err != nil {
		return err
	}
	text := fmt.Sprintf("%s\nTotal users: %d (%d inactive)",
		summary.FormatWeek(), audience.Total, audience.Inactive)
	b.Notifier.NotifyAdmins(ctx, text)
	return nil
}

// broadcastPrizes delivers pending prize assignments to their linked
// users and reports the unlinked remainder to the admins, then clears
// the queue.
func (b *Bot) broadcastPrizes(ctx context.Context) error {
	assignments, err := b.PrizeRepository.List(ctx)
	if err != nil {
		return fmt.Errorf("list prize assignments: %w", err)
	}
	if len(assignments) == 0 {
		return nil
	}

	var delivered int
	var unlinked []string
	for _, a := range assignments {
		if a.UserID == 0 {
			unlinked = append(unlinked, fmt.Sprintf("%s (%s): %s", a.GuestName, a.GuestPhone, a.Prize))
			continue
		}
		err := b.Notifier.SendUser(ctx, a.UserID, fmt.Sprintf(
			"Congratulations, %s! You have won: %s. Show this message to the administrator.",
			a.GuestName, a.Prize))
		if err != nil {
			slog.Warn("Failed to deliver prize notification",
				slog.String("type", "sys"),
				slog.Int64("user_id", a.UserID),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
	}

	if len(unlinked) > 0 {
		b.Notifier.NotifyAdmins(ctx,
			"Prizes for guests not registered in the bot:\n"+strings.Join(unlinked, "\n"))
	}

	cleared, err := b.PrizeRepository.Clear(ctx)
	if err != nil {
		return fmt.Errorf("clear prize assignments: %w", err)
	}
	b.Notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"Prize broadcast done: %d delivered, %d unlinked, %d cleared",
		delivered, len(unlinked), cleared))
	return nil
}

// Touch records user activity; call it on every inbound interaction.
func (b *Bot) Touch(ctx context.Context, actor models.Actor) {
	if err := b.UserRepository.Touch(ctx, actor, b.now()); err != nil {
		slog.Error("Failed to record user activity",
			slog.String("type", "db"),
			slog.Int64("user_id", actor.ID),
			slog.String("error", err.Error()))
	}
}

// ApproveUser grants access and tells the user.
func (b *Bot) ApproveUser(ctx context.Context, id int64) error {
	if err := b.UserRepository.Approve(ctx, id); err != nil {
		return err
	}
	b.Policy.Forget(id)
	if err := b.Notifier.SendUser(ctx, id, "Your access has been approved. Welcome!"); err != nil {
		slog.Warn("Failed to notify approved user",
			slog.String("type", "sys"),
			slog.Int64("user_id", id),
			slog.String("error", err.Error()))
	}
	return nil
}

// BlockUser revokes access.
func (b *Bot) BlockUser(ctx context.Context, id int64) error {
	if err := b.UserRepository.Block(ctx, id); err != nil {
		return err
	}
	b.Policy.Forget(id)
	return nil
}

// RegisterContact stores the user's name and phone and links any prize
// assignments waiting on that phone, notifying the user about each.
func (b *Bot) RegisterContact(ctx context.Context, actor models.Actor, name, phone string) error {
	now := b.now()
	if err := b.UserRepository.SetContact(ctx, actor.ID, name, phone, now); err != nil {
		return err
	}

	linked, err := b.PrizeRepository.AttachUser(ctx, phone, actor.ID)
	if err != nil {
		return fmt.Errorf("link prize assignments: %w", err)
	}
	if linked > 0 {
		if err := b.Notifier.SendUser(ctx, actor.ID,
			"You have prizes waiting! They will be announced in the next prize broadcast."); err != nil {
			slog.Warn("Failed to notify user about linked prizes",
				slog.String("type", "sys"),
				slog.Int64("user_id", actor.ID),
				slog.String("error", err.Error()))
		}
		slog.Info("Linked pending prizes to registered user",
			slog.String("type", "cmd"),
			slog.Int64("user_id", actor.ID),
			slog.Int64("linked", linked))
	}
	return nil
}

// AddPrize queues a prize for a guest. A phone already registered with
// the bot gets linked and notified right away; otherwise the link
// happens in RegisterContact when the guest shows up.
func (b *Bot) AddPrize(ctx context.Context, guestName, guestPhone, prize string) (*models.PrizeAssignment, error) {
	a := &models.PrizeAssignment{
		GuestName:  guestName,
		GuestPhone: guestPhone,
		Prize:      prize,
		CreatedAt:  b.now(),
	}
	if user, err := b.UserRepository.GetByPhone(ctx, guestPhone); err == nil {
		a.UserID = user.TelegramID
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("look up guest phone: %w", err)
	}

	if err := b.PrizeRepository.Create(ctx, a); err != nil {
		return nil, err
	}
	if a.UserID != 0 {
		if err := b.Notifier.SendUser(ctx, a.UserID, fmt.Sprintf(
			"A prize is waiting for you: %s. It will be announced in the next prize broadcast.", prize)); err != nil {
			slog.Warn("Failed to notify linked prize winner",
				slog.String("type", "sys"),
				slog.Int64("user_id", a.UserID),
				slog.String("error", err.Error()))
		}
	}
	return a, nil
}

func (b *Bot) ListPrizes(ctx context.Context) ([]*models.PrizeAssignment, error) {
	return b.PrizeRepository.List(ctx)
}

func (b *Bot) DeletePrize(ctx context.Context, id int64) error {
	return b.PrizeRepository.Delete(ctx, id)
}

// OutstandingRewards lists every unredeemed reward for the admin view.
func (b *Bot) OutstandingRewards(ctx context.Context) ([]*models.Reward, error) {
	return b.RewardRepository.ListUnredeemed(ctx)
}
