package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/promo"
)

// DaySummary covers one calendar day of promo activity.
type DaySummary struct {
	DayKey       string
	Codes        int
	Reservations int
	Discount     int
}

// WeekSummary covers the half-open range [From, To).
type WeekSummary struct {
	From         time.Time
	To           time.Time
	NewUsers     int
	Codes        int
	Reservations int
	Rewards      int
}

// Audience is the current size and churn of the user base.
type Audience struct {
	Total    int
	Inactive int
}

// Reporter assembles daily and weekly activity summaries.
type Reporter struct {
	users        repositories.UserRepository
	codes        repositories.CodeRepository
	reservations repositories.ReservationRepository
	rewards      repositories.RewardRepository
	discounts    promo.DiscountTable
	loc          *time.Location
}

func NewReporter(
	users repositories.UserRepository,
	codes repositories.CodeRepository,
	reservations repositories.ReservationRepository,
	rewards repositories.RewardRepository,
	discounts promo.DiscountTable,
	loc *time.Location,
) *Reporter {
	if loc == nil {
		loc = time.Local
	}
	return &Reporter{
		users:        users,
		codes:        codes,
		reservations: reservations,
		rewards:      rewards,
		discounts:    discounts,
		loc:          loc,
	}
}

// Day summarizes the day containing at.
func (r *Reporter) Day(ctx context.Context, at time.Time) (*DaySummary, error) {
	at = at.In(r.loc)
	key := promo.DayKey(at)

	codes, err := r.codes.CountByDay(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("count codes: %w", err)
	}
	reservations, err := r.reservations.CountByDate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}
	return &DaySummary{
		DayKey:       key,
		Codes:        codes,
		Reservations: reservations,
		Discount:     r.discounts.For(at),
	}, nil
}

// Week summarizes the seven days ending at the start of at's day.
func (r *Reporter) Week(ctx context.Context, at time.Time) (*WeekSummary, error) {
	at = at.In(r.loc)
	to := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, r.loc)
	from := to.AddDate(0, 0, -7)

	newUsers, err := r.users.CountJoinedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count new users: %w", err)
	}
	codes, err := r.codes.CountIssuedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count codes: %w", err)
	}
	reservations, err := r.reservations.CountCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}
	rewards, err := r.rewards.CountIssuedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("count rewards: %w", err)
	}
	return &WeekSummary{
		From:         from,
		To:           to,
		NewUsers:     newUsers,
		Codes:        codes,
		Reservations: reservations,
		Rewards:      rewards,
	}, nil
}

// AudienceNow reports the user base size and how many went quiet
// before the given cutoff.
func (r *Reporter) AudienceNow(ctx context.Context, inactiveBefore time.Time) (*Audience, error) {
	total, err := r.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	inactive, err := r.users.CountInactive(ctx, inactiveBefore)
	if err != nil {
		return nil, fmt.Errorf("count inactive users: %w", err)
	}
	return &Audience{Total: total, Inactive: inactive}, nil
}

// FormatDay renders a daily report for admin delivery.
func (s *DaySummary) FormatDay() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report for %s\n", s.DayKey)
	fmt.Fprintf(&b, "Discount of the day: %d%%\n", s.Discount)
	fmt.Fprintf(&b, "Codes issued: %d\n", s.Codes)
	fmt.Fprintf(&b, "Reservations: %d", s.Reservations)
	return b.String()
}

// FormatWeek renders a weekly report for admin delivery.
func (s *WeekSummary) FormatWeek() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly report %s to %s\n",
		s.From.Format("2006-01-02"), s.To.AddDate(0, 0, -1).Format("2006-01-02"))
	fmt.Fprintf(&b, "New users: %d\n", s.NewUsers)
	fmt.Fprintf(&b, "Codes issued: %d\n", s.Codes)
	fmt.Fprintf(&b, "Reservations: %d\n", s.Reservations)
	fmt.Fprintf(&b, "Rewards drawn: %d", s.Rewards)
	return b.String()
}
