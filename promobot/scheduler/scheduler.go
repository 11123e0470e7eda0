package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/promo"
)

// Trigger is a calendar action that fires at most once per period. A
// marker keyed by the trigger name records the period it last fired
// in; the marker is set after the action is attempted, even when the
// action errors, so a failing action is not retried within its period.
type Trigger struct {
	Name      string
	At        promo.HourMinute
	Weekday   *time.Weekday
	Tolerance time.Duration
	Period    func(time.Time) string
	Action    func(ctx context.Context) error
}

// DailyPeriod keys a trigger to the calendar day.
func DailyPeriod(t time.Time) string {
	return promo.DayKey(t)
}

// ISOWeekPeriod keys a trigger to the ISO week.
func ISOWeekPeriod(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// IntervalJob runs every Every, with no persistence across restarts.
type IntervalJob struct {
	Name    string
	Every   time.Duration
	Action  func(ctx context.Context) error
	lastRun time.Time
}

const defaultWake = 30 * time.Second

// Scheduler polls the clock and drives triggers and interval jobs.
// Trigger markers are held in memory and mirrored to storage so a
// restart inside a tolerance window does not refire an action.
type Scheduler struct {
	now      func() time.Time
	wake     time.Duration
	triggers []*Trigger
	jobs     []*IntervalJob
	markers  repositories.MarkerRepository
	fired    map[string]string
}

func New(markers repositories.MarkerRepository, wake time.Duration) *Scheduler {
	if wake <= 0 {
		wake = defaultWake
	}
	return &Scheduler{
		now:     time.Now,
		wake:    wake,
		markers: markers,
		fired:   make(map[string]string),
	}
}

func (s *Scheduler) AddTrigger(t *Trigger) {
	s.triggers = append(s.triggers, t)
}

func (s *Scheduler) AddJob(j *IntervalJob) {
	s.jobs = append(s.jobs, j)
}

// Run polls until ctx is done. Stored markers are loaded first so
// triggers already fired this period stay quiet after a restart.
func (s *Scheduler) Run(ctx context.Context) {
	if s.markers != nil {
		stored, err := s.markers.All(ctx)
		if err != nil {
			slog.Warn("Failed to load scheduler markers, starting fresh",
				slog.String("type", "sched"),
				slog.String("error", err.Error()))
		} else {
			for trigger, period := range stored {
				s.fired[trigger] = period
			}
		}
	}

	slog.Info("Scheduler started",
		slog.String("type", "sched"),
		slog.Int("triggers", len(s.triggers)),
		slog.Int("jobs", len(s.jobs)))

	ticker := time.NewTicker(s.wake)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped", slog.String("type", "sched"))
			return
		case <-ticker.C:
			s.evaluate(ctx, s.now())
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, now time.Time) {
	for _, t := range s.triggers {
		if t.Weekday != nil && now.Weekday() != *t.Weekday {
			continue
		}
		period := t.Period(now)
		if s.fired[t.Name] == period {
			continue
		}
		delta := now.Sub(t.At.At(now))
		if delta < -t.Tolerance || delta > t.Tolerance {
			continue
		}

		slog.Info("Trigger firing",
			slog.String("type", "sched"),
			slog.String("trigger", t.Name),
			slog.String("period", period))
		if err := t.Action(ctx); err != nil {
			slog.Error("Trigger action failed",
				slog.String("type", "sched"),
				slog.String("trigger", t.Name),
				slog.String("error", err.Error()))
		}
		// The period is consumed either way; one attempt per period.
		s.fired[t.Name] = period
		if s.markers != nil {
			if err := s.markers.Set(ctx, t.Name, period, now); err != nil {
				slog.Error("Failed to persist scheduler marker",
					slog.String("type", "sched"),
					slog.String("trigger", t.Name),
					slog.String("error", err.Error()))
			}
		}
	}

	for _, j := range s.jobs {
		if !j.lastRun.IsZero() && now.Sub(j.lastRun) < j.Every {
			continue
		}
		j.lastRun = now
		if err := j.Action(ctx); err != nil {
			slog.Error("Interval job failed",
				slog.String("type", "sched"),
				slog.String("job", j.Name),
				slog.String("error", err.Error()))
		}
	}
}
