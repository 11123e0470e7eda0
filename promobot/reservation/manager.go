package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/notify"
	"github.com/sahilm/fuzzy"
)

var (
	ErrNoSession = errors.New("no reservation session in progress")
	ErrNotFound  = errors.New("reservation not found")
)

const (
	defaultSessionTTL = 30 * time.Minute
	searchWindow      = 500
)

// Result is the outcome of one Advance call. Exactly one of the
// following holds: the wizard moved to (or re-prompted) Next, or the
// reservation was committed.
type Result struct {
	Next      Step
	Rejected  bool
	Committed *models.Reservation
}

// Manager owns the per-user intake sessions and the durable
// reservation lifecycle. Sessions live only in memory; starting a new
// one replaces any in-progress session without warning.
type Manager struct {
	reservations repositories.ReservationRepository
	notifier     *notify.Notifier

	sessions   sync.Map // user ID -> *session
	sessionTTL time.Duration
}

func NewManager(reservations repositories.ReservationRepository, notifier *notify.Notifier, sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Manager{
		reservations: reservations,
		notifier:     notifier,
		sessionTTL:   sessionTTL,
	}
}

// Start opens a new intake session for the user, replacing any
// existing one, and returns the first step to prompt for.
func (m *Manager) Start(userID int64, now time.Time) Step {
	m.sessions.Store(userID, &session{Step: StepName, StartedAt: now})
	return StepName
}

// Active reports the current step of the user's session, if any.
func (m *Manager) Active(userID int64) (Step, bool) {
	v, ok := m.sessions.Load(userID)
	if !ok {
		return 0, false
	}
	return v.(*session).Step, true
}

// Abandon drops the user's session without committing.
func (m *Manager) Abandon(userID int64) {
	m.sessions.Delete(userID)
}

// Advance feeds one user input into the session. Rejected input keeps
// the wizard on the same step; the final accepted step commits the
// reservation and destroys the session.
func (m *Manager) Advance(ctx context.Context, actor models.Actor, input string, now time.Time) (Result, error) {
	v, ok := m.sessions.Load(actor.ID)
	if !ok {
		return Result{}, ErrNoSession
	}
	sess := v.(*session)

	accepted, done := sess.apply(input)
	if !accepted {
		return Result{Next: sess.Step, Rejected: true}, nil
	}
	if !done {
		return Result{Next: sess.Step}, nil
	}

	res := &models.Reservation{
		UserID:     actor.ID,
		GuestName:  sess.Draft.Name,
		GuestPhone: sess.Draft.Phone,
		Covers:     sess.Draft.Covers,
		Date:       sess.Draft.Date,
		Time:       sess.Draft.Time,
		Note:       sess.Draft.Note,
		Status:     models.ReservationNew,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.reservations.Create(ctx, res); err != nil {
		return Result{}, fmt.Errorf("create reservation: %w", err)
	}
	m.sessions.Delete(actor.ID)

	slog.Info("Reservation committed",
		slog.String("type", "cmd"),
		slog.Int64("id", res.ID),
		slog.Int64("user_id", actor.ID),
		slog.String("date", res.Date),
		slog.String("time", res.Time))

	note := res.Note
	if note == "" {
		note = "(none)"
	}
	m.notifier.NotifyAdmins(ctx, fmt.Sprintf(
		"New booking #%d for %s %s\n%s | %s\nCovers: %d\nNote: %s\nSource: %s",
		res.ID, res.Date, res.Time, res.GuestName, res.GuestPhone, res.Covers, note, actor.Display()))
	if err := m.notifier.SendUser(ctx, actor.ID, fmt.Sprintf(
		"Booking #%d accepted: %s %s, covers %d.", res.ID, res.Date, res.Time, res.Covers)); err != nil {
		slog.Warn("Failed to acknowledge booking",
			slog.String("type", "sys"),
			slog.Int64("user_id", actor.ID),
			slog.String("error", err.Error()))
	}

	return Result{Committed: res}, nil
}

// Confirm marks the reservation confirmed. Repeating the call on an
// already confirmed reservation is a no-op.
func (m *Manager) Confirm(ctx context.Context, id int64, now time.Time) error {
	return m.setStatus(ctx, id, models.ReservationConfirmed, now)
}

// Cancel marks the reservation cancelled.
func (m *Manager) Cancel(ctx context.Context, id int64, now time.Time) error {
	return m.setStatus(ctx, id, models.ReservationCancelled, now)
}

func (m *Manager) setStatus(ctx context.Context, id int64, status models.ReservationStatus, now time.Time) error {
	err := m.reservations.SetStatus(ctx, id, status, now)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ListByDate returns the day's reservations ordered by time.
func (m *Manager) ListByDate(ctx context.Context, date string) ([]*models.Reservation, error) {
	return m.reservations.ListByDate(ctx, date)
}

// FindByQuery fuzzy-matches recent reservations against a phone or
// name fragment, best matches first.
func (m *Manager) FindByQuery(ctx context.Context, query string, limit int) ([]*models.Reservation, error) {
	recent, err := m.reservations.ListRecent(ctx, searchWindow)
	if err != nil {
		return nil, err
	}

	haystack := make([]string, len(recent))
	for i, r := range recent {
		haystack[i] = r.GuestName + " " + r.GuestPhone
	}
	matches := fuzzy.Find(query, haystack)

	out := make([]*models.Reservation, 0, limit)
	for _, match := range matches {
		out = append(out, recent[match.Index])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// StartCleanupRoutine evicts sessions older than the TTL so an
// abandoned wizard does not hold its state forever.
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictStale(time.Now())
			}
		}
	}()
}

func (m *Manager) evictStale(now time.Time) {
	m.sessions.Range(func(key, value interface{}) bool {
		sess := value.(*session)
		if now.Sub(sess.StartedAt) > m.sessionTTL {
			m.sessions.Delete(key)
			slog.Debug("Evicted stale reservation session",
				slog.String("type", "sys"),
				slog.Int64("user_id", key.(int64)))
		}
		return true
	})
}
