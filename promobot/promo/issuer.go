package promo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
)

// CodeAlphabet excludes visually confusable characters (0/O, 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

// AccessDeniedError is returned for blocked users and, in closed
// access mode, for users not yet approved.
type AccessDeniedError struct {
	Hint string
}

func (e *AccessDeniedError) Error() string {
	return "access denied"
}

// OutsideWindowError carries the configured window bounds for display.
type OutsideWindowError struct {
	Start HourMinute
	End   HourMinute
}

func (e *OutsideWindowError) Error() string {
	return fmt.Sprintf("codes are issued only between %s and %s", e.Start, e.End)
}

// AccessPolicy is the external access-control collaborator.
type AccessPolicy interface {
	IsBlocked(ctx context.Context, id int64) (bool, error)
	IsApproved(ctx context.Context, id int64) (bool, error)
}

type IssuerConfig struct {
	WindowStart HourMinute
	WindowEnd   HourMinute
	ValidUntil  HourMinute
	AccessHint  string
	Discounts   DiscountTable
}

// Issuer hands out the single daily discount code per user.
type Issuer struct {
	codes  repositories.CodeRepository
	access AccessPolicy
	cfg    IssuerConfig
}

func NewIssuer(codes repositories.CodeRepository, access AccessPolicy, cfg IssuerConfig) *Issuer {
	return &Issuer{codes: codes, access: access, cfg: cfg}
}

func (i *Issuer) Window() (HourMinute, HourMinute) {
	return i.cfg.WindowStart, i.cfg.WindowEnd
}

// Discount returns today's discount percentage.
func (i *Issuer) Discount(now time.Time) int {
	return i.cfg.Discounts.For(now)
}

// RequestCode returns the user's code for today, creating it on first
// request inside the window. Repeat requests the same day return the
// stored row verbatim.
func (i *Issuer) RequestCode(ctx context.Context, actor models.Actor, now time.Time) (*models.Code, error) {
	blocked, err := i.access.IsBlocked(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("access check: %w", err)
	}
	if blocked {
		return nil, &AccessDeniedError{Hint: i.cfg.AccessHint}
	}
	approved, err := i.access.IsApproved(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("access check: %w", err)
	}
	if !approved {
		return nil, &AccessDeniedError{Hint: i.cfg.AccessHint}
	}

	if !InWindow(now, i.cfg.WindowStart, i.cfg.WindowEnd) {
		return nil, &OutsideWindowError{Start: i.cfg.WindowStart, End: i.cfg.WindowEnd}
	}

	day := DayKey(now)
	existing, err := i.codes.GetForDay(ctx, actor.ID, day)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	value, err := gonanoid.Generate(CodeAlphabet, CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	code := &models.Code{
		UserID:    actor.ID,
		Code:      value,
		IssuedAt:  now,
		ExpiresAt: ValidUntil(now, i.cfg.ValidUntil),
		DayKey:    day,
		Valid:     true,
	}

	inserted, err := i.codes.Insert(ctx, code)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the (user, day) race; the winner's row is canonical.
		return i.codes.GetForDay(ctx, actor.ID, day)
	}

	slog.Info("Issued daily code",
		slog.String("type", "cmd"),
		slog.Int64("user_id", actor.ID),
		slog.String("day", day))
	return code, nil
}

// SweepExpired invalidates codes past their expiry. It returns the
// count of valid codes before and after, and is a no-op when re-run.
func (i *Issuer) SweepExpired(ctx context.Context, now time.Time) (before int, after int, err error) {
	before, err = i.codes.CountValid(ctx)
	if err != nil {
		return 0, 0, err
	}
	swept, err := i.codes.InvalidateExpired(ctx, now)
	if err != nil {
		return 0, 0, err
	}
	after = before - int(swept)
	if swept > 0 {
		slog.Info("Invalidated expired codes",
			slog.String("type", "db"),
			slog.Int64("swept", swept),
			slog.Int("remaining", after))
	}
	return before, after, nil
}
