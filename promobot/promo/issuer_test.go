package promo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
)

type fakeCodeRepo struct {
	codes map[string]*models.Code
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: make(map[string]*models.Code)}
}

func codeKey(userID int64, day string) string {
	return fmt.Sprintf("%d/%s", userID, day)
}

func (f *fakeCodeRepo) GetForDay(_ context.Context, userID int64, dayKey string) (*models.Code, error) {
	code, ok := f.codes[codeKey(userID, dayKey)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return code, nil
}

func (f *fakeCodeRepo) Insert(_ context.Context, code *models.Code) (bool, error) {
	key := codeKey(code.UserID, code.DayKey)
	if _, exists := f.codes[key]; exists {
		return false, nil
	}
	f.codes[key] = code
	return true, nil
}

func (f *fakeCodeRepo) CountValid(context.Context) (int, error) {
	n := 0
	for _, c := range f.codes {
		if c.Valid {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeRepo) CountByDay(_ context.Context, dayKey string) (int, error) {
	n := 0
	for _, c := range f.codes {
		if c.DayKey == dayKey {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeRepo) CountIssuedBetween(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, c := range f.codes {
		if !c.IssuedAt.Before(from) && c.IssuedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeRepo) InvalidateExpired(_ context.Context, now time.Time) (int64, error) {
	var swept int64
	for _, c := range f.codes {
		if c.Valid && c.ExpiresAt.Before(now) {
			c.Valid = false
			swept++
		}
	}
	return swept, nil
}

type fakeAccess struct {
	blocked    map[int64]bool
	unapproved map[int64]bool
}

func (f *fakeAccess) IsBlocked(_ context.Context, id int64) (bool, error) {
	return f.blocked[id], nil
}

func (f *fakeAccess) IsApproved(_ context.Context, id int64) (bool, error) {
	return !f.unapproved[id], nil
}

func newTestIssuer(repo *fakeCodeRepo, access *fakeAccess) *Issuer {
	if access == nil {
		access = &fakeAccess{}
	}
	return NewIssuer(repo, access, IssuerConfig{
		WindowStart: HourMinute{Hour: 12},
		WindowEnd:   HourMinute{Hour: 19},
		ValidUntil:  HourMinute{Hour: 22},
		Discounts:   DefaultDiscounts,
	})
}

func TestRequestCodeIssuesInsideWindow(t *testing.T) {
	repo := newFakeCodeRepo()
	issuer := newTestIssuer(repo, nil)
	actor := models.Actor{ID: 42, Username: "guest"}
	now := date(2026, time.August, 24, 14, 0)

	code, err := issuer.RequestCode(context.Background(), actor, now)
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if len(code.Code) != CodeLength {
		t.Errorf("code length = %d, want %d", len(code.Code), CodeLength)
	}
	for _, r := range code.Code {
		found := false
		for _, a := range CodeAlphabet {
			if r == a {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("code %q contains %q outside the alphabet", code.Code, r)
		}
	}
	wantExpiry := date(2026, time.August, 25, 22, 0)
	if !code.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %s, want %s", code.ExpiresAt, wantExpiry)
	}
	if !code.Valid {
		t.Error("issued code should be valid")
	}
}

func TestRequestCodeIsIdempotentPerDay(t *testing.T) {
	repo := newFakeCodeRepo()
	issuer := newTestIssuer(repo, nil)
	actor := models.Actor{ID: 42}

	first, err := issuer.RequestCode(context.Background(), actor, date(2026, time.August, 24, 12, 30))
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := issuer.RequestCode(context.Background(), actor, date(2026, time.August, 24, 18, 45))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.Code != first.Code {
		t.Errorf("repeat request changed code: %q then %q", first.Code, second.Code)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("repeat request changed expiry: %s then %s", first.ExpiresAt, second.ExpiresAt)
	}
}

func TestRequestCodeNextDayIssuesFresh(t *testing.T) {
	repo := newFakeCodeRepo()
	issuer := newTestIssuer(repo, nil)
	actor := models.Actor{ID: 42}

	first, err := issuer.RequestCode(context.Background(), actor, date(2026, time.August, 24, 13, 0))
	if err != nil {
		t.Fatalf("day one: %v", err)
	}
	second, err := issuer.RequestCode(context.Background(), actor, date(2026, time.August, 25, 13, 0))
	if err != nil {
		t.Fatalf("day two: %v", err)
	}
	if first.DayKey == second.DayKey {
		t.Errorf("day keys should differ, both %q", first.DayKey)
	}
}

func TestRequestCodeOutsideWindow(t *testing.T) {
	issuer := newTestIssuer(newFakeCodeRepo(), nil)
	actor := models.Actor{ID: 42}

	for _, at := range []time.Time{
		date(2026, time.August, 24, 11, 59),
		date(2026, time.August, 24, 19, 1),
		date(2026, time.August, 24, 3, 0),
	} {
		_, err := issuer.RequestCode(context.Background(), actor, at)
		var winErr *OutsideWindowError
		if !errors.As(err, &winErr) {
			t.Errorf("at %s: got %v, want OutsideWindowError", at, err)
		}
	}
}

func TestRequestCodeAccessDenied(t *testing.T) {
	access := &fakeAccess{
		blocked:    map[int64]bool{1: true},
		unapproved: map[int64]bool{2: true},
	}
	issuer := newTestIssuer(newFakeCodeRepo(), access)
	now := date(2026, time.August, 24, 14, 0)

	for _, id := range []int64{1, 2} {
		_, err := issuer.RequestCode(context.Background(), models.Actor{ID: id}, now)
		var denied *AccessDeniedError
		if !errors.As(err, &denied) {
			t.Errorf("user %d: got %v, want AccessDeniedError", id, err)
		}
	}
}

func TestRequestCodeLosingInsertRaceReturnsWinner(t *testing.T) {
	repo := newFakeCodeRepo()
	issuer := newTestIssuer(repo, nil)
	actor := models.Actor{ID: 42}
	now := date(2026, time.August, 24, 14, 0)

	// Another writer claims the (user, day) slot between the miss and
	// the insert.
	winner := &models.Code{UserID: 42, Code: "WINNER", DayKey: DayKey(now), Valid: true}
	repo.codes[codeKey(42, winner.DayKey)] = winner

	got, err := issuer.RequestCode(context.Background(), actor, now)
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if got.Code != "WINNER" {
		t.Errorf("got %q, want the winner's code", got.Code)
	}
}

func TestSweepExpired(t *testing.T) {
	repo := newFakeCodeRepo()
	issuer := newTestIssuer(repo, nil)

	_, err := issuer.RequestCode(context.Background(), models.Actor{ID: 1}, date(2026, time.August, 24, 13, 0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = issuer.RequestCode(context.Background(), models.Actor{ID: 2}, date(2026, time.August, 25, 13, 0))
	if err != nil {
		t.Fatal(err)
	}

	// Day-24 codes expire 22:00 on the 25th.
	sweepAt := date(2026, time.August, 25, 23, 0)
	before, after, err := issuer.SweepExpired(context.Background(), sweepAt)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if before != 2 || after != 1 {
		t.Errorf("sweep = (%d, %d), want (2, 1)", before, after)
	}

	// Re-running is a no-op.
	before, after, err = issuer.SweepExpired(context.Background(), sweepAt)
	if err != nil {
		t.Fatalf("SweepExpired again: %v", err)
	}
	if before != 1 || after != 1 {
		t.Errorf("second sweep = (%d, %d), want (1, 1)", before, after)
	}
}
