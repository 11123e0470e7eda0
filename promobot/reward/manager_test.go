package reward

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/restobar/promo-bot/promobot/database/repositories"
	"github.com/restobar/promo-bot/promobot/notify"
)

type fakeRewardRepo struct {
	mu     sync.Mutex
	rows   []*models.Reward
	nextID int64

	// When set, LatestByUser parks on it after reading so two callers
	// can be held at the same snapshot.
	readBarrier *sync.WaitGroup
}

func (f *fakeRewardRepo) LatestByUser(_ context.Context, userID int64) (*models.Reward, error) {
	f.mu.Lock()
	var latest *models.Reward
	for _, r := range f.rows {
		if r.UserID != userID {
			continue
		}
		if latest == nil || r.IssuedAt.After(latest.IssuedAt) {
			latest = r
		}
	}
	barrier := f.readBarrier
	f.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
		// One-shot: the re-read after a lost insert must not park.
		f.mu.Lock()
		f.readBarrier = nil
		f.mu.Unlock()
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	return latest, nil
}

func (f *fakeRewardRepo) InsertUnlessRecent(_ context.Context, reward *models.Reward, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Code == reward.Code {
			return false, repositories.ErrDuplicate
		}
	}
	for _, r := range f.rows {
		if r.UserID == reward.UserID && r.IssuedAt.After(since) {
			return false, nil
		}
	}
	f.nextID++
	reward.ID = f.nextID
	f.rows = append(f.rows, reward)
	return true, nil
}

func (f *fakeRewardRepo) GetByCode(_ context.Context, code string) (*models.Reward, error) {
	for _, r := range f.rows {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeRewardRepo) Redeem(_ context.Context, code string, by models.Actor, at time.Time) (bool, error) {
	for _, r := range f.rows {
		if r.Code != code {
			continue
		}
		if r.Redeemed {
			return false, nil
		}
		r.Redeemed = true
		r.RedeemedByID = by.ID
		r.RedeemedByUsername = by.Username
		r.RedeemedByFullName = by.FullName()
		r.RedeemedAt = at
		return true, nil
	}
	return false, nil
}

func (f *fakeRewardRepo) ListUnredeemed(context.Context) ([]*models.Reward, error) {
	var out []*models.Reward
	for _, r := range f.rows {
		if !r.Redeemed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRewardRepo) ListByUser(_ context.Context, userID int64) ([]*models.Reward, error) {
	var out []*models.Reward
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRewardRepo) MarkNotified24h(_ context.Context, id int64) error {
	for _, r := range f.rows {
		if r.ID == id {
			r.Notified24h = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeRewardRepo) MarkExpired(_ context.Context, id int64) error {
	for _, r := range f.rows {
		if r.ID == id {
			r.Expired = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeRewardRepo) CountIssuedBetween(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, r := range f.rows {
		if !r.IssuedAt.Before(from) && r.IssuedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

type recordingMessenger struct {
	sent []string
}

func (m *recordingMessenger) Send(_ context.Context, target, text string) error {
	m.sent = append(m.sent, target+": "+text)
	return nil
}

func newTestManager(catalog []Prize) (*Manager, *fakeRewardRepo, *recordingMessenger) {
	repo := &fakeRewardRepo{}
	messenger := &recordingMessenger{}
	notifier := notify.NewNotifier(messenger, []int64{999}, nil, 1)
	m := NewManager(repo, notifier, Config{
		Catalog:  catalog,
		Cooldown: 7 * 24 * time.Hour,
		Horizon:  7 * 24 * time.Hour,
	})
	return m, repo, messenger
}

func at(day, hour int) time.Time {
	return time.Date(2026, time.August, day, hour, 0, 0, 0, time.UTC)
}

func TestDrawIssuesReward(t *testing.T) {
	m, repo, _ := newTestManager([]Prize{{Label: "Free dessert"}})
	actor := models.Actor{ID: 5, Username: "player", FirstName: "Pat"}

	reward, err := m.Draw(context.Background(), actor, at(10, 15))
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if reward.Prize != "Free dessert" {
		t.Errorf("prize = %q", reward.Prize)
	}
	if got, want := reward.ExpiresAt, at(17, 15); !got.Equal(want) {
		t.Errorf("ExpiresAt = %s, want %s", got, want)
	}
	if len(repo.rows) != 1 {
		t.Errorf("stored %d rewards", len(repo.rows))
	}
}

func TestDrawCooldown(t *testing.T) {
	m, _, _ := newTestManager([]Prize{{Label: "Free dessert"}})
	actor := models.Actor{ID: 5}

	if _, err := m.Draw(context.Background(), actor, at(10, 15)); err != nil {
		t.Fatalf("first draw: %v", err)
	}

	// Inside the cooldown window, even at its very edge.
	_, err := m.Draw(context.Background(), actor, at(17, 14))
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("got %v, want CooldownError", err)
	}
	if !cd.Last.IssuedAt.Equal(at(10, 15)) {
		t.Errorf("cooldown carries wrong reward: %s", cd.Last.IssuedAt)
	}

	// Exactly seven days later the cooldown is over.
	if _, err := m.Draw(context.Background(), actor, at(17, 15)); err != nil {
		t.Errorf("draw after cooldown: %v", err)
	}
}

func TestConcurrentDrawsYieldOneReward(t *testing.T) {
	m, repo, _ := newTestManager([]Prize{{Label: "Free dessert"}})
	actor := models.Actor{ID: 42}
	issueAt := at(10, 15)

	// Hold both draws at the cooldown read so each sees no prior
	// reward before either inserts.
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	repo.readBarrier = barrier

	type outcome struct {
		reward *models.Reward
		err    error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			r, err := m.Draw(context.Background(), actor, issueAt)
			results <- outcome{reward: r, err: err}
		}()
	}

	var wins, cooldowns int
	for i := 0; i < 2; i++ {
		res := <-results
		switch {
		case res.err == nil:
			wins++
		default:
			var cd *CooldownError
			if !errors.As(res.err, &cd) {
				t.Fatalf("unexpected error: %v", res.err)
			}
			if !cd.Last.IssuedAt.Equal(issueAt) {
				t.Errorf("loser reports wrong winning reward: %s", cd.Last.IssuedAt)
			}
			cooldowns++
		}
	}
	if wins != 1 || cooldowns != 1 {
		t.Errorf("outcomes = %d wins, %d cooldown errors, want 1 and 1", wins, cooldowns)
	}
	if len(repo.rows) != 1 {
		t.Errorf("user holds %d rewards, want 1", len(repo.rows))
	}
}

func TestDrawWeightedPick(t *testing.T) {
	catalog := []Prize{
		{Label: "common", Weight: 3},
		{Label: "rare", Weight: 1},
	}
	m, _, _ := newTestManager(catalog)

	m.randInt = func(int) int { return 0 }
	if got := m.pick(); got != "common" {
		t.Errorf("pick(0) = %q", got)
	}
	m.randInt = func(int) int { return 2 }
	if got := m.pick(); got != "common" {
		t.Errorf("pick(2) = %q", got)
	}
	m.randInt = func(int) int { return 3 }
	if got := m.pick(); got != "rare" {
		t.Errorf("pick(3) = %q", got)
	}
}

func TestDrawRetriesOnCodeCollision(t *testing.T) {
	m, repo, _ := newTestManager([]Prize{{Label: "Free dessert"}})

	first, err := m.Draw(context.Background(), models.Actor{ID: 1}, at(10, 12))
	if err != nil {
		t.Fatalf("first draw: %v", err)
	}
	second, err := m.Draw(context.Background(), models.Actor{ID: 2}, at(10, 13))
	if err != nil {
		t.Fatalf("second draw: %v", err)
	}
	if first.Code == second.Code {
		t.Errorf("codes collided: %q", first.Code)
	}
	if len(repo.rows) != 2 {
		t.Errorf("stored %d rewards", len(repo.rows))
	}
}

func TestRedeemExactlyOnce(t *testing.T) {
	m, _, messenger := newTestManager([]Prize{{Label: "Free dessert"}})
	winner := models.Actor{ID: 5, Username: "winner"}
	staffA := models.Actor{ID: 100, Username: "staff_a"}
	staffB := models.Actor{ID: 101, Username: "staff_b"}

	reward, err := m.Draw(context.Background(), winner, at(10, 15))
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}

	receipt, err := m.Redeem(context.Background(), reward.Code, staffA, at(11, 18))
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if receipt.RedeemedBy.ID != staffA.ID {
		t.Errorf("receipt redeemer = %d", receipt.RedeemedBy.ID)
	}

	// The second attempt reports the first redeemer, not the second.
	_, err = m.Redeem(context.Background(), reward.Code, staffB, at(11, 19))
	var already *AlreadyRedeemedError
	if !errors.As(err, &already) {
		t.Fatalf("got %v, want AlreadyRedeemedError", err)
	}
	if already.By.Username != "staff_a" {
		t.Errorf("reported redeemer = %q, want staff_a", already.By.Username)
	}
	if !already.At.Equal(at(11, 18)) {
		t.Errorf("reported redeem time = %s", already.At)
	}

	var adminHeard bool
	for _, s := range messenger.sent {
		if strings.Contains(s, "999:") && strings.Contains(s, "Code redeemed") {
			adminHeard = true
		}
	}
	if !adminHeard {
		t.Error("admins were not told about the redemption")
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	m, _, _ := newTestManager([]Prize{{Label: "Free dessert"}})
	_, err := m.Redeem(context.Background(), "NOSUCH", models.Actor{ID: 1}, at(10, 12))
	if !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("got %v, want ErrCodeNotFound", err)
	}
}

func TestSweepExpiryNoticeIsOneShot(t *testing.T) {
	m, repo, messenger := newTestManager([]Prize{{Label: "Free dessert"}})
	winner := models.Actor{ID: 5}

	if _, err := m.Draw(context.Background(), winner, at(10, 15)); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	// Inside the 24h notice lead.
	report, err := m.SweepExpiry(context.Background(), at(16, 20))
	if err != nil {
		t.Fatalf("SweepExpiry: %v", err)
	}
	if report.Noticed != 1 || report.Expired != 0 {
		t.Errorf("report = %+v, want one notice", report)
	}
	if !repo.rows[0].Notified24h {
		t.Error("notice flag not set")
	}

	// A second pass inside the same lead sends nothing new.
	report, err = m.SweepExpiry(context.Background(), at(16, 22))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if report.Noticed != 0 {
		t.Errorf("notice repeated: %+v", report)
	}

	// Past expiry the reward is flagged and both sides are told.
	report, err = m.SweepExpiry(context.Background(), at(17, 16))
	if err != nil {
		t.Fatalf("expiry sweep: %v", err)
	}
	if report.Expired != 1 {
		t.Errorf("report = %+v, want one expiry", report)
	}
	if !repo.rows[0].Expired {
		t.Error("expired flag not set")
	}

	// Expiry is also one-shot.
	report, err = m.SweepExpiry(context.Background(), at(18, 16))
	if err != nil {
		t.Fatalf("repeat expiry sweep: %v", err)
	}
	if report.Expired != 0 {
		t.Errorf("expiry repeated: %+v", report)
	}

	var expiryHeard bool
	for _, s := range messenger.sent {
		if strings.Contains(s, "999:") && strings.Contains(s, "Prize expired") {
			expiryHeard = true
		}
	}
	if !expiryHeard {
		t.Errorf("admins were not told about the expiry (%v)", messenger.sent)
	}
}

func TestHistory(t *testing.T) {
	m, _, _ := newTestManager([]Prize{{Label: "Free dessert"}})
	ctx := context.Background()
	if _, err := m.Draw(ctx, models.Actor{ID: 5}, at(1, 15)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Draw(ctx, models.Actor{ID: 5}, at(10, 15)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Draw(ctx, models.Actor{ID: 6}, at(10, 15)); err != nil {
		t.Fatal(err)
	}

	got, err := m.History(ctx, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("history length = %d, want 2", len(got))
	}
}
