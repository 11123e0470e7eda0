// Package notify carries outbound notifications to an external
// messaging transport. The transport itself is out of scope; the core
// only depends on the Messenger contract.
package notify

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Messenger delivers a text to an opaque recipient target. Targets are
// either numeric chat IDs (see UserTarget) or channel handles like
// "@venue_channel". Implementations must treat delivery failure as
// non-fatal and simply return the error.
type Messenger interface {
	Send(ctx context.Context, target string, text string) error
}

// UserTarget converts a user ID into a messenger target.
func UserTarget(id int64) string {
	return strconv.FormatInt(id, 10)
}

// LogMessenger writes outbound messages to the log instead of a real
// transport. Used when the process runs without one attached.
type LogMessenger struct{}

func (LogMessenger) Send(_ context.Context, target string, text string) error {
	slog.Info("Outbound message (dry-run)",
		slog.String("type", "sys"),
		slog.String("target", target),
		slog.String("text", text))
	return nil
}

// Notifier fans messages out to the fixed admin targets and to user
// audiences. Send errors are logged, never propagated: a failed admin
// ping must not fail the operation that triggered it.
type Notifier struct {
	messenger   Messenger
	admins      []string
	concurrency int
}

func NewNotifier(messenger Messenger, adminIDs []int64, extraTargets []string, concurrency int) *Notifier {
	if concurrency <= 0 {
		concurrency = 4
	}
	seen := make(map[string]struct{})
	var admins []string
	for _, t := range extraTargets {
		if _, ok := seen[t]; !ok && t != "" {
			seen[t] = struct{}{}
			admins = append(admins, t)
		}
	}
	for _, id := range adminIDs {
		t := UserTarget(id)
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			admins = append(admins, t)
		}
	}
	return &Notifier{messenger: messenger, admins: admins, concurrency: concurrency}
}

func (n *Notifier) NotifyAdmins(ctx context.Context, text string) {
	for _, target := range n.admins {
		if err := n.messenger.Send(ctx, target, text); err != nil {
			slog.Error("Failed to notify admin target",
				slog.String("type", "sys"),
				slog.String("target", target),
				slog.String("error", err.Error()))
		}
	}
}

// SendUser delivers to a single user; the error is returned so callers
// that care (e.g. prize broadcast accounting) can count failures.
func (n *Notifier) SendUser(ctx context.Context, userID int64, text string) error {
	return n.messenger.Send(ctx, UserTarget(userID), text)
}

// Broadcast sends the same text to many users with bounded concurrency
// and reports delivered/failed counts. Individual failures are logged.
func (n *Notifier) Broadcast(ctx context.Context, userIDs []int64, text string) (sent int, failed int) {
	results := make([]bool, len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for i, id := range userIDs {
		i, id := i, id
		g.Go(func() error {
			if err := n.messenger.Send(gctx, UserTarget(id), text); err != nil {
				slog.Warn("Broadcast delivery failed",
					slog.String("type", "sys"),
					slog.Int64("user_id", id),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range results {
		if ok {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
