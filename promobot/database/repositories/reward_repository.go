package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

type RewardRepository interface {
	LatestByUser(ctx context.Context, userID int64) (*models.Reward, error)
	// InsertUnlessRecent persists the reward only when the user has no
	// reward issued after since; the guard and the insert run as one
	// statement, so two concurrent callers cannot both pass it. It
	// reports whether the row was inserted and returns ErrDuplicate
	// when the generated code collides.
	InsertUnlessRecent(ctx context.Context, reward *models.Reward, since time.Time) (bool, error)
	GetByCode(ctx context.Context, code string) (*models.Reward, error)
	// Redeem flips redeemed to true only if it is currently false and
	// reports whether this caller won the update.
	Redeem(ctx context.Context, code string, by models.Actor, at time.Time) (bool, error)
	ListUnredeemed(ctx context.Context) ([]*models.Reward, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Reward, error)
	MarkNotified24h(ctx context.Context, id int64) error
	MarkExpired(ctx context.Context, id int64) error
	CountIssuedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type rewardRepository struct {
	db *bun.DB
}

func NewRewardRepository(db *bun.DB) RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) LatestByUser(ctx context.Context, userID int64) (*models.Reward, error) {
	reward := new(models.Reward)
	err := r.db.NewSelect().
		Model(reward).
		Where("user_id = ?", userID).
		Order("issued_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return reward, nil
}

func (r *rewardRepository) InsertUnlessRecent(ctx context.Context, reward *models.Reward, since time.Time) (bool, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rewards (user_id, prize, reward_code, winner_username, winner_fullname,
			issued_at, expires_at, notified_24h, expired, redeemed)
		SELECT ?, ?, ?, ?, ?, ?, ?, FALSE, FALSE, FALSE
		WHERE NOT EXISTS (
			SELECT 1 FROM rewards WHERE user_id = ? AND issued_at > ?
		)
		RETURNING id`,
		reward.UserID, reward.Prize, reward.Code,
		reward.WinnerUsername, reward.WinnerFullName,
		reward.IssuedAt, reward.ExpiresAt,
		reward.UserID, since,
	).Scan(&reward.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		if isUniqueViolation(err) {
			return false, ErrDuplicate
		}
		return false, err
	}
	return true, nil
}

func (r *rewardRepository) GetByCode(ctx context.Context, code string) (*models.Reward, error) {
	reward := new(models.Reward)
	err := r.db.NewSelect().
		Model(reward).
		Where("reward_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return reward, nil
}

func (r *rewardRepository) Redeem(ctx context.Context, code string, by models.Actor, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Reward)(nil)).
		Set("redeemed = TRUE").
		Set("redeemed_by_id = ?", by.ID).
		Set("redeemed_by_username = ?", by.Username).
		Set("redeemed_by_fullname = ?", by.FullName()).
		Set("redeemed_at = ?", at).
		Where("reward_code = ?", code).
		Where("redeemed = FALSE").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *rewardRepository) ListUnredeemed(ctx context.Context) ([]*models.Reward, error) {
	var out []*models.Reward
	err := r.db.NewSelect().
		Model(&out).
		Where("redeemed = FALSE").
		Scan(ctx)
	return out, err
}

func (r *rewardRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Reward, error) {
	var out []*models.Reward
	err := r.db.NewSelect().
		Model(&out).
		Where("user_id = ?", userID).
		Order("id DESC").
		Scan(ctx)
	return out, err
}

func (r *rewardRepository) MarkNotified24h(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Reward)(nil)).
		Set("notified_24h = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *rewardRepository) MarkExpired(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*models.Reward)(nil)).
		Set("expired = TRUE").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *rewardRepository) CountIssuedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*models.Reward)(nil)).
		Where("issued_at >= ?", from).
		Where("issued_at < ?", to).
		Count(ctx)
}
