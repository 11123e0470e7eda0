package repositories

import (
	"context"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

type CodeRepository interface {
	GetForDay(ctx context.Context, userID int64, dayKey string) (*models.Code, error)
	// Insert persists the code unless a row for (user, day_key) already
	// exists. It reports false when the insert lost that race.
	Insert(ctx context.Context, code *models.Code) (bool, error)
	CountValid(ctx context.Context) (int, error)
	CountByDay(ctx context.Context, dayKey string) (int, error)
	CountIssuedBetween(ctx context.Context, from, to time.Time) (int, error)
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
}

type codeRepository struct {
	db *bun.DB
}

func NewCodeRepository(db *bun.DB) CodeRepository {
	return &codeRepository{db: db}
}

func (r *codeRepository) GetForDay(ctx context.Context, userID int64, dayKey string) (*models.Code, error) {
	code := new(models.Code)
	err := r.db.NewSelect().
		Model(code).
		Where("user_id = ?", userID).
		Where("day_key = ?", dayKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return code, nil
}

func (r *codeRepository) Insert(ctx context.Context, code *models.Code) (bool, error) {
	res, err := r.db.NewInsert().
		Model(code).
		On("CONFLICT (user_id, day_key) DO NOTHING").
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

func (r *codeRepository) CountValid(ctx context.Context) (int, error) {
	return r.db.NewSelect().
		Model((*models.Code)(nil)).
		Where("valid = TRUE").
		Count(ctx)
}

func (r *codeRepository) CountByDay(ctx context.Context, dayKey string) (int, error) {
	return r.db.NewSelect().
		Model((*models.Code)(nil)).
		Where("day_key = ?", dayKey).
		Count(ctx)
}

func (r *codeRepository) CountIssuedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*models.Code)(nil)).
		Where("issued_at >= ?", from).
		Where("issued_at < ?", to).
		Count(ctx)
}

func (r *codeRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Code)(nil)).
		Set("valid = FALSE").
		Where("valid = TRUE").
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
