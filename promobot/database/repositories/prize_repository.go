package repositories

import (
	"context"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

type PrizeRepository interface {
	Create(ctx context.Context, prize *models.PrizeAssignment) error
	List(ctx context.Context) ([]*models.PrizeAssignment, error)
	Delete(ctx context.Context, id int64) error
	// Clear removes every pending assignment and reports how many.
	Clear(ctx context.Context) (int64, error)
	// AttachUser links assignments for the given phone to a user once
	// that phone registers; returns the number of rows linked.
	AttachUser(ctx context.Context, phone string, userID int64) (int64, error)
}

type prizeRepository struct {
	db *bun.DB
}

func NewPrizeRepository(db *bun.DB) PrizeRepository {
	return &prizeRepository{db: db}
}

func (r *prizeRepository) Create(ctx context.Context, prize *models.PrizeAssignment) error {
	_, err := r.db.NewInsert().
		Model(prize).
		Returning("id").
		Exec(ctx)
	return err
}

func (r *prizeRepository) List(ctx context.Context) ([]*models.PrizeAssignment, error) {
	var out []*models.PrizeAssignment
	err := r.db.NewSelect().
		Model(&out).
		Order("id ASC").
		Scan(ctx)
	return out, err
}

func (r *prizeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*models.PrizeAssignment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *prizeRepository) Clear(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*models.PrizeAssignment)(nil)).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *prizeRepository) AttachUser(ctx context.Context, phone string, userID int64) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.PrizeAssignment)(nil)).
		Set("user_id = ?", userID).
		Where("guest_phone = ?", phone).
		Where("user_id IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
