package repositories

import (
	"context"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

type ReservationRepository interface {
	Create(ctx context.Context, res *models.Reservation) error
	GetByID(ctx context.Context, id int64) (*models.Reservation, error)
	ListByDate(ctx context.Context, date string) ([]*models.Reservation, error)
	// ListRecent returns newest reservations first, capped at limit.
	// It feeds the fuzzy phone/name search.
	ListRecent(ctx context.Context, limit int) ([]*models.Reservation, error)
	SetStatus(ctx context.Context, id int64, status models.ReservationStatus, now time.Time) error
	CountByDate(ctx context.Context, date string) (int, error)
	CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type reservationRepository struct {
	db *bun.DB
}

func NewReservationRepository(db *bun.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, res *models.Reservation) error {
	res.CreatedAt = res.CreatedAt.Truncate(time.Second)
	res.UpdatedAt = res.CreatedAt
	_, err := r.db.NewInsert().
		Model(res).
		Returning("id").
		Exec(ctx)
	return err
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*models.Reservation, error) {
	res := new(models.Reservation)
	err := r.db.NewSelect().
		Model(res).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return res, nil
}

func (r *reservationRepository) ListByDate(ctx context.Context, date string) ([]*models.Reservation, error) {
	var out []*models.Reservation
	err := r.db.NewSelect().
		Model(&out).
		Where("r_date = ?", date).
		Order("r_time ASC").
		Scan(ctx)
	return out, err
}

func (r *reservationRepository) ListRecent(ctx context.Context, limit int) ([]*models.Reservation, error) {
	var out []*models.Reservation
	err := r.db.NewSelect().
		Model(&out).
		Order("r_date DESC", "r_time DESC").
		Limit(limit).
		Scan(ctx)
	return out, err
}

func (r *reservationRepository) SetStatus(ctx context.Context, id int64, status models.ReservationStatus, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
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

func (r *reservationRepository) CountByDate(ctx context.Context, date string) (int, error) {
	return r.db.NewSelect().
		Model((*models.Reservation)(nil)).
		Where("r_date = ?", date).
		Count(ctx)
}

func (r *reservationRepository) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*models.Reservation)(nil)).
		Where("created_at >= ?", from).
		Where("created_at < ?", to).
		Count(ctx)
}
