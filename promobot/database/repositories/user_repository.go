package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

type UserRepository interface {
	// Touch creates the user on first contact and refreshes the
	// Telegram identity fields plus last_seen on every later one.
	Touch(ctx context.Context, actor models.Actor, now time.Time) error
	GetByTelegramID(ctx context.Context, id int64) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	SetContact(ctx context.Context, id int64, name, phone string, now time.Time) error
	Approve(ctx context.Context, id int64) error
	Block(ctx context.Context, id int64) error
	ActiveApprovedIDs(ctx context.Context, seenSince time.Time) ([]int64, error)
	Count(ctx context.Context) (int, error)
	CountInactive(ctx context.Context, seenBefore time.Time) (int, error)
	CountJoinedBetween(ctx context.Context, from, to time.Time) (int, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Touch(ctx context.Context, actor models.Actor, now time.Time) error {
	user := &models.User{
		TelegramID: actor.ID,
		FirstName:  actor.FirstName,
		LastName:   actor.LastName,
		Username:   actor.Username,
		JoinedAt:   now,
		LastSeen:   now,
	}
	_, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (tg_id) DO UPDATE").
		Set("tg_first_name = EXCLUDED.tg_first_name").
		Set("tg_last_name = EXCLUDED.tg_last_name").
		Set("tg_username = EXCLUDED.tg_username").
		Set("last_seen = EXCLUDED.last_seen").
		Exec(ctx)
	return err
}

func (r *userRepository) GetByTelegramID(ctx context.Context, id int64) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("tg_id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return user, nil
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("phone = ?", phone).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return user, nil
}

func (r *userRepository) SetContact(ctx context.Context, id int64, name, phone string, now time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("name = ?", name).
		Set("phone = ?", phone).
		Set("last_seen = ?", now).
		Where("tg_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) Approve(ctx context.Context, id int64) error {
	return r.setAccess(ctx, id, true, false)
}

func (r *userRepository) Block(ctx context.Context, id int64) error {
	return r.setAccess(ctx, id, false, true)
}

func (r *userRepository) setAccess(ctx context.Context, id int64, approved, blocked bool) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("approved = ?", approved).
		Set("blocked = ?", blocked).
		Where("tg_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug("User access updated",
		slog.String("type", "db"),
		slog.Int64("tg_id", id),
		slog.Bool("approved", approved),
		slog.Bool("blocked", blocked))
	return nil
}

func (r *userRepository) ActiveApprovedIDs(ctx context.Context, seenSince time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Column("tg_id").
		Where("approved = TRUE").
		Where("blocked = FALSE").
		Where("last_seen >= ?", seenSince).
		Scan(ctx, &ids)
	return ids, err
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*models.User)(nil)).Count(ctx)
}

func (r *userRepository) CountInactive(ctx context.Context, seenBefore time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("last_seen < ?", seenBefore).
		Count(ctx)
}

func (r *userRepository) CountJoinedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("joined_at >= ?", from).
		Where("joined_at < ?", to).
		Count(ctx)
}
