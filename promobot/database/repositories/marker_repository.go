package repositories

import (
	"context"
	"time"

	"github.com/restobar/promo-bot/promobot/database/models"
	"github.com/uptrace/bun"
)

// MarkerRepository stores per-trigger last-fired period keys so the
// scheduler survives restarts without double-firing.
type MarkerRepository interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, trigger, periodKey string, firedAt time.Time) error
}

type markerRepository struct {
	db *bun.DB
}

func NewMarkerRepository(db *bun.DB) MarkerRepository {
	return &markerRepository{db: db}
}

func (r *markerRepository) All(ctx context.Context) (map[string]string, error) {
	var rows []*models.SchedulerMarker
	if err := r.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Trigger] = row.PeriodKey
	}
	return out, nil
}

func (r *markerRepository) Set(ctx context.Context, trigger, periodKey string, firedAt time.Time) error {
	marker := &models.SchedulerMarker{
		Trigger:   trigger,
		PeriodKey: periodKey,
		FiredAt:   firedAt,
	}
	_, err := r.db.NewInsert().
		Model(marker).
		On("CONFLICT (trigger) DO UPDATE").
		Set("period_key = EXCLUDED.period_key").
		Set("fired_at = EXCLUDED.fired_at").
		Exec(ctx)
	return err
}
