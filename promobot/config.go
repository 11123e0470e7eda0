package promobot

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/restobar/promo-bot/promobot/database"
	"github.com/restobar/promo-bot/promobot/promo"
	"github.com/restobar/promo-bot/promobot/reward"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log      LogConfig         `toml:"log"`
	DB       database.DBConfig `toml:"db"`
	Access   AccessConfig      `toml:"access"`
	Promo    PromoConfig       `toml:"promo"`
	Rewards  RewardsConfig     `toml:"rewards"`
	Schedule ScheduleConfig    `toml:"schedule"`
	Notify   NotifyConfig      `toml:"notify"`
	Timezone string            `toml:"timezone"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type AccessConfig struct {
	// "open" skips the approval gate entirely.
	Mode string `toml:"mode"`
	Hint string `toml:"hint"`
}

type PromoConfig struct {
	WindowStart promo.HourMinute `toml:"window_start"`
	WindowEnd   promo.HourMinute `toml:"window_end"`
	ValidUntil  promo.HourMinute `toml:"valid_until"`
	Discounts   []int            `toml:"discounts"`
}

type RewardsConfig struct {
	CooldownDays int           `toml:"cooldown_days"`
	ExpiryDays   int           `toml:"expiry_days"`
	Prizes       []PrizeConfig `toml:"prizes"`
}

type PrizeConfig struct {
	Label  string `toml:"label"`
	Weight int    `toml:"weight"`
}

type ScheduleConfig struct {
	WakeSeconds       int              `toml:"wake_seconds"`
	ReminderLeadMin   int              `toml:"reminder_lead_minutes"`
	ReminderTolerance int              `toml:"reminder_tolerance_seconds"`
	ReportAt          promo.HourMinute `toml:"report_at"`
	ReportTolerance   int              `toml:"report_tolerance_seconds"`
	WeeklyDay         int              `toml:"weekly_day"`
	WeeklyAt          promo.HourMinute `toml:"weekly_at"`
	PrizeDay          int              `toml:"prize_day"`
	PrizeAt           promo.HourMinute `toml:"prize_at"`
	SweepMinutes      int              `toml:"sweep_minutes"`
	SessionTTLMinutes int              `toml:"session_ttl_minutes"`
}

type NotifyConfig struct {
	AdminIDs             []int64  `toml:"admin_ids"`
	ExtraTargets         []string `toml:"extra_targets"`
	BroadcastConcurrency int      `toml:"broadcast_concurrency"`
	InactiveAfterDays    int      `toml:"inactive_after_days"`
}

func (c *Config) applyDefaults() {
	zero := promo.HourMinute{}
	if c.Promo.WindowStart == zero && c.Promo.WindowEnd == zero {
		c.Promo.WindowStart = promo.HourMinute{Hour: 12}
		c.Promo.WindowEnd = promo.HourMinute{Hour: 19}
	}
	if c.Promo.ValidUntil == zero {
		c.Promo.ValidUntil = promo.HourMinute{Hour: 22}
	}
	if c.Rewards.CooldownDays <= 0 {
		c.Rewards.CooldownDays = 7
	}
	if c.Rewards.ExpiryDays <= 0 {
		c.Rewards.ExpiryDays = 7
	}
	if c.Schedule.WakeSeconds <= 0 {
		c.Schedule.WakeSeconds = 30
	}
	if c.Schedule.ReminderLeadMin <= 0 {
		c.Schedule.ReminderLeadMin = 5
	}
	if c.Schedule.ReminderTolerance <= 0 {
		c.Schedule.ReminderTolerance = 90
	}
	if c.Schedule.ReportAt == zero {
		c.Schedule.ReportAt = promo.HourMinute{Hour: 1}
	}
	if c.Schedule.ReportTolerance <= 0 {
		c.Schedule.ReportTolerance = 59
	}
	if c.Schedule.WeeklyDay == 0 {
		c.Schedule.WeeklyDay = int(time.Monday)
	}
	if c.Schedule.WeeklyAt == zero {
		c.Schedule.WeeklyAt = promo.HourMinute{Hour: 10}
	}
	if c.Schedule.PrizeDay == 0 {
		c.Schedule.PrizeDay = int(time.Friday)
	}
	if c.Schedule.PrizeAt == zero {
		c.Schedule.PrizeAt = promo.HourMinute{Hour: 18}
	}
	if c.Schedule.SweepMinutes <= 0 {
		c.Schedule.SweepMinutes = 30
	}
	if c.Schedule.SessionTTLMinutes <= 0 {
		c.Schedule.SessionTTLMinutes = 30
	}
	if c.Notify.BroadcastConcurrency <= 0 {
		c.Notify.BroadcastConcurrency = 4
	}
	if c.Notify.InactiveAfterDays <= 0 {
		c.Notify.InactiveAfterDays = 30
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
}

// DiscountTable builds the Monday-first table from config, falling
// back to the house defaults when unset or malformed.
func (c *Config) DiscountTable() promo.DiscountTable {
	if len(c.Promo.Discounts) != 7 {
		return promo.DefaultDiscounts
	}
	var table promo.DiscountTable
	copy(table[:], c.Promo.Discounts)
	return table
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// PrizeCatalog converts configured prizes for the reward manager.
func (c *Config) PrizeCatalog() []reward.Prize {
	out := make([]reward.Prize, 0, len(c.Rewards.Prizes))
	for _, p := range c.Rewards.Prizes {
		out = append(out, reward.Prize{Label: p.Label, Weight: p.Weight})
	}
	return out
}
