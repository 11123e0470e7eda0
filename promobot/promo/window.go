package promo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HourMinute is a wall-clock time of day, parsed from "HH:MM".
type HourMinute struct {
	Hour   int
	Minute int
}

func ParseHourMinute(s string) (HourMinute, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return HourMinute{}, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return HourMinute{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return HourMinute{}, fmt.Errorf("invalid minute in %q", s)
	}
	return HourMinute{Hour: h, Minute: m}, nil
}

func (hm *HourMinute) UnmarshalText(b []byte) error {
	parsed, err := ParseHourMinute(string(b))
	if err != nil {
		return err
	}
	*hm = parsed
	return nil
}

func (hm HourMinute) String() string {
	return fmt.Sprintf("%02d:%02d", hm.Hour, hm.Minute)
}

// At returns the instant of this time of day on the same calendar day as t.
func (hm HourMinute) At(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hm.Hour, hm.Minute, 0, 0, t.Location())
}

// Minus shifts the time of day earlier by d, clamping at midnight.
func (hm HourMinute) Minus(d time.Duration) HourMinute {
	total := hm.Hour*60 + hm.Minute - int(d.Minutes())
	if total < 0 {
		total = 0
	}
	return HourMinute{Hour: total / 60, Minute: total % 60}
}

// DayKey returns the calendar date string used as a dedup key for daily
// entities. It is always computed in the timestamp's own location, so
// callers must pass timestamps already converted to the program zone.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DiscountTable maps weekdays to a discount percentage, Monday first.
type DiscountTable [7]int

var DefaultDiscounts = DiscountTable{40, 30, 30, 30, 20, 20, 30}

func (dt DiscountTable) For(t time.Time) int {
	return dt[mondayIndex(t.Weekday())]
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// InWindow reports whether t falls inside the issuing window on its own
// calendar day, inclusive on both ends.
func InWindow(t time.Time, start, end HourMinute) bool {
	s := start.At(t)
	e := end.At(t)
	return !t.Before(s) && !t.After(e)
}

// ValidUntil returns the cutoff instant on the day after t.
func ValidUntil(t time.Time, cutoff HourMinute) time.Time {
	return cutoff.At(t.AddDate(0, 0, 1))
}
