package promo

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDiscountTable(t *testing.T) {
	// 2026-08-24 is a Monday.
	tests := []struct {
		day  time.Time
		want int
	}{
		{date(2026, time.August, 24, 12, 0), 40},
		{date(2026, time.August, 25, 12, 0), 30},
		{date(2026, time.August, 26, 12, 0), 30},
		{date(2026, time.August, 27, 12, 0), 30},
		{date(2026, time.August, 28, 12, 0), 20},
		{date(2026, time.August, 29, 12, 0), 20},
		{date(2026, time.August, 30, 12, 0), 30},
	}
	for _, tt := range tests {
		t.Run(tt.day.Weekday().String(), func(t *testing.T) {
			if got := DefaultDiscounts.For(tt.day); got != tt.want {
				t.Errorf("For(%s) = %d, want %d", tt.day.Weekday(), got, tt.want)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	start := HourMinute{Hour: 12}
	end := HourMinute{Hour: 19}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"one minute before open", date(2026, time.August, 24, 11, 59), false},
		{"exactly at open", date(2026, time.August, 24, 12, 0), true},
		{"mid window", date(2026, time.August, 24, 15, 30), true},
		{"exactly at close", date(2026, time.August, 24, 19, 0), true},
		{"one minute after close", date(2026, time.August, 24, 19, 1), false},
		{"midnight", date(2026, time.August, 24, 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InWindow(tt.at, start, end); got != tt.want {
				t.Errorf("InWindow(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestValidUntil(t *testing.T) {
	issued := date(2026, time.August, 24, 14, 30)
	got := ValidUntil(issued, HourMinute{Hour: 22})
	want := date(2026, time.August, 25, 22, 0)
	if !got.Equal(want) {
		t.Errorf("ValidUntil = %s, want %s", got, want)
	}
}

func TestParseHourMinute(t *testing.T) {
	tests := []struct {
		in      string
		want    HourMinute
		wantErr bool
	}{
		{in: "12:00", want: HourMinute{Hour: 12}},
		{in: "09:05", want: HourMinute{Hour: 9, Minute: 5}},
		{in: "23:59", want: HourMinute{Hour: 23, Minute: 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHourMinute(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHourMinute(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHourMinute(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHourMinute(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHourMinuteMinus(t *testing.T) {
	got := HourMinute{Hour: 12}.Minus(5 * time.Minute)
	if got != (HourMinute{Hour: 11, Minute: 55}) {
		t.Errorf("Minus = %v, want 11:55", got)
	}
	if got := (HourMinute{}).Minus(time.Hour); got != (HourMinute{}) {
		t.Errorf("Minus below midnight = %v, want 00:00", got)
	}
}
