package calendar

import (
	"testing"
	"time"
)

func TestClockToday(t *testing.T) {
	clock := Fixed(time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC))
	if got := clock.Today(); got != "2024-03-09" {
		t.Errorf("Today() = %q, want 2024-03-09", got)
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2024-01-01", "2024-01-01", 0},
		{"2024-01-01", "2024-01-08", 7},
		{"2024-02-28", "2024-03-01", 2}, // leap year
		{"2024-01-10", "2024-01-01", -9},
	}
	for _, tt := range tests {
		got, err := DaysBetween(tt.from, tt.to)
		if err != nil {
			t.Fatalf("DaysBetween(%s, %s) error: %v", tt.from, tt.to, err)
		}
		if got != tt.want {
			t.Errorf("DaysBetween(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}

	if _, err := DaysBetween("yesterday", "2024-01-01"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestAbsolute(t *testing.T) {
	if got := Absolute("2025-02-11"); got != "Feb 11, 2025" {
		t.Errorf("Absolute() = %q", got)
	}
	if got := Absolute("garbage"); got != "garbage" {
		t.Errorf("Absolute() should pass through malformed input, got %q", got)
	}
}

func TestRelative(t *testing.T) {
	// 2024-01-10 is a Wednesday.
	ref := "2024-01-10"
	tests := []struct {
		date string
		want string
	}{
		{"2024-01-10", "Today"},
		{"2024-01-09", "Yesterday"},
		{"2024-01-11", "Tomorrow"},
		{"2024-01-08", "This Monday"},
		{"2024-01-14", "This Sunday"},
		{"2024-01-02", "Last week, Tuesday"},
		{"2023-12-27", "2 weeks ago, Wednesday"},
		{"2024-01-16", "Next week, Tuesday"},
		{"2024-01-24", "In 2 weeks, Wednesday"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			if got := Relative(tt.date, ref); got != tt.want {
				t.Errorf("Relative(%s, %s) = %q, want %q", tt.date, ref, got, tt.want)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid("2024-12-31") {
		t.Error("expected valid date")
	}
	for _, s := range []string{"", "2024-13-01", "2024-1-1", "today"} {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}
