// Package calendar provides the date-string helpers used to key chats and
// mentor memory by calendar day.
package calendar

import (
	"fmt"
	"time"
)

// Layout is the canonical date-string layout (YYYY-MM-DD).
const Layout = "2006-01-02"

// Clock returns the current time. Tests replace it with a fixed clock.
type Clock func() time.Time

// Today returns the date string for the clock's current day.
func (c Clock) Today() string {
	if c == nil {
		return Format(time.Now())
	}
	return Format(c())
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// Format renders t as a date string in t's location.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse parses a date string into midnight UTC of that day.
func Parse(dateStr string) (time.Time, error) {
	t, err := time.Parse(Layout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	return t, nil
}

// Valid reports whether dateStr is a well-formed calendar date.
func Valid(dateStr string) bool {
	_, err := Parse(dateStr)
	return err == nil
}

// DaysBetween returns the number of whole calendar days from one date
// string to another (positive when to is after from).
func DaysBetween(from, to string) (int, error) {
	f, err := Parse(from)
	if err != nil {
		return 0, err
	}
	t, err := Parse(to)
	if err != nil {
		return 0, err
	}
	return int(t.Sub(f).Hours() / 24), nil
}

// Absolute renders a date string like "Jan 02, 2006". Malformed input is
// returned unchanged.
func Absolute(dateStr string) string {
	t, err := Parse(dateStr)
	if err != nil {
		return dateStr
	}
	return t.Format("Jan 02, 2006")
}

// Relative renders dateStr relative to the reference day ref, e.g.
// "Today", "Yesterday", "This Monday", "Last week, Tuesday",
// "3 weeks ago, Friday", "Next week, Sunday" or "In 2 weeks, Monday".
// Weeks start on Monday.
func Relative(dateStr, ref string) string {
	target, err := Parse(dateStr)
	if err != nil {
		return dateStr
	}
	now, err := Parse(ref)
	if err != nil {
		return dateStr
	}

	diffDays := int(now.Sub(target).Hours() / 24)
	switch diffDays {
	case 0:
		return "Today"
	case 1:
		return "Yesterday"
	case -1:
		return "Tomorrow"
	}

	weekday := target.Weekday().String()
	diffWeeks := int(startOfWeek(now).Sub(startOfWeek(target)).Hours() / (24 * 7))

	switch {
	case diffWeeks == 0:
		return "This " + weekday
	case diffWeeks == 1:
		return "Last week, " + weekday
	case diffWeeks == -1:
		return "Next week, " + weekday
	case diffWeeks > 1:
		return fmt.Sprintf("%d weeks ago, %s", diffWeeks, weekday)
	default:
		return fmt.Sprintf("In %d weeks, %s", -diffWeeks, weekday)
	}
}

func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return t.AddDate(0, 0, -offset)
}
