package util

import (
	"time"
)

// DayFormat is the canonical wire layout for chart dates.
const DayFormat = "2006-01-02"

// ParseDay tries YYYY-MM-DD and RFC3339, truncating to UTC midnight.
// Returns (t, true) if either worked.
func ParseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DayFormat, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t), true
	}
	return time.Time{}, false
}

// ParseDayDefault parses a day or returns def if empty/invalid.
func ParseDayDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDay(s); ok {
		return t
	}
	return def
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayString formats t as YYYY-MM-DD.
func DayString(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// DaysBetween counts calendar days in [start, end] inclusive.
// Returns 0 when end precedes start.
func DaysBetween(start, end time.Time) int {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// CalendarDays generates every calendar date in [start, end] inclusive.
// This is the contiguous axis callers left-join sparse rows onto.
func CalendarDays(start, end time.Time) []time.Time {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil
	}
	out := make([]time.Time, 0, DaysBetween(start, end))
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
