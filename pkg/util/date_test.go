package util

import (
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	got, ok := ParseDay("2025-03-10")
	if !ok {
		t.Fatalf("expected ok")
	}
	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestParseDayRFC3339(t *testing.T) {
	got, ok := ParseDay("2025-03-10T15:04:05Z")
	if !ok {
		t.Fatalf("expected ok")
	}
	if DayString(got) != "2025-03-10" {
		t.Fatalf("unexpected day %v", got)
	}
}

func TestParseDayDefault(t *testing.T) {
	def := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	got := ParseDayDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC)
	if n := DaysBetween(a, b); n != 30 {
		t.Fatalf("expected 30 days, got %d", n)
	}
	if n := DaysBetween(b, a); n != 0 {
		t.Fatalf("expected 0 for inverted range, got %d", n)
	}
}

func TestCalendarDaysContiguous(t *testing.T) {
	a := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	days := CalendarDays(a, b)
	if len(days) != 4 {
		t.Fatalf("expected 4 days, got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) != 24*time.Hour {
			t.Fatalf("gap between %v and %v", days[i-1], days[i])
		}
	}
}
