package localtime

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if c.Hour() != 9 || c.Minute() != 30 {
		t.Fatalf("expected 09:30, got %s", c)
	}

	for _, bad := range []string{"", "25:00", "12:60", "9h30", "-1:00"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestAtAppliesDateSpecificOffset(t *testing.T) {
	loc, err := Zone("America/New_York")
	if err != nil {
		t.Fatalf("Zone failed: %v", err)
	}

	clock, _ := ParseClock("09:00")

	// 2026-03-07 is EST (UTC-5), 2026-03-08 is after spring-forward (UTC-4).
	before := At(time.Date(2026, 3, 7, 0, 0, 0, 0, loc), clock, loc)
	after := At(time.Date(2026, 3, 8, 12, 0, 0, 0, loc), clock, loc)

	if got := before.UTC().Hour(); got != 14 {
		t.Fatalf("expected 09:00 EST = 14:00 UTC, got %02d:00", got)
	}
	if got := after.UTC().Hour(); got != 13 {
		t.Fatalf("expected 09:00 EDT = 13:00 UTC, got %02d:00", got)
	}
}

func TestNextDaySurvivesShortDay(t *testing.T) {
	loc, _ := Zone("America/New_York")

	// The spring-forward day is 23 hours long; NextDay must still land on
	// local midnight, not 23:00.
	day := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	next := NextDay(day, loc)
	if next.Hour() != 0 || next.Day() != 9 {
		t.Fatalf("expected midnight March 9, got %s", next)
	}
	if elapsed := next.Sub(day); elapsed != 23*time.Hour {
		t.Fatalf("expected a 23h day, got %s", elapsed)
	}
}

func TestDayAndClock(t *testing.T) {
	loc, _ := Zone("Australia/Sydney")

	// Sunday 22:00 UTC in January is Monday 09:00 AEDT.
	instant := time.Date(2026, 1, 25, 22, 0, 0, 0, time.UTC)
	day, clock := DayAndClock(instant, loc)
	if day != time.Monday {
		t.Fatalf("expected Monday, got %s", day)
	}
	if clock.String() != "09:00" {
		t.Fatalf("expected 09:00, got %s", clock)
	}
}
