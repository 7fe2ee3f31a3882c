package availability

import (
	"testing"
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/localtime"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

func mustClock(t *testing.T, s string) localtime.Clock {
	t.Helper()
	c, err := localtime.ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q) failed: %v", s, err)
	}
	return c
}

// 2026-01-26 is a Monday.
func mondayTemplate(t *testing.T, loc *time.Location) Template {
	t.Helper()
	return Template{
		Location: loc,
		Weekly: model.WeeklyAvailability{
			time.Monday: {{Start: mustClock(t, "09:00"), End: mustClock(t, "12:00")}},
		},
		SlotInterval: 30 * time.Minute,
		MinAdvance:   time.Hour,
		MaxAdvance:   60 * 24 * time.Hour,
	}
}

func TestOpenSlots_BufferShortensWindow(t *testing.T) {
	tpl := mondayTemplate(t, time.UTC)
	at := model.AppointmentType{
		Duration:    60 * time.Minute,
		BufferAfter: 15 * time.Minute,
		Enabled:     true,
	}

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	slots := OpenSlots(tpl, at, nil, from, to, now)
	// Last candidate must finish duration+buffer by 12:00, so 10:30 is the
	// final start: 09:00, 09:30, 10:00, 10:30.
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d: %v", len(slots), slots)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30"}
	for i, w := range want {
		if got := slots[i].UTC().Format("15:04"); got != w {
			t.Fatalf("slot %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestOpenSlots_BusyIntervalBlocksBufferedSpan(t *testing.T) {
	tpl := mondayTemplate(t, time.UTC)
	at := model.AppointmentType{Duration: 60 * time.Minute, BufferAfter: 15 * time.Minute, Enabled: true}

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	busy := []Interval{{
		Start: time.Date(2026, 1, 26, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 26, 10, 0, 0, 0, time.UTC),
	}}

	slots := OpenSlots(tpl, at, busy, from, to, now)
	// 09:00 and 09:30 spans cross the busy block. 10:00 starts exactly at its
	// half-open end and is fine.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d: %v", len(slots), slots)
	}
	if got := slots[0].UTC().Format("15:04"); got != "10:00" {
		t.Fatalf("expected first slot 10:00, got %s", got)
	}
	if got := slots[1].UTC().Format("15:04"); got != "10:30" {
		t.Fatalf("expected second slot 10:30, got %s", got)
	}
}

func TestOpenSlots_ClipsToBookingWindow(t *testing.T) {
	tpl := mondayTemplate(t, time.UTC)
	tpl.MinAdvance = 24 * time.Hour
	at := model.AppointmentType{Duration: 60 * time.Minute, Enabled: true}

	// Asking for slots tomorrow morning when the minimum advance pushes past
	// them yields nothing.
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	slots := OpenSlots(tpl, at, nil, from, to, now)
	if len(slots) != 0 {
		t.Fatalf("expected no slots inside min advance, got %v", slots)
	}

	// Entirely beyond max advance also yields nothing.
	tpl.MinAdvance = time.Hour
	tpl.MaxAdvance = 12 * time.Hour
	slots = OpenSlots(tpl, at, nil, from, to, now)
	if len(slots) != 0 {
		t.Fatalf("expected no slots beyond max advance, got %v", slots)
	}
}

func TestOpenSlots_TimezoneBoundary(t *testing.T) {
	syd, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}
	tpl := mondayTemplate(t, syd)
	at := model.AppointmentType{Duration: 60 * time.Minute, Enabled: true}

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	// Sunday evening UTC covers Monday morning in Sydney.
	from := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 27, 0, 0, 0, 0, time.UTC)

	slots := OpenSlots(tpl, at, nil, from, to, now)
	if len(slots) == 0 {
		t.Fatal("expected Sydney Monday slots")
	}
	wantFirst := time.Date(2026, 1, 26, 9, 0, 0, 0, syd)
	if !slots[0].Equal(wantFirst) {
		t.Fatalf("expected first slot %s, got %s", wantFirst, slots[0])
	}
	// AEDT is UTC+11, so Monday 09:00 local is Sunday 22:00 UTC.
	if got := slots[0].UTC().Format("Mon 15:04"); got != "Sun 22:00" {
		t.Fatalf("expected Sun 22:00 UTC, got %s", got)
	}
}

func TestWithinWindowInclusiveBounds(t *testing.T) {
	tpl := Template{MinAdvance: time.Hour, MaxAdvance: 48 * time.Hour}
	now := time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC)

	if !tpl.WithinWindow(now.Add(time.Hour), now) {
		t.Fatal("exact min advance boundary should be bookable")
	}
	if !tpl.WithinWindow(now.Add(48*time.Hour), now) {
		t.Fatal("exact max advance boundary should be bookable")
	}
	if tpl.WithinWindow(now.Add(59*time.Minute), now) {
		t.Fatal("inside min advance should not be bookable")
	}
	if tpl.WithinWindow(now.Add(48*time.Hour+time.Minute), now) {
		t.Fatal("beyond max advance should not be bookable")
	}
}

func TestSlotOpen(t *testing.T) {
	tpl := mondayTemplate(t, time.UTC)
	at := model.AppointmentType{Duration: 60 * time.Minute, Enabled: true}
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	aligned := time.Date(2026, 1, 26, 9, 30, 0, 0, time.UTC)
	if !SlotOpen(tpl, at, nil, aligned, now) {
		t.Fatal("expected aligned slot open")
	}

	offGrid := time.Date(2026, 1, 26, 9, 10, 0, 0, time.UTC)
	if SlotOpen(tpl, at, nil, offGrid, now) {
		t.Fatal("off-grid start must not be bookable")
	}

	busy := []Interval{{Start: aligned, End: aligned.Add(30 * time.Minute)}}
	if SlotOpen(tpl, at, busy, aligned, now) {
		t.Fatal("busy slot must not be bookable")
	}
}

func TestIntervalOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(time.Hour)}
	touching := Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	if a.Overlaps(touching) {
		t.Fatal("adjacent intervals must not overlap")
	}
	crossing := Interval{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}
	if !a.Overlaps(crossing) {
		t.Fatal("crossing intervals must overlap")
	}
}
