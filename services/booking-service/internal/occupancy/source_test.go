package occupancy

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/services/booking-service/internal/availability"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

type fakeBookings struct {
	intervals []availability.Interval
	err       error
}

func (f *fakeBookings) BufferedIntervals(context.Context, string, time.Time, time.Time) ([]availability.Interval, error) {
	return f.intervals, f.err
}

type fakeBusySource struct {
	blocks []gcal.BusyBlock
	err    error
	calls  int
}

func (f *fakeBusySource) ListBusyBlocks(context.Context, string, time.Time, time.Time) ([]gcal.BusyBlock, error) {
	f.calls++
	return f.blocks, f.err
}

func syncedSettings() *model.SchedulingSettings {
	return &model.SchedulingSettings{
		BreederID:   "br-1",
		SyncEnabled: true,
		CalendarID:  "cal-1",
	}
}

func TestBusyIntervals_MergesInternalAndExternal(t *testing.T) {
	base := time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)
	internal := &fakeBookings{intervals: []availability.Interval{
		{Start: base, End: base.Add(time.Hour)},
	}}
	external := &fakeBusySource{blocks: []gcal.BusyBlock{
		{Start: base.Add(30 * time.Minute), End: base.Add(2 * time.Hour)},
	}}

	src := NewSource(internal, external, slog.Default())
	busy, stale, err := src.BusyIntervals(context.Background(), syncedSettings(), base, base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("BusyIntervals failed: %v", err)
	}
	if stale {
		t.Fatal("expected fresh result")
	}
	if len(busy) != 1 {
		t.Fatalf("expected overlapping intervals coalesced into 1, got %d", len(busy))
	}
	if !busy[0].Start.Equal(base) || !busy[0].End.Equal(base.Add(2*time.Hour)) {
		t.Fatalf("unexpected coalesced interval: %+v", busy[0])
	}
}

func TestBusyIntervals_ExternalFailureIsStaleNotFatal(t *testing.T) {
	base := time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)
	internal := &fakeBookings{intervals: []availability.Interval{
		{Start: base, End: base.Add(time.Hour)},
	}}
	external := &fakeBusySource{err: errors.New("calendar down")}

	src := NewSource(internal, external, slog.Default())
	busy, stale, err := src.BusyIntervals(context.Background(), syncedSettings(), base, base.Add(8*time.Hour))
	if err != nil {
		t.Fatalf("external failure must not error: %v", err)
	}
	if !stale {
		t.Fatal("expected stale flag on external failure")
	}
	if len(busy) != 1 {
		t.Fatalf("expected internal intervals preserved, got %d", len(busy))
	}
}

func TestBusyIntervals_InternalFailureIsFatal(t *testing.T) {
	internal := &fakeBookings{err: errors.New("db down")}
	src := NewSource(internal, nil, slog.Default())
	_, _, err := src.BusyIntervals(context.Background(), syncedSettings(), time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatal("ledger failure must propagate")
	}
}

func TestBusyIntervals_SkipsExternalWhenSyncDisabled(t *testing.T) {
	external := &fakeBusySource{}
	src := NewSource(&fakeBookings{}, external, slog.Default())

	settings := &model.SchedulingSettings{BreederID: "br-1", SyncEnabled: false, CalendarID: "cal-1"}
	_, stale, err := src.BusyIntervals(context.Background(), settings, time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("BusyIntervals failed: %v", err)
	}
	if stale {
		t.Fatal("no external source consulted, nothing can be stale")
	}
	if external.calls != 0 {
		t.Fatalf("external source must not be called, got %d calls", external.calls)
	}
}

func TestCoalesce(t *testing.T) {
	base := time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)
	in := []availability.Interval{
		{Start: base.Add(3 * time.Hour), End: base.Add(4 * time.Hour)},
		{Start: base, End: base.Add(time.Hour)},
		{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, // touches the first
	}
	out := Coalesce(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 intervals, got %d: %+v", len(out), out)
	}
	if !out[0].End.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("expected touching intervals merged, got %+v", out[0])
	}
}
