// Package occupancy aggregates the busy intervals that make time unbookable:
// this system's own pending/confirmed bookings (expanded by their buffers) and
// the external calendar mirror's busy blocks.
package occupancy

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/services/booking-service/internal/availability"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

// BookingIntervals is the ledger read needed here: buffered [start,end) spans
// of non-terminal bookings intersecting the range.
type BookingIntervals interface {
	BufferedIntervals(ctx context.Context, breederID string, from, to time.Time) ([]availability.Interval, error)
}

type Source struct {
	bookings BookingIntervals
	external gcal.BusySource
	logger   *slog.Logger
}

func NewSource(bookings BookingIntervals, external gcal.BusySource, logger *slog.Logger) *Source {
	return &Source{bookings: bookings, external: external, logger: logger}
}

// BusyIntervals returns the coalesced busy set for a breeder and range.
//
// The internal side is fail-closed: if the ledger can't be read, the whole
// call errors, because offering slots without knowing our own bookings risks
// double-booking. The external side is fail-open: an unreachable mirror
// degrades to internal-only busy data with stale=true, and callers must
// surface a possibly-stale warning rather than silently proceeding.
func (s *Source) BusyIntervals(ctx context.Context, settings *model.SchedulingSettings, from, to time.Time) ([]availability.Interval, bool, error) {
	internal, err := s.bookings.BufferedIntervals(ctx, settings.BreederID, from, to)
	if err != nil {
		return nil, false, err
	}

	stale := false
	merged := internal
	if s.external != nil && settings.SyncEnabled && settings.CalendarID != "" {
		blocks, err := s.external.ListBusyBlocks(ctx, settings.CalendarID, from, to)
		if err != nil {
			s.logger.Warn("external busy fetch failed; availability may be stale",
				"breeder_id", settings.BreederID, "err", err)
			stale = true
		} else {
			for _, b := range blocks {
				merged = append(merged, availability.Interval{Start: b.Start, End: b.End})
			}
		}
	}

	return Coalesce(merged), stale, nil
}

// Coalesce sorts intervals and merges any that overlap or touch.
func Coalesce(intervals []availability.Interval) []availability.Interval {
	if len(intervals) <= 1 {
		return intervals
	}
	sorted := make([]availability.Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := sorted[:1]
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
