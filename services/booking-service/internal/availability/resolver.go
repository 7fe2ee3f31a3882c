// Package availability turns a weekly template plus appointment-type rules
// into concrete bookable start times. It is pure: callers supply the busy
// intervals and the current time, so two calls with the same inputs always
// produce the same slots.
package availability

import (
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/localtime"
	"github.com/breederbook/scheduling/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals [a.Start,a.End) and
// [b.Start,b.End) intersect.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Template is the resolved, timezone-bound slice of SchedulingSettings the
// resolver needs.
type Template struct {
	Location     *time.Location
	Weekly       model.WeeklyAvailability
	SlotInterval time.Duration
	MinAdvance   time.Duration
	MaxAdvance   time.Duration
}

// TemplateFromSettings resolves the settings timezone once. Settings are
// validated at save time, so an unresolvable zone here is a stored-data bug.
func TemplateFromSettings(s *model.SchedulingSettings) (Template, error) {
	loc, err := localtime.Zone(s.Timezone)
	if err != nil {
		return Template{}, err
	}
	return Template{
		Location:     loc,
		Weekly:       s.Weekly,
		SlotInterval: s.SlotInterval,
		MinAdvance:   s.MinAdvance,
		MaxAdvance:   s.MaxAdvance,
	}, nil
}

// WithinWindow reports whether start lies inside [now+MinAdvance,
// now+MaxAdvance], the breeder's booking window.
func (tpl Template) WithinWindow(start, now time.Time) bool {
	return !start.Before(now.Add(tpl.MinAdvance)) && !start.After(now.Add(tpl.MaxAdvance))
}

// OpenSlots generates candidate start times for one appointment type between
// from and to, skipping candidates whose buffered span touches a busy
// interval. The requested range is clipped to the booking window first; an
// empty clipped range yields no slots, not an error. Results are in
// chronological order.
func OpenSlots(tpl Template, at model.AppointmentType, busy []Interval, from, to, now time.Time) []time.Time {
	if tpl.SlotInterval <= 0 || at.Duration <= 0 {
		return nil
	}

	minStart := now.Add(tpl.MinAdvance)
	maxStart := now.Add(tpl.MaxAdvance)
	if from.Before(minStart) {
		from = minStart
	}
	if to.After(maxStart) {
		to = maxStart
	}
	if from.After(to) {
		return nil
	}

	var slots []time.Time
	day := localtime.StartOfDay(from, tpl.Location)
	for !day.After(to) {
		weekday := day.In(tpl.Location).Weekday()
		for _, win := range tpl.Weekly[weekday] {
			winStart := localtime.At(day, win.Start, tpl.Location)
			winEnd := localtime.At(day, win.End, tpl.Location)

			// The whole buffered span must fit inside the window:
			// start - bufferBefore >= winStart and
			// start + duration + bufferAfter <= winEnd.
			for t := winStart.Add(at.BufferBefore); !t.Add(at.Duration + at.BufferAfter).After(winEnd); t = t.Add(tpl.SlotInterval) {
				if t.Before(from) || t.After(to) {
					continue
				}
				span := Interval{Start: t.Add(-at.BufferBefore), End: t.Add(at.Duration + at.BufferAfter)}
				if overlapsAny(span, busy) {
					continue
				}
				slots = append(slots, t)
			}
		}
		day = localtime.NextDay(day, tpl.Location)
	}
	return slots
}

// SlotOpen re-runs candidate generation for the specific start's local day and
// reports whether start is one of the currently open slots. Booking creation
// uses this instead of trusting a client-cached slot list.
func SlotOpen(tpl Template, at model.AppointmentType, busy []Interval, start, now time.Time) bool {
	dayStart := localtime.StartOfDay(start, tpl.Location)
	dayEnd := localtime.NextDay(dayStart, tpl.Location)
	for _, slot := range OpenSlots(tpl, at, busy, dayStart, dayEnd, now) {
		if slot.Equal(start) {
			return true
		}
	}
	return false
}

func overlapsAny(span Interval, busy []Interval) bool {
	for _, b := range busy {
		if span.Overlaps(b) {
			return true
		}
	}
	return false
}
