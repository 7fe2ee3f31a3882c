package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/localtime"
)

// Window is one bookable local time-of-day interval, start < end.
type Window struct {
	Start localtime.Clock `json:"start"`
	End   localtime.Clock `json:"end"`
}

// WeeklyAvailability maps a weekday to its ordered, non-overlapping windows.
type WeeklyAvailability map[time.Weekday][]Window

// AppointmentType is one entry of a breeder's catalog. Duration and buffers
// are snapshotted onto bookings at creation, so edits never rewrite history.
type AppointmentType struct {
	ID           string
	BreederID    string
	Name         string
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	Enabled      bool
	DisplayOrder int
}

// SchedulingSettings is the single-writer, per-breeder scheduling
// configuration.
type SchedulingSettings struct {
	BreederID   string
	Timezone    string
	Weekly      WeeklyAvailability
	Types       []AppointmentType
	MinAdvance   time.Duration // earliest bookable offset from now
	MaxAdvance   time.Duration // latest bookable offset from now
	SlotInterval time.Duration
	AutoConfirm  bool

	// External calendar mirror configuration.
	SyncEnabled bool
	CalendarID  string
	ICSFeedURL  string

	UpdatedAt time.Time
}

// Type returns the catalog entry with the given id, enabled or not.
// Historical bookings may reference disabled types.
func (s *SchedulingSettings) Type(id string) (AppointmentType, bool) {
	for _, t := range s.Types {
		if t.ID == id {
			return t, true
		}
	}
	return AppointmentType{}, false
}

// EnabledTypes returns the bookable catalog in display order.
func (s *SchedulingSettings) EnabledTypes() []AppointmentType {
	out := make([]AppointmentType, 0, len(s.Types))
	for _, t := range s.Types {
		if t.Enabled {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

// Validate enforces the structural invariants: a resolvable timezone, ordered
// non-overlapping windows, a sane booking window, and a supported slot
// interval.
func (s *SchedulingSettings) Validate() error {
	if _, err := localtime.Zone(s.Timezone); err != nil {
		return err
	}
	switch s.SlotInterval {
	case 15 * time.Minute, 30 * time.Minute, 60 * time.Minute:
	default:
		return fmt.Errorf("slot interval must be 15, 30 or 60 minutes")
	}
	if s.MinAdvance < 0 || s.MaxAdvance <= 0 || s.MaxAdvance <= s.MinAdvance {
		return fmt.Errorf("booking window is invalid (min %s, max %s)", s.MinAdvance, s.MaxAdvance)
	}
	for day, windows := range s.Weekly {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		for i, w := range windows {
			if w.Start >= w.End {
				return fmt.Errorf("%s window %d: start must be before end", day, i)
			}
			if i > 0 && windows[i-1].End > w.Start {
				return fmt.Errorf("%s windows must be ordered and non-overlapping", day)
			}
		}
	}
	for _, t := range s.Types {
		if t.Duration <= 0 {
			return fmt.Errorf("appointment type %q: duration must be positive", t.Name)
		}
		if t.BufferBefore < 0 || t.BufferAfter < 0 {
			return fmt.Errorf("appointment type %q: buffers cannot be negative", t.Name)
		}
	}
	return nil
}
