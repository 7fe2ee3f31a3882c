// Package localtime converts between a breeder's civil timezone and absolute
// instants. All conversions resolve the UTC offset valid on the specific date,
// so clock times stay correct across daylight-saving transitions.
package localtime

import (
	"fmt"
	"time"
)

// Clock is a local time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Zone resolves an IANA timezone identifier. Settings validation calls this
// once at save time; runtime paths work with the resolved *time.Location.
func Zone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone identifier is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// DayAndClock returns the local weekday and time of day for an instant.
func DayAndClock(t time.Time, loc *time.Location) (time.Weekday, Clock) {
	lt := t.In(loc)
	return lt.Weekday(), Clock(lt.Hour()*60 + lt.Minute())
}

// At returns the instant at the given clock time on day's local calendar date.
// time.Date applies the offset in force on that date, which is what makes
// template boundaries DST-correct.
func At(day time.Time, c Clock, loc *time.Location) time.Time {
	ld := day.In(loc)
	return time.Date(ld.Year(), ld.Month(), ld.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// NextDay returns local midnight of the following day. AddDate is used rather
// than adding 24h so short/long DST days don't skew the walk.
func NextDay(day time.Time, loc *time.Location) time.Time {
	lt := day.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
