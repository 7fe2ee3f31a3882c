package model

import (
	"testing"
	"time"

	"github.com/breederbook/scheduling/services/booking-service/internal/localtime"
)

func validSettings() *SchedulingSettings {
	start, _ := localtime.ParseClock("09:00")
	end, _ := localtime.ParseClock("17:00")
	return &SchedulingSettings{
		BreederID: "br-1",
		Timezone:  "Europe/Berlin",
		Weekly: WeeklyAvailability{
			time.Monday: {{Start: start, End: end}},
		},
		Types: []AppointmentType{
			{ID: "t1", Name: "Puppy visit", Duration: time.Hour, Enabled: true},
		},
		MinAdvance:   24 * time.Hour,
		MaxAdvance:   60 * 24 * time.Hour,
		SlotInterval: 30 * time.Minute,
	}
}

func TestValidateAcceptsGoodSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	s := validSettings()
	s.Timezone = "Mars/Olympus"
	if err := s.Validate(); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestValidateRejectsBadSlotInterval(t *testing.T) {
	s := validSettings()
	s.SlotInterval = 7 * time.Minute
	if err := s.Validate(); err == nil {
		t.Fatal("expected slot interval error")
	}
}

func TestValidateRejectsOverlappingWindows(t *testing.T) {
	nine, _ := localtime.ParseClock("09:00")
	noon, _ := localtime.ParseClock("12:00")
	eleven, _ := localtime.ParseClock("11:00")
	five, _ := localtime.ParseClock("17:00")

	s := validSettings()
	s.Weekly[time.Monday] = []Window{
		{Start: nine, End: noon},
		{Start: eleven, End: five},
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected overlapping windows error")
	}
}

func TestValidateRejectsInvertedWindow(t *testing.T) {
	nine, _ := localtime.ParseClock("09:00")
	noon, _ := localtime.ParseClock("12:00")

	s := validSettings()
	s.Weekly[time.Monday] = []Window{{Start: noon, End: nine}}
	if err := s.Validate(); err == nil {
		t.Fatal("expected inverted window error")
	}
}

func TestValidateRejectsBadBookingWindow(t *testing.T) {
	s := validSettings()
	s.MaxAdvance = s.MinAdvance
	if err := s.Validate(); err == nil {
		t.Fatal("expected booking window error")
	}
}

func TestValidateRejectsNonPositiveDuration(t *testing.T) {
	s := validSettings()
	s.Types[0].Duration = 0
	if err := s.Validate(); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestEnabledTypesSortedByDisplayOrder(t *testing.T) {
	s := validSettings()
	s.Types = []AppointmentType{
		{ID: "b", Name: "B", Duration: time.Hour, Enabled: true, DisplayOrder: 2},
		{ID: "off", Name: "Off", Duration: time.Hour, Enabled: false, DisplayOrder: 0},
		{ID: "a", Name: "A", Duration: time.Hour, Enabled: true, DisplayOrder: 1},
	}
	got := s.EnabledTypes()
	if len(got) != 2 {
		t.Fatalf("expected 2 enabled types, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected display order a,b, got %s,%s", got[0].ID, got[1].ID)
	}
}
