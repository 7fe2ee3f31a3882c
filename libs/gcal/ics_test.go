package gcal

import (
	"strings"
	"testing"
	"time"
)

func icsBody(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//breederbook//scheduling//EN",
	}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParseBusyBlocks(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-1",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260126T090000Z",
		"DTEND:20260126T100000Z",
		"SUMMARY:Vet appointment",
		"END:VEVENT",
		// Transparent events do not block time.
		"BEGIN:VEVENT",
		"UID:ev-2",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260126T110000Z",
		"DTEND:20260126T120000Z",
		"TRANSP:TRANSPARENT",
		"SUMMARY:Reminder",
		"END:VEVENT",
		// Cancelled events do not block time.
		"BEGIN:VEVENT",
		"UID:ev-3",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260126T130000Z",
		"DTEND:20260126T140000Z",
		"STATUS:CANCELLED",
		"SUMMARY:Was cancelled",
		"END:VEVENT",
		// Outside the requested range.
		"BEGIN:VEVENT",
		"UID:ev-4",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260301T090000Z",
		"DTEND:20260301T100000Z",
		"SUMMARY:Far future",
		"END:VEVENT",
	)

	from := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	blocks, err := ParseBusyBlocks(body, from, to)
	if err != nil {
		t.Fatalf("ParseBusyBlocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected 1 busy block, got %d: %+v", len(blocks), blocks)
	}
	want := time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)
	if !blocks[0].Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, blocks[0].Start)
	}
	if !blocks[0].End.Equal(want.Add(time.Hour)) {
		t.Fatalf("expected end %s, got %s", want.Add(time.Hour), blocks[0].End)
	}
}

func TestParseBusyBlocks_EmptyBody(t *testing.T) {
	if _, err := ParseBusyBlocks(nil, time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestParseBusyBlocks_KeepsPartialOverlap(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-1",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260125T230000Z",
		"DTEND:20260126T010000Z",
		"SUMMARY:Crosses midnight",
		"END:VEVENT",
	)
	from := time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC)
	blocks, err := ParseBusyBlocks(body, from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ParseBusyBlocks failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("expected event overlapping range start to be kept, got %d", len(blocks))
	}
}
