package gcal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ICSBusySource reads busy blocks from a private ICS feed URL. Breeders who
// don't connect API credentials can still have their external events respected
// during slot computation; mirroring (event create/delete) is not possible
// over ICS, so this type deliberately implements only BusySource.
type ICSBusySource struct {
	feedURL string
	http    *http.Client
}

func NewICSBusySource(feedURL string) *ICSBusySource {
	return &ICSBusySource{
		feedURL: feedURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *ICSBusySource) ListBusyBlocks(ctx context.Context, _ string, from, to time.Time) ([]BusyBlock, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ics feed fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	return ParseBusyBlocks(body, from, to)
}

// ParseBusyBlocks extracts [start, end) intervals from an ICS payload, keeping
// only events that intersect [from, to). Transparent events don't block time.
func ParseBusyBlocks(body []byte, from, to time.Time) ([]BusyBlock, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var blocks []BusyBlock
	for _, ve := range cal.Events() {
		if p := ve.GetProperty(ical.ComponentProperty(ical.PropertyTransp)); p != nil && p.Value == "TRANSPARENT" {
			continue
		}
		if p := ve.GetProperty(ical.ComponentProperty(ical.PropertyStatus)); p != nil && p.Value == "CANCELLED" {
			continue
		}

		start, err := ve.GetStartAt()
		if err != nil {
			continue
		}
		end, err := ve.GetEndAt()
		if err != nil || !end.After(start) {
			continue
		}
		if !start.Before(to) || !end.After(from) {
			continue
		}
		blocks = append(blocks, BusyBlock{Start: start, End: end})
	}
	return blocks, nil
}
