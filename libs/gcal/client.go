package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrEventNotFound is returned when the mirrored event no longer exists on the
// provider side (deleted by the calendar owner).
var ErrEventNotFound = errors.New("gcal: event not found")

// Event is the provider-side representation of a mirrored booking.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// BusyBlock is an opaque occupied interval reported by the provider. It may
// come from events this system never created.
type BusyBlock struct {
	Start time.Time
	End   time.Time
}

// BusySource is the read side of the provider: the only part the availability
// path depends on.
type BusySource interface {
	ListBusyBlocks(ctx context.Context, calendarID string, from, to time.Time) ([]BusyBlock, error)
}

// Provider is the full external-calendar collaborator surface.
type Provider interface {
	BusySource
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
}

// Client talks to a Google-Calendar-shaped REST API. The base URL is
// configurable so tests and local stacks can point it at a stub server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type wireEvent struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Status      string    `json:"status,omitempty"`
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	body, err := json.Marshal(wireEvent{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.UTC().Format(time.RFC3339)},
		End:         eventTime{DateTime: ev.End.UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return "", err
	}

	var created wireEvent
	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(calendarID))
	if err := c.do(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("gcal: create returned no event id")
	}
	return created.ID, nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events?timeMin=%s&timeMax=%s&singleEvents=true",
		c.baseURL,
		url.PathEscape(calendarID),
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)),
	)

	var resp struct {
		Items []wireEvent `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil {
			continue
		}
		events = append(events, Event{
			ID:          item.ID,
			Summary:     item.Summary,
			Description: item.Description,
			Start:       start,
			End:         end,
		})
	}
	return events, nil
}

func (c *Client) ListBusyBlocks(ctx context.Context, calendarID string, from, to time.Time) ([]BusyBlock, error) {
	body, err := json.Marshal(map[string]any{
		"timeMin": from.UTC().Format(time.RFC3339),
		"timeMax": to.UTC().Format(time.RFC3339),
		"items":   []map[string]string{{"id": calendarID}},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Calendars map[string]struct {
			Busy []struct {
				Start string `json:"start"`
				End   string `json:"end"`
			} `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/freeBusy", body, &resp); err != nil {
		return nil, err
	}

	var blocks []BusyBlock
	for _, cal := range resp.Calendars {
		for _, b := range cal.Busy {
			start, err1 := time.Parse(time.RFC3339, b.Start)
			end, err2 := time.Parse(time.RFC3339, b.End)
			if err1 != nil || err2 != nil || !end.After(start) {
				continue
			}
			blocks = append(blocks, BusyBlock{Start: start, End: end})
		}
	}
	return blocks, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEventNotFound
	case resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gcal: %s %s: status %d: %s", method, endpoint, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
