package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/breederbook/scheduling/libs/gcal"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/jobs"
	"github.com/breederbook/scheduling/services/calendar-sync/internal/storage"
)

type fakeStore struct {
	mirrored   []storage.Mirror
	unmirrored []storage.Mirror
	unlinked   map[string]string
	states     map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{unlinked: map[string]string{}, states: map[string]string{}}
}

func (f *fakeStore) ListMirrored(context.Context, time.Time, time.Time) ([]storage.Mirror, error) {
	return f.mirrored, nil
}

func (f *fakeStore) ListUnmirrored(context.Context, time.Time, time.Time) ([]storage.Mirror, error) {
	return f.unmirrored, nil
}

func (f *fakeStore) Unlink(_ context.Context, bookingID, state string) error {
	f.unlinked[bookingID] = state
	return nil
}

func (f *fakeStore) SetSyncState(_ context.Context, bookingID, state string) error {
	f.states[bookingID] = state
	return nil
}

type fakeQueue struct {
	enqueued []string
}

func (f *fakeQueue) Enqueue(_ context.Context, bookingID, _, action string) error {
	f.enqueued = append(f.enqueued, bookingID+"|"+action)
	return nil
}

type fakeProvider struct {
	events map[string][]gcal.Event
	err    error
}

func (f *fakeProvider) ListEvents(_ context.Context, calendarID string, _, _ time.Time) ([]gcal.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events[calendarID], nil
}

func (f *fakeProvider) ListBusyBlocks(context.Context, string, time.Time, time.Time) ([]gcal.BusyBlock, error) {
	return nil, nil
}

func (f *fakeProvider) CreateEvent(context.Context, string, gcal.Event) (string, error) {
	return "", nil
}

func (f *fakeProvider) DeleteEvent(context.Context, string, string) error {
	return nil
}

func mirror(bookingID, eventID string) storage.Mirror {
	return storage.Mirror{
		BookingID:     bookingID,
		BreederID:     "br-1",
		CalendarID:    "cal-1",
		Status:        "confirmed",
		GoogleEventID: eventID,
		SyncState:     "synced",
	}
}

func TestPass_FlagsDriftForMissingEvents(t *testing.T) {
	store := newFakeStore()
	store.mirrored = []storage.Mirror{mirror("bk-1", "ev-1"), mirror("bk-2", "ev-2")}
	provider := &fakeProvider{events: map[string][]gcal.Event{
		"cal-1": {{ID: "ev-1"}}, // ev-2 was deleted by the calendar owner
	}}

	r := New(store, &fakeQueue{}, provider, slog.Default(), Config{})
	if err := r.Pass(context.Background()); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}

	if state, ok := store.unlinked["bk-2"]; !ok || state != "drift" {
		t.Fatalf("expected bk-2 flagged drift, got %+v", store.unlinked)
	}
	if _, ok := store.unlinked["bk-1"]; ok {
		t.Fatal("intact mirror must not be touched")
	}
}

func TestPass_UnreachableCalendarIsNotDrift(t *testing.T) {
	store := newFakeStore()
	store.mirrored = []storage.Mirror{mirror("bk-1", "ev-1")}
	provider := &fakeProvider{err: errors.New("calendar down")}

	r := New(store, &fakeQueue{}, provider, slog.Default(), Config{})
	if err := r.Pass(context.Background()); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}
	if len(store.unlinked) != 0 {
		t.Fatalf("unreachable calendar must not flag drift, got %+v", store.unlinked)
	}
}

// A cancellation whose event never reached the worker leaves a cancelled
// booking still marked synced. The pass must push the delete rather than
// treat the leftover mirror as drift.
func TestPass_CancelledMirrorGetsDeleteJob(t *testing.T) {
	store := newFakeStore()
	stale := mirror("bk-4", "ev-4")
	stale.Status = "cancelled"
	store.mirrored = []storage.Mirror{mirror("bk-1", "ev-1"), stale}
	provider := &fakeProvider{events: map[string][]gcal.Event{
		"cal-1": {{ID: "ev-1"}, {ID: "ev-4"}},
	}}
	queue := &fakeQueue{}

	r := New(store, queue, provider, slog.Default(), Config{})
	if err := r.Pass(context.Background()); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0] != "bk-4|"+jobs.ActionDelete {
		t.Fatalf("expected delete job for bk-4, got %v", queue.enqueued)
	}
	if len(store.unlinked) != 0 {
		t.Fatalf("cancelled mirror must not be flagged drift, got %+v", store.unlinked)
	}
}

func TestPass_ReenqueuesUnmirrored(t *testing.T) {
	store := newFakeStore()
	m := mirror("bk-3", "")
	m.SyncState = "drift"
	store.unmirrored = []storage.Mirror{m}
	queue := &fakeQueue{}

	r := New(store, queue, &fakeProvider{}, slog.Default(), Config{})
	if err := r.Pass(context.Background()); err != nil {
		t.Fatalf("Pass failed: %v", err)
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0] != "bk-3|"+jobs.ActionCreate {
		t.Fatalf("expected create job for bk-3, got %v", queue.enqueued)
	}
	if store.states["bk-3"] != "pending" {
		t.Fatalf("expected bk-3 back to pending, got %q", store.states["bk-3"])
	}
}
