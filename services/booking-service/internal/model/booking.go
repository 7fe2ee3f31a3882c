package model

import "time"

// Sync states of a booking's external calendar mirror link.
const (
	SyncNone    = "none"    // breeder has no mirror configured
	SyncPending = "pending" // push scheduled, not yet mirrored
	SyncSynced  = "synced"  // mirrored, google_event_id set
	SyncDrift   = "drift"   // mirrored event was removed externally
	SyncError   = "error"   // push retries exhausted, needs manual reconcile
)

// Booking is one reserved slot. The appointment type's name, duration and
// buffers are copied at creation time; later catalog edits cannot corrupt
// history (EndTime always equals StartTime + Duration as snapshotted).
type Booking struct {
	ID        string
	BreederID string

	AppointmentTypeID   string
	AppointmentTypeName string
	Duration            time.Duration
	BufferBefore        time.Duration
	BufferAfter         time.Duration

	StartTime time.Time
	EndTime   time.Time

	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ContactID     string

	Status       Status
	CancelReason string
	CancelledAt  *time.Time

	// ManageToken authorizes the booking customer (link possession) to cancel.
	ManageToken string

	GoogleEventID string
	SyncState     string

	CreatedAt time.Time
}

// BufferedStart is the start of the interval this booking makes unavailable.
func (b *Booking) BufferedStart() time.Time {
	return b.StartTime.Add(-b.BufferBefore)
}

// BufferedEnd is the exclusive end of the interval this booking makes
// unavailable.
func (b *Booking) BufferedEnd() time.Time {
	return b.EndTime.Add(b.BufferAfter)
}
