package outbox

// Booking lifecycle event types. The Kafka topic name equals the event type;
// calendar-sync and the notification collaborator each consume the topics
// they care about.
const (
	EventBookingRequested = "scheduling.booking.requested.v1"
	EventBookingConfirmed = "scheduling.booking.confirmed.v1"
	EventBookingCancelled = "scheduling.booking.cancelled.v1"
	EventBookingCompleted = "scheduling.booking.completed.v1"
	EventBookingNoShow    = "scheduling.booking.no_show.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it describes.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
