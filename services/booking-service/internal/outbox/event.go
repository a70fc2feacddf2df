package outbox

import "time"

// Event is written in the same transaction as the state change it describes.
// EventType doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Appointment lifecycle topics consumed by the notification path.
const (
	TopicAppointmentPending   = "booking.appointment.pending.v1"
	TopicAppointmentConfirmed = "booking.appointment.confirmed.v1"
)

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
