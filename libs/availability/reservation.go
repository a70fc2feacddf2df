package availability

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Reservation is an existing appointment as the engine sees it: an occupied
// interval with the business it belongs to. End is the reservation's own
// resolved end time (start + the duration of the service actually booked),
// not an approximation from whatever service is being queried now.
type Reservation struct {
	BusinessID string
	Start      time.Time
	End        time.Time
	Status     string
}

// blocks reports whether the reservation removes capacity for businessID.
// Cancelled reservations are inert; every other status occupies its interval.
func (r Reservation) blocks(businessID string) bool {
	return r.BusinessID == businessID && r.Status != StatusCancelled && r.End.After(r.Start)
}
