// Package bookingclient answers availability queries for a business/service
// pair. Three interchangeable strategies implement the same Client interface:
// Remote talks to the booking API, Local computes from an in-process
// directory, and Fallback chains the two so callers keep getting answers
// when the API is down.
package bookingclient

import (
	"context"
	"fmt"
)

// MonthQuery asks which dates in a calendar month have at least one open slot.
type MonthQuery struct {
	BusinessID string
	ServiceID  string
	Year       int
	Month      int
}

// DayQuery asks for the open slots on one date (YYYY-MM-DD).
type DayQuery struct {
	BusinessID string
	ServiceID  string
	Date       string
}

type TimeSlot struct {
	StartTime string `json:"startTime"` // HH:mm
	EndTime   string `json:"endTime"`
}

type MonthAvailability struct {
	AvailableDates []string `json:"availableDates"`
}

type DayAvailability struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

type Client interface {
	MonthAvailability(ctx context.Context, q MonthQuery) (MonthAvailability, error)
	DayAvailability(ctx context.Context, q DayQuery) (DayAvailability, error)
}

// StatusError is a non-2xx response from the booking API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("booking api: status %d: %s", e.StatusCode, e.Body)
}
