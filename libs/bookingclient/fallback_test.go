package bookingclient

import (
	"context"
	"errors"
	"testing"
)

type stubClient struct {
	month MonthAvailability
	day   DayAvailability
	err   error
	calls int
}

func (s *stubClient) MonthAvailability(_ context.Context, _ MonthQuery) (MonthAvailability, error) {
	s.calls++
	return s.month, s.err
}

func (s *stubClient) DayAvailability(_ context.Context, _ DayQuery) (DayAvailability, error) {
	s.calls++
	return s.day, s.err
}

func TestFallbackPrimaryWins(t *testing.T) {
	primary := &stubClient{month: MonthAvailability{AvailableDates: []string{"2026-01-05"}}}
	secondary := &stubClient{month: MonthAvailability{AvailableDates: []string{"2026-01-12"}}}
	f := NewFallback(primary, secondary)

	out, err := f.MonthAvailability(context.Background(), MonthQuery{})
	if err != nil {
		t.Fatalf("MonthAvailability failed: %v", err)
	}
	if out.AvailableDates[0] != "2026-01-05" {
		t.Fatalf("expected primary result, got %v", out.AvailableDates)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary should not be called when primary succeeds")
	}
}

func TestFallbackOnPrimaryError(t *testing.T) {
	primary := &stubClient{err: &StatusError{StatusCode: 500, Body: "boom"}}
	secondary := &stubClient{day: DayAvailability{
		Date:  "2026-01-05",
		Slots: []TimeSlot{{StartTime: "10:00", EndTime: "10:30"}},
	}}
	f := NewFallback(primary, secondary)

	out, err := f.DayAvailability(context.Background(), DayQuery{Date: "2026-01-05"})
	if err != nil {
		t.Fatalf("expected fallback result, got error: %v", err)
	}
	if len(out.Slots) != 1 {
		t.Fatalf("unexpected slots: %v", out.Slots)
	}
}

func TestFallbackBothFailReturnsPrimaryError(t *testing.T) {
	primaryErr := &StatusError{StatusCode: 503, Body: "down"}
	primary := &stubClient{err: primaryErr}
	secondary := &stubClient{err: errors.New("unknown business")}
	f := NewFallback(primary, secondary)

	_, err := f.DayAvailability(context.Background(), DayQuery{Date: "2026-01-05"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 503 {
		t.Fatalf("expected primary error to surface, got %v", err)
	}
}
