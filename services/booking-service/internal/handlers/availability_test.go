package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slotly-app/slotly/libs/availability"
	"github.com/slotly-app/slotly/services/booking-service/internal/storage"
)

type stubParamsSource struct {
	params availability.Params
	err    error
}

func (s *stubParamsSource) AvailabilityParams(_ context.Context, _, _ string, _, _ time.Time) (availability.Params, error) {
	return s.params, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mondayParams() availability.Params {
	return availability.Params{
		BusinessID: "biz-1",
		WorkingHours: []availability.WeekdayHours{
			{Weekday: 1, Start: "10:00", End: "12:00"},
		},
		ServiceDurationMin: 30,
		Timezone:           "UTC",
	}
}

func newTestAvailabilityHandler(src ParamsSource, now time.Time) *AvailabilityHandler {
	h := NewAvailabilityHandler(src, testLogger())
	h.now = func() time.Time { return now }
	return h
}

func TestAvailabilityDay(t *testing.T) {
	// 2026-01-05 is a Monday.
	now := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, now)

	req := httptest.NewRequest(http.MethodGet, "/availability?businessId=biz-1&serviceId=svc-1&date=2026-01-05", nil)
	rw := httptest.NewRecorder()
	h.Day(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp struct {
		Date  string `json:"date"`
		Slots []struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Date != "2026-01-05" {
		t.Fatalf("unexpected date: %s", resp.Date)
	}
	if len(resp.Slots) != 7 {
		t.Fatalf("expected 7 slots, got %d", len(resp.Slots))
	}
	if resp.Slots[0].StartTime != "10:00" || resp.Slots[0].EndTime != "10:30" {
		t.Fatalf("unexpected first slot: %+v", resp.Slots[0])
	}
	if resp.Slots[6].StartTime != "11:30" || resp.Slots[6].EndTime != "12:00" {
		t.Fatalf("unexpected last slot: %+v", resp.Slots[6])
	}
}

func TestAvailabilityDayMissingParams(t *testing.T) {
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/availability?businessId=biz-1", nil)
	rw := httptest.NewRecorder()
	h.Day(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestAvailabilityDayUnknownBusiness(t *testing.T) {
	h := newTestAvailabilityHandler(&stubParamsSource{err: storage.ErrNotFound}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/availability?businessId=nope&serviceId=svc-1&date=2026-01-05", nil)
	rw := httptest.NewRecorder()
	h.Day(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestAvailabilityMonth(t *testing.T) {
	now := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, now)

	req := httptest.NewRequest(http.MethodGet, "/availability/month?businessId=biz-1&serviceId=svc-1&year=2026&month=1", nil)
	rw := httptest.NewRecorder()
	h.Month(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var resp struct {
		AvailableDates []string `json:"availableDates"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Mondays left in January 2026 after the 2nd: 5, 12, 19, 26.
	want := []string{"2026-01-05", "2026-01-12", "2026-01-19", "2026-01-26"}
	if len(resp.AvailableDates) != len(want) {
		t.Fatalf("expected %d dates, got %v", len(want), resp.AvailableDates)
	}
	for i, d := range want {
		if resp.AvailableDates[i] != d {
			t.Fatalf("date %d: expected %s, got %s", i, d, resp.AvailableDates[i])
		}
	}
}

func TestAvailabilityMonthEmptyIsArray(t *testing.T) {
	now := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, now)

	// Far past month; nothing in the scan horizon matches.
	req := httptest.NewRequest(http.MethodGet, "/availability/month?businessId=biz-1&serviceId=svc-1&year=2020&month=6", nil)
	rw := httptest.NewRecorder()
	h.Month(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if got := rw.Body.String(); got != "{\"availableDates\":[]}\n" {
		t.Fatalf("expected empty array payload, got %q", got)
	}
}

func TestAvailabilityMonthInvalidMonth(t *testing.T) {
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, time.Now())

	for _, query := range []string{
		"businessId=biz-1&serviceId=svc-1&year=2026&month=13",
		"businessId=biz-1&serviceId=svc-1&year=2026&month=abc",
		"businessId=biz-1&serviceId=svc-1&year=0&month=5",
	} {
		req := httptest.NewRequest(http.MethodGet, "/availability/month?"+query, nil)
		rw := httptest.NewRecorder()
		h.Month(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rw.Code)
		}
	}
}

func TestAvailabilityMethodNotAllowed(t *testing.T) {
	h := newTestAvailabilityHandler(&stubParamsSource{params: mondayParams()}, time.Now())

	req := httptest.NewRequest(http.MethodPost, "/availability?businessId=b&serviceId=s&date=2026-01-05", nil)
	rw := httptest.NewRecorder()
	h.Day(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
