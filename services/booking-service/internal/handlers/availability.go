package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotly-app/slotly/libs/availability"
	"github.com/slotly-app/slotly/services/booking-service/internal/storage"
)

// scanHorizonDays is the forward scan behind month queries. 90 days covers
// the current and next month from any starting date.
const scanHorizonDays = 90

// ParamsSource assembles engine input for a business/service pair, loading
// reservations overlapping [from, to).
type ParamsSource interface {
	AvailabilityParams(ctx context.Context, businessID, serviceID string, from, to time.Time) (availability.Params, error)
}

// AvailabilityHandler serves the read-only availability contract. Field names
// and casing are fixed by the front-end wire contract: availableDates,
// startTime, endTime.
type AvailabilityHandler struct {
	source ParamsSource
	logger *slog.Logger
	now    func() time.Time
}

func NewAvailabilityHandler(source ParamsSource, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{source: source, logger: logger, now: time.Now}
}

type monthAvailabilityResponse struct {
	AvailableDates []string `json:"availableDates"`
}

type timeSlot struct {
	StartTime string `json:"startTime"` // HH:mm
	EndTime   string `json:"endTime"`
}

type dayAvailabilityResponse struct {
	Date  string     `json:"date"`
	Slots []timeSlot `json:"slots"`
}

// Month handles GET /availability/month?businessId&serviceId&year&month.
func (h *AvailabilityHandler) Month(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("businessId"))
	serviceID := strings.TrimSpace(q.Get("serviceId"))
	if businessID == "" || serviceID == "" {
		http.Error(w, "businessId and serviceId are required", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 1 {
		http.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "invalid month", http.StatusBadRequest)
		return
	}

	now := h.now()
	engine, ok := h.buildEngine(r.Context(), w, businessID, serviceID, now)
	if !ok {
		return
	}

	dates := availability.FilterByMonth(engine.AvailableDays(now, scanHorizonDays), year, month)
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, monthAvailabilityResponse{AvailableDates: dates})
}

// Day handles GET /availability?businessId&serviceId&date.
func (h *AvailabilityHandler) Day(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("businessId"))
	serviceID := strings.TrimSpace(q.Get("serviceId"))
	date := strings.TrimSpace(q.Get("date"))
	if businessID == "" || serviceID == "" || date == "" {
		http.Error(w, "businessId, serviceId and date are required", http.StatusBadRequest)
		return
	}

	now := h.now()
	engine, ok := h.buildEngine(r.Context(), w, businessID, serviceID, now)
	if !ok {
		return
	}

	slots, err := engine.SlotsForDay(date, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]timeSlot, 0, len(slots))
	for _, s := range slots {
		items = append(items, timeSlot{
			StartTime: s.Start.Format("15:04"),
			EndTime:   s.End.Format("15:04"),
		})
	}
	writeJSON(w, dayAvailabilityResponse{Date: date, Slots: items})
}

func (h *AvailabilityHandler) buildEngine(ctx context.Context, w http.ResponseWriter, businessID, serviceID string, now time.Time) (*availability.Engine, bool) {
	// Reservations loaded with a day of slack on each side of the scan
	// horizon so zone offsets never clip an overlapping appointment.
	from := now.AddDate(0, 0, -1)
	to := now.AddDate(0, 0, scanHorizonDays+1)

	params, err := h.source.AvailabilityParams(ctx, businessID, serviceID, from, to)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "unknown business or service", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("availability params lookup failed", "err", err, "business_id", businessID)
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return nil, false
	}

	engine, err := availability.New(params)
	if err != nil {
		// Stored schedule/config is malformed; surfaces as a server fault,
		// not a client error.
		h.logger.Error("invalid availability config", "err", err, "business_id", businessID)
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return nil, false
	}
	return engine, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
