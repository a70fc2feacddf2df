package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotly-app/slotly/libs/availability"
	"github.com/slotly-app/slotly/services/booking-service/internal/lock"
	"github.com/slotly-app/slotly/services/booking-service/internal/outbox"
	"github.com/slotly-app/slotly/services/booking-service/internal/storage"
	"github.com/slotly-app/slotly/services/booking-service/internal/verify"
)

// AppointmentStore is the slice of the storage layer the appointment flow
// needs, satisfied by *storage.Repository.
type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetBusiness(ctx context.Context, businessID string) (storage.Business, error)
	CountOverlapping(ctx context.Context, tx pgx.Tx, businessID string, start, end time.Time) (int, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *storage.Appointment) (string, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (storage.Appointment, error)
	SetStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error
	IncrementVerifyAttempts(ctx context.Context, tx pgx.Tx, appointmentID string) (int, error)
}

// EventSink persists outbox events inside the caller's transaction,
// satisfied by *outbox.Repository.
type EventSink interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// SlotLocker is the Redis hold lifecycle, satisfied by *lock.Locker.
type SlotLocker interface {
	Acquire(ctx context.Context, h lock.Hold) (lock.Hold, error)
	Get(ctx context.Context, id string) (lock.Hold, error)
	Release(ctx context.Context, h lock.Hold) error
}

// AppointmentHandler runs the lock → confirm → verify flow. Locking is a
// Redis hold; confirm and verify are transactional against Postgres, with
// outbox events feeding the notification path.
type AppointmentHandler struct {
	repo   AppointmentStore
	outbox EventSink
	locker SlotLocker
	logger *slog.Logger
	now    func() time.Time
}

func NewAppointmentHandler(repo AppointmentStore, outboxRepo EventSink, locker SlotLocker, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		repo:   repo,
		outbox: outboxRepo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

type lockRequest struct {
	BusinessID string `json:"businessId"`
	ServiceID  string `json:"serviceId"`
	Date       string `json:"date"`      // YYYY-MM-DD
	StartTime  string `json:"startTime"` // HH:mm
	EndTime    string `json:"endTime"`
}

// lockResponse marshals with Go's default PascalCase field names; the
// front-end depends on that shape.
type lockResponse struct {
	ID         string
	BusinessID string
	ServiceID  string
	Date       string
	StartTime  string
	EndTime    string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type confirmRequest struct {
	AppointmentID string `json:"appointmentId"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
}

type confirmResponse struct {
	AppointmentID string `json:"appointmentId"`
	Message       string `json:"message"`
	Status        string `json:"status"`
}

type verifyRequest struct {
	AppointmentID    string `json:"appointmentId"`
	ConfirmationCode string `json:"confirmationCode"`
}

type verifyResponse struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

// Lock handles POST /appointments/lock.
func (h *AppointmentHandler) Lock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.BusinessID == "" || req.ServiceID == "" {
		http.Error(w, "businessId and serviceId are required", http.StatusBadRequest)
		return
	}
	if err := validateSlotTimes(req.Date, req.StartTime, req.EndTime); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	hold, err := h.locker.Acquire(r.Context(), lock.Hold{
		BusinessID: req.BusinessID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if errors.Is(err, lock.ErrHeld) {
		http.Error(w, "slot already locked", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("slot lock failed", "err", err, "business_id", req.BusinessID)
		http.Error(w, "failed to lock slot", http.StatusInternalServerError)
		return
	}

	writeJSON(w, lockResponse{
		ID:         hold.ID,
		BusinessID: hold.BusinessID,
		ServiceID:  hold.ServiceID,
		Date:       hold.Date,
		StartTime:  hold.StartTime,
		EndTime:    hold.EndTime,
		ExpiresAt:  hold.ExpiresAt,
		CreatedAt:  h.now().UTC(),
	})
}

// Confirm handles POST /appointments/confirm.
func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.AppointmentID == "" || req.Name == "" || req.Email == "" {
		http.Error(w, "appointmentId, name and email are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	hold, err := h.locker.Get(ctx, req.AppointmentID)
	if errors.Is(err, lock.ErrNotFound) {
		http.Error(w, "lock not found or expired", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("hold lookup failed", "err", err)
		http.Error(w, "failed to confirm appointment", http.StatusInternalServerError)
		return
	}

	start, end, err := h.resolveSlotInterval(ctx, hold)
	if err != nil {
		h.logger.Error("slot interval resolution failed", "err", err, "business_id", hold.BusinessID)
		http.Error(w, "failed to confirm appointment", http.StatusInternalServerError)
		return
	}

	code, codeHash, err := verify.NewCode()
	if err != nil {
		http.Error(w, "failed to issue confirmation code", http.StatusInternalServerError)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The authoritative double-booking check. The Redis hold narrows the
	// race; this decides it.
	overlapping, err := h.repo.CountOverlapping(ctx, tx, hold.BusinessID, start, end)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if overlapping > 0 {
		http.Error(w, "time slot already booked", http.StatusConflict)
		return
	}

	appt := &storage.Appointment{
		ID:            hold.ID,
		BusinessID:    hold.BusinessID,
		ServiceID:     hold.ServiceID,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerPhone: strings.TrimSpace(req.Phone),
		StartTime:     start,
		EndTime:       end,
		Status:        availability.StatusPending,
		CodeHash:      codeHash,
	}
	id, err := h.repo.CreateAppointment(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	// The raw code rides the outbox payload; the mailer is the only consumer.
	payload, err := json.Marshal(map[string]any{
		"appointment_id":    id,
		"business_id":       hold.BusinessID,
		"service_id":        hold.ServiceID,
		"customer_name":     appt.CustomerName,
		"customer_email":    appt.CustomerEmail,
		"customer_phone":    appt.CustomerPhone,
		"start_time":        start.Format(time.RFC3339),
		"end_time":          end.Format(time.RFC3339),
		"confirmation_code": code,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.TopicAppointmentPending,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	// The pending row now blocks the slot; the Redis hold has done its job.
	if err := h.locker.Release(ctx, hold); err != nil {
		h.logger.Warn("hold release failed", "err", err, "appointment_id", id)
	}

	writeJSON(w, confirmResponse{
		AppointmentID: id,
		Message:       "confirmation code sent",
		Status:        availability.StatusPending,
	})
}

// Verify handles POST /appointments/verify.
func (h *AppointmentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.ConfirmationCode = strings.TrimSpace(req.ConfirmationCode)
	if req.AppointmentID == "" || req.ConfirmationCode == "" {
		http.Error(w, "appointmentId and confirmationCode are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetAppointmentForUpdate(ctx, tx, req.AppointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	if appt.Status == availability.StatusConfirmed {
		writeJSON(w, verifyResponse{
			AppointmentID: appt.ID,
			Status:        availability.StatusConfirmed,
			Message:       "already verified",
		})
		return
	}
	if appt.Status != availability.StatusPending {
		http.Error(w, "appointment is not awaiting verification", http.StatusConflict)
		return
	}

	attempts, err := h.repo.IncrementVerifyAttempts(ctx, tx, appt.ID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if attempts > verify.MaxAttempts {
		// Cancelling frees the slot: the overlap checks skip cancelled rows,
		// and the Redis hold was already released at confirm.
		if err := h.repo.SetStatus(ctx, tx, appt.ID, availability.StatusCancelled); err != nil {
			h.logger.Error("auto-cancel failed", "err", err, "appointment_id", appt.ID)
		} else if err := tx.Commit(ctx); err != nil {
			h.logger.Error("auto-cancel commit failed", "err", err, "appointment_id", appt.ID)
		}
		http.Error(w, "too many verification attempts", http.StatusTooManyRequests)
		return
	}

	if !verify.Check(appt.CodeHash, req.ConfirmationCode) {
		// Keep the attempt counter even though verification failed.
		_ = tx.Commit(ctx)
		http.Error(w, "invalid confirmation code", http.StatusUnprocessableEntity)
		return
	}

	if err := h.repo.SetStatus(ctx, tx, appt.ID, availability.StatusConfirmed); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"service_id":     appt.ServiceID,
		"customer_name":  appt.CustomerName,
		"customer_email": appt.CustomerEmail,
		"start_time":     appt.StartTime.Format(time.RFC3339),
		"end_time":       appt.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentConfirmed,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, verifyResponse{
		AppointmentID: appt.ID,
		Status:        availability.StatusConfirmed,
		Message:       "appointment confirmed",
	})
}

// resolveSlotInterval turns a hold's date + clock strings into concrete
// instants in the business's timezone.
func (h *AppointmentHandler) resolveSlotInterval(ctx context.Context, hold lock.Hold) (time.Time, time.Time, error) {
	biz, err := h.repo.GetBusiness(ctx, hold.BusinessID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	loc := time.Local
	if biz.Timezone != "" {
		loc, err = time.LoadLocation(biz.Timezone)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", hold.Date+" "+hold.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation("2006-01-02 15:04", hold.Date+" "+hold.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("slot end %s not after start %s", hold.EndTime, hold.StartTime)
	}
	return start, end, nil
}

func validateSlotTimes(date, startTime, endTime string) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	for _, v := range []string{startTime, endTime} {
		if len(v) != 5 {
			return fmt.Errorf("invalid time %q: want HH:mm", v)
		}
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("invalid time %q: want HH:mm", v)
		}
	}
	if startTime >= endTime {
		return fmt.Errorf("startTime must be before endTime")
	}
	return nil
}
