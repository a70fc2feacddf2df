package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slotly-app/slotly/libs/availability"
	"github.com/slotly-app/slotly/services/booking-service/internal/lock"
	"github.com/slotly-app/slotly/services/booking-service/internal/outbox"
	"github.com/slotly-app/slotly/services/booking-service/internal/storage"
	"github.com/slotly-app/slotly/services/booking-service/internal/verify"
)

// fakeTx embeds pgx.Tx for the methods the flow never touches; only the
// commit/rollback outcome matters here.
type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	tx          *fakeTx
	business    storage.Business
	overlapping int
	createErr   error
	created     *storage.Appointment
	appt        storage.Appointment
	getErr      error
	attempts    int
	statuses    []string
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	s.tx = &fakeTx{}
	return s.tx, nil
}

func (s *fakeStore) GetBusiness(context.Context, string) (storage.Business, error) {
	return s.business, nil
}

func (s *fakeStore) CountOverlapping(context.Context, pgx.Tx, string, time.Time, time.Time) (int, error) {
	return s.overlapping, nil
}

func (s *fakeStore) CreateAppointment(_ context.Context, _ pgx.Tx, appt *storage.Appointment) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = appt
	return appt.ID, nil
}

func (s *fakeStore) GetAppointmentForUpdate(context.Context, pgx.Tx, string) (storage.Appointment, error) {
	if s.getErr != nil {
		return storage.Appointment{}, s.getErr
	}
	return s.appt, nil
}

func (s *fakeStore) SetStatus(_ context.Context, _ pgx.Tx, _ string, status string) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) IncrementVerifyAttempts(context.Context, pgx.Tx, string) (int, error) {
	s.attempts++
	return s.attempts, nil
}

type fakeSink struct {
	events []outbox.Event
}

func (o *fakeSink) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	o.events = append(o.events, evt)
	return nil
}

type fakeLocker struct {
	hold     lock.Hold
	getErr   error
	released bool
}

func (l *fakeLocker) Acquire(_ context.Context, h lock.Hold) (lock.Hold, error) {
	h.ID = "hold-1"
	return h, nil
}

func (l *fakeLocker) Get(context.Context, string) (lock.Hold, error) {
	if l.getErr != nil {
		return lock.Hold{}, l.getErr
	}
	return l.hold, nil
}

func (l *fakeLocker) Release(context.Context, lock.Hold) error {
	l.released = true
	return nil
}

func mondayHold() lock.Hold {
	return lock.Hold{
		ID:         "hold-1",
		BusinessID: "biz-1",
		ServiceID:  "svc-1",
		Date:       "2026-01-05",
		StartTime:  "10:00",
		EndTime:    "10:30",
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func confirmBody() map[string]string {
	return map[string]string{"appointmentId": "hold-1", "name": "Ada", "email": "ada@example.com"}
}

func TestConfirmOverlapConflict(t *testing.T) {
	store := &fakeStore{business: storage.Business{ID: "biz-1", Timezone: "UTC"}, overlapping: 1}
	sink := &fakeSink{}
	h := NewAppointmentHandler(store, sink, &fakeLocker{hold: mondayHold()}, testLogger())

	rec := postJSON(t, h.Confirm, confirmBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an overlapping appointment, got %d", rec.Code)
	}
	if store.tx.committed {
		t.Fatal("transaction should not commit on overlap")
	}
	if len(sink.events) != 0 {
		t.Fatalf("no outbox event should be written, got %d", len(sink.events))
	}
}

func TestConfirmInsertRaceConflict(t *testing.T) {
	// Overlap check passed, but a concurrent insert won the constraint race.
	store := &fakeStore{
		business:  storage.Business{ID: "biz-1", Timezone: "UTC"},
		createErr: &pgconn.PgError{Code: "23505"},
	}
	h := NewAppointmentHandler(store, &fakeSink{}, &fakeLocker{hold: mondayHold()}, testLogger())

	rec := postJSON(t, h.Confirm, confirmBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when the insert loses the race, got %d", rec.Code)
	}
	if store.tx.committed {
		t.Fatal("transaction should not commit on a constraint violation")
	}
}

func TestConfirmExpiredLock(t *testing.T) {
	store := &fakeStore{business: storage.Business{ID: "biz-1", Timezone: "UTC"}}
	h := NewAppointmentHandler(store, &fakeSink{}, &fakeLocker{getErr: lock.ErrNotFound}, testLogger())

	rec := postJSON(t, h.Confirm, confirmBody())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an expired hold, got %d", rec.Code)
	}
}

func TestConfirmSuccess(t *testing.T) {
	store := &fakeStore{business: storage.Business{ID: "biz-1", Timezone: "UTC"}}
	sink := &fakeSink{}
	locker := &fakeLocker{hold: mondayHold()}
	h := NewAppointmentHandler(store, sink, locker, testLogger())

	rec := postJSON(t, h.Confirm, confirmBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp confirmResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.AppointmentID != "hold-1" || resp.Status != availability.StatusPending {
		t.Fatalf("unexpected response %+v", resp)
	}

	if !store.tx.committed {
		t.Fatal("transaction should commit")
	}
	if store.created == nil || !store.created.StartTime.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("appointment start not resolved from the hold: %+v", store.created)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != outbox.TopicAppointmentPending {
		t.Fatalf("expected one pending outbox event, got %+v", sink.events)
	}
	if !locker.released {
		t.Fatal("hold should be released after commit")
	}
}

func TestVerifySuccess(t *testing.T) {
	code, hash, err := verify.NewCode()
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	store := &fakeStore{appt: storage.Appointment{ID: "appt-1", Status: availability.StatusPending, CodeHash: hash}}
	sink := &fakeSink{}
	h := NewAppointmentHandler(store, sink, &fakeLocker{}, testLogger())

	rec := postJSON(t, h.Verify, map[string]string{"appointmentId": "appt-1", "confirmationCode": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.statuses) != 1 || store.statuses[0] != availability.StatusConfirmed {
		t.Fatalf("expected status set to confirmed, got %v", store.statuses)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != outbox.TopicAppointmentConfirmed {
		t.Fatalf("expected one confirmed outbox event, got %+v", sink.events)
	}
	if !store.tx.committed {
		t.Fatal("transaction should commit")
	}
}

func TestVerifyWrongCode(t *testing.T) {
	code, hash, err := verify.NewCode()
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	store := &fakeStore{appt: storage.Appointment{ID: "appt-1", Status: availability.StatusPending, CodeHash: hash}}
	sink := &fakeSink{}
	h := NewAppointmentHandler(store, sink, &fakeLocker{}, testLogger())

	rec := postJSON(t, h.Verify, map[string]string{"appointmentId": "appt-1", "confirmationCode": wrong})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	// The attempt counter must survive the failed check.
	if !store.tx.committed {
		t.Fatal("transaction should commit to keep the attempt count")
	}
	if len(sink.events) != 0 {
		t.Fatalf("no outbox event should be written, got %d", len(sink.events))
	}
}

func TestVerifyAttemptsExceededCancels(t *testing.T) {
	store := &fakeStore{
		appt:     storage.Appointment{ID: "appt-1", Status: availability.StatusPending, CodeHash: "irrelevant"},
		attempts: verify.MaxAttempts,
	}
	h := NewAppointmentHandler(store, &fakeSink{}, &fakeLocker{}, testLogger())

	rec := postJSON(t, h.Verify, map[string]string{"appointmentId": "appt-1", "confirmationCode": "123456"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if len(store.statuses) != 1 || store.statuses[0] != availability.StatusCancelled {
		t.Fatalf("appointment should auto-cancel, got %v", store.statuses)
	}
	if !store.tx.committed {
		t.Fatal("auto-cancel should commit")
	}
}

func TestVerifyAlreadyConfirmedIsIdempotent(t *testing.T) {
	store := &fakeStore{appt: storage.Appointment{ID: "appt-1", Status: availability.StatusConfirmed}}
	h := NewAppointmentHandler(store, &fakeSink{}, &fakeLocker{}, testLogger())

	rec := postJSON(t, h.Verify, map[string]string{"appointmentId": "appt-1", "confirmationCode": "123456"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an already confirmed appointment, got %d", rec.Code)
	}
	if store.attempts != 0 {
		t.Fatal("attempt counter should not move for a confirmed appointment")
	}
}

func TestValidateSlotTimes(t *testing.T) {
	cases := []struct {
		date, start, end string
		wantErr          bool
	}{
		{"2026-01-05", "10:00", "10:30", false},
		{"2026-01-05", "09:00", "09:45", false},
		{"2026-1-5", "10:00", "10:30", true},
		{"2026-01-05", "9:00", "9:30", true},
		{"2026-01-05", "10:30", "10:00", true},
		{"2026-01-05", "10:00", "10:00", true},
		{"not-a-date", "10:00", "10:30", true},
	}
	for _, c := range cases {
		err := validateSlotTimes(c.date, c.start, c.end)
		if c.wantErr && err == nil {
			t.Fatalf("%s %s-%s: expected error", c.date, c.start, c.end)
		}
		if !c.wantErr && err != nil {
			t.Fatalf("%s %s-%s: unexpected error %v", c.date, c.start, c.end, err)
		}
	}
}
