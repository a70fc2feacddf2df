package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/slotly-app/slotly/libs/availability"
	"github.com/slotly-app/slotly/libs/db"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// EnsureSchema applies the embedded schema. Idempotent; keeps dev UX smooth
// without a separate migration step.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

type Business struct {
	ID       string
	Slug     string
	Name     string
	Timezone string
}

type Service struct {
	ID           string
	BusinessID   string
	Name         string
	DurationMins int
	BufferMins   int
	PriceCents   int
	Description  string
}

type Appointment struct {
	ID             string
	BusinessID     string
	ServiceID      string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	CodeHash       string
	VerifyAttempts int
	CancelledAt    *time.Time
	CreatedAt      time.Time
}

func (r *Repository) GetBusiness(ctx context.Context, businessID string) (Business, error) {
	var b Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, slug, name, timezone
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Slug, &b.Name, &b.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Business{}, ErrNotFound
	}
	return b, err
}

func (r *Repository) GetService(ctx context.Context, businessID, serviceID string) (Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes, buffer_minutes, price_cents, description
		FROM business_services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins, &s.BufferMins, &s.PriceCents, &s.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrNotFound
	}
	return s, err
}

func (r *Repository) ListWorkingHours(ctx context.Context, businessID string) ([]availability.WeekdayHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM working_hours
		WHERE business_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.WeekdayHours
	for rows.Next() {
		var weekday, startMin, endMin int
		if err := rows.Scan(&weekday, &startMin, &endMin); err != nil {
			return nil, err
		}
		out = append(out, availability.WeekdayHours{
			Weekday: weekday,
			Start:   fmt.Sprintf("%02d:%02d", startMin/60, startMin%60),
			End:     fmt.Sprintf("%02d:%02d", endMin/60, endMin%60),
		})
	}
	return out, rows.Err()
}

// ListReservations returns the appointments overlapping [from, to) that the
// engine treats as existing reservations, including still-pending ones.
func (r *Repository) ListReservations(ctx context.Context, businessID string, from, to time.Time) ([]availability.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT business_id::text, start_time, end_time, status
		FROM appointments
		WHERE business_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Reservation
	for rows.Next() {
		var res availability.Reservation
		if err := rows.Scan(&res.BusinessID, &res.Start, &res.End, &res.Status); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// AvailabilityParams assembles the engine input for one business/service pair,
// loading reservations that overlap [from, to).
func (r *Repository) AvailabilityParams(ctx context.Context, businessID, serviceID string, from, to time.Time) (availability.Params, error) {
	biz, err := r.GetBusiness(ctx, businessID)
	if err != nil {
		return availability.Params{}, err
	}
	svc, err := r.GetService(ctx, businessID, serviceID)
	if err != nil {
		return availability.Params{}, err
	}
	hours, err := r.ListWorkingHours(ctx, businessID)
	if err != nil {
		return availability.Params{}, err
	}
	reservations, err := r.ListReservations(ctx, businessID, from, to)
	if err != nil {
		return availability.Params{}, err
	}
	return availability.Params{
		BusinessID:         biz.ID,
		WorkingHours:       hours,
		ServiceDurationMin: svc.DurationMins,
		BufferMin:          svc.BufferMins,
		Reservations:       reservations,
		Timezone:           biz.Timezone,
	}, nil
}

// CreateAppointment inserts appt. A caller-supplied ID is kept so the slot
// hold id can carry over as the appointment id; otherwise one is generated.
func (r *Repository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *Appointment) (string, error) {
	id := appt.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, customer_name, customer_email, customer_phone,
			 start_time, end_time, status, confirmation_code_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, appt.BusinessID, appt.ServiceID, appt.CustomerName, appt.CustomerEmail, appt.CustomerPhone,
		appt.StartTime, appt.EndTime, appt.Status, appt.CodeHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CountOverlapping re-checks double booking inside the confirm transaction.
func (r *Repository) CountOverlapping(ctx context.Context, tx pgx.Tx, businessID string, start, end time.Time) (int, error) {
	var n int
	err := tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE business_id = $1
			AND status <> 'cancelled'
			AND start_time < $3
			AND end_time > $2
	`, businessID, start, end).Scan(&n)
	return n, err
}

func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, appointmentID string) (Appointment, error) {
	var a Appointment
	err := tx.QueryRow(ctx, `
		SELECT id::text, business_id::text, service_id::text, customer_name, customer_email, customer_phone,
			start_time, end_time, status, confirmation_code_hash, verify_attempts, cancelled_at, created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, appointmentID).Scan(
		&a.ID, &a.BusinessID, &a.ServiceID, &a.CustomerName, &a.CustomerEmail, &a.CustomerPhone,
		&a.StartTime, &a.EndTime, &a.Status, &a.CodeHash, &a.VerifyAttempts, &a.CancelledAt, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
	`, appointmentID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) IncrementVerifyAttempts(ctx context.Context, tx pgx.Tx, appointmentID string) (int, error) {
	var attempts int
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET verify_attempts = verify_attempts + 1
		WHERE id = $1
		RETURNING verify_attempts
	`, appointmentID).Scan(&attempts)
	return attempts, err
}

// IsConflict reports whether err is a unique or exclusion constraint
// violation (someone else booked the interval first).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" || pgErr.Code == "23P01"
	}
	return false
}
