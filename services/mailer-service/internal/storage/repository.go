package storage

import (
	"context"
	_ "embed"

	"github.com/slotly-app/slotly/libs/db"
)

//go:embed schema.sql
var schemaSQL string

// Delivery is one send attempt, kept as an audit trail.
type Delivery struct {
	AppointmentID string
	BusinessID    string
	Channel       string
	Recipient     string
	Status        string
	ErrorReason   string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *Repository) Insert(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries (appointment_id, business_id, channel, recipient, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.AppointmentID, d.BusinessID, d.Channel, d.Recipient, d.Status, d.ErrorReason)
	return err
}
