package storage

import (
	"context"
	"fmt"

	"github.com/zapagenda/zapagenda/libs/db"
)

type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// Delivery is one channel attempt for one appointment event.
type Delivery struct {
	EventID       string
	EventType     string
	AppointmentID string
	OwnerID       string
	Channel       string
	Recipient     string
	Status        DeliveryStatus
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_deliveries
			(event_id, event_type, appointment_id, owner_id, channel, recipient, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, d.EventID, d.EventType, d.AppointmentID, d.OwnerID, d.Channel, d.Recipient, string(d.Status), d.Error)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
