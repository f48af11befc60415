// Package events holds the Kafka contract between the booking service and
// its consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics, one per event type.
const (
	AppointmentBooked    = "booking.appointment.booked.v1"
	AppointmentUpdated   = "booking.appointment.updated.v1"
	AppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Appointment is the payload of every appointment event.
type Appointment struct {
	AppointmentID string    `json:"appointment_id"`
	OwnerID       string    `json:"owner_id"`
	ServiceID     string    `json:"service_id"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone"`
	ClientEmail   string    `json:"client_email,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	// Timezone is the owner's IANA zone when the event was written; empty
	// when the owner has no profile.
	Timezone      string    `json:"timezone,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func DecodeAppointment(raw []byte) (Appointment, error) {
	var p Appointment
	if err := json.Unmarshal(raw, &p); err != nil {
		return Appointment{}, fmt.Errorf("decode appointment event: %w", err)
	}
	if p.AppointmentID == "" || p.OwnerID == "" {
		return Appointment{}, fmt.Errorf("decode appointment event: missing ids")
	}
	return p, nil
}
