package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zapagenda/zapagenda/libs/events"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

// Event is the envelope written to the outbox table. The Kafka topic is the
// event type.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEvent builds the outbox row for a; timezone is the owner's
// profile zone and travels with the payload for consumers that format times.
func AppointmentEvent(eventType string, a model.Appointment, timezone string, occurredAt time.Time) (Event, error) {
	payload, err := json.Marshal(events.Appointment{
		AppointmentID: a.ID,
		OwnerID:       a.OwnerID,
		ServiceID:     a.ServiceID,
		ClientName:    a.ClientName,
		ClientPhone:   a.ClientPhone,
		ClientEmail:   a.ClientEmail,
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		Status:        string(a.Status),
		Notes:         a.Notes,
		Timezone:      timezone,
		OccurredAt:    occurredAt.UTC(),
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
