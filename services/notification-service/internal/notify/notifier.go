// Package notify turns appointment events into client messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/zapagenda/zapagenda/libs/events"
	"github.com/zapagenda/zapagenda/libs/kafkax"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/email"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/storage"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/whatsapp"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// ErrUndelivered is returned when every attempted channel failed.
var ErrUndelivered = errors.New("notification not delivered on any channel")

type DeliveryRecorder interface {
	Record(ctx context.Context, d storage.Delivery) error
}

type Message struct {
	Subject string
	Body    string
}

type Notifier struct {
	email      email.Sender
	whatsapp   whatsapp.Sender
	deliveries DeliveryRecorder
	loc        *time.Location
	logger     *slog.Logger
}

// New builds a notifier. Nil senders disable their channel.
func New(emailSender email.Sender, wa whatsapp.Sender, deliveries DeliveryRecorder, loc *time.Location, logger *slog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		email:      emailSender,
		whatsapp:   wa,
		deliveries: deliveries,
		loc:        loc,
		logger:     logger.With("component", "notifier"),
	}
}

// Render builds the client message for an event type. Times are shown in
// the owner's zone carried by the event, or in fallback when the event has
// none. ok is false for event types that do not notify the client.
func Render(eventType string, a events.Appointment, fallback *time.Location) (Message, bool) {
	start := a.StartTime.In(eventLocation(a, fallback))
	when := fmt.Sprintf("%s at %s", start.Format("Mon, 02 Jan 2006"), start.Format("15:04"))
	name := strings.TrimSpace(a.ClientName)
	if name == "" {
		name = "there"
	}
	switch eventType {
	case events.AppointmentBooked:
		return Message{
			Subject: "Appointment booked",
			Body:    fmt.Sprintf("Hi %s, your appointment on %s is booked. Reply to this message if you need to change it.", name, when),
		}, true
	case events.AppointmentCancelled:
		return Message{
			Subject: "Appointment cancelled",
			Body:    fmt.Sprintf("Hi %s, your appointment on %s has been cancelled.", name, when),
		}, true
	default:
		return Message{}, false
	}
}

func eventLocation(a events.Appointment, fallback *time.Location) *time.Location {
	if tz := strings.TrimSpace(a.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Handle consumes one appointment event. Malformed payloads are dropped;
// an error is returned only when nothing could be delivered.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	a, err := events.DecodeAppointment(msg.Value)
	if err != nil {
		n.logger.Error("dropping malformed event", "err", err, "topic", msg.Topic, "event_id", meta.EventID)
		return nil
	}
	m, ok := Render(meta.EventType, a, n.loc)
	if !ok {
		n.logger.Debug("event type not notified", "event_type", meta.EventType)
		return nil
	}

	base := storage.Delivery{
		EventID:       meta.EventID,
		EventType:     meta.EventType,
		AppointmentID: a.AppointmentID,
		OwnerID:       a.OwnerID,
	}
	attempted, delivered := 0, 0
	var errs []error

	send := func(channel, recipient string, enabled bool, fn func() error) {
		d := base
		d.Channel, d.Recipient = channel, recipient
		switch {
		case !enabled || strings.TrimSpace(recipient) == "":
			d.Status = storage.DeliverySkipped
		default:
			attempted++
			if err := fn(); err != nil {
				d.Status, d.Error = storage.DeliveryFailed, err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", channel, err))
				n.logger.Warn("delivery failed", "channel", channel, "appointment_id", a.AppointmentID, "err", err)
			} else {
				d.Status = storage.DeliverySent
				delivered++
			}
		}
		if n.deliveries != nil {
			if err := n.deliveries.Record(ctx, d); err != nil {
				n.logger.Error("failed to record delivery", "channel", channel, "err", err)
			}
		}
	}

	send(ChannelEmail, a.ClientEmail, n.email != nil, func() error {
		return n.email.Send(a.ClientEmail, m.Subject, m.Body)
	})
	send(ChannelWhatsApp, a.ClientPhone, n.whatsapp != nil, func() error {
		return n.whatsapp.Send(ctx, a.ClientPhone, m.Body)
	})

	n.logger.Info("appointment event processed",
		"event_type", meta.EventType,
		"appointment_id", a.AppointmentID,
		"attempted", attempted,
		"delivered", delivered,
	)
	if attempted > 0 && delivered == 0 {
		return errors.Join(append([]error{ErrUndelivered}, errs...)...)
	}
	return nil
}
