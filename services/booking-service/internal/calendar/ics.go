// Package calendar renders appointments as an iCalendar feed.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

const productID = "-//zapagenda//booking//EN"

// Encode writes one VEVENT per appointment. Service names are looked up in
// services by id; unknown ids fall back to the client name alone.
func Encode(w io.Writer, appts []model.Appointment, services map[string]string, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", "zapagenda")

	for _, a := range appts {
		cal.Children = append(cal.Children, toEvent(a, services[a.ServiceID], now))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func toEvent(a model.Appointment, serviceName string, now time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, a.ID+"@zapagenda")
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, a.StartTime.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, a.EndTime.UTC())
	if !a.UpdatedAt.IsZero() {
		ve.Props.SetDateTime(ical.PropLastModified, a.UpdatedAt.UTC())
	}

	summary := a.ClientName
	if serviceName != "" {
		summary = serviceName + " - " + a.ClientName
	}
	ve.Props.SetText(ical.PropSummary, summary)

	desc := "Phone: " + a.ClientPhone
	if a.ClientEmail != "" {
		desc += "\nEmail: " + a.ClientEmail
	}
	if a.Notes != "" {
		desc += "\n" + a.Notes
	}
	ve.Props.SetText(ical.PropDescription, desc)

	switch a.Status {
	case model.StatusCancelled:
		ve.Props.SetText(ical.PropStatus, "CANCELLED")
	case model.StatusScheduled:
		ve.Props.SetText(ical.PropStatus, "TENTATIVE")
	default:
		ve.Props.SetText(ical.PropStatus, "CONFIRMED")
	}
	return ve
}
