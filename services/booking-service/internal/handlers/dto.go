package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

type appointmentResponse struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	ServiceID   string       `json:"service_id"`
	ClientName  string       `json:"client_name"`
	ClientPhone string       `json:"client_phone"`
	ClientEmail string       `json:"client_email,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Status      model.Status `json:"status"`
	Notes       string       `json:"notes,omitempty"`
	CancelledAt *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func toAppointment(a model.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:          a.ID,
		OwnerID:     a.OwnerID,
		ServiceID:   a.ServiceID,
		ClientName:  a.ClientName,
		ClientPhone: a.ClientPhone,
		ClientEmail: a.ClientEmail,
		StartTime:   a.StartTime.UTC(),
		EndTime:     a.EndTime.UTC(),
		Status:      a.Status,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
	if a.CancelledAt != nil {
		t := a.CancelledAt.UTC()
		out.CancelledAt = &t
	}
	return out
}

func toAppointments(in []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointment(a))
	}
	return out
}

type slotResponse struct {
	Label        string                `json:"label"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      time.Time             `json:"end_time"`
	IsAvailable  bool                  `json:"is_available"`
	Appointments []appointmentResponse `json:"appointments"`
}

func toSlots(in []availability.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(in))
	for _, s := range in {
		out = append(out, slotResponse{
			Label:        s.Label,
			StartTime:    s.Start,
			EndTime:      s.End,
			IsAvailable:  s.IsAvailable,
			Appointments: toAppointments(s.Appointments),
		})
	}
	return out
}

type dayResponse struct {
	Date  string         `json:"date"`
	Slots []slotResponse `json:"slots"`
}

type intervalResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type serviceResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func toService(s model.Service) serviceResponse {
	return serviceResponse{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		Active:          s.Active,
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
}

type profileResponse struct {
	OwnerID             string    `json:"owner_id"`
	Name                string    `json:"name"`
	Timezone            string    `json:"timezone"`
	OpensAt             string    `json:"opens_at"`
	ClosesAt            string    `json:"closes_at"`
	SlotIntervalMinutes int       `json:"slot_interval_minutes"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toProfile(p model.BusinessProfile) profileResponse {
	return profileResponse{
		OwnerID:             p.OwnerID,
		Name:                p.Name,
		Timezone:            p.Timezone,
		OpensAt:             p.OpensAt,
		ClosesAt:            p.ClosesAt,
		SlotIntervalMinutes: p.SlotIntervalMinutes,
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
}

func parseTimestamp(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, badField(field, field+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

// parseDate accepts YYYY-MM-DD in loc. An empty value yields today.
func parseDate(field, raw string, loc *time.Location, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		y, m, d := now.In(loc).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, badField(field, field+" must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

// parseBound accepts an RFC 3339 timestamp or a YYYY-MM-DD date. A date
// used as an upper bound covers the whole day.
func parseBound(field, raw string, loc *time.Location, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, badField(field, field+" must be a date or RFC 3339 timestamp")
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parsePositiveInt(field, raw string, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, badField(field, field+" must be between 1 and "+strconv.Itoa(max))
	}
	return n, nil
}
