package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zapagenda/zapagenda/libs/auth"
	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/booking"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/catalog"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

type CalendarHandler struct {
	engine  Engine
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewCalendarHandler(engine Engine, cat Catalog, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{
		engine:  engine,
		catalog: cat,
		logger:  logger.With("component", "calendar"),
		now:     time.Now,
	}
}

// hours resolves the owner's business hours; open, close and
// interval_minutes in the query override the stored profile.
func (h *CalendarHandler) hours(r *http.Request, owner string) (availability.BusinessHours, time.Duration, error) {
	p, err := h.catalog.Profile(r.Context(), owner)
	if err != nil {
		return availability.BusinessHours{}, 0, err
	}
	q := r.URL.Query()
	if open := strings.TrimSpace(q.Get("open")); open != "" {
		p.OpensAt = open
	}
	if cl := strings.TrimSpace(q.Get("close")); cl != "" {
		p.ClosesAt = cl
	}
	if raw := q.Get("interval_minutes"); raw != "" {
		n, err := parsePositiveInt("interval_minutes", raw, 24*60)
		if err != nil {
			return availability.BusinessHours{}, 0, err
		}
		p.SlotIntervalMinutes = n
	}
	hours, interval, err := catalog.Hours(p)
	if err != nil {
		return availability.BusinessHours{}, 0, badField("open", err.Error())
	}
	return hours, interval, nil
}

func (h *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	hours, interval, err := h.hours(r, owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := parseDate("date", r.URL.Query().Get("date"), hours.Location, h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	slots, err := h.engine.GenerateSlots(r.Context(), owner, day, hours, interval)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlots(slots))
}

func (h *CalendarHandler) Week(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	hours, interval, err := h.hours(r, owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, err := parseDate("start", r.URL.Query().Get("start"), hours.Location, h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	days, err := h.engine.GenerateWeek(r.Context(), owner, start, hours, interval)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]dayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, dayResponse{Date: d.Date.Format(time.DateOnly), Slots: toSlots(d.Slots)})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// PublicSlots lists bookable start times for a service. Owner and service
// come from the query since the caller is anonymous; nothing is written on
// this path.
func (h *CalendarHandler) PublicSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := strings.TrimSpace(q.Get("owner_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	switch {
	case owner == "":
		writeError(w, r, h.logger, &booking.ValidationError{Reason: booking.ReasonMissingField, Field: "owner_id", Message: "owner_id is required"})
		return
	case serviceID == "":
		writeError(w, r, h.logger, &booking.ValidationError{Reason: booking.ReasonMissingField, Field: "service_id", Message: "service_id is required"})
		return
	}

	_, err := h.catalog.Lookup(r.Context(), owner, serviceID)
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, r, h.logger, &booking.ValidationError{
			Reason:  booking.ReasonServiceNotFound,
			Field:   "service_id",
			Message: fmt.Sprintf("service %s not found", serviceID),
		})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	p, err := h.catalog.PublicProfile(r.Context(), owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	hours, interval, err := catalog.Hours(p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	day, err := parseDate("date", q.Get("date"), hours.Location, h.now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	open, err := h.engine.OpenStarts(r.Context(), owner, serviceID, day, hours, interval)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]intervalResponse, 0, len(open))
	for _, iv := range open {
		out = append(out, intervalResponse{StartTime: iv.Start.UTC(), EndTime: iv.End.UTC()})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
