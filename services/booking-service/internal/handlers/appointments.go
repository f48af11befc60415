package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zapagenda/zapagenda/libs/auth"
	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/booking"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/calendar"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/catalog"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500

	// IdempotencyHeader makes appointment creation safe to retry.
	IdempotencyHeader = "Idempotency-Key"
)

type Engine interface {
	CheckAndCreate(ctx context.Context, in booking.CreateInput) (model.Appointment, error)
	Update(ctx context.Context, ownerID, id string, p booking.Patch) (model.Appointment, error)
	Cancel(ctx context.Context, ownerID, id string) (model.Appointment, error)
	Get(ctx context.Context, ownerID, id string) (model.Appointment, error)
	List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.Appointment, error)
	GenerateSlots(ctx context.Context, ownerID string, day time.Time, hours availability.BusinessHours, interval time.Duration) ([]availability.Slot, error)
	GenerateWeek(ctx context.Context, ownerID string, weekStart time.Time, hours availability.BusinessHours, interval time.Duration) ([]availability.Day, error)
	OpenStarts(ctx context.Context, ownerID, serviceID string, day time.Time, hours availability.BusinessHours, step time.Duration) ([]availability.Interval, error)
}

type Catalog interface {
	Profile(ctx context.Context, ownerID string) (model.BusinessProfile, error)
	PublicProfile(ctx context.Context, ownerID string) (model.BusinessProfile, error)
	Lookup(ctx context.Context, ownerID, serviceID string) (model.Service, error)
	UpdateProfile(ctx context.Context, p model.BusinessProfile) (model.BusinessProfile, error)
	ListServices(ctx context.Context, ownerID string, includeInactive bool) ([]model.Service, error)
	GetService(ctx context.Context, ownerID, id string) (model.Service, error)
	CreateService(ctx context.Context, ownerID string, in catalog.ServiceInput) (model.Service, error)
	UpdateService(ctx context.Context, ownerID, id string, in catalog.ServiceInput) (model.Service, error)
	DeactivateService(ctx context.Context, ownerID, id string) (model.Service, error)
}

type AppointmentHandler struct {
	engine  Engine
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func NewAppointmentHandler(engine Engine, cat Catalog, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		engine:  engine,
		catalog: cat,
		logger:  logger.With("component", "appointments"),
		now:     time.Now,
	}
}

type createAppointmentRequest struct {
	ServiceID   string `json:"service_id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email"`
	StartTime   string `json:"start_time"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
}

type publicBookRequest struct {
	OwnerID     string `json:"owner_id"`
	ServiceID   string `json:"service_id"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email"`
	StartTime   string `json:"start_time"`
	Notes       string `json:"notes"`
}

type updateAppointmentRequest struct {
	ServiceID   *string `json:"service_id"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Status      *string `json:"status"`
	Notes       *string `json:"notes"`
	ClientName  *string `json:"client_name"`
	ClientPhone *string `json:"client_phone"`
	ClientEmail *string `json:"client_email"`
}

type cancelResponse struct {
	Message     string              `json:"message"`
	Appointment appointmentResponse `json:"appointment"`
}

// Create books an appointment for the authenticated owner.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.StartTime) == "" {
		writeError(w, r, h.logger, &booking.ValidationError{Reason: booking.ReasonMissingField, Field: "start_time", Message: "start_time is required"})
		return
	}
	start, err := parseTimestamp("start_time", req.StartTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	in := booking.CreateInput{
		OwnerID:        auth.OwnerFromContext(r.Context()),
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		StartTime:      start,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	}
	if strings.TrimSpace(req.Status) != "" {
		st, ok := model.ParseStatus(req.Status)
		if !ok {
			writeError(w, r, h.logger, badField("status", "unknown status "+req.Status))
			return
		}
		in.Status = st
	}
	h.create(w, r, in)
}

// PublicBook books on behalf of an anonymous client. Past start times are
// rejected and the status is always SCHEDULED.
func (h *AppointmentHandler) PublicBook(w http.ResponseWriter, r *http.Request) {
	var req publicBookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.StartTime) == "" {
		writeError(w, r, h.logger, &booking.ValidationError{Reason: booking.ReasonMissingField, Field: "start_time", Message: "start_time is required"})
		return
	}
	start, err := parseTimestamp("start_time", req.StartTime)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !start.After(h.now()) {
		writeError(w, r, h.logger, badField("start_time", "start_time must be in the future"))
		return
	}
	h.create(w, r, booking.CreateInput{
		OwnerID:        req.OwnerID,
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientEmail:    req.ClientEmail,
		StartTime:      start,
		Notes:          req.Notes,
		Status:         model.StatusScheduled,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request, in booking.CreateInput) {
	appt, err := h.engine.CheckAndCreate(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/appointments/"+appt.ID)
	httpx.WriteJSON(w, http.StatusCreated, toAppointment(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	f, err := h.listFilter(r, owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appts, err := h.engine.List(r.Context(), owner, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointments(appts))
}

// listFilter reads the list query. Bare dates are taken in the owner's
// timezone.
func (h *AppointmentHandler) listFilter(r *http.Request, owner string) (model.ListFilter, error) {
	q := r.URL.Query()
	loc := time.UTC
	if q.Get("start_date") != "" || q.Get("end_date") != "" {
		p, err := h.catalog.Profile(r.Context(), owner)
		if err != nil {
			return model.ListFilter{}, err
		}
		if l, err := p.Location(); err == nil {
			loc = l
		}
	}

	var (
		f   model.ListFilter
		err error
	)
	if f.From, err = parseBound("start_date", q.Get("start_date"), loc, false); err != nil {
		return model.ListFilter{}, err
	}
	if f.To, err = parseBound("end_date", q.Get("end_date"), loc, true); err != nil {
		return model.ListFilter{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return model.ListFilter{}, badField("end_date", "end_date must be after start_date")
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			return model.ListFilter{}, badField("status", "unknown status "+raw)
		}
		f.Status = st
	}
	f.ServiceID = strings.TrimSpace(q.Get("service_id"))
	f.ClientName = strings.TrimSpace(q.Get("client_name"))
	if f.Limit, err = parsePositiveInt("limit", q.Get("limit"), maxListLimit); err != nil {
		return model.ListFilter{}, err
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	return f, nil
}

// ICS exports the filtered appointments as an iCalendar feed.
func (h *AppointmentHandler) ICS(w http.ResponseWriter, r *http.Request) {
	owner := auth.OwnerFromContext(r.Context())
	f, err := h.listFilter(r, owner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if r.URL.Query().Get("limit") == "" {
		f.Limit = maxListLimit
	}
	appts, err := h.engine.List(r.Context(), owner, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	services, err := h.catalog.ListServices(r.Context(), owner, true)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	names := make(map[string]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, appts, names, h.now()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Get(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(appt))
}

// Update serves both PATCH and PUT; absent fields are left unchanged.
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.engine.Update(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(appt))
}

func (req updateAppointmentRequest) patch() (booking.Patch, error) {
	p := booking.Patch{
		ServiceID:   req.ServiceID,
		Notes:       req.Notes,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ClientEmail: req.ClientEmail,
	}
	if req.StartTime != nil {
		t, err := parseTimestamp("start_time", *req.StartTime)
		if err != nil {
			return booking.Patch{}, err
		}
		p.StartTime = &t
	}
	if req.EndTime != nil {
		t, err := parseTimestamp("end_time", *req.EndTime)
		if err != nil {
			return booking.Patch{}, err
		}
		p.EndTime = &t
	}
	if req.Status != nil {
		st, ok := model.ParseStatus(*req.Status)
		if !ok {
			return booking.Patch{}, badField("status", "unknown status "+*req.Status)
		}
		p.Status = &st
	}
	return p, nil
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.engine.Cancel(r.Context(), auth.OwnerFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cancelResponse{Message: "appointment cancelled", Appointment: toAppointment(appt)})
}
