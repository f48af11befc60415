// Package booking implements conflict-checked appointment booking. All
// writes for one owner go through Store.InOwnerTx, which serializes them, so
// the overlap check and the insert/update that follows it see a stable view
// of the owner's calendar.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zapagenda/zapagenda/libs/events"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

// Event is a domain event recorded in the same transaction as the write
// that caused it.
type Event struct {
	Type        string
	Appointment model.Appointment
	OccurredAt  time.Time
}

type Store interface {
	// InOwnerTx runs fn in a transaction that excludes every other
	// InOwnerTx for the same owner until it commits or rolls back.
	InOwnerTx(ctx context.Context, ownerID string, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, ownerID, id string) (model.Appointment, error)
	List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.Appointment, error)
	// Busy returns blocking appointments intersecting [start, end), however
	// early they started.
	Busy(ctx context.Context, ownerID string, start, end time.Time) ([]model.Appointment, error)
}

type Tx interface {
	// Overlapping returns blocking appointments intersecting [start, end),
	// skipping excludeID.
	Overlapping(ctx context.Context, ownerID string, start, end time.Time, excludeID string) ([]model.Appointment, error)
	GetForUpdate(ctx context.Context, ownerID, id string) (model.Appointment, error)
	Insert(ctx context.Context, a model.Appointment) (model.Appointment, error)
	Update(ctx context.Context, a model.Appointment) (model.Appointment, error)
	Enqueue(ctx context.Context, evt Event) error
}

// Catalog resolves services; unknown and inactive services are
// model.ErrNotFound.
type Catalog interface {
	Lookup(ctx context.Context, ownerID, serviceID string) (model.Service, error)
}

type Engine struct {
	store   Store
	catalog Catalog
	now     func() time.Time
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store Store, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		tracer:  otel.Tracer("github.com/zapagenda/zapagenda/services/booking-service/internal/booking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateInput struct {
	OwnerID        string
	ServiceID      string
	ClientName     string
	ClientPhone    string
	ClientEmail    string
	StartTime      time.Time
	Notes          string
	Status         model.Status // empty means SCHEDULED
	IdempotencyKey string
}

func (in *CreateInput) normalize() {
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.ClientPhone = strings.TrimSpace(in.ClientPhone)
	in.ClientEmail = strings.TrimSpace(in.ClientEmail)
	in.Notes = strings.TrimSpace(in.Notes)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.Status == "" {
		in.Status = model.StatusScheduled
	}
}

func (in CreateInput) validate() error {
	switch {
	case in.OwnerID == "":
		return missing("owner_id")
	case in.ServiceID == "":
		return missing("service_id")
	case in.ClientName == "":
		return missing("client_name")
	case in.ClientPhone == "":
		return missing("client_phone")
	case in.StartTime.IsZero():
		return invalid("start_time", "start_time must be a valid timestamp")
	case !in.Status.Initial():
		return invalid("status", fmt.Sprintf("new appointments cannot start as %s", in.Status))
	}
	if err := validateContact(in.ClientName, in.ClientEmail); err != nil {
		return err
	}
	if len(in.IdempotencyKey) > 200 {
		return invalid("idempotency_key", "idempotency key is too long")
	}
	return nil
}

func validateContact(name, email string) error {
	if len(name) > 200 {
		return invalid("client_name", "client_name is too long")
	}
	if email != "" && !strings.Contains(email, "@") {
		return invalid("client_email", "client_email is not an email address")
	}
	return nil
}

// CheckAndCreate books an appointment if its interval is free. The end time
// is derived from the service duration. With an idempotency key, replaying
// the same request returns the appointment created the first time.
func (e *Engine) CheckAndCreate(ctx context.Context, in CreateInput) (out model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.CheckAndCreate", in.OwnerID)
	defer func() { e.finish(span, "create", err) }()

	in.normalize()
	if err := in.validate(); err != nil {
		return model.Appointment{}, err
	}
	svc, err := e.resolveService(ctx, in.OwnerID, in.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}

	start := in.StartTime.UTC()
	appt := model.Appointment{
		ID:          newID(),
		OwnerID:     in.OwnerID,
		ServiceID:   svc.ID,
		ClientName:  in.ClientName,
		ClientPhone: in.ClientPhone,
		ClientEmail: in.ClientEmail,
		StartTime:   start,
		EndTime:     start.Add(svc.Duration()),
		Status:      in.Status,
		Notes:       in.Notes,
	}
	if in.IdempotencyKey != "" {
		appt.ID = idempotentID(in.OwnerID, in.IdempotencyKey)
	}

	err = e.store.InOwnerTx(ctx, in.OwnerID, func(ctx context.Context, tx Tx) error {
		if in.IdempotencyKey != "" {
			prev, err := tx.GetForUpdate(ctx, in.OwnerID, appt.ID)
			switch {
			case err == nil:
				if !sameRequest(prev, appt) {
					return ErrIdempotencyConflict
				}
				span.SetAttributes(attribute.Bool("booking.idempotent_replay", true))
				out = prev
				return nil
			case !errors.Is(err, model.ErrNotFound):
				return fmt.Errorf("load idempotent appointment: %w", err)
			}
		}

		if err := checkOverlap(ctx, tx, appt, ""); err != nil {
			return err
		}
		created, err := tx.Insert(ctx, appt)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, Event{Type: events.AppointmentBooked, Appointment: created, OccurredAt: e.now()}); err != nil {
			return fmt.Errorf("enqueue booked event: %w", err)
		}
		out = created
		return nil
	})
	if err != nil {
		return model.Appointment{}, storeError(err, appt)
	}
	return out, nil
}

// Patch holds the fields of an update; nil means unchanged.
type Patch struct {
	ServiceID   *string
	StartTime   *time.Time
	EndTime     *time.Time
	Status      *model.Status
	Notes       *string
	ClientName  *string
	ClientPhone *string
	ClientEmail *string
}

func (p Patch) validate() error {
	if p.ServiceID == nil && p.StartTime == nil && p.EndTime == nil && p.Status == nil &&
		p.Notes == nil && p.ClientName == nil && p.ClientPhone == nil && p.ClientEmail == nil {
		return &ValidationError{Reason: ReasonMissingField, Message: "no fields to update"}
	}
	if p.ServiceID != nil && strings.TrimSpace(*p.ServiceID) == "" {
		return missing("service_id")
	}
	if p.ClientName != nil && strings.TrimSpace(*p.ClientName) == "" {
		return missing("client_name")
	}
	if p.ClientPhone != nil && strings.TrimSpace(*p.ClientPhone) == "" {
		return missing("client_phone")
	}
	if p.StartTime != nil && p.StartTime.IsZero() {
		return invalid("start_time", "start_time must be a valid timestamp")
	}
	if p.EndTime != nil && p.EndTime.IsZero() {
		return invalid("end_time", "end_time must be a valid timestamp")
	}
	if p.Status != nil && !p.Status.Valid() {
		return invalid("status", fmt.Sprintf("unknown status %q", *p.Status))
	}
	name, email := "", ""
	if p.ClientName != nil {
		name = strings.TrimSpace(*p.ClientName)
	}
	if p.ClientEmail != nil {
		email = strings.TrimSpace(*p.ClientEmail)
	}
	return validateContact(name, email)
}

// Update applies p to an appointment. The overlap check only runs when the
// resulting interval differs from the stored one and the appointment still
// blocks its time range.
func (e *Engine) Update(ctx context.Context, ownerID, id string, p Patch) (out model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.Update", ownerID)
	defer func() { e.finish(span, "update", err) }()

	if err := validateRef(ownerID, id); err != nil {
		return model.Appointment{}, err
	}
	if err := p.validate(); err != nil {
		return model.Appointment{}, err
	}

	var svc *model.Service
	if p.ServiceID != nil {
		s, err := e.resolveService(ctx, ownerID, strings.TrimSpace(*p.ServiceID))
		if err != nil {
			return model.Appointment{}, err
		}
		svc = &s
	}

	var next model.Appointment
	err = e.store.InOwnerTx(ctx, ownerID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		next, err = applyPatch(cur, p, svc, e.now())
		if err != nil {
			return err
		}

		moved := !next.StartTime.Equal(cur.StartTime) || !next.EndTime.Equal(cur.EndTime)
		span.SetAttributes(attribute.Bool("booking.interval_changed", moved))
		if moved {
			if err := checkOverlap(ctx, tx, next, cur.ID); err != nil {
				return err
			}
		}

		updated, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		evtType := events.AppointmentUpdated
		if updated.Status == model.StatusCancelled && cur.Status != model.StatusCancelled {
			evtType = events.AppointmentCancelled
		}
		if err := tx.Enqueue(ctx, Event{Type: evtType, Appointment: updated, OccurredAt: e.now()}); err != nil {
			return fmt.Errorf("enqueue %s: %w", evtType, err)
		}
		out = updated
		return nil
	})
	if err != nil {
		return model.Appointment{}, storeError(err, next)
	}
	return out, nil
}

func applyPatch(cur model.Appointment, p Patch, svc *model.Service, now time.Time) (model.Appointment, error) {
	next := cur
	if p.ClientName != nil {
		next.ClientName = strings.TrimSpace(*p.ClientName)
	}
	if p.ClientPhone != nil {
		next.ClientPhone = strings.TrimSpace(*p.ClientPhone)
	}
	if p.ClientEmail != nil {
		next.ClientEmail = strings.TrimSpace(*p.ClientEmail)
	}
	if p.Notes != nil {
		next.Notes = strings.TrimSpace(*p.Notes)
	}

	duration := cur.Duration()
	serviceChanged := svc != nil && svc.ID != cur.ServiceID
	if serviceChanged {
		next.ServiceID = svc.ID
		duration = svc.Duration()
	}
	if p.StartTime != nil {
		next.StartTime = p.StartTime.UTC()
	}
	switch {
	case p.EndTime != nil:
		next.EndTime = p.EndTime.UTC()
	case p.StartTime != nil || serviceChanged:
		next.EndTime = next.StartTime.Add(duration)
	}
	if !next.EndTime.After(next.StartTime) {
		return model.Appointment{}, invalid("end_time", "end_time must be after start_time")
	}

	if p.Status != nil && *p.Status != cur.Status {
		if !cur.Status.CanTransitionTo(*p.Status) {
			return model.Appointment{}, &TransitionError{From: cur.Status, To: *p.Status}
		}
		next.Status = *p.Status
		if next.Status == model.StatusCancelled {
			t := now.UTC()
			next.CancelledAt = &t
		}
	}
	return next, nil
}

// Cancel soft-cancels an appointment. Cancelling twice returns the
// appointment unchanged.
func (e *Engine) Cancel(ctx context.Context, ownerID, id string) (out model.Appointment, err error) {
	ctx, span := e.start(ctx, "booking.Cancel", ownerID)
	defer func() { e.finish(span, "cancel", err) }()

	if err := validateRef(ownerID, id); err != nil {
		return model.Appointment{}, err
	}

	err = e.store.InOwnerTx(ctx, ownerID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if cur.Status == model.StatusCancelled {
			out = cur
			return nil
		}
		if !cur.Status.CanTransitionTo(model.StatusCancelled) {
			return &TransitionError{From: cur.Status, To: model.StatusCancelled}
		}

		next := cur
		next.Status = model.StatusCancelled
		t := e.now().UTC()
		next.CancelledAt = &t
		updated, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, Event{Type: events.AppointmentCancelled, Appointment: updated, OccurredAt: t}); err != nil {
			return fmt.Errorf("enqueue cancelled event: %w", err)
		}
		out = updated
		return nil
	})
	if err != nil {
		return model.Appointment{}, storeError(err, model.Appointment{})
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, ownerID, id string) (model.Appointment, error) {
	if err := validateRef(ownerID, id); err != nil {
		return model.Appointment{}, err
	}
	appt, err := e.store.Get(ctx, ownerID, id)
	if err != nil {
		return model.Appointment{}, storeError(err, model.Appointment{})
	}
	return appt, nil
}

// List returns an owner's appointments ordered by start time.
func (e *Engine) List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.Appointment, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, missing("owner_id")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return nil, invalid("end_date", "end_date must be after start_date")
	}
	if f.Limit < 0 {
		return nil, invalid("limit", "limit must not be negative")
	}
	appts, err := e.store.List(ctx, ownerID, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// GenerateSlots builds the day view for the calendar date of day.
func (e *Engine) GenerateSlots(ctx context.Context, ownerID string, day time.Time, hours availability.BusinessHours, interval time.Duration) ([]availability.Slot, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, missing("owner_id")
	}
	if interval <= 0 {
		return nil, invalid("interval_minutes", "interval must be positive")
	}
	open, close := hours.Window(day)
	appts, err := e.store.List(ctx, ownerID, model.ListFilter{From: open, To: close})
	if err != nil {
		return nil, fmt.Errorf("list day appointments: %w", err)
	}
	return availability.DaySlots(open, close, interval, appts), nil
}

// GenerateWeek builds seven consecutive day views starting at weekStart's
// calendar date.
func (e *Engine) GenerateWeek(ctx context.Context, ownerID string, weekStart time.Time, hours availability.BusinessHours, interval time.Duration) ([]availability.Day, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, missing("owner_id")
	}
	if interval <= 0 {
		return nil, invalid("interval_minutes", "interval must be positive")
	}

	loc := hours.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := weekStart.In(loc).Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)

	from, _ := hours.Window(first)
	_, to := hours.Window(first.AddDate(0, 0, 6))
	appts, err := e.store.List(ctx, ownerID, model.ListFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list week appointments: %w", err)
	}

	days := make([]availability.Day, 0, 7)
	for i := 0; i < 7; i++ {
		date := first.AddDate(0, 0, i)
		open, close := hours.Window(date)
		days = append(days, availability.Day{
			Date:  date,
			Slots: availability.DaySlots(open, close, interval, appts),
		})
	}
	return days, nil
}

// OpenStarts lists the bookable intervals for a service on the calendar
// date of day, skipping times already past.
func (e *Engine) OpenStarts(ctx context.Context, ownerID, serviceID string, day time.Time, hours availability.BusinessHours, step time.Duration) ([]availability.Interval, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, missing("owner_id")
	}
	if strings.TrimSpace(serviceID) == "" {
		return nil, missing("service_id")
	}
	svc, err := e.resolveService(ctx, ownerID, serviceID)
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		step = svc.Duration()
	}

	open, close := hours.Window(day)
	appts, err := e.store.Busy(ctx, ownerID, open, close)
	if err != nil {
		return nil, fmt.Errorf("list busy appointments: %w", err)
	}

	starts := availability.OpenStarts(open, close, svc.Duration(), step, availability.Busy(appts), e.now())
	out := make([]availability.Interval, 0, len(starts))
	for _, s := range starts {
		out = append(out, availability.Interval{Start: s, End: s.Add(svc.Duration())})
	}
	return out, nil
}

func (e *Engine) resolveService(ctx context.Context, ownerID, serviceID string) (model.Service, error) {
	svc, err := e.catalog.Lookup(ctx, ownerID, serviceID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Service{}, &ValidationError{
			Reason:  ReasonServiceNotFound,
			Field:   "service_id",
			Message: fmt.Sprintf("service %s not found", serviceID),
		}
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("lookup service: %w", err)
	}
	if svc.DurationMinutes <= 0 {
		return model.Service{}, invalid("service_id", "service has no duration")
	}
	return svc, nil
}

func checkOverlap(ctx context.Context, tx Tx, appt model.Appointment, excludeID string) error {
	if !appt.Status.Blocking() {
		return nil
	}
	hits, err := tx.Overlapping(ctx, appt.OwnerID, appt.StartTime, appt.EndTime, excludeID)
	if err != nil {
		return fmt.Errorf("query overlapping appointments: %w", err)
	}
	for _, h := range hits {
		if h.ID == excludeID || !h.Status.Blocking() {
			continue
		}
		if h.Overlaps(appt.StartTime, appt.EndTime) {
			return &ConflictError{ConflictingID: h.ID, Start: h.StartTime, End: h.EndTime}
		}
	}
	return nil
}

// storeError maps store sentinels onto engine errors, leaving typed engine
// errors untouched.
func storeError(err error, attempted model.Appointment) error {
	var (
		verr *ValidationError
		cerr *ConflictError
		terr *TransitionError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr), errors.As(err, &terr):
		return err
	case errors.Is(err, ErrIdempotencyConflict):
		return ErrIdempotencyConflict
	case errors.Is(err, model.ErrOverlap):
		return &ConflictError{Start: attempted.StartTime, End: attempted.EndTime}
	case errors.Is(err, model.ErrDuplicate):
		return ErrIdempotencyConflict
	case errors.Is(err, model.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("appointment store: %w", err)
	}
}

func validateRef(ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return missing("owner_id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return nil
}

func sameRequest(prev, next model.Appointment) bool {
	return prev.ServiceID == next.ServiceID &&
		prev.ClientName == next.ClientName &&
		prev.ClientPhone == next.ClientPhone &&
		prev.StartTime.Equal(next.StartTime)
}

func idempotentID(ownerID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("zapagenda:appointment:"+ownerID+":"+key)).String()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Engine) start(ctx context.Context, name, ownerID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("booking.owner_id", ownerID)))
}

func (e *Engine) finish(span trace.Span, op string, err error) {
	defer span.End()
	e.metrics.observe(op, err)
	result := outcome(err)
	span.SetAttributes(attribute.String("booking.outcome", result))
	if result == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
