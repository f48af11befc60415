package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapagenda/zapagenda/libs/events"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/availability"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

const (
	owner    = "biz-1"
	haircut  = "7a1f6c3e-3f7b-4c55-9a54-0d8f7e1d2a10"
	coloring = "c2a7d0b1-5e8f-4a1d-8a3b-6b0e9f4c7d21"
	retired  = "0b7e9c62-2f51-4f0d-b8e1-4f4b8d3a9c55"
)

var day = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func newTestEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore()
	catalog := memCatalog{
		haircut:  {ID: haircut, OwnerID: owner, Name: "Haircut", DurationMinutes: 60, Active: true},
		coloring: {ID: coloring, OwnerID: owner, Name: "Coloring", DurationMinutes: 90, Active: true},
		retired:  {ID: retired, OwnerID: owner, Name: "Old", DurationMinutes: 30, Active: false},
	}
	return NewEngine(store, catalog, WithClock(func() time.Time { return at(7, 0) })), store
}

func book(t *testing.T, e *Engine, start time.Time) model.Appointment {
	t.Helper()
	appt, err := e.CheckAndCreate(context.Background(), CreateInput{
		OwnerID:     owner,
		ServiceID:   haircut,
		ClientName:  "Ana",
		ClientPhone: "+5511999990000",
		StartTime:   start,
	})
	require.NoError(t, err)
	return appt
}

func TestCheckAndCreate_DerivesEndFromService(t *testing.T) {
	e, store := newTestEngine(t)

	appt := book(t, e, at(10, 0))
	assert.Equal(t, model.StatusScheduled, appt.Status)
	assert.True(t, appt.EndTime.Equal(at(11, 0)))
	_, err := uuid.Parse(appt.ID)
	require.NoError(t, err)

	evts := store.published()
	require.Len(t, evts, 1)
	assert.Equal(t, events.AppointmentBooked, evts[0].Type)
	assert.Equal(t, appt.ID, evts[0].Appointment.ID)
}

func TestCheckAndCreate_TouchingIntervalsDoNotConflict(t *testing.T) {
	e, _ := newTestEngine(t)
	book(t, e, at(10, 0))

	book(t, e, at(11, 0))
	book(t, e, at(9, 0))
}

func TestCheckAndCreate_OverlapIsRejected(t *testing.T) {
	e, store := newTestEngine(t)
	first := book(t, e, at(10, 0))

	for _, start := range []time.Time{at(10, 0), at(10, 30), at(9, 30), at(10, 59)} {
		_, err := e.CheckAndCreate(context.Background(), CreateInput{
			OwnerID: owner, ServiceID: haircut, ClientName: "Bob", ClientPhone: "1", StartTime: start,
		})
		require.ErrorIs(t, err, ErrSlotTaken, "start %s", start.Format("15:04"))

		var conflict *ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, first.ID, conflict.ConflictingID)
		assert.True(t, conflict.Start.Equal(first.StartTime))
		assert.True(t, conflict.End.Equal(first.EndTime))
	}

	appts, err := e.List(context.Background(), owner, model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, appts, 1, "rejected bookings leave no rows")
	assert.Len(t, store.published(), 1, "rejected bookings emit no events")
}

func TestCheckAndCreate_CancelledAndNoShowDoNotBlock(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first := book(t, e, at(10, 0))
	_, err := e.Cancel(ctx, owner, first.ID)
	require.NoError(t, err)
	second := book(t, e, at(10, 0))

	noShow := model.StatusNoShow
	_, err = e.Update(ctx, owner, second.ID, Patch{Status: &noShow})
	require.NoError(t, err)
	book(t, e, at(10, 30))
}

func TestCheckAndCreate_OwnersAreIndependent(t *testing.T) {
	store := newMemStore()
	catalog := memCatalog{
		haircut:  {ID: haircut, OwnerID: owner, DurationMinutes: 60, Active: true},
		coloring: {ID: coloring, OwnerID: "biz-2", DurationMinutes: 60, Active: true},
	}
	e := NewEngine(store, catalog)

	_, err := e.CheckAndCreate(context.Background(), CreateInput{OwnerID: owner, ServiceID: haircut, ClientName: "A", ClientPhone: "1", StartTime: at(10, 0)})
	require.NoError(t, err)
	_, err = e.CheckAndCreate(context.Background(), CreateInput{OwnerID: "biz-2", ServiceID: coloring, ClientName: "B", ClientPhone: "2", StartTime: at(10, 0)})
	require.NoError(t, err)
}

func TestCheckAndCreate_Validation(t *testing.T) {
	e, _ := newTestEngine(t)
	base := CreateInput{OwnerID: owner, ServiceID: haircut, ClientName: "Ana", ClientPhone: "1", StartTime: at(10, 0)}

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		reason Reason
		field  string
	}{
		{"missing owner", func(in *CreateInput) { in.OwnerID = " " }, ReasonMissingField, "owner_id"},
		{"missing service", func(in *CreateInput) { in.ServiceID = "" }, ReasonMissingField, "service_id"},
		{"missing name", func(in *CreateInput) { in.ClientName = "" }, ReasonMissingField, "client_name"},
		{"missing phone", func(in *CreateInput) { in.ClientPhone = "" }, ReasonMissingField, "client_phone"},
		{"zero start", func(in *CreateInput) { in.StartTime = time.Time{} }, ReasonInvalidField, "start_time"},
		{"bad email", func(in *CreateInput) { in.ClientEmail = "nope" }, ReasonInvalidField, "client_email"},
		{"completed on create", func(in *CreateInput) { in.Status = model.StatusCompleted }, ReasonInvalidField, "status"},
		{"unknown service", func(in *CreateInput) { in.ServiceID = uuid.NewString() }, ReasonServiceNotFound, "service_id"},
		{"inactive service", func(in *CreateInput) { in.ServiceID = retired }, ReasonServiceNotFound, "service_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := e.CheckAndCreate(context.Background(), in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.reason, verr.Reason)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCheckAndCreate_ConfirmedOnCreate(t *testing.T) {
	e, _ := newTestEngine(t)
	appt, err := e.CheckAndCreate(context.Background(), CreateInput{
		OwnerID: owner, ServiceID: haircut, ClientName: "Ana", ClientPhone: "1", StartTime: at(10, 0), Status: model.StatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
}

func TestCheckAndCreate_Idempotency(t *testing.T) {
	e, store := newTestEngine(t)
	in := CreateInput{OwnerID: owner, ServiceID: haircut, ClientName: "Ana", ClientPhone: "1", StartTime: at(10, 0), IdempotencyKey: "req-42"}

	first, err := e.CheckAndCreate(context.Background(), in)
	require.NoError(t, err)
	again, err := e.CheckAndCreate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, store.published(), 1)

	in.StartTime = at(14, 0)
	_, err = e.CheckAndCreate(context.Background(), in)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCheckAndCreate_ConstraintViolationIsConflict(t *testing.T) {
	e, store := newTestEngine(t)
	store.insertErr = fmt.Errorf("insert appointment: %w", model.ErrOverlap)

	_, err := e.CheckAndCreate(context.Background(), CreateInput{OwnerID: owner, ServiceID: haircut, ClientName: "Ana", ClientPhone: "1", StartTime: at(10, 0)})
	require.ErrorIs(t, err, ErrSlotTaken)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Empty(t, conflict.ConflictingID)
	assert.True(t, conflict.Start.Equal(at(10, 0)))
}

func TestCheckAndCreate_ConcurrentSameSlot(t *testing.T) {
	e, _ := newTestEngine(t)

	const n = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.CheckAndCreate(context.Background(), CreateInput{
				OwnerID: owner, ServiceID: haircut, ClientName: fmt.Sprintf("client-%d", i), ClientPhone: "1",
				StartTime: at(10, 0).Add(time.Duration(i%3) * 10 * time.Minute),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestUpdate_MoveChecksOverlapExcludingSelf(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, at(10, 0))
	b := book(t, e, at(12, 0))

	// Shifting within its own range is not a conflict with itself.
	start := at(10, 30)
	moved, err := e.Update(ctx, owner, a.ID, Patch{StartTime: &start})
	require.NoError(t, err)
	assert.True(t, moved.EndTime.Equal(at(11, 30)), "duration is kept")

	start = at(11, 30)
	_, err = e.Update(ctx, owner, a.ID, Patch{StartTime: &start})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, b.ID, conflict.ConflictingID)

	evts := store.published()
	assert.Equal(t, events.AppointmentUpdated, evts[len(evts)-1].Type)
}

func TestUpdate_NonTimePatchSkipsOverlapCheck(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, at(10, 0))
	calls := store.overlapCalls

	notes := "bring reference photo"
	confirmed := model.StatusConfirmed
	name := "Ana Maria"
	updated, err := e.Update(ctx, owner, a.ID, Patch{Notes: &notes, Status: &confirmed, ClientName: &name})
	require.NoError(t, err)
	assert.Equal(t, calls, store.overlapCalls)
	assert.Equal(t, notes, updated.Notes)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Equal(t, "Ana Maria", updated.ClientName)
	assert.True(t, updated.StartTime.Equal(a.StartTime))
}

func TestUpdate_ServiceChangeRecomputesEnd(t *testing.T) {
	e, _ := newTestEngine(t)
	a := book(t, e, at(10, 0))

	svc := coloring
	updated, err := e.Update(context.Background(), owner, a.ID, Patch{ServiceID: &svc})
	require.NoError(t, err)
	assert.Equal(t, coloring, updated.ServiceID)
	assert.True(t, updated.EndTime.Equal(at(11, 30)))

	end := at(10, 45)
	updated, err = e.Update(context.Background(), owner, a.ID, Patch{EndTime: &end})
	require.NoError(t, err)
	assert.True(t, updated.EndTime.Equal(end))

	end = at(9, 0)
	_, err = e.Update(context.Background(), owner, a.ID, Patch{EndTime: &end})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "end_time", verr.Field)
}

func TestUpdate_StatusTransitions(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, at(10, 0))

	completed := model.StatusCompleted
	_, err := e.Update(ctx, owner, a.ID, Patch{Status: &completed})
	require.NoError(t, err)

	scheduled := model.StatusScheduled
	_, err = e.Update(ctx, owner, a.ID, Patch{Status: &scheduled})
	require.ErrorIs(t, err, ErrInvalidTransition)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, model.StatusCompleted, terr.From)

	b := book(t, e, at(14, 0))
	cancelled := model.StatusCancelled
	got, err := e.Update(ctx, owner, b.ID, Patch{Status: &cancelled})
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)
	evts := store.published()
	assert.Equal(t, events.AppointmentCancelled, evts[len(evts)-1].Type)
}

func TestUpdate_RejectsEmptyPatchAndUnknownIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	a := book(t, e, at(10, 0))

	_, err := e.Update(context.Background(), owner, a.ID, Patch{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	notes := "x"
	_, err = e.Update(context.Background(), owner, uuid.NewString(), Patch{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.Update(context.Background(), owner, "not-a-uuid", Patch{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.Update(context.Background(), "biz-2", a.ID, Patch{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound, "other owners' appointments look missing")
}

func TestCancel(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, at(10, 0))

	cancelled, err := e.Cancel(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.True(t, cancelled.CancelledAt.Equal(at(7, 0)))

	again, err := e.Cancel(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.CancelledAt, again.CancelledAt)
	assert.Len(t, store.published(), 2, "second cancel emits nothing")

	_, err = e.Cancel(ctx, owner, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	b := book(t, e, at(12, 0))
	completed := model.StatusCompleted
	_, err = e.Update(ctx, owner, b.ID, Patch{Status: &completed})
	require.NoError(t, err)
	_, err = e.Cancel(ctx, owner, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListAndGet(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	late := book(t, e, at(15, 0))
	early := book(t, e, at(9, 0))

	appts, err := e.List(ctx, owner, model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, early.ID, appts[0].ID)

	appts, err = e.List(ctx, owner, model.ListFilter{From: at(12, 0), To: at(23, 0)})
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, late.ID, appts[0].ID)

	_, err = e.List(ctx, owner, model.ListFilter{From: at(12, 0), To: at(11, 0)})
	assert.Error(t, err)
	_, err = e.List(ctx, owner, model.ListFilter{Status: "BOOKED"})
	assert.Error(t, err)

	got, err := e.Get(ctx, owner, late.ID)
	require.NoError(t, err)
	assert.Equal(t, late.ID, got.ID)
	_, err = e.Get(ctx, "biz-2", late.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateSlots(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, at(10, 0))
	c := book(t, e, at(11, 0))
	_, err := e.Cancel(ctx, owner, c.ID)
	require.NoError(t, err)

	hours, err := availability.ParseBusinessHours("08:00", "18:00", time.UTC)
	require.NoError(t, err)
	slots, err := e.GenerateSlots(ctx, owner, day, hours, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 20)

	byLabel := map[string]availability.Slot{}
	for _, s := range slots {
		byLabel[s.Label] = s
	}
	require.Len(t, byLabel["10:00"].Appointments, 1)
	assert.Equal(t, a.ID, byLabel["10:00"].Appointments[0].ID)
	assert.False(t, byLabel["10:00"].IsAvailable)
	require.Len(t, byLabel["11:00"].Appointments, 1)
	assert.Equal(t, c.ID, byLabel["11:00"].Appointments[0].ID)
	assert.True(t, byLabel["11:00"].IsAvailable, "cancelled appointments are not shown as occupying")

	_, err = e.GenerateSlots(ctx, owner, day, hours, 0)
	assert.Error(t, err)
}

func TestGenerateWeek(t *testing.T) {
	e, _ := newTestEngine(t)
	book(t, e, day.AddDate(0, 0, 2).Add(9*time.Hour))

	hours, err := availability.ParseBusinessHours("09:00", "12:00", time.UTC)
	require.NoError(t, err)
	week, err := e.GenerateWeek(context.Background(), owner, day.Add(15*time.Hour), hours, time.Hour)
	require.NoError(t, err)
	require.Len(t, week, 7)
	assert.True(t, week[0].Date.Equal(day))
	for i, d := range week {
		require.Len(t, d.Slots, 3)
		assert.Equal(t, i != 2, d.Slots[0].IsAvailable, "day %d", i)
	}
}

func TestOpenStarts(t *testing.T) {
	e, _ := newTestEngine(t)
	book(t, e, at(9, 0))

	hours, err := availability.ParseBusinessHours("08:00", "12:00", time.UTC)
	require.NoError(t, err)
	open, err := e.OpenStarts(context.Background(), owner, haircut, day, hours, 30*time.Minute)
	require.NoError(t, err)

	var labels []string
	for _, iv := range open {
		labels = append(labels, iv.Start.Format("15:04"))
		assert.Equal(t, time.Hour, iv.End.Sub(iv.Start))
	}
	assert.Equal(t, []string{"08:00", "10:00", "10:30", "11:00"}, labels)

	_, err = e.OpenStarts(context.Background(), owner, retired, day, hours, 0)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonServiceNotFound, verr.Reason)
}

func TestOpenStarts_LongAppointmentFromEarlierDay(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	a := book(t, e, day.AddDate(0, 0, -2).Add(18*time.Hour))
	end := at(10, 0)
	_, err := e.Update(ctx, owner, a.ID, Patch{EndTime: &end})
	require.NoError(t, err)

	hours, err := availability.ParseBusinessHours("08:00", "12:00", time.UTC)
	require.NoError(t, err)
	open, err := e.OpenStarts(ctx, owner, haircut, day, hours, time.Hour)
	require.NoError(t, err)

	var labels []string
	for _, iv := range open {
		labels = append(labels, iv.Start.Format("15:04"))
	}
	assert.Equal(t, []string{"10:00", "11:00"}, labels)

	for _, iv := range open {
		_, err := e.CheckAndCreate(ctx, CreateInput{
			OwnerID:     owner,
			ServiceID:   haircut,
			ClientName:  "Bia",
			ClientPhone: "+5511988880000",
			StartTime:   iv.Start,
		})
		assert.NoError(t, err, "advertised start %s must be bookable", iv.Start.Format("15:04"))
	}
}

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	store := newMemStore()
	e := NewEngine(store, memCatalog{haircut: {ID: haircut, OwnerID: owner, DurationMinutes: 60, Active: true}}, WithMetrics(m))

	in := CreateInput{OwnerID: owner, ServiceID: haircut, ClientName: "Ana", ClientPhone: "1", StartTime: at(10, 0)}
	_, err := e.CheckAndCreate(context.Background(), in)
	require.NoError(t, err)
	_, err = e.CheckAndCreate(context.Background(), in)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "conflict")))
}
