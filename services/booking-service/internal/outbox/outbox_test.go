package outbox

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/zapagenda/zapagenda/libs/events"
	"github.com/zapagenda/zapagenda/libs/kafkax"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

func TestAppointmentEventPayload(t *testing.T) {
	start := time.Date(2024, 5, 10, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	appt := model.Appointment{
		ID:          "0190f5a2-8f4e-7c3a-9d1b-2a3c4d5e6f70",
		OwnerID:     "biz-1",
		ServiceID:   "svc-1",
		ClientName:  "Ana",
		ClientPhone: "+5511999990000",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      model.StatusScheduled,
	}

	evt, err := AppointmentEvent(events.AppointmentBooked, appt, "America/Sao_Paulo", start)
	require.NoError(t, err)
	assert.Equal(t, "appointment", evt.AggregateType)
	assert.Equal(t, appt.ID, evt.AggregateID)
	assert.Equal(t, events.AppointmentBooked, evt.EventType)

	decoded, err := events.DecodeAppointment(evt.Payload)
	require.NoError(t, err)
	assert.Equal(t, "SCHEDULED", decoded.Status)
	assert.Equal(t, time.UTC, decoded.StartTime.Location())
	assert.True(t, decoded.StartTime.Equal(start))
	assert.Equal(t, "America/Sao_Paulo", decoded.Timezone)
}

func TestToMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	rec := Record{
		ID:          7,
		EventID:     "5f0c1c8e-0c1d-4c43-8f27-3d1c9a3b1e11",
		AggregateID: "appt-1",
		EventType:   events.AppointmentCancelled,
		Payload:     []byte(`{}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}

	msg := toMessage(context.Background(), rec)
	assert.Equal(t, events.AppointmentCancelled, msg.Topic)
	assert.Equal(t, []byte("appt-1"), msg.Key)

	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, rec.EventID, meta.EventID)
	assert.Equal(t, rec.Traceparent, kafkax.HeaderValue(msg.Headers, "traceparent"))
}

type countingWriter struct {
	closes int
}

func (w *countingWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }

func (w *countingWriter) Close() error {
	w.closes++
	return nil
}

func TestPublisherRunClosesWriterOnce(t *testing.T) {
	w := &countingWriter{}
	p := NewPublisher(nil, NewRepository(), w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, 1, w.closes)
}
