package calendar

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

func TestEncode(t *testing.T) {
	start := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{
			ID: "a1", ServiceID: "s1", ClientName: "Ana", ClientPhone: "+5511999990000",
			StartTime: start, EndTime: start.Add(30 * time.Minute), Status: model.StatusConfirmed,
		},
		{
			ID: "a2", ServiceID: "s2", ClientName: "Bruno", ClientPhone: "+5511999990001",
			StartTime: start.Add(time.Hour), EndTime: start.Add(90 * time.Minute), Status: model.StatusCancelled,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, appts, map[string]string{"s1": "Haircut"}, start))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
	assert.Contains(t, out, "UID:a1@zapagenda")
	assert.Contains(t, out, "SUMMARY:Haircut - Ana")
	assert.Contains(t, out, "SUMMARY:Bruno")
	assert.Contains(t, out, "STATUS:CANCELLED")
	assert.Contains(t, out, "DTSTART:20260302T120000Z")

	cal, err := ical.NewDecoder(strings.NewReader(out)).Decode()
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)
	end, err := events[0].DateTimeEnd(time.UTC)
	require.NoError(t, err)
	assert.True(t, end.Equal(start.Add(30*time.Minute)))
}
