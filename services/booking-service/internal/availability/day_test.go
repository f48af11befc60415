package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

func TestDaySlots_StandardDay(t *testing.T) {
	hours, err := ParseBusinessHours("08:00", "18:00", time.UTC)
	require.NoError(t, err)
	open, close := hours.Window(time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC))

	slots := DaySlots(open, close, 30*time.Minute, nil)
	require.Len(t, slots, 20)
	assert.Equal(t, "08:00", slots[0].Label)
	assert.Equal(t, "17:30", slots[19].Label)
	assert.True(t, slots[19].End.Equal(close))
	for _, s := range slots {
		assert.True(t, s.IsAvailable)
	}
}

func TestDaySlots_TruncatesLastSlot(t *testing.T) {
	open := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	close := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	slots := DaySlots(open, close, 25*time.Minute, nil)
	require.Len(t, slots, 3)
	assert.Equal(t, []string{"08:00", "08:25", "08:50"}, []string{slots[0].Label, slots[1].Label, slots[2].Label})
	assert.Equal(t, 10*time.Minute, slots[2].End.Sub(slots[2].Start))
}

func TestDaySlots_AttachesOnExactStartOnly(t *testing.T) {
	open := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	close := open.Add(2 * time.Hour)
	appts := []model.Appointment{
		{ID: "a", StartTime: open.Add(30 * time.Minute), EndTime: open.Add(90 * time.Minute), Status: model.StatusScheduled},
		{ID: "b", StartTime: open.Add(75 * time.Minute), EndTime: open.Add(90 * time.Minute), Status: model.StatusConfirmed},
		{ID: "c", StartTime: open, EndTime: open.Add(30 * time.Minute), Status: model.StatusCancelled},
	}

	slots := DaySlots(open, close, 30*time.Minute, appts)
	require.Len(t, slots, 4)

	require.Len(t, slots[0].Appointments, 1)
	assert.Equal(t, "c", slots[0].Appointments[0].ID)
	assert.True(t, slots[0].IsAvailable, "a cancelled appointment does not occupy its slot")
	require.Len(t, slots[1].Appointments, 1)
	assert.Equal(t, "a", slots[1].Appointments[0].ID)
	assert.False(t, slots[1].IsAvailable)
	// 09:00 is covered by "a" but nothing starts there; "b" starts off-grid at 09:15.
	assert.True(t, slots[2].IsAvailable)
	assert.True(t, slots[3].IsAvailable)
}

func TestDaySlots_LabelsUseLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	hours, err := ParseBusinessHours("09:00", "10:00", loc)
	require.NoError(t, err)

	open, close := hours.Window(time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, 12, open.UTC().Hour())

	slots := DaySlots(open, close, 30*time.Minute, nil)
	require.Len(t, slots, 2)
	assert.Equal(t, "09:30", slots[1].Label)
}

func TestParseBusinessHours(t *testing.T) {
	_, err := ParseBusinessHours("18:00", "08:00", nil)
	assert.Error(t, err)
	_, err = ParseBusinessHours("8", "18:00", nil)
	assert.Error(t, err)
	_, err = ParseBusinessHours("08:60", "18:00", nil)
	assert.Error(t, err)

	h, err := ParseBusinessHours("00:00", "24:00", nil)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, h.Close)
}
