package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

func TestOpenStarts_Basic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	starts := OpenStarts(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, busy, day)
	require.Len(t, starts, 2)
	assert.True(t, starts[0].Equal(day.Add(9*time.Hour)))
	assert.True(t, starts[1].Equal(day.Add(9*time.Hour+45*time.Minute)), "a start touching the busy end is free")
}

func TestOpenStarts_SkipsPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 31*time.Minute)

	starts := OpenStarts(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, nil, now)
	require.Len(t, starts, 1)
	assert.True(t, starts[0].Equal(day.Add(9*time.Hour+45*time.Minute)))
}

func TestOpenStarts_DurationLongerThanStep(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	starts := OpenStarts(day.Add(9*time.Hour), day.Add(10*time.Hour), 45*time.Minute, 15*time.Minute, nil, day)
	// 09:00 and 09:15 fit; 09:30 would end at 10:15.
	assert.Len(t, starts, 2)
}

func TestBusySkipsNonBlocking(t *testing.T) {
	day := time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
	busy := Busy([]model.Appointment{
		{StartTime: day, EndTime: day.Add(time.Hour), Status: model.StatusCancelled},
		{StartTime: day, EndTime: day.Add(time.Hour), Status: model.StatusNoShow},
		{StartTime: day, EndTime: day.Add(time.Hour), Status: model.StatusConfirmed},
	})
	assert.Len(t, busy, 1)
}
