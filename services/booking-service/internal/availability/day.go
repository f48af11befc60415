package availability

import (
	"time"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

// Slot is one row of the day calendar view.
type Slot struct {
	Label        string
	Start        time.Time
	End          time.Time
	Appointments []model.Appointment
	IsAvailable  bool
}

// Day groups the slots of one calendar date.
type Day struct {
	Date  time.Time
	Slots []Slot
}

// DaySlots splits [open, close) into interval-long slots, truncating the
// last one at close. Every appointment is attached to the slot whose start
// equals its own start; a slot is available when none of those block.
// Labels are "HH:MM" in open's location.
func DaySlots(open, close time.Time, interval time.Duration, appts []model.Appointment) []Slot {
	if interval <= 0 || !close.After(open) {
		return nil
	}

	byStart := make(map[int64][]model.Appointment, len(appts))
	for _, a := range appts {
		k := a.StartTime.UnixNano()
		byStart[k] = append(byStart[k], a)
	}

	loc := open.Location()
	var slots []Slot
	for t := open; t.Before(close); t = t.Add(interval) {
		end := t.Add(interval)
		if end.After(close) {
			end = close
		}
		attached := byStart[t.UnixNano()]
		slots = append(slots, Slot{
			Label:        t.In(loc).Format("15:04"),
			Start:        t,
			End:          end,
			Appointments: attached,
			IsAvailable:  !anyBlocking(attached),
		})
	}
	return slots
}

func anyBlocking(appts []model.Appointment) bool {
	for _, a := range appts {
		if a.Status.Blocking() {
			return true
		}
	}
	return false
}
