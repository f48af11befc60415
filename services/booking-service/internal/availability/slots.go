package availability

import (
	"time"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Busy collects the intervals of blocking appointments.
func Busy(appts []model.Appointment) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status.Blocking() {
			out = append(out, Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	return out
}

// OpenStarts returns start times within [windowStart, windowEnd), stepping
// by step, where a booking of length duration fits before windowEnd, does
// not overlap any busy interval and does not start before now.
func OpenStarts(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			starts = append(starts, t)
		}
	}
	return starts
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if model.Overlap(b.Start, b.End, start, end) {
			return true
		}
	}
	return false
}
