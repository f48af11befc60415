package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BusinessHours is a daily opening window in a fixed location.
type BusinessHours struct {
	Open     time.Duration // offset from local midnight
	Close    time.Duration
	Location *time.Location
}

// ParseBusinessHours parses "HH:MM" open/close times.
func ParseBusinessHours(open, close string, loc *time.Location) (BusinessHours, error) {
	o, err := parseClock(open)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("open: %w", err)
	}
	c, err := parseClock(close)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("close: %w", err)
	}
	if c <= o {
		return BusinessHours{}, fmt.Errorf("close %s must be after open %s", close, open)
	}
	if loc == nil {
		loc = time.UTC
	}
	return BusinessHours{Open: o, Close: c, Location: loc}, nil
}

// Window returns the open and close instants on the calendar date of day,
// interpreted in the hours' location.
func (h BusinessHours) Window(day time.Time) (time.Time, time.Time) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return clockOn(y, m, d, h.Open, loc), clockOn(y, m, d, h.Close, loc)
}

func clockOn(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	mins := int(offset / time.Minute)
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, loc)
}

func parseClock(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
