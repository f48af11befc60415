package model

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores for a missing row or a row owned by
	// another tenant; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned by stores when the database rejected a write
	// because it would overlap another blocking appointment.
	ErrOverlap = errors.New("overlapping appointment")
	// ErrDuplicate is returned on a primary key collision.
	ErrDuplicate = errors.New("duplicate")
)

type Appointment struct {
	ID          string
	OwnerID     string
	ServiceID   string
	ClientName  string
	ClientPhone string
	ClientEmail string
	StartTime   time.Time
	EndTime     time.Time
	Status      Status
	Notes       string
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overlaps reports whether the appointment's half-open interval
// [StartTime, EndTime) intersects [start, end). Touching intervals do not.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return Overlap(a.StartTime, a.EndTime, start, end)
}

// Overlap is the single interval predicate used for conflict detection.
func Overlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// ListFilter narrows an owner's appointment listing. Zero values mean no
// constraint; From is inclusive and To exclusive, both on StartTime.
type ListFilter struct {
	From       time.Time
	To         time.Time
	Status     Status
	ServiceID  string
	ClientName string
	Limit      int
}
