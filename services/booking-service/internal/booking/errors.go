package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

var (
	// ErrSlotTaken matches every *ConflictError.
	ErrSlotTaken = errors.New("slot taken")
	// ErrNotFound covers unknown ids and ids owned by another tenant.
	ErrNotFound = model.ErrNotFound
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
)

type Reason string

const (
	ReasonMissingField    Reason = "MissingField"
	ReasonInvalidField    Reason = "InvalidField"
	ReasonServiceNotFound Reason = "ServiceNotFound"
)

type ValidationError struct {
	Reason  Reason
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Reason, e.Field, e.Message)
}

func missing(field string) *ValidationError {
	return &ValidationError{Reason: ReasonMissingField, Field: field, Message: field + " is required"}
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Reason: ReasonInvalidField, Field: field, Message: msg}
}

// ConflictError reports the blocking appointment a write collided with.
// ConflictingID is empty when the database constraint caught the overlap.
type ConflictError struct {
	ConflictingID string
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	if e.ConflictingID == "" {
		return "slot taken"
	}
	return fmt.Sprintf("slot taken by appointment %s (%s - %s)",
		e.ConflictingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSlotTaken
}

type TransitionError struct {
	From model.Status
	To   model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
