package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/booking"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/catalog"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
)

type validationDetails struct {
	Reason booking.Reason `json:"reason"`
	Field  string         `json:"field,omitempty"`
}

type conflictDetails struct {
	ConflictingID string     `json:"conflicting_id,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
}

type transitionDetails struct {
	Reason string       `json:"reason"`
	From   model.Status `json:"from"`
	To     model.Status `json:"to"`
}

func badField(field, msg string) error {
	return &booking.ValidationError{Reason: booking.ReasonInvalidField, Field: field, Message: msg}
}

// writeError maps domain errors onto the JSON error envelope. Unexpected
// errors are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		verr *booking.ValidationError
		cerr *booking.ConflictError
		terr *booking.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, verr.Message, validationDetails{Reason: verr.Reason, Field: verr.Field})
	case errors.As(err, &cerr):
		d := conflictDetails{ConflictingID: cerr.ConflictingID}
		if !cerr.Start.IsZero() {
			s, e := cerr.Start.UTC(), cerr.End.UTC()
			d.StartTime, d.EndTime = &s, &e
		}
		httpx.WriteError(w, http.StatusConflict, "slot taken", d)
	case errors.As(err, &terr):
		httpx.WriteError(w, http.StatusConflict, terr.Error(), transitionDetails{Reason: "InvalidTransition", From: terr.From, To: terr.To})
	case errors.Is(err, booking.ErrIdempotencyConflict):
		httpx.WriteError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, catalog.ErrInvalid):
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), validationDetails{Reason: booking.ReasonInvalidField})
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteError(w, http.StatusServiceUnavailable, "request timed out", nil)
	default:
		logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
