package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

type apiError struct {
	status int
	code   string
	msg    string
}

// publicErrors are shown to clients booking through the public link.
var publicErrors = []struct {
	kind error
	apiError
}{
	{model.ErrNotFound, apiError{http.StatusNotFound, "not_found", "We could not find that service or booking. Please reload the page."}},
	{model.ErrInactive, apiError{http.StatusConflict, "service_inactive", "This service is not offered at the moment. Please pick another one."}},
	{model.ErrUnauthorized, apiError{http.StatusForbidden, "not_your_turn", "It is not your turn to book yet. Keep this page open until you reach the front of the queue."}},
	{model.ErrQueueFull, apiError{http.StatusTooManyRequests, "queue_full", "Too many people are booking right now. Please try again in a few minutes."}},
	{model.ErrSlotUnavailable, apiError{http.StatusConflict, "slot_unavailable", "This time slot is no longer available. Please choose another one."}},
	{model.ErrLimitExceeded, apiError{http.StatusConflict, "limit_exceeded", fmt.Sprintf("You cannot have more than %d upcoming appointments.", model.MaxActiveBookings)}},
	{model.ErrDuplicateDate, apiError{http.StatusConflict, "duplicate_date", "You already have an appointment on this date."}},
	{model.ErrInvalidState, apiError{http.StatusConflict, "invalid_state", "This appointment can no longer be changed."}},
	{model.ErrTransient, apiError{http.StatusServiceUnavailable, "busy", "We are handling many requests right now. Please try again."}},
}

// ownerErrors override the public table on owner routes.
var ownerErrors = map[error]apiError{
	model.ErrNotFound:     {http.StatusNotFound, "not_found", "Appointment not found."},
	model.ErrUnauthorized: {http.StatusForbidden, "forbidden", "You are not allowed to change this appointment."},
}

func classify(err error, owner bool) (apiError, bool) {
	if errors.Is(err, model.ErrInvalidArgument) {
		// Validation messages name the offending field, so they are passed through.
		return apiError{http.StatusBadRequest, "invalid_argument", err.Error()}, true
	}
	for _, e := range publicErrors {
		if !errors.Is(err, e.kind) {
			continue
		}
		if owner {
			if o, ok := ownerErrors[e.kind]; ok {
				return o, true
			}
		}
		return e.apiError, true
	}
	return apiError{}, false
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, owner bool) {
	e, ok := classify(err, owner)
	if !ok {
		logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "Something went wrong. Please try again.")
		return
	}
	if e.status >= http.StatusInternalServerError {
		logger.Warn("request failed", "err", err, "path", r.URL.Path)
	}
	httpx.WriteError(w, e.status, e.code, e.msg)
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", msg)
}
