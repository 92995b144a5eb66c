// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("can't encode response", "error", err)
	}
}

// writeEngineError maps engine and store errors onto the API error envelope.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrPropertyNotFound),
		errors.Is(err, calendar.ErrBookingNotFound),
		errors.Is(err, storage.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, err.Error())
	case errors.Is(err, calendar.ErrNoCalendar),
		errors.Is(err, calendar.ErrExternalBooking):
		middleware.WriteError(w, http.StatusUnprocessableEntity, middleware.ErrUnprocessable, err.Error())
	case errors.Is(err, storage.ErrDuplicateEvent):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case calendar.IsFatal(err):
		var fatal *calendar.FatalError
		errors.As(err, &fatal)
		middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrUpstream, err.Error(), map[string]any{
			"op":       fatal.Op,
			"attempts": fatal.Attempts,
		})
	case errors.Is(err, provider.ErrCursorGone),
		errors.Is(err, provider.ErrChannelIDNotUnique):
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, err.Error())
	default:
		slog.Error("request failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}
