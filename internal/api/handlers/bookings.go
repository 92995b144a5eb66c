package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	PropertyID string    `json:"property_id"`
	GuestName  string    `json:"guest_name"`
	BeginAt    time.Time `json:"begin_at"`
	EndAt      time.Time `json:"end_at"`
	IsInquiry  bool      `json:"is_inquiry"`
	IsBlocked  bool      `json:"is_blocked"`
}

// BookingResponse wraps a booking with the outcome of its projection.
type BookingResponse struct {
	Booking         *models.Booking `json:"booking"`
	ProjectionError string          `json:"projection_error,omitempty"`
}

// CreateBooking stores an internal booking and projects it to the calendar.
func CreateBooking(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.PropertyID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "property_id is required")
			return
		}
		if req.BeginAt.IsZero() || !req.EndAt.After(req.BeginAt) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "end_at must be after begin_at")
			return
		}

		b := &models.Booking{
			PropertyID: req.PropertyID,
			GuestName:  req.GuestName,
			BeginAt:    req.BeginAt,
			EndAt:      req.EndAt,
			IsInquiry:  req.IsInquiry,
			IsBlocked:  req.IsBlocked,
		}

		created, err := svc.CreateBooking(r.Context(), b)
		if created == nil {
			writeEngineError(w, err)
			return
		}

		resp := BookingResponse{Booking: created}
		status := http.StatusCreated
		if err != nil {
			// Stored but not yet on the calendar.
			resp.ProjectionError = err.Error()
			status = http.StatusAccepted
		}
		writeJSON(w, status, resp)
	}
}

// GetBooking returns a booking.
func GetBooking(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		b, err := svc.Bookings.GetByID(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if b == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// ProjectBooking creates or updates a booking's calendar event.
func ProjectBooking(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		b, err := svc.Projector.ProjectBookingByID(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// RemoveBookingEvent deletes a booking's calendar event but keeps the booking.
func RemoveBookingEvent(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		b, err := svc.Projector.RemoveBookingEventByID(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// DeleteBooking removes a booking and its calendar event.
func DeleteBooking(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		err := svc.Projector.RemoveBooking(r.Context(), id)
		if err != nil && !errors.Is(err, calendar.ErrBookingNotFound) {
			writeEngineError(w, err)
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
