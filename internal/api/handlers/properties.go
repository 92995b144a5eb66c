package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// CreatePropertyRequest is the body of POST /api/properties.
type CreatePropertyRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// ListProperties returns all properties.
func ListProperties(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		properties, err := svc.Properties.List(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if properties == nil {
			properties = []models.Property{}
		}
		writeJSON(w, http.StatusOK, properties)
	}
}

// CreateProperty adds a property without a calendar.
func CreateProperty(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePropertyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if req.Name == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Name is required")
			return
		}
		if req.Timezone == "" {
			req.Timezone = "UTC"
		}
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown timezone")
			return
		}

		p := &models.Property{ID: req.ID, Name: req.Name, Timezone: req.Timezone}
		if err := svc.Properties.Create(r.Context(), p); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// GetProperty returns a property with its channel and sync status.
func GetProperty(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		p, err := svc.Properties.GetByID(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if p == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ListPropertyBookings returns every booking on a property.
func ListPropertyBookings(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		bookings, err := svc.Bookings.ListByProperty(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if bookings == nil {
			bookings = []models.Booking{}
		}
		writeJSON(w, http.StatusOK, bookings)
	}
}
