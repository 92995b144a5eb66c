package handlers

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
)

// SetCalendarRequest is the body of POST /api/properties/{id}/calendar.
type SetCalendarRequest struct {
	CalendarID string `json:"calendar_id"`
}

// ImportICSRequest is the body of POST /api/properties/{id}/ics-import.
type ImportICSRequest struct {
	URL string `json:"url"`
}

// SetPropertyCalendar binds a property to a calendar, registers a channel
// and runs the initial sync.
func SetPropertyCalendar(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req SetCalendarRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.CalendarID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "calendar_id is required")
			return
		}

		result, err := svc.SetPropertyCalendar(r.Context(), id, req.CalendarID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ResyncProperty renews a property's channel and runs a full sync.
func ResyncProperty(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		result, err := svc.Resync(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// SyncProperty runs an incremental sync from the stored cursor.
func SyncProperty(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		result, err := svc.Sync.SyncProperty(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ExportICS serves a property's internal bookings as an iCalendar feed.
func ExportICS(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		ctx := r.Context()

		p, err := svc.Properties.GetByID(ctx, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if p == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}

		bookings, err := svc.Bookings.ListInternal(ctx, id)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		var buf bytes.Buffer
		if err := calendar.WriteICS(&buf, p, bookings, time.Now()); err != nil {
			writeEngineError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

// ImportICS reconciles an iCalendar feed into a property's bookings.
func ImportICS(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req ImportICSRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.URL == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "url is required")
			return
		}

		result, err := svc.Importer.ImportURL(r.Context(), id, req.URL)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
