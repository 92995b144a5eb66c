// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/handlers"
	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
// An empty staticDir disables the file server.
func NewRouter(svc *calendar.Service, db *storage.DB, hub *websocket.Hub, staticDir string) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// Provider push notifications
	r.HandleFunc("/cal_webhook", handlers.CalendarWebhook(svc)).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(db, hub, svc.Scheduler)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	// Property endpoints
	api.HandleFunc("/properties", handlers.ListProperties(svc)).Methods("GET")
	api.HandleFunc("/properties", handlers.CreateProperty(svc)).Methods("POST")
	api.HandleFunc("/properties/{id}", handlers.GetProperty(svc)).Methods("GET")
	api.HandleFunc("/properties/{id}/bookings", handlers.ListPropertyBookings(svc)).Methods("GET")
	api.HandleFunc("/properties/{id}/calendar", handlers.SetPropertyCalendar(svc)).Methods("POST", "PUT")
	api.HandleFunc("/properties/{id}/sync", handlers.SyncProperty(svc)).Methods("POST")
	api.HandleFunc("/properties/{id}/resync", handlers.ResyncProperty(svc)).Methods("POST")
	api.HandleFunc("/properties/{id}/calendar.ics", handlers.ExportICS(svc)).Methods("GET")
	api.HandleFunc("/properties/{id}/ics-import", handlers.ImportICS(svc)).Methods("POST")

	// Booking endpoints
	api.HandleFunc("/bookings", handlers.CreateBooking(svc)).Methods("POST")
	api.HandleFunc("/bookings/{id}", handlers.GetBooking(svc)).Methods("GET")
	api.HandleFunc("/bookings/{id}", handlers.DeleteBooking(svc)).Methods("DELETE")
	api.HandleFunc("/bookings/{id}/project", handlers.ProjectBooking(svc)).Methods("POST")
	api.HandleFunc("/bookings/{id}/event", handlers.RemoveBookingEvent(svc)).Methods("DELETE")

	// Channel endpoints
	api.HandleFunc("/channels/stop", handlers.StopChannel(svc)).Methods("POST")
	api.HandleFunc("/channels/renew", handlers.RenewChannels(svc)).Methods("POST")

	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}

	return r
}
