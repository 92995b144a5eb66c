package handlers

import (
	"net/http"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	PropertiesCount   int                  `json:"properties_count"`
	CalendarsCount    int                  `json:"calendars_count"`
	ChannelsExpiring  int                  `json:"channels_expiring"`
	BookingsCount     int                  `json:"bookings_count"`
	ExternalBookings  int                  `json:"external_bookings"`
	SyncErrors        int                  `json:"sync_errors"`
	WebSocketClients  int                  `json:"websocket_clients"`
	NextRuns          map[string]time.Time `json:"next_runs,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var resp StatusResponse

		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&resp.PropertiesCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties WHERE calendar_id <> ''").Scan(&resp.CalendarsCount)
		db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM properties WHERE calendar_id <> '' AND (channel_expiration IS NULL OR channel_expiration < ?)",
			time.Now().UTC().Add(24*time.Hour),
		).Scan(&resp.ChannelsExpiring)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties WHERE sync_status = ?", "error").Scan(&resp.SyncErrors)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings").Scan(&resp.BookingsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE is_external = ?", true).Scan(&resp.ExternalBookings)

		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			resp.NextRuns = scheduler.NextRuns()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
