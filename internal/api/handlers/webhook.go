package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
)

// CalendarWebhook receives provider push notifications. Any failure answers
// non-2xx so the provider redelivers.
func CalendarWebhook(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := calendar.NotificationFromRequest(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}

		slog.Debug("calendar notification",
			"calendar_id", n.CalendarID,
			"channel_id", n.ChannelID,
			"resource_state", n.ResourceState,
			"message_number", n.MessageNumber,
		)

		outcome, err := svc.Ingress.HandleNotification(r.Context(), n)
		if err != nil {
			slog.Error("calendar notification failed", "calendar_id", n.CalendarID, "channel_id", n.ChannelID, "error", err)
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
	}
}
