package handlers

import (
	"net/http"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api/middleware"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
)

// StopChannelRequest is the body of POST /api/channels/stop.
type StopChannelRequest struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
}

// StopChannel stops a notification channel and forgets it.
func StopChannel(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StopChannelRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ID == "" || req.ResourceID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "id and resourceId are required")
			return
		}

		if err := svc.Channels.Revoke(r.Context(), req.ID, req.ResourceID); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook channel successfully deleted"})
	}
}

// RenewChannels runs the channel renewal sweep now.
func RenewChannels(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.Channels.RenewExpiring(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if results == nil {
			results = []calendar.RenewalResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
