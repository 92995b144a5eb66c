package websocket

import (
	"log/slog"

	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// EventBroadcaster turns engine events into WebSocket messages.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncCompleted sends a calendar sync completed event.
func (b *EventBroadcaster) SyncCompleted(result models.CalendarSyncResult) {
	payload := SyncPayload{
		PropertyID:      result.PropertyID,
		PropertyName:    result.PropertyName,
		CalendarID:      result.CalendarID,
		Status:          models.SyncStatusSuccess,
		Pages:           result.Pages,
		EventsFound:     result.EventsFound,
		BookingsCreated: result.BookingsCreated,
		BookingsUpdated: result.BookingsUpdated,
		BookingsRemoved: result.BookingsRemoved,
		EventsSkipped:   result.EventsSkipped,
		CursorResets:    result.CursorResets,
	}

	if result.Error != nil {
		payload.Status = models.SyncStatusError
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// SyncFailed sends a calendar sync error event.
func (b *EventBroadcaster) SyncFailed(propertyID, propertyName string, err error) {
	b.broadcast(NewMessage(TypeSyncError, SyncErrorPayload{
		PropertyID:   propertyID,
		PropertyName: propertyName,
		Error:        "sync_error",
		Message:      err.Error(),
	}))
}

// ChannelRenewed sends a channel renewed event.
func (b *EventBroadcaster) ChannelRenewed(ch models.Channel) {
	b.broadcast(NewMessage(TypeChannelRenewed, ChannelPayload{
		PropertyID: ch.PropertyID,
		ChannelID:  ch.ID,
		ExpiresAt:  ch.ExpiresAt,
	}))
}

// BookingProjected sends a booking projected event.
func (b *EventBroadcaster) BookingProjected(booking models.Booking) {
	b.broadcast(NewMessage(TypeBookingProjected, BookingPayload{
		BookingID:  booking.ID,
		PropertyID: booking.PropertyID,
		EventID:    booking.EventID,
	}))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		slog.Error("can't encode websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
