package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted    MessageType = "calendar.sync_completed"
	TypeSyncError        MessageType = "calendar.sync_error"
	TypeChannelRenewed   MessageType = "channel.renewed"
	TypeBookingProjected MessageType = "booking.projected"
	TypeNotification     MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for calendar.sync_completed events.
type SyncPayload struct {
	PropertyID      string `json:"property_id"`
	PropertyName    string `json:"property_name"`
	CalendarID      string `json:"calendar_id"`
	Status          string `json:"status"`
	Pages           int    `json:"pages"`
	EventsFound     int    `json:"events_found"`
	BookingsCreated int    `json:"bookings_created"`
	BookingsUpdated int    `json:"bookings_updated"`
	BookingsRemoved int    `json:"bookings_removed"`
	EventsSkipped   int    `json:"events_skipped"`
	CursorResets    int    `json:"cursor_resets"`
}

// SyncErrorPayload is the payload for calendar.sync_error events.
type SyncErrorPayload struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// ChannelPayload is the payload for channel.renewed events.
type ChannelPayload struct {
	PropertyID string    `json:"property_id"`
	ChannelID  string    `json:"channel_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// BookingPayload is the payload for booking.projected events.
type BookingPayload struct {
	BookingID  string `json:"booking_id"`
	PropertyID string `json:"property_id"`
	EventID    string `json:"event_id"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
