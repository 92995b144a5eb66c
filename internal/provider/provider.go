// Package provider defines the calendar provider capability the sync engine
// depends on, and its Google Calendar implementation.
package provider

import (
	"context"
	"errors"
	"time"
)

// Distinguished provider conditions. Implementations wrap these so callers can
// test with errors.Is.
var (
	// ErrCursorGone means the sync token is invalid or expired and a full
	// resync is required.
	ErrCursorGone = errors.New("sync cursor gone")
	// ErrNotFound means the addressed event or channel does not exist.
	ErrNotFound = errors.New("not found")
	// ErrChannelIDNotUnique means a watch was requested with a channel id
	// that the provider already knows.
	ErrChannelIDNotUnique = errors.New("channel id not unique")
)

// Event status values.
const (
	StatusConfirmed = "confirmed"
	StatusTentative = "tentative"
	StatusCancelled = "cancelled"
)

// ChannelTypeWebHook is the only channel type the engine registers.
const ChannelTypeWebHook = "web_hook"

// EventTime is either a timed instant (DateTime, RFC3339) or an all-day
// date (Date, YYYY-MM-DD).
type EventTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Event is the provider's view of a calendar entry, as delivered on the wire.
// Fields are optional because cancelled events carry only ID and Status.
type Event struct {
	ID          string            `json:"id"`
	Status      string            `json:"status,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Description string            `json:"description,omitempty"`
	Start       *EventTime        `json:"start,omitempty"`
	End         *EventTime        `json:"end,omitempty"`
	Private     map[string]string `json:"private,omitempty"`
}

// ListOptions selects a page of events. SyncToken and TimeMin are mutually
// exclusive: a token continues an incremental sync, TimeMin bounds a full one.
type ListOptions struct {
	SyncToken string
	PageToken string
	TimeMin   time.Time
}

// EventPage is one page of a list response. NextSyncToken is only set on the
// final page.
type EventPage struct {
	Items         []Event
	NextPageToken string
	NextSyncToken string
}

// ChannelSpec describes a push-notification channel to register.
type ChannelSpec struct {
	ID      string
	Type    string
	Address string
}

// Channel is a registered push-notification channel.
type Channel struct {
	ID         string
	ResourceID string
	Expiration time.Time
}

// Client is the calendar provider capability.
type Client interface {
	ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*EventPage, error)
	Watch(ctx context.Context, calendarID string, spec ChannelSpec) (*Channel, error)
	StopChannel(ctx context.Context, channelID, resourceID string) error
	InsertEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) (*Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
