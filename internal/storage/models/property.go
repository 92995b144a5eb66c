// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Property is a rentable unit whose real-world availability is owned by an
// external calendar.
type Property struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	CalendarID        string     `json:"calendar_id,omitempty"`
	ChannelID         string     `json:"channel_id,omitempty"`
	ChannelResourceID string     `json:"channel_resource_id,omitempty"`
	ChannelExpiration *time.Time `json:"channel_expiration,omitempty"`
	NextSyncToken     string     `json:"-"`
	Timezone          string     `json:"timezone"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus        string     `json:"sync_status"`
	SyncError         *string    `json:"sync_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SyncStatus constants
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// Location returns the property's time zone, falling back to UTC when the
// stored name is empty or unknown.
func (p *Property) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasChannel reports whether a notification channel is recorded.
func (p *Property) HasChannel() bool {
	return p.ChannelID != "" && p.ChannelExpiration != nil
}

// ChannelExpiresWithin reports whether the current channel is missing or
// expires before now+window.
func (p *Property) ChannelExpiresWithin(now time.Time, window time.Duration) bool {
	if !p.HasChannel() {
		return true
	}
	return p.ChannelExpiration.Before(now.Add(window))
}

// Channel is a leased push-notification subscription with the calendar provider.
type Channel struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	PropertyID string    `json:"property_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CalendarSyncResult contains the results of a property sync operation.
type CalendarSyncResult struct {
	PropertyID      string    `json:"property_id"`
	PropertyName    string    `json:"property_name"`
	CalendarID      string    `json:"calendar_id"`
	Pages           int       `json:"pages"`
	EventsFound     int       `json:"events_found"`
	BookingsCreated int       `json:"bookings_created"`
	BookingsUpdated int       `json:"bookings_updated"`
	BookingsRemoved int       `json:"bookings_removed"`
	EventsSkipped   int       `json:"events_skipped"`
	CursorResets    int       `json:"cursor_resets"`
	Error           error     `json:"-"`
	SyncedAt        time.Time `json:"synced_at"`
}
