package models

import (
	"time"
)

// Booking is a trip against a property: a confirmed stay or a placeholder
// (inquiry, owner block).
type Booking struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"property_id"`
	GuestName    string    `json:"guest_name,omitempty"`
	BeginAt      time.Time `json:"begin_at"`
	EndAt        time.Time `json:"end_at"`
	IsExternal   bool      `json:"is_external"`
	IsInquiry    bool      `json:"is_inquiry"`
	IsBlocked    bool      `json:"is_blocked"`
	EventID      string    `json:"event_id,omitempty"`
	EventSummary string    `json:"event_summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsPlaceholder reports whether the booking is an inquiry or a block rather
// than a confirmed stay.
func (b *Booking) IsPlaceholder() bool {
	return b.IsInquiry || b.IsBlocked
}
