package models

import (
	"time"
)

// CalendarEvent is a VEVENT parsed from an iCalendar feed.
type CalendarEvent struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// AllDay is set when DTSTART carries a bare date; Start and End then hold
	// the civil dates at UTC midnight.
	AllDay   bool   `json:"all_day"`
	Location string `json:"location,omitempty"`
}
