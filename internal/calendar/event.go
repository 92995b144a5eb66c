package calendar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
)

// Private extended properties stamped on every event the projector writes.
const (
	PropOrigin    = "plutusOrigin"
	PropKind      = "plutusKind"
	PropBookingID = "plutusBookingId"

	OriginPlutus = "plutus"
	KindBooking  = "booking"
	KindBuffer   = "buffer"
)

// Summary conventions predating the structured markers. Events written
// before the markers existed are still recognised by these.
const (
	InternalSummaryPrefix = "TW - "
	BufferSummaryMarker   = "[buffer]"
)

const eventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$defs": {
		"when": {
			"type": "object",
			"properties": {
				"date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
				"dateTime": {"type": "string", "minLength": 1},
				"timeZone": {"type": "string"}
			},
			"oneOf": [
				{"required": ["date"], "not": {"required": ["dateTime"]}},
				{"required": ["dateTime"], "not": {"required": ["date"]}}
			]
		}
	},
	"type": "object",
	"required": ["id", "status"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"status": {"type": "string"}
	},
	"oneOf": [
		{
			"properties": {"status": {"const": "cancelled"}}
		},
		{
			"required": ["start", "end", "summary", "status"],
			"properties": {
				"status": {"enum": ["confirmed", "tentative"]},
				"summary": {"type": "string"},
				"start": {"$ref": "#/$defs/when"},
				"end": {"$ref": "#/$defs/when"}
			}
		}
	]
}`

var eventSchema = compileEventSchema()

func compileEventSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("event schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("event.schema.json", doc); err != nil {
		panic(fmt.Sprintf("event schema: %v", err))
	}
	return c.MustCompile("event.schema.json")
}

// Event is a provider event that passed validation: either a CancelledEvent
// or an ActiveEvent.
type Event interface {
	EventID() string
	event()
}

// CancelledEvent reports that the provider removed an event.
type CancelledEvent struct {
	ID string
}

func (e CancelledEvent) EventID() string { return e.ID }
func (CancelledEvent) event()            {}

// ActiveEvent is a live, timed or all-day event.
type ActiveEvent struct {
	ID          string
	Status      string
	Summary     string
	Description string
	Start       Boundary
	End         Boundary
	Private     map[string]string
}

func (e ActiveEvent) EventID() string { return e.ID }
func (ActiveEvent) event()            {}

// IsBuffer reports whether the event is a buffer-time placeholder written by
// the projector.
func (e ActiveEvent) IsBuffer() bool {
	if e.Private[PropKind] == KindBuffer {
		return true
	}
	return strings.Contains(e.Summary, BufferSummaryMarker)
}

// IsPlatformAuthored reports whether the event was written by the projector.
// Feed imports never are, whatever their summary says.
func (e ActiveEvent) IsPlatformAuthored() bool {
	if strings.HasPrefix(e.ID, ICSEventPrefix) {
		return false
	}
	if e.Private[PropOrigin] == OriginPlutus {
		return true
	}
	return strings.HasPrefix(e.Summary, InternalSummaryPrefix)
}

// BookingRef returns the booking id stamped on a projected event, if any.
func (e ActiveEvent) BookingRef() string {
	return e.Private[PropBookingID]
}

// Boundary is one end of an event. Exactly one of Instant or Date is set.
type Boundary struct {
	Instant time.Time
	// Date is an all-day boundary, a civil date with no zone.
	Date   civilDate
	AllDay bool
}

type civilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Resolve returns the boundary as an instant. All-day dates are anchored at
// midnight in loc.
func (b Boundary) Resolve(loc *time.Location) time.Time {
	if b.AllDay {
		return time.Date(b.Date.Year, b.Date.Month, b.Date.Day, 0, 0, 0, 0, loc)
	}
	return b.Instant
}

// DecodeEvent validates a provider event and converts it into an Event.
// Validation failures wrap ErrMalformedEvent.
func DecodeEvent(ev provider.Event) (Event, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrMalformedEvent, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := eventSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: event %q: %v", ErrMalformedEvent, ev.ID, err)
	}

	if ev.Status == provider.StatusCancelled {
		return CancelledEvent{ID: ev.ID}, nil
	}

	start, err := parseBoundary(ev.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: event %q start: %v", ErrMalformedEvent, ev.ID, err)
	}
	end, err := parseBoundary(ev.End)
	if err != nil {
		return nil, fmt.Errorf("%w: event %q end: %v", ErrMalformedEvent, ev.ID, err)
	}
	if start.AllDay != end.AllDay {
		return nil, fmt.Errorf("%w: event %q mixes all-day and timed boundaries", ErrMalformedEvent, ev.ID)
	}

	return ActiveEvent{
		ID:          ev.ID,
		Status:      ev.Status,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
		Private:     ev.Private,
	}, nil
}

func parseBoundary(t *provider.EventTime) (Boundary, error) {
	if t.Date != "" {
		d, err := time.Parse(time.DateOnly, t.Date)
		if err != nil {
			return Boundary{}, err
		}
		return Boundary{AllDay: true, Date: civilDate{d.Year(), d.Month(), d.Day()}}, nil
	}

	if at, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
		return Boundary{Instant: at.UTC()}, nil
	}

	// Offset-less date-times are wall clock in the event's own zone.
	loc := time.UTC
	if t.TimeZone != "" {
		l, err := time.LoadLocation(t.TimeZone)
		if err != nil {
			return Boundary{}, fmt.Errorf("time zone %q: %w", t.TimeZone, err)
		}
		loc = l
	}
	for _, layout := range wallClockLayouts {
		if at, err := time.ParseInLocation(layout, t.DateTime, loc); err == nil {
			return Boundary{Instant: at.UTC()}, nil
		}
	}
	return Boundary{}, fmt.Errorf("unrecognised date-time %q", t.DateTime)
}

var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}
