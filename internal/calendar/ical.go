package calendar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// ICSEventPrefix namespaces the event ids of bookings imported from an
// iCalendar feed so they never collide with provider event ids.
const ICSEventPrefix = "ics:"

// Parser parses iCal/ICS calendar feeds.
type Parser struct {
	httpClient *http.Client
}

// NewParser creates a new iCal parser.
func NewParser() *Parser {
	return &Parser{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchAndParse downloads and parses an iCal feed from a URL.
func (p *Parser) FetchAndParse(ctx context.Context, url string) ([]models.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building calendar request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned status %d", resp.StatusCode)
	}

	return p.Parse(resp.Body)
}

// Parse reads VEVENTs from iCal data. Events without both DTSTART and DTEND
// are dropped.
func (p *Parser) Parse(r io.Reader) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	var current *models.CalendarEvent
	var field, params string
	var value strings.Builder

	flush := func() {
		if field != "" && current != nil {
			p.setEventField(current, field, params, value.String())
		}
		field, params = "", ""
		value.Reset()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		// Folded continuation line
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if field != "" {
				value.WriteString(line[1:])
			}
			continue
		}
		flush()

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue
		}
		name, val := line[:colonIdx], line[colonIdx+1:]

		// Property parameters, e.g. DTSTART;VALUE=DATE:20231215
		var lineParams string
		if semi := strings.Index(name, ";"); semi != -1 {
			name, lineParams = name[:semi], name[semi+1:]
		}

		switch name {
		case "BEGIN":
			if val == "VEVENT" {
				current = &models.CalendarEvent{}
			}
		case "END":
			if val == "VEVENT" && current != nil {
				if !current.Start.IsZero() && !current.End.IsZero() {
					events = append(events, *current)
				}
				current = nil
			}
		case "UID", "SUMMARY", "DESCRIPTION", "LOCATION", "DTSTART", "DTEND":
			if current != nil {
				field, params = name, lineParams
				value.WriteString(val)
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading calendar: %w", err)
	}

	return events, nil
}

func (p *Parser) setEventField(event *models.CalendarEvent, field, params, value string) {
	switch field {
	case "UID":
		event.UID = value
	case "SUMMARY":
		event.Summary = unescapeText(value)
	case "DESCRIPTION":
		event.Description = unescapeText(value)
	case "LOCATION":
		event.Location = unescapeText(value)
	case "DTSTART":
		event.Start, event.AllDay = p.parseDateTime(params, value)
	case "DTEND":
		event.End, _ = p.parseDateTime(params, value)
	}
}

// parseDateTime parses an iCal date or date-time. TZID-qualified local times
// are read in that zone; floating times are taken as UTC.
func (p *Parser) parseDateTime(params, value string) (time.Time, bool) {
	if strings.Contains(params, "VALUE=DATE") && !strings.Contains(params, "VALUE=DATE-TIME") || len(value) == 8 {
		t, err := time.Parse("20060102", value)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	loc := time.UTC
	for _, param := range strings.Split(params, ";") {
		if tzid, ok := strings.CutPrefix(param, "TZID="); ok {
			if l, err := time.LoadLocation(strings.Trim(tzid, `"`)); err == nil {
				loc = l
			}
		}
	}

	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		"2006-01-02T15:04:05Z",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t.UTC(), false
		}
	}

	return time.Time{}, false
}

func unescapeText(value string) string {
	return strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`).Replace(value)
}

func escapeText(value string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`).Replace(value)
}

// FilterFutureEvents returns only events that haven't ended yet.
func FilterFutureEvents(events []models.CalendarEvent, now time.Time) []models.CalendarEvent {
	var future []models.CalendarEvent
	for _, e := range events {
		if e.End.After(now) {
			future = append(future, e)
		}
	}
	return future
}

// ToEvent converts a parsed VEVENT into an active event keyed by its UID.
func ToEvent(e models.CalendarEvent) ActiveEvent {
	ev := ActiveEvent{
		ID:      ICSEventPrefix + e.UID,
		Status:  "confirmed",
		Summary: e.Summary,
	}
	if e.AllDay {
		ev.Start = Boundary{AllDay: true, Date: civilDate{e.Start.Year(), e.Start.Month(), e.Start.Day()}}
		ev.End = Boundary{AllDay: true, Date: civilDate{e.End.Year(), e.End.Month(), e.End.Day()}}
	} else {
		ev.Start = Boundary{Instant: e.Start}
		ev.End = Boundary{Instant: e.End}
	}
	return ev
}

// ImportResult summarises one feed import.
type ImportResult struct {
	PropertyID string `json:"property_id"`
	Events     int    `json:"events"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Removed    int    `json:"removed"`
	Skipped    int    `json:"skipped"`
}

// Importer reconciles an iCalendar feed into a property's bookings.
type Importer struct {
	parser     *Parser
	properties *storage.PropertyRepository
	bookings   *storage.BookingRepository
	reconciler *Reconciler
	now        func() time.Time
}

// NewImporter creates a feed importer.
func NewImporter(properties *storage.PropertyRepository, bookings *storage.BookingRepository) *Importer {
	return &Importer{
		parser:     NewParser(),
		properties: properties,
		bookings:   bookings,
		reconciler: NewReconciler(bookings),
		now:        time.Now,
	}
}

// ImportURL fetches a feed and imports it.
func (im *Importer) ImportURL(ctx context.Context, propertyID, url string) (*ImportResult, error) {
	events, err := im.parser.FetchAndParse(ctx, url)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, propertyID, events)
}

// Import upserts future feed events as external bookings and removes
// previously imported future bookings the feed no longer lists.
func (im *Importer) Import(ctx context.Context, propertyID string, events []models.CalendarEvent) (*ImportResult, error) {
	property, err := im.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	now := im.now().UTC()
	events = FilterFutureEvents(events, now)
	result := &ImportResult{PropertyID: property.ID, Events: len(events)}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e.UID == "" {
			result.Skipped++
			continue
		}
		ev := ToEvent(e)
		seen[ev.ID] = struct{}{}

		outcome, err := im.reconciler.Reconcile(ctx, property, ev)
		if err != nil {
			slog.Warn("skipping feed event", "property_id", property.ID, "uid", e.UID, "error", err)
			result.Skipped++
			continue
		}
		switch outcome {
		case OutcomeCreated:
			result.Created++
		case OutcomeUpdated:
			result.Updated++
		case OutcomeSkipped:
			result.Skipped++
		}
	}

	existing, err := im.bookings.ListFutureExternal(ctx, property.ID, now)
	if err != nil {
		return nil, err
	}
	for _, b := range existing {
		if !strings.HasPrefix(b.EventID, ICSEventPrefix) {
			continue
		}
		if _, ok := seen[b.EventID]; ok {
			continue
		}
		if _, err := im.bookings.DeleteByEventID(ctx, property.ID, b.EventID); err != nil {
			return nil, err
		}
		result.Removed++
	}

	slog.Info("calendar feed imported",
		"property_id", property.ID,
		"events", result.Events,
		"created", result.Created,
		"updated", result.Updated,
		"removed", result.Removed,
	)
	return result, nil
}

// WriteICS renders bookings as an iCalendar feed.
func WriteICS(w io.Writer, property *models.Property, bookings []models.Booking, now time.Time) error {
	bw := bufio.NewWriter(w)
	line := func(s string) {
		bw.WriteString(foldLine(s))
		bw.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:-//Teamworks//Plutus//EN")
	line("CALSCALE:GREGORIAN")
	line("X-WR-CALNAME:" + escapeText(property.Name))

	stamp := now.UTC().Format("20060102T150405Z")
	for i := range bookings {
		b := &bookings[i]
		line("BEGIN:VEVENT")
		line("UID:" + b.ID + "@plutus")
		line("DTSTAMP:" + stamp)
		line("DTSTART:" + b.BeginAt.UTC().Format("20060102T150405Z"))
		line("DTEND:" + b.EndAt.UTC().Format("20060102T150405Z"))
		line("SUMMARY:" + escapeText(BookingSummary(b)))
		if b.IsPlaceholder() {
			line("STATUS:TENTATIVE")
		} else {
			line("STATUS:CONFIRMED")
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")

	return bw.Flush()
}

// foldLine splits content lines longer than 75 octets.
func foldLine(s string) string {
	const limit = 75
	if len(s) <= limit {
		return s
	}

	var b strings.Builder
	for len(s) > limit {
		cut := limit
		// Don't split a UTF-8 sequence.
		for cut > 0 && s[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(s[:cut])
		b.WriteString("\r\n ")
		s = s[cut:]
	}
	b.WriteString(s)
	return b.String()
}
