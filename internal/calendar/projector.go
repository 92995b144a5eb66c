package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/metrics"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// ProjectorOptions configures a Projector.
type ProjectorOptions struct {
	// BufferTime is blocked before and after each booking by helper events.
	BufferTime time.Duration
	// AppURL is the base of the booking deep link in event descriptions.
	AppURL string
}

// Projector writes internal bookings out to the provider calendar.
type Projector struct {
	client     provider.Client
	properties *storage.PropertyRepository
	bookings   *storage.BookingRepository
	notifier   Notifier
	opts       ProjectorOptions
}

// NewProjector creates a projector.
func NewProjector(
	client provider.Client,
	properties *storage.PropertyRepository,
	bookings *storage.BookingRepository,
	notifier Notifier,
	opts ProjectorOptions,
) *Projector {
	return &Projector{
		client:     client,
		properties: properties,
		bookings:   bookings,
		notifier:   notifierOrNop(notifier),
		opts:       opts,
	}
}

// ProjectBookingByID loads a booking and its property and projects it.
func (p *Projector) ProjectBookingByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, property, err := p.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := p.ProjectBooking(ctx, booking, property); err != nil {
		return nil, err
	}
	return booking, nil
}

// ProjectBooking creates or updates the booking's provider event. On create
// the returned event id is persisted on the booking and two buffer events
// are written around it; on update only the main event changes.
func (p *Projector) ProjectBooking(ctx context.Context, booking *models.Booking, property *models.Property) error {
	if booking.IsExternal {
		return fmt.Errorf("projecting booking %s: %w", booking.ID, ErrExternalBooking)
	}
	if property.CalendarID == "" {
		return fmt.Errorf("projecting booking %s: %w", booking.ID, ErrNoCalendar)
	}

	ev := p.bookingEvent(booking, property)

	if booking.EventID != "" {
		_, err := p.client.UpdateEvent(ctx, property.CalendarID, booking.EventID, ev)
		if err == nil {
			metrics.Projections.WithLabelValues("update", metrics.ResultSuccess).Inc()
			slog.Info("updated booking event", "booking_id", booking.ID, "event_id", booking.EventID)
			p.notifier.BookingProjected(*booking)
			return nil
		}
		if !errors.Is(err, provider.ErrNotFound) {
			metrics.Projections.WithLabelValues("update", metrics.ResultError).Inc()
			return fmt.Errorf("updating event for booking %s: %w", booking.ID, err)
		}
		slog.Warn("booking event gone at provider, recreating", "booking_id", booking.ID, "event_id", booking.EventID)
	}

	created, err := p.client.InsertEvent(ctx, property.CalendarID, ev)
	metrics.Projections.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("creating event for booking %s: %w", booking.ID, err)
	}

	if err := p.bookings.SetEventID(ctx, booking.ID, created.ID); err != nil {
		return fmt.Errorf("recording event %s on booking %s: %w", created.ID, booking.ID, err)
	}
	booking.EventID = created.ID
	slog.Info("created booking event", "booking_id", booking.ID, "event_id", created.ID)

	var errs []error
	for _, buf := range p.bufferEvents(booking, property) {
		if _, err := p.client.InsertEvent(ctx, property.CalendarID, buf); err != nil {
			errs = append(errs, fmt.Errorf("creating buffer event: %w", err))
		}
	}
	metrics.Projections.WithLabelValues("buffer", metrics.Result(errors.Join(errs...))).Inc()

	p.notifier.BookingProjected(*booking)
	return errors.Join(errs...)
}

// RemoveBookingEventByID deletes a booking's provider event and clears its
// event id, keeping the booking.
func (p *Projector) RemoveBookingEventByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, property, err := p.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := p.RemoveBookingEvent(ctx, booking, property); err != nil {
		return nil, err
	}
	if booking.EventID != "" {
		if err := p.bookings.SetEventID(ctx, booking.ID, ""); err != nil {
			return nil, err
		}
		booking.EventID = ""
	}
	return booking, nil
}

// RemoveBooking deletes a booking's provider event and then the booking.
func (p *Projector) RemoveBooking(ctx context.Context, bookingID string) error {
	booking, property, err := p.load(ctx, bookingID)
	if err != nil {
		return err
	}
	if !booking.IsExternal {
		if err := p.RemoveBookingEvent(ctx, booking, property); err != nil {
			return err
		}
	}
	return p.bookings.Delete(ctx, booking.ID)
}

// RemoveBookingEvent deletes the booking's main provider event. Buffer events
// are not tracked and stay behind. An event that is already gone counts as
// removed.
func (p *Projector) RemoveBookingEvent(ctx context.Context, booking *models.Booking, property *models.Property) error {
	if booking.EventID == "" {
		return nil
	}
	if property.CalendarID == "" {
		return fmt.Errorf("removing event for booking %s: %w", booking.ID, ErrNoCalendar)
	}

	err := p.client.DeleteEvent(ctx, property.CalendarID, booking.EventID)
	if errors.Is(err, provider.ErrNotFound) {
		err = nil
	}
	metrics.Projections.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("deleting event for booking %s: %w", booking.ID, err)
	}

	slog.Info("deleted booking event", "booking_id", booking.ID, "event_id", booking.EventID)
	return nil
}

func (p *Projector) load(ctx context.Context, bookingID string) (*models.Booking, *models.Property, error) {
	booking, err := p.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if booking == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}

	property, err := p.properties.GetByID(ctx, booking.PropertyID)
	if err != nil {
		return nil, nil, err
	}
	if property == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, booking.PropertyID)
	}
	return booking, property, nil
}

// BookingSummary is the title of a booking's main event. Placeholders never
// expose a guest name.
func BookingSummary(b *models.Booking) string {
	switch {
	case b.IsBlocked:
		return InternalSummaryPrefix + "Blocked"
	case b.IsInquiry:
		return InternalSummaryPrefix + "Hold"
	case b.GuestName == "":
		return InternalSummaryPrefix + "Office Booking"
	default:
		return InternalSummaryPrefix + "Office Booking for " + b.GuestName
	}
}

// BookingLink is the deep link to a booking's detail page.
func (p *Projector) BookingLink(b *models.Booking) string {
	q := url.Values{}
	q.Set("tripPassed", b.ID)
	q.Set("property", b.PropertyID)
	return p.opts.AppURL + "/tripDetails?" + q.Encode()
}

func (p *Projector) bookingEvent(b *models.Booking, property *models.Property) *provider.Event {
	name := property.Name
	if name == "" {
		name = property.ID
	}

	return &provider.Event{
		Summary: BookingSummary(b),
		Description: fmt.Sprintf("Property: %s\nTrip Ref: %s\nBooking Link: %s",
			name, b.ID, p.BookingLink(b)),
		Start:   eventTime(b.BeginAt, property),
		End:     eventTime(b.EndAt, property),
		Private: marker(KindBooking, b.ID),
	}
}

func (p *Projector) bufferEvents(b *models.Booking, property *models.Property) []*provider.Event {
	if p.opts.BufferTime <= 0 {
		return nil
	}

	summary := InternalSummaryPrefix + BufferSummaryMarker + " " + BookingSummary(b)[len(InternalSummaryPrefix):]
	return []*provider.Event{
		{
			Summary: summary,
			Start:   eventTime(b.BeginAt.Add(-p.opts.BufferTime), property),
			End:     eventTime(b.BeginAt, property),
			Private: marker(KindBuffer, b.ID),
		},
		{
			Summary: summary,
			Start:   eventTime(b.EndAt, property),
			End:     eventTime(b.EndAt.Add(p.opts.BufferTime), property),
			Private: marker(KindBuffer, b.ID),
		},
	}
}

func marker(kind, bookingID string) map[string]string {
	return map[string]string{
		PropOrigin:    OriginPlutus,
		PropKind:      kind,
		PropBookingID: bookingID,
	}
}

func eventTime(t time.Time, property *models.Property) *provider.EventTime {
	loc := property.Location()
	return &provider.EventTime{
		DateTime: t.In(loc).Format(time.RFC3339),
		TimeZone: loc.String(),
	}
}
