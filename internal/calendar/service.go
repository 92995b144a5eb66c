// Package calendar keeps property bookings in step with an external calendar:
// notification channels, incremental sync, reconciliation, outbound
// projection, webhook ingress and iCalendar import/export.
package calendar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// Options configures every engine component.
type Options struct {
	Channel   ChannelOptions
	Sync      SyncOptions
	Projector ProjectorOptions
	Ingress   IngressOptions
	Schedule  ScheduleOptions
}

// Service wires the engine components over one provider and store.
type Service struct {
	Properties *storage.PropertyRepository
	Bookings   *storage.BookingRepository

	Channels  *ChannelManager
	Sync      *SyncEngine
	Projector *Projector
	Ingress   *Ingress
	Importer  *Importer
	Scheduler *Scheduler
}

// NewService builds the engine.
func NewService(db *storage.DB, client provider.Client, notifier Notifier, opts Options) *Service {
	properties := storage.NewPropertyRepository(db)
	bookings := storage.NewBookingRepository(db)

	channels := NewChannelManager(client, properties, notifier, opts.Channel)
	engine := NewSyncEngine(client, properties, bookings, notifier, opts.Sync)

	return &Service{
		Properties: properties,
		Bookings:   bookings,
		Channels:   channels,
		Sync:       engine,
		Projector:  NewProjector(client, properties, bookings, notifier, opts.Projector),
		Ingress:    NewIngress(properties, channels, engine, opts.Ingress),
		Importer:   NewImporter(properties, bookings),
		Scheduler:  NewScheduler(channels, engine, opts.Schedule),
	}
}

// SetPropertyCalendar binds a property to a calendar, registers a channel on
// it and runs the initial full sync.
func (s *Service) SetPropertyCalendar(ctx context.Context, propertyID, calendarID string) (*models.CalendarSyncResult, error) {
	property, err := s.property(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	if err := s.Properties.SetCalendar(ctx, property.ID, calendarID); err != nil {
		return nil, err
	}
	property.CalendarID = calendarID
	property.NextSyncToken = ""

	if _, err := s.Channels.Replace(ctx, property); err != nil {
		return nil, fmt.Errorf("registering channel: %w", err)
	}

	slog.Info("property calendar set", "property_id", property.ID, "calendar_id", calendarID)
	return s.Sync.SyncProperty(ctx, property.ID)
}

// Resync replaces the property's channel and runs a full sync from scratch.
func (s *Service) Resync(ctx context.Context, propertyID string) (*models.CalendarSyncResult, error) {
	property, err := s.property(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if property.CalendarID == "" {
		return nil, fmt.Errorf("resyncing property %s: %w", property.ID, ErrNoCalendar)
	}

	if _, err := s.Channels.Replace(ctx, property); err != nil {
		return nil, fmt.Errorf("renewing channel: %w", err)
	}
	if err := s.Properties.UpdateSyncToken(ctx, property.ID, ""); err != nil {
		return nil, err
	}

	return s.Sync.SyncProperty(ctx, property.ID)
}

// CreateBooking stores an internal booking and projects it. The booking is
// kept when projection fails; the error is returned alongside it.
func (s *Service) CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	property, err := s.property(ctx, b.PropertyID)
	if err != nil {
		return nil, err
	}

	b.IsExternal = false
	b.EventID = ""
	b.EventSummary = BookingSummary(b)
	if err := s.Bookings.Create(ctx, b); err != nil {
		return nil, err
	}

	if err := s.Projector.ProjectBooking(ctx, b, property); err != nil {
		return b, fmt.Errorf("projecting booking %s: %w", b.ID, err)
	}
	return b, nil
}

func (s *Service) property(ctx context.Context, id string) (*models.Property, error) {
	property, err := s.Properties.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if property == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	return property, nil
}
