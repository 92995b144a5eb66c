package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/metrics"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// Outcome is what reconciling one event did to the booking store.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeRemoved   Outcome = "removed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// Reconciler turns provider events into booking mutations. Every mutation is
// keyed on (property, event id), so replaying an event is harmless.
type Reconciler struct {
	bookings *storage.BookingRepository
}

// NewReconciler creates a reconciler over the booking store.
func NewReconciler(bookings *storage.BookingRepository) *Reconciler {
	return &Reconciler{bookings: bookings}
}

// Reconcile applies one validated event to the property's bookings.
func (r *Reconciler) Reconcile(ctx context.Context, property *models.Property, ev Event) (Outcome, error) {
	outcome, err := r.reconcile(ctx, property, ev)
	if err == nil {
		metrics.ReconciledEvents.WithLabelValues(string(outcome)).Inc()
	}
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, property *models.Property, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case CancelledEvent:
		return r.cancel(ctx, property, e)
	case ActiveEvent:
		return r.upsert(ctx, property, e)
	default:
		return "", fmt.Errorf("unknown event variant %T", ev)
	}
}

func (r *Reconciler) cancel(ctx context.Context, property *models.Property, e CancelledEvent) (Outcome, error) {
	removed, err := r.bookings.DeleteByEventID(ctx, property.ID, e.ID)
	if err != nil {
		return "", fmt.Errorf("removing booking for cancelled event %s: %w", e.ID, err)
	}
	if !removed {
		return OutcomeUnchanged, nil
	}

	slog.Info("removed booking for cancelled event", "property_id", property.ID, "event_id", e.ID)
	return OutcomeRemoved, nil
}

func (r *Reconciler) upsert(ctx context.Context, property *models.Property, e ActiveEvent) (Outcome, error) {
	if e.IsBuffer() {
		return OutcomeSkipped, nil
	}

	loc := property.Location()
	beginAt := e.Start.Resolve(loc)
	endAt := e.End.Resolve(loc)
	if !endAt.After(beginAt) {
		return "", fmt.Errorf("%w: event %s ends at or before its start", ErrMalformedEvent, e.ID)
	}

	existing, err := r.bookings.GetByEventID(ctx, property.ID, e.ID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		existing, err = r.attachProjected(ctx, property, e)
		if err != nil {
			return "", err
		}
	}
	if existing != nil {
		return r.update(ctx, existing, e, beginAt, endAt)
	}

	booking := &models.Booking{
		PropertyID:   property.ID,
		BeginAt:      beginAt,
		EndAt:        endAt,
		IsExternal:   !e.IsPlatformAuthored(),
		EventID:      e.ID,
		EventSummary: e.Summary,
	}
	err = r.bookings.Create(ctx, booking)
	if errors.Is(err, storage.ErrDuplicateEvent) {
		// Lost a race with a concurrent sync of the same property.
		existing, err = r.bookings.GetByEventID(ctx, property.ID, e.ID)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("booking for event %s vanished after duplicate insert", e.ID)
		}
		return r.update(ctx, existing, e, beginAt, endAt)
	}
	if err != nil {
		return "", err
	}

	slog.Info("created booking from event",
		"property_id", property.ID,
		"event_id", e.ID,
		"booking_id", booking.ID,
		"external", booking.IsExternal,
	)
	return OutcomeCreated, nil
}

// attachProjected binds a projected event back to the booking it was written
// for when the projector never got to persist the event id.
func (r *Reconciler) attachProjected(ctx context.Context, property *models.Property, e ActiveEvent) (*models.Booking, error) {
	ref := e.BookingRef()
	if ref == "" {
		return nil, nil
	}

	b, err := r.bookings.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b == nil || b.PropertyID != property.ID || b.EventID != "" {
		return nil, nil
	}

	if err := r.bookings.SetEventID(ctx, b.ID, e.ID); err != nil {
		return nil, err
	}
	b.EventID = e.ID
	slog.Info("attached projected event to booking", "property_id", property.ID, "event_id", e.ID, "booking_id", b.ID)
	return b, nil
}

func (r *Reconciler) update(ctx context.Context, b *models.Booking, e ActiveEvent, beginAt, endAt time.Time) (Outcome, error) {
	if b.BeginAt.Equal(beginAt) && b.EndAt.Equal(endAt) && b.EventSummary == e.Summary {
		return OutcomeUnchanged, nil
	}

	if err := r.bookings.UpdateWindow(ctx, b.ID, beginAt, endAt, e.Summary); err != nil {
		return "", err
	}
	return OutcomeUpdated, nil
}
