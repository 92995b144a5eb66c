package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/metrics"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// SyncOptions bounds the sync engine.
type SyncOptions struct {
	// Timeout caps a whole SyncProperty call, resets included.
	Timeout time.Duration
	// MaxCursorResets is how many full resyncs a gone cursor may force
	// before the sync is abandoned as fatal.
	MaxCursorResets int
	// Workers is the concurrency of SyncAll.
	Workers int
}

// SyncEngine pulls changed events from the provider and reconciles them into
// bookings, one property at a time.
type SyncEngine struct {
	client     provider.Client
	properties *storage.PropertyRepository
	bookings   *storage.BookingRepository
	reconciler *Reconciler
	notifier   Notifier
	opts       SyncOptions

	now func() time.Time
}

// NewSyncEngine creates a sync engine.
func NewSyncEngine(
	client provider.Client,
	properties *storage.PropertyRepository,
	bookings *storage.BookingRepository,
	notifier Notifier,
	opts SyncOptions,
) *SyncEngine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &SyncEngine{
		client:     client,
		properties: properties,
		bookings:   bookings,
		reconciler: NewReconciler(bookings),
		notifier:   notifierOrNop(notifier),
		opts:       opts,
		now:        time.Now,
	}
}

// SyncProperty brings the property's bookings up to date with its calendar.
//
// A gone cursor clears the stored token and restarts as a full resync, at
// most MaxCursorResets times; after that a *FatalError is returned. The
// returned result is non-nil whenever the property exists.
func (e *SyncEngine) SyncProperty(ctx context.Context, propertyID string) (*models.CalendarSyncResult, error) {
	property, err := e.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	if property == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, propertyID)
	}

	result := &models.CalendarSyncResult{
		PropertyID:   property.ID,
		PropertyName: property.Name,
		CalendarID:   property.CalendarID,
		SyncedAt:     e.now().UTC(),
	}

	start := time.Now()
	err = e.syncProperty(ctx, property, result)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())

	// Status writes must land even when ctx is what failed the sync.
	statusCtx := context.WithoutCancel(ctx)
	if err != nil {
		result.Error = err
		msg := err.Error()
		if statusErr := e.properties.UpdateSyncStatus(statusCtx, property.ID, models.SyncStatusError, &msg); statusErr != nil {
			slog.Warn("can't update sync status", "property_id", property.ID, "error", statusErr)
		}

		label := metrics.ResultError
		if IsFatal(err) {
			label = metrics.ResultFatal
		}
		metrics.SyncRuns.WithLabelValues(label).Inc()
		slog.Error("property sync failed", "property_id", property.ID, "calendar_id", property.CalendarID, "error", err)
		e.notifier.SyncFailed(property.ID, property.Name, err)
		return result, err
	}

	if statusErr := e.properties.UpdateSyncStatus(statusCtx, property.ID, models.SyncStatusSuccess, nil); statusErr != nil {
		slog.Warn("can't update sync status", "property_id", property.ID, "error", statusErr)
	}
	metrics.SyncRuns.WithLabelValues(metrics.ResultSuccess).Inc()
	slog.Info("property sync completed",
		"property_id", property.ID,
		"pages", result.Pages,
		"events", result.EventsFound,
		"created", result.BookingsCreated,
		"updated", result.BookingsUpdated,
		"removed", result.BookingsRemoved,
		"skipped", result.EventsSkipped,
		"cursor_resets", result.CursorResets,
	)
	e.notifier.SyncCompleted(*result)
	return result, nil
}

func (e *SyncEngine) syncProperty(ctx context.Context, property *models.Property, result *models.CalendarSyncResult) error {
	if property.CalendarID == "" {
		return fmt.Errorf("syncing property %s: %w", property.ID, ErrNoCalendar)
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	if err := e.properties.UpdateSyncStatus(ctx, property.ID, models.SyncStatusSyncing, nil); err != nil {
		slog.Warn("can't update sync status", "property_id", property.ID, "error", err)
	}

	for resets := 0; ; resets++ {
		if resets > 0 {
			if err := e.properties.UpdateSyncToken(ctx, property.ID, ""); err != nil {
				return fmt.Errorf("clearing sync token: %w", err)
			}
			property.NextSyncToken = ""
		}

		err := e.syncPass(ctx, property, result)
		if err == nil {
			return nil
		}
		if !errors.Is(err, provider.ErrCursorGone) {
			return err
		}
		if resets >= e.opts.MaxCursorResets {
			return &FatalError{Op: "sync", PropertyID: property.ID, Attempts: resets + 1, Err: err}
		}

		result.CursorResets++
		metrics.CursorResets.Inc()
		slog.Warn("sync cursor gone, resetting to full resync",
			"property_id", property.ID, "reset", resets+1, "max_resets", e.opts.MaxCursorResets)
	}
}

// syncPass pages through the calendar once from the stored cursor, or from
// now when there is none. A full pass ends by sweeping away future external
// bookings whose events it did not see.
func (e *SyncEngine) syncPass(ctx context.Context, property *models.Property, result *models.CalendarSyncResult) error {
	passStart := e.now().UTC()

	var opts provider.ListOptions
	var seen map[string]struct{}
	if property.NextSyncToken == "" {
		opts.TimeMin = passStart
		seen = make(map[string]struct{})
	} else {
		opts.SyncToken = property.NextSyncToken
	}

	for {
		page, err := e.client.ListEvents(ctx, property.CalendarID, opts)
		if err != nil {
			return err
		}
		result.Pages++

		for _, item := range page.Items {
			result.EventsFound++
			if err := e.apply(ctx, property, item, seen, result); err != nil {
				return err
			}
		}

		if page.NextSyncToken != "" {
			if err := e.properties.UpdateSyncToken(ctx, property.ID, page.NextSyncToken); err != nil {
				return fmt.Errorf("persisting sync token: %w", err)
			}
			property.NextSyncToken = page.NextSyncToken
		}

		if page.NextPageToken == "" {
			break
		}
		opts.PageToken = page.NextPageToken
	}

	if seen != nil {
		return e.sweepUnseen(ctx, property, seen, passStart, result)
	}
	return nil
}

func (e *SyncEngine) apply(ctx context.Context, property *models.Property, item provider.Event, seen map[string]struct{}, result *models.CalendarSyncResult) error {
	ev, err := DecodeEvent(item)
	if err != nil {
		result.EventsSkipped++
		slog.Warn("skipping malformed event", "property_id", property.ID, "event_id", item.ID, "error", err)
		return nil
	}

	if _, active := ev.(ActiveEvent); active && seen != nil {
		seen[ev.EventID()] = struct{}{}
	}

	outcome, err := e.reconciler.Reconcile(ctx, property, ev)
	if errors.Is(err, ErrMalformedEvent) {
		result.EventsSkipped++
		slog.Warn("skipping unusable event", "property_id", property.ID, "event_id", item.ID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconciling event %s: %w", item.ID, err)
	}

	switch outcome {
	case OutcomeCreated:
		result.BookingsCreated++
	case OutcomeUpdated:
		result.BookingsUpdated++
	case OutcomeRemoved:
		result.BookingsRemoved++
	case OutcomeSkipped:
		result.EventsSkipped++
	}
	return nil
}

// sweepUnseen deletes future external bookings that a full pass did not
// confirm. Past bookings are history and are left alone, as are bookings
// imported from an iCalendar feed rather than the provider.
func (e *SyncEngine) sweepUnseen(ctx context.Context, property *models.Property, seen map[string]struct{}, now time.Time, result *models.CalendarSyncResult) error {
	bookings, err := e.bookings.ListFutureExternal(ctx, property.ID, now)
	if err != nil {
		return err
	}

	for _, b := range bookings {
		if b.EventID == "" || strings.HasPrefix(b.EventID, ICSEventPrefix) {
			continue
		}
		if _, ok := seen[b.EventID]; ok {
			continue
		}

		if err := e.bookings.Delete(ctx, b.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("purging stale booking %s: %w", b.ID, err)
		}
		result.BookingsRemoved++
		slog.Info("purged booking missing from calendar", "property_id", property.ID, "booking_id", b.ID, "event_id", b.EventID)
	}
	return nil
}

// SyncAll syncs every property with a calendar on a bounded worker pool. One
// property's failure never stops the others; its result carries the error.
func (e *SyncEngine) SyncAll(ctx context.Context) ([]models.CalendarSyncResult, error) {
	properties, err := e.properties.ListWithCalendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}

	results := make([]models.CalendarSyncResult, len(properties))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(e.opts.Workers, len(properties)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := properties[i]
				res, err := e.SyncProperty(ctx, p.ID)
				if res == nil {
					res = &models.CalendarSyncResult{
						PropertyID:   p.ID,
						PropertyName: p.Name,
						CalendarID:   p.CalendarID,
						Error:        err,
						SyncedAt:     e.now().UTC(),
					}
				}
				results[i] = *res
			}
		}()
	}

	for i := range properties {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, nil
}
