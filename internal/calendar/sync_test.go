package calendar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

func TestSyncProperty_FirstSyncThenCancellation(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	env.fake.QueuePage(page("tok1", provider.Event{
		ID:      "e1",
		Status:  provider.StatusConfirmed,
		Summary: "Guest X",
		Start:   &provider.EventTime{DateTime: "2024-01-10T10:00"},
		End:     &provider.EventTime{DateTime: "2024-01-10T12:00"},
	}))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BookingsCreated)

	bookings := env.bookings(t, p.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, "e1", bookings[0].EventID)
	assert.True(t, bookings[0].IsExternal)
	assert.False(t, bookings[0].IsInquiry)
	assert.Equal(t, time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), bookings[0].BeginAt.UTC())

	reloaded := env.reload(t, p.ID)
	assert.Equal(t, "tok1", reloaded.NextSyncToken)
	assert.Equal(t, models.SyncStatusSuccess, reloaded.SyncStatus)

	require.Len(t, env.fake.ListCalls, 1)
	assert.Empty(t, env.fake.ListCalls[0].SyncToken)
	assert.False(t, env.fake.ListCalls[0].TimeMin.IsZero())

	env.fake.QueuePage(page("tok2", cancelledEvent("e1")))

	result, err = env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BookingsRemoved)
	assert.Empty(t, env.bookings(t, p.ID))

	require.Len(t, env.fake.ListCalls, 2)
	assert.Equal(t, "tok1", env.fake.ListCalls[1].SyncToken)
	assert.Equal(t, "tok2", env.reload(t, p.ID).NextSyncToken)
}

func TestSyncProperty_IdempotentUpsert(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	start := time.Now().Add(72 * time.Hour).Truncate(time.Second).UTC()
	ev := timedEvent("e1", "Guest Y", start, start.Add(48*time.Hour))

	env.fake.QueuePage(page("tok1", ev))
	env.fake.QueuePage(page("tok2", ev))
	moved := ev
	moved.End = &provider.EventTime{DateTime: start.Add(72 * time.Hour).Format(time.RFC3339)}
	env.fake.QueuePage(page("tok3", moved))

	for range 3 {
		_, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
		require.NoError(t, err)
	}

	bookings := env.bookings(t, p.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, "e1", bookings[0].EventID)
	assert.True(t, bookings[0].EndAt.Equal(start.Add(72*time.Hour)))
}

func TestSyncProperty_CancellationOfUnknownEventIsNoop(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	require.NoError(t, env.svc.Properties.UpdateSyncToken(env.ctx, p.ID, "tok1"))

	start := time.Now().Add(24 * time.Hour).UTC()
	require.NoError(t, env.svc.Bookings.Create(env.ctx, &models.Booking{
		PropertyID: p.ID, BeginAt: start, EndAt: start.Add(time.Hour), IsExternal: true, EventID: "keep",
	}))

	env.fake.QueuePage(page("tok2", cancelledEvent("never-seen")))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, result.BookingsRemoved)
	assert.Len(t, env.bookings(t, p.ID), 1)
}

func TestSyncProperty_SkipsBufferAndMalformedEvents(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	start := time.Now().Add(48 * time.Hour).UTC()
	env.fake.QueuePage(page("tok1",
		timedEvent("buf-legacy", "TW - [buffer] Office Booking", start, start.Add(30*time.Minute)),
		provider.Event{
			ID: "buf-marked", Status: provider.StatusConfirmed, Summary: "anything",
			Start:   &provider.EventTime{DateTime: start.Format(time.RFC3339)},
			End:     &provider.EventTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
			Private: map[string]string{PropOrigin: OriginPlutus, PropKind: KindBuffer},
		},
		provider.Event{ID: "no-end", Status: provider.StatusConfirmed, Summary: "broken",
			Start: &provider.EventTime{DateTime: start.Format(time.RFC3339)}},
		timedEvent("backwards", "Guest Z", start.Add(time.Hour), start),
		timedEvent("good", "Guest W", start, start.Add(time.Hour)),
	))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, result.EventsFound)
	assert.Equal(t, 1, result.BookingsCreated)
	assert.Equal(t, 4, result.EventsSkipped)

	bookings := env.bookings(t, p.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, "good", bookings[0].EventID)
}

func TestSyncProperty_PagesAndPersistsFinalToken(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	start := time.Now().Add(24 * time.Hour).UTC()
	env.fake.QueuePage(&provider.EventPage{
		Items:         []provider.Event{timedEvent("p1", "One", start, start.Add(time.Hour))},
		NextPageToken: "page-2",
	})
	env.fake.QueuePage(page("tok-final", timedEvent("p2", "Two", start, start.Add(time.Hour))))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
	assert.Len(t, env.bookings(t, p.ID), 2)

	require.Len(t, env.fake.ListCalls, 2)
	assert.Equal(t, "page-2", env.fake.ListCalls[1].PageToken)
	assert.Equal(t, "tok-final", env.reload(t, p.ID).NextSyncToken)
}

func TestSyncProperty_CursorGoneIsBoundedAndFatal(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	require.NoError(t, env.svc.Properties.UpdateSyncToken(env.ctx, p.ID, "stale"))

	for range 5 {
		env.fake.QueueListError(fmt.Errorf("list events: %w", provider.ErrCursorGone))
	}

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, provider.ErrCursorGone)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, 3, fatal.Attempts)
	assert.Equal(t, 2, result.CursorResets)

	require.Len(t, env.fake.ListCalls, 3)
	assert.Equal(t, "stale", env.fake.ListCalls[0].SyncToken)
	assert.Empty(t, env.fake.ListCalls[1].SyncToken)
	assert.Empty(t, env.fake.ListCalls[2].SyncToken)

	reloaded := env.reload(t, p.ID)
	assert.Empty(t, reloaded.NextSyncToken)
	assert.Equal(t, models.SyncStatusError, reloaded.SyncStatus)
	require.Len(t, env.notifier.failed, 1)
}

func TestSyncProperty_CursorGoneRecoversWithFullResync(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	require.NoError(t, env.svc.Properties.UpdateSyncToken(env.ctx, p.ID, "stale"))

	start := time.Now().Add(24 * time.Hour).UTC()
	env.fake.QueueListError(provider.ErrCursorGone)
	env.fake.QueuePage(page("fresh", timedEvent("e1", "Guest", start, start.Add(time.Hour))))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CursorResets)
	assert.Equal(t, "fresh", env.reload(t, p.ID).NextSyncToken)
	assert.Len(t, env.bookings(t, p.ID), 1)
}

func TestSyncProperty_FullPassPurgesUnseenFutureExternalBookings(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	now := time.Now().UTC()
	future := now.Add(48 * time.Hour)
	past := now.Add(-48 * time.Hour)
	create := func(eventID string, begin time.Time, external bool) {
		require.NoError(t, env.svc.Bookings.Create(env.ctx, &models.Booking{
			PropertyID: p.ID, BeginAt: begin, EndAt: begin.Add(time.Hour), IsExternal: external, EventID: eventID,
		}))
	}
	create("gone", future, true)
	create("still-there", future, true)
	create("old", past, true)
	create(ICSEventPrefix+"feed-1", future, true)
	create("internal", future, false)

	env.fake.QueuePage(page("tok1", timedEvent("still-there", "Guest", future, future.Add(time.Hour))))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BookingsRemoved)

	var ids []string
	for _, b := range env.bookings(t, p.ID) {
		ids = append(ids, b.EventID)
	}
	assert.ElementsMatch(t, []string{"still-there", "old", ICSEventPrefix + "feed-1", "internal"}, ids)
}

func TestSyncProperty_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Sync.SyncProperty(env.ctx, "missing")
	assert.ErrorIs(t, err, ErrPropertyNotFound)

	p := env.property(t, "", 0)
	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	assert.ErrorIs(t, err, ErrNoCalendar)
	require.NotNil(t, result)
	assert.Empty(t, env.fake.ListCalls)
}

func TestSyncAll_IsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	a := env.property(t, "cal-a", 0)
	b := env.property(t, "cal-b", 0)
	env.property(t, "", 0)

	env.fake.QueueListError(errors.New("backend unavailable"))

	results, err := env.svc.Sync.SyncAll(env.ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	failed := 0
	for _, r := range results {
		assert.Contains(t, []string{a.ID, b.ID}, r.PropertyID)
		if r.Error != nil {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestSyncProperty_TimeoutBoundsWholeSync(t *testing.T) {
	opts := testOptions()
	opts.Sync.Timeout = 50 * time.Millisecond
	hooked := &hookedClient{beforeList: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	env := newTestEnvWith(t, opts, hooked.wrap)
	p := env.property(t, "cal-1", 0)

	start := time.Now()
	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, result)
	assert.Zero(t, result.Pages)

	got := env.reload(t, p.ID)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Contains(t, *got.SyncError, context.DeadlineExceeded.Error())
	assert.Len(t, env.notifier.failed, 1)
	assert.Empty(t, env.fake.ListCalls)
}
