package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

func TestService_SetPropertyCalendar(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "", 0)

	start := time.Now().Add(24 * time.Hour).UTC()
	env.fake.QueuePage(page("tok1", timedEvent("e1", "Guest", start, start.Add(time.Hour))))

	result, err := env.svc.SetPropertyCalendar(env.ctx, p.ID, "cal-new")
	require.NoError(t, err)
	assert.Equal(t, 1, result.BookingsCreated)

	reloaded := env.reload(t, p.ID)
	assert.Equal(t, "cal-new", reloaded.CalendarID)
	assert.True(t, reloaded.HasChannel())
	assert.Equal(t, "tok1", reloaded.NextSyncToken)
	require.Len(t, env.fake.Watched, 1)
	assert.Contains(t, env.fake.Watched[0].Address, "calendar_id=cal-new")

	_, err = env.svc.SetPropertyCalendar(env.ctx, "missing", "cal-x")
	assert.ErrorIs(t, err, ErrPropertyNotFound)
}

func TestService_ResyncStartsFromScratch(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 6*24*time.Hour)
	require.NoError(t, env.svc.Properties.UpdateSyncToken(env.ctx, p.ID, "tok-old"))

	_, err := env.svc.Resync(env.ctx, p.ID)
	require.NoError(t, err)

	require.Len(t, env.fake.ListCalls, 1)
	assert.Empty(t, env.fake.ListCalls[0].SyncToken)
	assert.Len(t, env.fake.Watched, 1)
	assert.Equal(t, []string{"chan-cal-1"}, env.fake.Stopped)

	bare := env.property(t, "", 0)
	_, err = env.svc.Resync(env.ctx, bare.ID)
	assert.ErrorIs(t, err, ErrNoCalendar)
}

func TestService_CreateBooking(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	begin := time.Now().Add(48 * time.Hour).UTC()
	b, err := env.svc.CreateBooking(env.ctx, &models.Booking{
		PropertyID: p.ID,
		GuestName:  "Ada",
		BeginAt:    begin,
		EndAt:      begin.Add(24 * time.Hour),
		IsExternal: true,
		EventID:    "spoofed",
	})
	require.NoError(t, err)
	assert.False(t, b.IsExternal)
	assert.Equal(t, "TW - Office Booking for Ada", b.EventSummary)
	assert.Equal(t, env.fake.Inserted[0].ID, b.EventID)
}

func TestService_CreateBookingKeepsBookingWhenProjectionFails(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	env.fake.InsertErr = errors.New("calendar unavailable")

	begin := time.Now().Add(48 * time.Hour).UTC()
	b, err := env.svc.CreateBooking(env.ctx, &models.Booking{PropertyID: p.ID, BeginAt: begin, EndAt: begin.Add(time.Hour)})
	require.Error(t, err)
	require.NotNil(t, b)

	stored, err := env.svc.Bookings.GetByID(env.ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.EventID)
}

func TestScheduler_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.property(t, "cal-1", time.Hour)

	require.NoError(t, env.svc.Scheduler.Start())
	next := env.svc.Scheduler.NextRuns()
	assert.Contains(t, next, JobRenew)
	assert.Contains(t, next, JobResync)
	env.svc.Scheduler.Stop()

	env.svc.Scheduler.RunRenew(env.ctx)
	assert.Len(t, env.fake.Watched, 1)

	env.svc.Scheduler.RunResync(env.ctx)
	assert.Len(t, env.fake.ListCalls, 1)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.svc.Channels, env.svc.Sync, ScheduleOptions{Renew: "every so often"})
	assert.Error(t, s.Start())
}

func TestScheduler_TriggerSync(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	env.svc.Scheduler.TriggerSync(p.ID)

	assert.Eventually(t, func() bool {
		env.notifier.mu.Lock()
		defer env.notifier.mu.Unlock()
		return len(env.notifier.completed) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "sync-final", env.reload(t, p.ID).NextSyncToken)
}
