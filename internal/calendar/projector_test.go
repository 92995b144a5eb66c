package calendar

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

func internalBooking(t *testing.T, env *testEnv, p *models.Property, guest string) *models.Booking {
	t.Helper()

	begin := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Minute).UTC()
	b := &models.Booking{
		PropertyID: p.ID,
		GuestName:  guest,
		BeginAt:    begin,
		EndAt:      begin.Add(3 * 24 * time.Hour),
	}
	b.EventSummary = BookingSummary(b)
	require.NoError(t, env.svc.Bookings.Create(env.ctx, b))
	return b
}

func TestProjectBooking_CreatesThenUpdates(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "Ada")

	require.NoError(t, env.svc.Projector.ProjectBooking(env.ctx, b, p))

	require.Len(t, env.fake.Inserted, 3)
	main := env.fake.Inserted[0]
	assert.Equal(t, "TW - Office Booking for Ada", main.Summary)
	assert.Equal(t, OriginPlutus, main.Private[PropOrigin])
	assert.Equal(t, KindBooking, main.Private[PropKind])
	assert.Equal(t, b.ID, main.Private[PropBookingID])
	assert.Contains(t, main.Description, "Trip Ref: "+b.ID)
	assert.Contains(t, main.Description, "https://app.example.com/tripDetails?")
	assert.Equal(t, "Europe/London", main.Start.TimeZone)

	for _, buf := range env.fake.Inserted[1:] {
		assert.Equal(t, KindBuffer, buf.Private[PropKind])
		assert.True(t, strings.HasPrefix(buf.Summary, InternalSummaryPrefix+BufferSummaryMarker))
	}
	before, _ := time.Parse(time.RFC3339, env.fake.Inserted[1].Start.DateTime)
	assert.True(t, before.Equal(b.BeginAt.Add(-30*time.Minute)))
	after, _ := time.Parse(time.RFC3339, env.fake.Inserted[2].End.DateTime)
	assert.True(t, after.Equal(b.EndAt.Add(30*time.Minute)))

	assert.Equal(t, main.ID, b.EventID)
	stored, err := env.svc.Bookings.GetByID(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, main.ID, stored.EventID)

	require.NoError(t, env.svc.Projector.ProjectBooking(env.ctx, stored, p))
	assert.Len(t, env.fake.Inserted, 3)
	require.Len(t, env.fake.Updated, 1)
	assert.Equal(t, main.ID, env.fake.Updated[0].ID)
	assert.Len(t, env.notifier.projected, 2)
}

func TestProjectBooking_RecreatesEventGoneAtProvider(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "")
	require.NoError(t, env.svc.Bookings.SetEventID(env.ctx, b.ID, "deleted-upstream"))
	b.EventID = "deleted-upstream"

	require.NoError(t, env.svc.Projector.ProjectBooking(env.ctx, b, p))

	assert.Empty(t, env.fake.Updated)
	require.Len(t, env.fake.Inserted, 3)
	assert.Equal(t, env.fake.Inserted[0].ID, b.EventID)
}

func TestProjectBooking_Rejections(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	external := &models.Booking{ID: "ext", PropertyID: p.ID, IsExternal: true}
	assert.ErrorIs(t, env.svc.Projector.ProjectBooking(env.ctx, external, p), ErrExternalBooking)

	bare := env.property(t, "", 0)
	b := internalBooking(t, env, bare, "Ada")
	assert.ErrorIs(t, env.svc.Projector.ProjectBooking(env.ctx, b, bare), ErrNoCalendar)

	_, err := env.svc.Projector.ProjectBookingByID(env.ctx, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Empty(t, env.fake.Inserted)
}

func TestProjectBooking_InsertFailureLeavesBookingUnprojected(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "Ada")
	env.fake.InsertErr = errors.New("rate limited")

	err := env.svc.Projector.ProjectBooking(env.ctx, b, p)
	require.Error(t, err)

	stored, err := env.svc.Bookings.GetByID(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.EventID)
}

func TestProjectedEventEchoDoesNotCreateBooking(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "Ada")
	require.NoError(t, env.svc.Projector.ProjectBooking(env.ctx, b, p))

	var echoes []provider.Event
	for _, ev := range env.fake.Calendars["cal-1"] {
		echoes = append(echoes, ev)
	}
	require.Len(t, echoes, 3)
	env.fake.QueuePage(page("tok1", echoes...))

	result, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, result.BookingsCreated)
	assert.Equal(t, 2, result.EventsSkipped)

	bookings := env.bookings(t, p.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, b.ID, bookings[0].ID)
	assert.False(t, bookings[0].IsExternal)
}

func TestProjectedEventEchoAttachesWhenEventIDWasLost(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "Ada")

	echo := timedEvent("evt-lost", BookingSummary(b), b.BeginAt, b.EndAt)
	echo.Private = marker(KindBooking, b.ID)
	env.fake.QueuePage(page("tok1", echo))

	_, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)

	bookings := env.bookings(t, p.ID)
	require.Len(t, bookings, 1)
	assert.Equal(t, b.ID, bookings[0].ID)
	assert.Equal(t, "evt-lost", bookings[0].EventID)
}

func TestLegacySummaryMarksPlatformEvents(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)

	start := time.Now().Add(24 * time.Hour).UTC()
	env.fake.QueuePage(page("tok1",
		timedEvent("legacy", "TW - Office Booking for Bob", start, start.Add(time.Hour)),
		timedEvent("outside", "Airbnb reservation", start.Add(2*time.Hour), start.Add(3*time.Hour)),
	))

	_, err := env.svc.Sync.SyncProperty(env.ctx, p.ID)
	require.NoError(t, err)

	external := map[string]bool{}
	for _, b := range env.bookings(t, p.ID) {
		external[b.EventID] = b.IsExternal
	}
	assert.Equal(t, map[string]bool{"legacy": false, "outside": true}, external)
}

func TestRemoveBooking(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 0)
	b := internalBooking(t, env, p, "Ada")
	require.NoError(t, env.svc.Projector.ProjectBooking(env.ctx, b, p))
	eventID := b.EventID

	kept, err := env.svc.Projector.RemoveBookingEventByID(env.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, kept.EventID)
	assert.Equal(t, []string{eventID}, env.fake.Deleted)
	_, ok := env.fake.Event("cal-1", eventID)
	assert.False(t, ok)

	// Already gone at the provider: removal still succeeds.
	require.NoError(t, env.svc.Bookings.SetEventID(env.ctx, b.ID, eventID))
	require.NoError(t, env.svc.Projector.RemoveBooking(env.ctx, b.ID))
	assert.Empty(t, env.bookings(t, p.ID))

	err = env.svc.Projector.RemoveBooking(env.ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestBookingSummary(t *testing.T) {
	tests := []struct {
		name    string
		booking models.Booking
		want    string
	}{
		{"guest", models.Booking{GuestName: "Ada"}, "TW - Office Booking for Ada"},
		{"anonymous", models.Booking{}, "TW - Office Booking"},
		{"inquiry hides guest", models.Booking{GuestName: "Ada", IsInquiry: true}, "TW - Hold"},
		{"block", models.Booking{IsBlocked: true, IsInquiry: true}, "TW - Blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BookingSummary(&tt.booking))
		})
	}
}

func TestBookingLink(t *testing.T) {
	p := NewProjector(nil, nil, nil, nil, ProjectorOptions{AppURL: "https://app.example.com"})
	link := p.BookingLink(&models.Booking{ID: "b1", PropertyID: "p 1"})
	assert.Equal(t, fmt.Sprintf("https://app.example.com/tripDetails?property=%s&tripPassed=b1", "p+1"), link)
}
