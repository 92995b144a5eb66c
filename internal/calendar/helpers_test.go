package calendar

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider/providertest"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

type recorder struct {
	mu        sync.Mutex
	completed []models.CalendarSyncResult
	failed    []error
	renewed   []models.Channel
	projected []models.Booking
}

func (r *recorder) SyncCompleted(res models.CalendarSyncResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, res)
}

func (r *recorder) SyncFailed(_, _ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recorder) ChannelRenewed(ch models.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewed = append(r.renewed, ch)
}

func (r *recorder) BookingProjected(b models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projected = append(r.projected, b)
}

type testEnv struct {
	ctx      context.Context
	db       *storage.DB
	fake     *providertest.Fake
	notifier *recorder
	svc      *Service
}

func testOptions() Options {
	return Options{
		Channel: ChannelOptions{
			Address:      "https://plutus.example.com/cal_webhook",
			EnsureWindow: 24 * time.Hour,
			RenewWindow:  48 * time.Hour,
		},
		Sync: SyncOptions{
			Timeout:         time.Minute,
			MaxCursorResets: 2,
			Workers:         2,
		},
		Projector: ProjectorOptions{
			BufferTime: 30 * time.Minute,
			AppURL:     "https://app.example.com",
		},
		Ingress: IngressOptions{
			RenewWindow: 72 * time.Hour,
			DedupSize:   128,
			DedupTTL:    time.Hour,
		},
		Schedule: ScheduleOptions{
			Renew:  "@every 1h",
			Resync: "@every 1h",
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, testOptions(), nil)
}

// newTestEnvWith builds an environment whose engine talks to wrap(fake), or
// to the fake itself when wrap is nil.
func newTestEnvWith(t *testing.T, opts Options, wrap func(*providertest.Fake) provider.Client) *testEnv {
	t.Helper()

	db, err := storage.Open("sqlite://" + filepath.Join(t.TempDir(), "plutus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db))

	fake := providertest.New()
	var client provider.Client = fake
	if wrap != nil {
		client = wrap(fake)
	}
	rec := &recorder{}
	return &testEnv{
		ctx:      context.Background(),
		db:       db,
		fake:     fake,
		notifier: rec,
		svc:      NewService(db, client, rec, opts),
	}
}

// hookedClient runs test hooks around the fake's calls.
type hookedClient struct {
	*providertest.Fake

	// afterWatch runs once a channel exists at the provider, before Watch
	// returns it to the caller.
	afterWatch func(ch *provider.Channel)
	// beforeList can fail a ListEvents call before the fake sees it.
	beforeList func(ctx context.Context) error
}

func (c *hookedClient) wrap(f *providertest.Fake) provider.Client {
	c.Fake = f
	return c
}

func (c *hookedClient) Watch(ctx context.Context, calendarID string, spec provider.ChannelSpec) (*provider.Channel, error) {
	ch, err := c.Fake.Watch(ctx, calendarID, spec)
	if err == nil && c.afterWatch != nil {
		c.afterWatch(ch)
	}
	return ch, err
}

func (c *hookedClient) ListEvents(ctx context.Context, calendarID string, opts provider.ListOptions) (*provider.EventPage, error) {
	if c.beforeList != nil {
		if err := c.beforeList(ctx); err != nil {
			return nil, err
		}
	}
	return c.Fake.ListEvents(ctx, calendarID, opts)
}

// property creates a property bound to calendarID, optionally with a live
// channel expiring after ttl.
func (e *testEnv) property(t *testing.T, calendarID string, ttl time.Duration) *models.Property {
	t.Helper()

	p := &models.Property{Name: "Harbour Loft " + calendarID, CalendarID: calendarID, Timezone: "Europe/London"}
	require.NoError(t, e.svc.Properties.Create(e.ctx, p))
	if ttl > 0 {
		require.NoError(t, e.svc.Properties.UpdateChannel(e.ctx, p.ID, models.Channel{
			ID:         "chan-" + calendarID,
			ResourceID: "res-" + calendarID,
			PropertyID: p.ID,
			ExpiresAt:  time.Now().Add(ttl).UTC(),
		}))
	}
	return e.reload(t, p.ID)
}

func (e *testEnv) reload(t *testing.T, id string) *models.Property {
	t.Helper()
	p, err := e.svc.Properties.GetByID(e.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (e *testEnv) bookings(t *testing.T, propertyID string) []models.Booking {
	t.Helper()
	bs, err := e.svc.Bookings.ListByProperty(e.ctx, propertyID)
	require.NoError(t, err)
	return bs
}

func timedEvent(id, summary string, start, end time.Time) provider.Event {
	return provider.Event{
		ID:      id,
		Status:  provider.StatusConfirmed,
		Summary: summary,
		Start:   &provider.EventTime{DateTime: start.Format(time.RFC3339)},
		End:     &provider.EventTime{DateTime: end.Format(time.RFC3339)},
	}
}

func cancelledEvent(id string) provider.Event {
	return provider.Event{ID: id, Status: provider.StatusCancelled}
}

func page(token string, items ...provider.Event) *provider.EventPage {
	return &provider.EventPage{Items: items, NextSyncToken: token}
}
