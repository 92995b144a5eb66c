package calendar

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
)

func TestNotificationFromRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/cal_webhook?calendar_id=cal-1", nil)
	req.Header.Set("X-Goog-Channel-Id", "chan-1")
	req.Header.Set("X-Goog-Resource-Id", "res-1")
	req.Header.Set("X-Goog-Resource-State", "exists")
	req.Header.Set("X-Goog-Message-Number", "42")
	req.Header.Set("X-Goog-Channel-Expiration", "Tue, 19 Nov 2030 01:13:52 GMT")

	n, err := NotificationFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "cal-1", n.CalendarID)
	assert.Equal(t, "chan-1", n.ChannelID)
	assert.Equal(t, "res-1", n.ResourceID)
	assert.Equal(t, "exists", n.ResourceState)
	assert.Equal(t, "42", n.MessageNumber)
	require.NotNil(t, n.Expiration)
	assert.True(t, n.Expiration.Equal(time.Date(2030, 11, 19, 1, 13, 52, 0, time.UTC)))
}

func TestNotificationFromRequest_PlainHeadersAndErrors(t *testing.T) {
	req := httptest.NewRequest("POST", "/cal_webhook", nil)
	req.Header.Set("X-Channel-Id", "chan-1")
	req.Header.Set("X-Resource-State", "sync")

	n, err := NotificationFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "chan-1", n.ChannelID)
	assert.Equal(t, ResourceStateSync, n.ResourceState)
	assert.Nil(t, n.Expiration)

	_, err = NotificationFromRequest(httptest.NewRequest("POST", "/cal_webhook", nil))
	assert.Error(t, err)

	bad := httptest.NewRequest("POST", "/cal_webhook?calendar_id=cal-1", nil)
	bad.Header.Set("X-Goog-Channel-Expiration", "next tuesday")
	_, err = NotificationFromRequest(bad)
	assert.Error(t, err)
}

func notification(calendarID, messageNumber string) Notification {
	return Notification{
		CalendarID:    calendarID,
		ChannelID:     "chan-" + calendarID,
		ResourceID:    "res-" + calendarID,
		ResourceState: "exists",
		MessageNumber: messageNumber,
	}
}

func TestHandleNotification_SyncsAndDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	env.property(t, "cal-1", 6*24*time.Hour)

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, notification("cal-1", "7"))
	require.NoError(t, err)
	assert.Equal(t, WebhookSynced, outcome)

	outcome, err = env.svc.Ingress.HandleNotification(env.ctx, notification("cal-1", "7"))
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, outcome)
	assert.Len(t, env.fake.ListCalls, 1)

	outcome, err = env.svc.Ingress.HandleNotification(env.ctx, notification("cal-1", "8"))
	require.NoError(t, err)
	assert.Equal(t, WebhookSynced, outcome)
	assert.Len(t, env.fake.ListCalls, 2)
	assert.Empty(t, env.fake.Watched)
}

func TestHandleNotification_FailureAllowsRedelivery(t *testing.T) {
	env := newTestEnv(t)
	env.property(t, "cal-1", 6*24*time.Hour)
	env.fake.QueueListError(errors.New("backend unavailable"))

	_, err := env.svc.Ingress.HandleNotification(env.ctx, notification("cal-1", "9"))
	require.Error(t, err)

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, notification("cal-1", "9"))
	require.NoError(t, err)
	assert.Equal(t, WebhookSynced, outcome)
}

func TestHandleNotification_SyncStateOnlyConfirms(t *testing.T) {
	env := newTestEnv(t)
	env.property(t, "cal-1", 6*24*time.Hour)

	n := notification("cal-1", "1")
	n.ResourceState = ResourceStateSync

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, n)
	require.NoError(t, err)
	assert.Equal(t, WebhookConfirmed, outcome)
	assert.Empty(t, env.fake.ListCalls)
}

func TestHandleNotification_ConfirmationDuringRegistration(t *testing.T) {
	hooked := &hookedClient{}
	env := newTestEnvWith(t, testOptions(), hooked.wrap)
	p := env.property(t, "cal-1", 0)

	var outcomes []WebhookOutcome
	delivered := false
	hooked.afterWatch = func(ch *provider.Channel) {
		if delivered {
			return
		}
		delivered = true
		// The provider confirms the new channel before Watch has returned.
		outcome, err := env.svc.Ingress.HandleNotification(env.ctx, Notification{
			CalendarID:    "cal-1",
			ChannelID:     ch.ID,
			ResourceID:    ch.ResourceID,
			ResourceState: ResourceStateSync,
			MessageNumber: "1",
		})
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}

	_, err := env.svc.SetPropertyCalendar(env.ctx, p.ID, "cal-1")
	require.NoError(t, err)

	assert.Equal(t, []WebhookOutcome{WebhookConfirmed}, outcomes)
	require.Len(t, env.fake.Watched, 1)
	assert.Empty(t, env.fake.Stopped)
	assert.Equal(t, env.fake.Watched[0].ID, env.reload(t, p.ID).ChannelID)
}

func TestHandleNotification_ConfirmationForUnknownChannelIsKept(t *testing.T) {
	env := newTestEnv(t)

	n := notification("unknown", "1")
	n.CalendarID = ""
	n.ResourceState = ResourceStateSync

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, n)
	require.NoError(t, err)
	assert.Equal(t, WebhookConfirmed, outcome)
	assert.Empty(t, env.fake.Stopped)
}

func TestHandleNotification_ResolvesByChannel(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 6*24*time.Hour)

	n := notification("cal-1", "")
	n.CalendarID = ""

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, n)
	require.NoError(t, err)
	assert.Equal(t, WebhookSynced, outcome)
	assert.Equal(t, "sync-final", env.reload(t, p.ID).NextSyncToken)
}

func TestHandleNotification_OrphanedChannelIsStopped(t *testing.T) {
	env := newTestEnv(t)

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, notification("unknown", "1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookOrphaned, outcome)
	assert.Equal(t, []string{"chan-unknown"}, env.fake.Stopped)
	assert.Empty(t, env.fake.ListCalls)
}

func TestHandleNotification_RenewsExpiringCurrentChannel(t *testing.T) {
	env := newTestEnv(t)
	p := env.property(t, "cal-1", 24*time.Hour)

	n := notification("cal-1", "3")
	exp := time.Now().Add(24 * time.Hour)
	n.Expiration = &exp

	outcome, err := env.svc.Ingress.HandleNotification(env.ctx, n)
	require.NoError(t, err)
	assert.Equal(t, WebhookSynced, outcome)
	require.Len(t, env.fake.Watched, 1)
	assert.NotEqual(t, "chan-cal-1", env.reload(t, p.ID).ChannelID)

	// A late delivery on the superseded channel does not renew again.
	stale := notification("cal-1", "4")
	stale.Expiration = &exp
	_, err = env.svc.Ingress.HandleNotification(env.ctx, stale)
	require.NoError(t, err)
	assert.Len(t, env.fake.Watched, 1)
}
