package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Teamworks-Executive-Suites/plutus/internal/metrics"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// ChannelOptions configures a ChannelManager.
type ChannelOptions struct {
	// Address is the webhook endpoint, e.g. https://host/cal_webhook.
	Address string
	// EnsureWindow is how close to expiry EnsureChannel replaces a channel.
	EnsureWindow time.Duration
	// RenewWindow is how close to expiry the renewal sweep replaces a channel.
	RenewWindow time.Duration
}

// ChannelManager owns the push-notification channel of each property.
type ChannelManager struct {
	client     provider.Client
	properties *storage.PropertyRepository
	notifier   Notifier
	opts       ChannelOptions

	now   func() time.Time
	newID func() string
}

// NewChannelManager creates a channel manager.
func NewChannelManager(client provider.Client, properties *storage.PropertyRepository, notifier Notifier, opts ChannelOptions) *ChannelManager {
	return &ChannelManager{
		client:     client,
		properties: properties,
		notifier:   notifierOrNop(notifier),
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// CallbackURL is the webhook address registered for a calendar.
func (m *ChannelManager) CallbackURL(calendarID string) string {
	return m.opts.Address + "?" + url.Values{"calendar_id": {calendarID}}.Encode()
}

// EnsureChannel makes sure the property has a channel that outlives the
// ensure window, replacing it otherwise.
func (m *ChannelManager) EnsureChannel(ctx context.Context, property *models.Property) (*models.Channel, error) {
	if property.CalendarID == "" {
		return nil, fmt.Errorf("ensuring channel for property %s: %w", property.ID, ErrNoCalendar)
	}

	if !property.ChannelExpiresWithin(m.now(), m.opts.EnsureWindow) {
		return &models.Channel{
			ID:         property.ChannelID,
			ResourceID: property.ChannelResourceID,
			PropertyID: property.ID,
			ExpiresAt:  *property.ChannelExpiration,
		}, nil
	}

	return m.Replace(ctx, property)
}

// Replace registers a new channel for the property regardless of the current
// one's expiry, persists it and stops the superseded channel.
//
// A channel id collision is recovered by stopping the property's known
// channel and retrying once; a second collision is fatal.
func (m *ChannelManager) Replace(ctx context.Context, property *models.Property) (*models.Channel, error) {
	if property.CalendarID == "" {
		return nil, fmt.Errorf("replacing channel for property %s: %w", property.ID, ErrNoCalendar)
	}

	recorded := property.ChannelID
	old := models.Channel{ID: property.ChannelID, ResourceID: property.ChannelResourceID}
	address := m.CallbackURL(property.CalendarID)

	var created *provider.Channel
	for attempt := 1; ; attempt++ {
		ch, err := m.Renew(ctx, property.CalendarID, old.ID, address)
		if err == nil {
			created = ch
			break
		}
		if !errors.Is(err, provider.ErrChannelIDNotUnique) {
			return nil, err
		}
		if attempt > 1 {
			return nil, &FatalError{Op: "watch", PropertyID: property.ID, Attempts: attempt, Err: err}
		}

		slog.Warn("channel id collision, stopping known channel and retrying",
			"property_id", property.ID, "channel_id", old.ID)
		if old.ID != "" {
			if err := m.Stop(ctx, old.ID, old.ResourceID); err != nil {
				return nil, fmt.Errorf("stopping conflicting channel: %w", err)
			}
			old = models.Channel{}
		}
	}

	ch := models.Channel{
		ID:         created.ID,
		ResourceID: created.ResourceID,
		PropertyID: property.ID,
		ExpiresAt:  created.Expiration,
	}
	if err := m.properties.SwapChannel(ctx, property.ID, recorded, ch); err != nil {
		// The provider channel is live but unrecorded; stop it so it does not leak.
		if stopErr := m.Stop(context.WithoutCancel(ctx), ch.ID, ch.ResourceID); stopErr != nil {
			slog.Error("can't stop unrecorded channel", "channel_id", ch.ID, "error", stopErr)
		}
		if errors.Is(err, storage.ErrChannelChanged) {
			return m.adoptCurrent(ctx, property, err)
		}
		return nil, fmt.Errorf("persisting channel: %w", err)
	}

	property.ChannelID = ch.ID
	property.ChannelResourceID = ch.ResourceID
	expires := ch.ExpiresAt
	property.ChannelExpiration = &expires

	if old.ID != "" && old.ID != ch.ID {
		if err := m.Stop(ctx, old.ID, old.ResourceID); err != nil {
			slog.Warn("can't stop superseded channel", "property_id", property.ID, "channel_id", old.ID, "error", err)
		}
	}

	slog.Info("channel registered",
		"property_id", property.ID,
		"calendar_id", property.CalendarID,
		"channel_id", ch.ID,
		"expires_at", ch.ExpiresAt,
	)
	m.notifier.ChannelRenewed(ch)
	return &ch, nil
}

// adoptCurrent resolves a lost race with another Replace: the winner's channel
// is now the property's only one, so it is returned in place of ours.
func (m *ChannelManager) adoptCurrent(ctx context.Context, property *models.Property, lost error) (*models.Channel, error) {
	current, err := m.properties.GetByID(ctx, property.ID)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.HasChannel() {
		return nil, fmt.Errorf("persisting channel: %w", lost)
	}

	slog.Warn("channel replaced concurrently, keeping the other registration",
		"property_id", property.ID, "channel_id", current.ChannelID)
	property.ChannelID = current.ChannelID
	property.ChannelResourceID = current.ChannelResourceID
	property.ChannelExpiration = current.ChannelExpiration
	return &models.Channel{
		ID:         current.ChannelID,
		ResourceID: current.ChannelResourceID,
		PropertyID: current.ID,
		ExpiresAt:  *current.ChannelExpiration,
	}, nil
}

// Renew creates a new channel on the calendar. Providers do not extend a
// channel in place, so the old id is only recorded for the log.
func (m *ChannelManager) Renew(ctx context.Context, calendarID, oldChannelID, address string) (*provider.Channel, error) {
	ch, err := m.client.Watch(ctx, calendarID, provider.ChannelSpec{
		ID:      m.newID(),
		Type:    provider.ChannelTypeWebHook,
		Address: address,
	})
	metrics.ChannelOperations.WithLabelValues("watch", metrics.Result(err)).Inc()
	if err != nil {
		return nil, err
	}

	slog.Debug("channel renewed", "calendar_id", calendarID, "old_channel_id", oldChannelID, "channel_id", ch.ID)
	return ch, nil
}

// Stop stops a channel. A channel the provider no longer knows is already
// stopped, so not-found counts as success.
func (m *ChannelManager) Stop(ctx context.Context, channelID, resourceID string) error {
	err := m.client.StopChannel(ctx, channelID, resourceID)
	if errors.Is(err, provider.ErrNotFound) {
		err = nil
	}
	metrics.ChannelOperations.WithLabelValues("stop", metrics.Result(err)).Inc()
	return err
}

// Revoke stops a channel and forgets it on whichever property recorded it.
func (m *ChannelManager) Revoke(ctx context.Context, channelID, resourceID string) error {
	if err := m.Stop(ctx, channelID, resourceID); err != nil {
		return err
	}

	property, err := m.properties.GetByChannelID(ctx, channelID)
	if err != nil {
		return err
	}
	if property == nil {
		return nil
	}

	slog.Info("channel revoked", "property_id", property.ID, "channel_id", channelID)
	return m.properties.ClearChannel(ctx, property.ID)
}

// RenewalResult reports the renewal sweep's outcome for one property.
type RenewalResult struct {
	PropertyID string          `json:"property_id"`
	Renewed    bool            `json:"renewed"`
	Channel    *models.Channel `json:"channel,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// RenewExpiring replaces every channel that is missing, expired or expires
// within the renew window. Failures are isolated per property.
func (m *ChannelManager) RenewExpiring(ctx context.Context) ([]RenewalResult, error) {
	properties, err := m.properties.ListWithCalendar(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing properties: %w", err)
	}

	now := m.now()
	results := make([]RenewalResult, 0, len(properties))
	for i := range properties {
		p := &properties[i]
		if !p.ChannelExpiresWithin(now, m.opts.RenewWindow) {
			continue
		}

		res := RenewalResult{PropertyID: p.ID}
		ch, err := m.Replace(ctx, p)
		if err != nil {
			slog.Error("channel renewal failed", "property_id", p.ID, "error", err)
			res.Error = err.Error()
		} else {
			res.Renewed = true
			res.Channel = ch
		}
		results = append(results, res)
	}

	return results, nil
}
