package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Teamworks-Executive-Suites/plutus/internal/metrics"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage/models"
)

// ResourceStateSync is the state of the confirmation message sent when a
// channel is created. It carries no change.
const ResourceStateSync = "sync"

// Notification is a header-only push delivery from the provider.
type Notification struct {
	CalendarID    string
	ChannelID     string
	ResourceID    string
	ResourceState string
	MessageNumber string
	Expiration    *time.Time
}

// NotificationFromRequest reads a push delivery off an inbound request.
// Google's X-Goog-* headers are preferred; the unprefixed X-Channel-* forms
// are accepted too.
func NotificationFromRequest(r *http.Request) (Notification, error) {
	h := r.Header
	n := Notification{
		CalendarID:    r.URL.Query().Get("calendar_id"),
		ChannelID:     header(h, "X-Goog-Channel-Id", "X-Channel-Id"),
		ResourceID:    header(h, "X-Goog-Resource-Id", "X-Resource-Id"),
		ResourceState: header(h, "X-Goog-Resource-State", "X-Resource-State"),
		MessageNumber: header(h, "X-Goog-Message-Number", "X-Message-Number"),
	}

	if raw := header(h, "X-Goog-Channel-Expiration", "X-Channel-Expiration"); raw != "" {
		exp, err := parseExpiration(raw)
		if err != nil {
			return n, fmt.Errorf("invalid channel expiration %q: %w", raw, err)
		}
		n.Expiration = &exp
	}

	if n.ChannelID == "" && n.CalendarID == "" {
		return n, fmt.Errorf("notification names neither a channel nor a calendar")
	}
	return n, nil
}

func header(h http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func parseExpiration(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC3339} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// WebhookOutcome says what HandleNotification did with a delivery.
type WebhookOutcome string

const (
	WebhookSynced    WebhookOutcome = "synced"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookConfirmed WebhookOutcome = "confirmed"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookOrphaned  WebhookOutcome = "orphaned"
)

// IngressOptions configures an Ingress.
type IngressOptions struct {
	// RenewWindow triggers a channel replacement when a delivery reports an
	// expiration closer than this.
	RenewWindow time.Duration
	DedupSize   int
	DedupTTL    time.Duration
}

// Ingress routes push deliveries to channel renewal and property sync.
type Ingress struct {
	properties *storage.PropertyRepository
	channels   *ChannelManager
	engine     *SyncEngine
	opts       IngressOptions

	// seen counts deliveries per channel and message number. It only saves
	// redundant syncs; the sync itself is idempotent.
	seen *expirable.LRU[string, int]

	now func() time.Time
}

// NewIngress creates a webhook ingress.
func NewIngress(properties *storage.PropertyRepository, channels *ChannelManager, engine *SyncEngine, opts IngressOptions) *Ingress {
	if opts.DedupSize < 1 {
		opts.DedupSize = 1
	}
	return &Ingress{
		properties: properties,
		channels:   channels,
		engine:     engine,
		opts:       opts,
		seen:       expirable.NewLRU[string, int](opts.DedupSize, nil, opts.DedupTTL),
		now:        time.Now,
	}
}

// HandleNotification processes one delivery. A non-nil error means the
// delivery should be answered with a failure status so the provider
// redelivers it.
func (i *Ingress) HandleNotification(ctx context.Context, n Notification) (WebhookOutcome, error) {
	outcome, err := i.handle(ctx, n)
	if err != nil {
		metrics.WebhookNotifications.WithLabelValues("failed").Inc()
		return outcome, err
	}
	metrics.WebhookNotifications.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

func (i *Ingress) handle(ctx context.Context, n Notification) (WebhookOutcome, error) {
	key := ""
	if n.MessageNumber != "" {
		key = n.ChannelID + ":" + n.MessageNumber
		if count, ok := i.seen.Get(key); ok {
			i.seen.Add(key, count+1)
			slog.Debug("duplicate notification", "channel_id", n.ChannelID, "message_number", n.MessageNumber, "deliveries", count+1)
			return WebhookDuplicate, nil
		}
		i.seen.Add(key, 1)
	}

	outcome, err := i.process(ctx, n)
	if err != nil && key != "" {
		// Let the provider's redelivery through.
		i.seen.Remove(key)
	}
	return outcome, err
}

func (i *Ingress) process(ctx context.Context, n Notification) (WebhookOutcome, error) {
	// The confirmation can arrive while the channel's Watch call is still in
	// flight, before the channel is recorded. Renewing or stopping on it would
	// race the registration.
	if n.ResourceState == ResourceStateSync {
		return WebhookConfirmed, nil
	}

	property, err := i.resolve(ctx, n)
	if err != nil {
		return "", err
	}

	if property == nil {
		slog.Warn("notification for unknown channel, stopping it",
			"calendar_id", n.CalendarID, "channel_id", n.ChannelID)
		if n.ChannelID != "" && n.ResourceID != "" {
			if err := i.channels.Stop(ctx, n.ChannelID, n.ResourceID); err != nil {
				slog.Warn("can't stop orphaned channel", "channel_id", n.ChannelID, "error", err)
			}
		}
		return WebhookOrphaned, nil
	}

	if i.needsRenewal(property, n) {
		if _, err := i.channels.Replace(ctx, property); err != nil {
			slog.Error("channel renewal from webhook failed", "property_id", property.ID, "error", err)
		}
	}

	if n.ResourceID == "" {
		return WebhookIgnored, nil
	}

	if _, err := i.engine.SyncProperty(ctx, property.ID); err != nil {
		return "", fmt.Errorf("syncing property %s: %w", property.ID, err)
	}
	return WebhookSynced, nil
}

func (i *Ingress) resolve(ctx context.Context, n Notification) (*models.Property, error) {
	if n.CalendarID != "" {
		p, err := i.properties.GetByCalendarID(ctx, n.CalendarID)
		if err != nil || p != nil {
			return p, err
		}
	}
	if n.ChannelID != "" {
		return i.properties.GetByChannelID(ctx, n.ChannelID)
	}
	return nil, nil
}

// needsRenewal is true for a delivery on the property's current channel that
// reports the channel expiring soon, or when the property has no live
// channel at all.
func (i *Ingress) needsRenewal(property *models.Property, n Notification) bool {
	now := i.now()
	if !property.HasChannel() || property.ChannelExpiration.Before(now) {
		return true
	}
	if n.Expiration == nil || n.ChannelID != property.ChannelID {
		return false
	}
	return n.Expiration.Before(now.Add(i.opts.RenewWindow))
}
