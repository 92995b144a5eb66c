package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Google is a Client backed by the Google Calendar v3 API.
type Google struct {
	service *calendar.Service
}

// NewGoogle builds a client from a service-account credentials file. When
// subject is set the account impersonates that user (domain-wide delegation).
func NewGoogle(ctx context.Context, credentialsFile, subject string) (*Google, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(b, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	cfg.Subject = subject

	return NewGoogleWithOptions(ctx, option.WithHTTPClient(cfg.Client(ctx)))
}

// NewGoogleWithOptions builds a client from explicit API options.
func NewGoogleWithOptions(ctx context.Context, opts ...option.ClientOption) (*Google, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Google{service: svc}, nil
}

// ListEvents fetches one page of events.
func (g *Google) ListEvents(ctx context.Context, calendarID string, opts ListOptions) (*EventPage, error) {
	req := g.service.Events.List(calendarID).
		SingleEvents(true).
		Context(ctx)

	if opts.SyncToken != "" {
		req = req.SyncToken(opts.SyncToken)
	} else if !opts.TimeMin.IsZero() {
		req = req.TimeMin(opts.TimeMin.UTC().Format(time.RFC3339))
	}
	if opts.PageToken != "" {
		req = req.PageToken(opts.PageToken)
	}

	res, err := req.Do()
	if err != nil {
		return nil, classify(err, "list events for calendar "+calendarID)
	}

	page := &EventPage{
		Items:         make([]Event, 0, len(res.Items)),
		NextPageToken: res.NextPageToken,
		NextSyncToken: res.NextSyncToken,
	}
	for _, item := range res.Items {
		page.Items = append(page.Items, fromGoogleEvent(item))
	}
	return page, nil
}

// Watch registers a push-notification channel on a calendar's events.
func (g *Google) Watch(ctx context.Context, calendarID string, spec ChannelSpec) (*Channel, error) {
	ch, err := g.service.Events.Watch(calendarID, &calendar.Channel{
		Id:      spec.ID,
		Type:    spec.Type,
		Address: spec.Address,
	}).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "watch calendar "+calendarID)
	}

	return &Channel{
		ID:         ch.Id,
		ResourceID: ch.ResourceId,
		Expiration: time.UnixMilli(ch.Expiration).UTC(),
	}, nil
}

// StopChannel stops a push-notification channel.
func (g *Google) StopChannel(ctx context.Context, channelID, resourceID string) error {
	err := g.service.Channels.Stop(&calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if err != nil {
		return classify(err, "stop channel "+channelID)
	}
	return nil
}

// InsertEvent creates an event and returns it with its provider id.
func (g *Google) InsertEvent(ctx context.Context, calendarID string, ev *Event) (*Event, error) {
	res, err := g.service.Events.Insert(calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "insert event")
	}
	out := fromGoogleEvent(res)
	return &out, nil
}

// UpdateEvent replaces an existing event.
func (g *Google) UpdateEvent(ctx context.Context, calendarID, eventID string, ev *Event) (*Event, error) {
	res, err := g.service.Events.Update(calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "update event "+eventID)
	}
	out := fromGoogleEvent(res)
	return &out, nil
}

// DeleteEvent removes an event.
func (g *Google) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := g.service.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return classify(err, "delete event "+eventID)
	}
	return nil
}

// classify maps Google API failures onto the package's distinguished errors.
func classify(err error, op string) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case apiErr.Code == http.StatusGone && strings.HasPrefix(op, "list"):
		return fmt.Errorf("%s: %w: %v", op, ErrCursorGone, err)
	case apiErr.Code == http.StatusNotFound, apiErr.Code == http.StatusGone:
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case apiErr.Code == http.StatusBadRequest && channelNotUnique(apiErr):
		return fmt.Errorf("%s: %w: %v", op, ErrChannelIDNotUnique, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func channelNotUnique(apiErr *googleapi.Error) bool {
	if strings.Contains(strings.ToLower(apiErr.Message), "not unique") {
		return true
	}
	for _, item := range apiErr.Errors {
		if strings.EqualFold(item.Reason, "channelIdNotUnique") ||
			strings.Contains(strings.ToLower(item.Message), "not unique") {
			return true
		}
	}
	return false
}

func fromGoogleEvent(item *calendar.Event) Event {
	ev := Event{
		ID:          item.Id,
		Status:      item.Status,
		Summary:     item.Summary,
		Description: item.Description,
		Start:       fromGoogleTime(item.Start),
		End:         fromGoogleTime(item.End),
	}
	if item.ExtendedProperties != nil && len(item.ExtendedProperties.Private) > 0 {
		ev.Private = item.ExtendedProperties.Private
	}
	return ev
}

func fromGoogleTime(t *calendar.EventDateTime) *EventTime {
	if t == nil {
		return nil
	}
	return &EventTime{Date: t.Date, DateTime: t.DateTime, TimeZone: t.TimeZone}
}

func toGoogleEvent(ev *Event) *calendar.Event {
	out := &calendar.Event{
		Id:          ev.ID,
		Status:      ev.Status,
		Summary:     ev.Summary,
		Description: ev.Description,
	}
	if ev.Start != nil {
		out.Start = &calendar.EventDateTime{Date: ev.Start.Date, DateTime: ev.Start.DateTime, TimeZone: ev.Start.TimeZone}
	}
	if ev.End != nil {
		out.End = &calendar.EventDateTime{Date: ev.End.Date, DateTime: ev.End.DateTime, TimeZone: ev.End.TimeZone}
	}
	if len(ev.Private) > 0 {
		out.ExtendedProperties = &calendar.EventExtendedProperties{Private: ev.Private}
	}
	return out
}
