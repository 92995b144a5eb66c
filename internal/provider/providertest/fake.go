// Package providertest provides an in-memory provider.Client for tests.
package providertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
)

// ListResponse is one scripted reply to ListEvents.
type ListResponse struct {
	Page *provider.EventPage
	Err  error
}

// Fake is a scriptable provider.Client. ListEvents replays Responses in
// order; once they run out it returns an empty final page carrying
// FinalSyncToken. Event mutations are recorded in Calendars.
type Fake struct {
	mu sync.Mutex

	Responses      []ListResponse
	FinalSyncToken string

	// WatchErrs and StopErrs are consumed one per call; nil entries succeed.
	WatchErrs []error
	StopErrs  []error

	InsertErr error
	UpdateErr error
	DeleteErr error

	ChannelTTL time.Duration

	Calendars map[string]map[string]provider.Event

	ListCalls []provider.ListOptions
	Watched   []provider.ChannelSpec
	Stopped   []string
	Inserted  []provider.Event
	Updated   []provider.Event
	Deleted   []string

	nextID int
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		FinalSyncToken: "sync-final",
		ChannelTTL:     7 * 24 * time.Hour,
		Calendars:      make(map[string]map[string]provider.Event),
	}
}

// QueuePage appends a successful list response.
func (f *Fake) QueuePage(page *provider.EventPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, ListResponse{Page: page})
}

// QueueListError appends a failing list response.
func (f *Fake) QueueListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = append(f.Responses, ListResponse{Err: err})
}

func (f *Fake) ListEvents(_ context.Context, _ string, opts provider.ListOptions) (*provider.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls = append(f.ListCalls, opts)
	if len(f.Responses) == 0 {
		return &provider.EventPage{NextSyncToken: f.FinalSyncToken}, nil
	}

	res := f.Responses[0]
	f.Responses = f.Responses[1:]
	return res.Page, res.Err
}

func (f *Fake) Watch(_ context.Context, _ string, spec provider.ChannelSpec) (*provider.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Watched = append(f.Watched, spec)
	if err := pop(&f.WatchErrs); err != nil {
		return nil, err
	}
	return &provider.Channel{
		ID:         spec.ID,
		ResourceID: "res-" + spec.ID,
		Expiration: time.Now().Add(f.ChannelTTL).UTC(),
	}, nil
}

func (f *Fake) StopChannel(_ context.Context, channelID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Stopped = append(f.Stopped, channelID)
	return pop(&f.StopErrs)
}

func (f *Fake) InsertEvent(_ context.Context, calendarID string, ev *provider.Event) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InsertErr != nil {
		return nil, f.InsertErr
	}
	f.nextID++
	out := *ev
	out.ID = fmt.Sprintf("evt-%d", f.nextID)
	if out.Status == "" {
		out.Status = provider.StatusConfirmed
	}
	f.store(calendarID, out)
	f.Inserted = append(f.Inserted, out)
	return &out, nil
}

func (f *Fake) UpdateEvent(_ context.Context, calendarID, eventID string, ev *provider.Event) (*provider.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UpdateErr != nil {
		return nil, f.UpdateErr
	}
	if _, ok := f.Calendars[calendarID][eventID]; !ok {
		return nil, fmt.Errorf("update event %s: %w", eventID, provider.ErrNotFound)
	}
	out := *ev
	out.ID = eventID
	f.store(calendarID, out)
	f.Updated = append(f.Updated, out)
	return &out, nil
}

func (f *Fake) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Deleted = append(f.Deleted, eventID)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.Calendars[calendarID][eventID]; !ok {
		return fmt.Errorf("delete event %s: %w", eventID, provider.ErrNotFound)
	}
	delete(f.Calendars[calendarID], eventID)
	return nil
}

// Event returns a stored event.
func (f *Fake) Event(calendarID, eventID string) (provider.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.Calendars[calendarID][eventID]
	return ev, ok
}

// Seed stores an event as if it already existed on the provider.
func (f *Fake) Seed(calendarID string, ev provider.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(calendarID, ev)
}

func (f *Fake) store(calendarID string, ev provider.Event) {
	if f.Calendars[calendarID] == nil {
		f.Calendars[calendarID] = make(map[string]provider.Event)
	}
	f.Calendars[calendarID][ev.ID] = ev
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

var _ provider.Client = (*Fake)(nil)
