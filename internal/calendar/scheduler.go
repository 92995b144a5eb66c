package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleOptions holds the cron specs of the backstop sweeps.
type ScheduleOptions struct {
	Renew  string
	Resync string
}

// Scheduler runs the periodic channel renewal and full resync sweeps that
// catch whatever the webhooks missed.
type Scheduler struct {
	cron     *cron.Cron
	channels *ChannelManager
	engine   *SyncEngine
	opts     ScheduleOptions

	jobs   map[string]cron.EntryID
	jobsMu sync.RWMutex
}

// Sweep job names.
const (
	JobRenew  = "renew"
	JobResync = "resync"
)

// NewScheduler creates a sweep scheduler.
func NewScheduler(channels *ChannelManager, engine *SyncEngine, opts ScheduleOptions) *Scheduler {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		channels: channels,
		engine:   engine,
		opts:     opts,
		jobs:     make(map[string]cron.EntryID),
	}
}

// Start registers the sweeps and starts the cron loop.
func (s *Scheduler) Start() error {
	slog.Info("starting calendar sweep scheduler", "renew", s.opts.Renew, "resync", s.opts.Resync)

	if err := s.add(JobRenew, s.opts.Renew, s.RunRenew); err != nil {
		return err
	}
	if err := s.add(JobResync, s.opts.Resync, s.RunResync); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for running sweeps and shuts the scheduler down.
func (s *Scheduler) Stop() {
	slog.Info("stopping calendar sweep scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("calendar sweep scheduler stopped")
}

func (s *Scheduler) add(name, spec string, run func(context.Context)) error {
	if spec == "" {
		slog.Warn("sweep disabled", "job", name)
		return nil
	}

	entryID, err := s.cron.AddFunc(spec, func() { run(context.Background()) })
	if err != nil {
		return fmt.Errorf("scheduling %s sweep %q: %w", name, spec, err)
	}

	s.jobsMu.Lock()
	s.jobs[name] = entryID
	s.jobsMu.Unlock()
	return nil
}

// RunRenew replaces every channel close to expiry.
func (s *Scheduler) RunRenew(ctx context.Context) {
	results, err := s.channels.RenewExpiring(ctx)
	if err != nil {
		slog.Error("channel renewal sweep failed", "error", err)
		return
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	slog.Info("channel renewal sweep completed", "renewed", len(results)-failed, "failed", failed)
}

// RunResync syncs every property with a calendar.
func (s *Scheduler) RunResync(ctx context.Context) {
	results, err := s.engine.SyncAll(ctx)
	if err != nil {
		slog.Error("resync sweep failed", "error", err)
		return
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	slog.Info("resync sweep completed", "properties", len(results), "failed", failed)
}

// TriggerSync syncs one property in the background.
func (s *Scheduler) TriggerSync(propertyID string) {
	go func() {
		if _, err := s.engine.SyncProperty(context.Background(), propertyID); err != nil {
			slog.Warn("triggered sync failed", "property_id", propertyID, "error", err)
		}
	}()
}

// NextRuns returns the next scheduled run of each sweep.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	next := make(map[string]time.Time, len(s.jobs))
	for name, id := range s.jobs {
		if entry := s.cron.Entry(id); !entry.Next.IsZero() {
			next[name] = entry.Next
		}
	}
	return next
}
