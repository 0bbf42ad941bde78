package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/pipeline"
	"github.com/rjoshi44/huntd/internal/store"
)

const submitTimeout = 30 * time.Second

// Scheduler submits scrape runs on a cron cadence. It only ever enqueues; the
// worker does the actual scraping. Submissions are suppressed outside the
// configured active hours and while a scrape is already live, so a slow run
// never stacks up behind itself.
type Scheduler struct {
	queue    model.QueueStore
	snapshot func() *config.Config
	logger   *slog.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// New creates a scheduler over the given queue.
func New(queue model.QueueStore, snapshot func() *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:    queue,
		snapshot: snapshot,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the cron entry and begins ticking. Callers should only
// start an enabled scheduler.
func (s *Scheduler) Start() error {
	cfg := s.snapshot()
	c := cron.New()
	if _, err := c.AddFunc(cfg.Scheduler.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		s.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("parse scheduler cron %q: %w", cfg.Scheduler.Cron, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "cron", cfg.Scheduler.Cron)
	return nil
}

// Stop halts the cron loop and waits for an in-flight submission to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// runOnce submits one scrape run if the gates allow it.
func (s *Scheduler) runOnce(ctx context.Context) {
	cfg := s.snapshot()
	if !withinActiveHours(s.now(), cfg.Scheduler) {
		s.logger.Debug("outside active hours, skipping scheduled scrape",
			"start", cfg.Scheduler.ActiveHoursStart, "end", cfg.Scheduler.ActiveHoursEnd)
		return
	}

	pending, err := s.queue.HasPendingScrape(ctx)
	if err != nil {
		s.logger.Error("check pending scrape", "error", err)
		return
	}
	if pending {
		s.logger.Debug("scrape already live, skipping scheduled submission")
		return
	}

	item, err := pipeline.NewScrapeItem(model.ScrapePayload{
		TargetMatches: cfg.Scheduler.TargetMatches,
		MaxSources:    cfg.Scheduler.MaxSourcesPerRun,
	})
	if err != nil {
		s.logger.Error("build scrape item", "error", err)
		return
	}
	id, err := s.queue.Enqueue(ctx, item)
	if err != nil {
		if errors.Is(err, store.ErrDuplicatePending) {
			s.logger.Debug("scrape raced another submission", "id", id)
			return
		}
		s.logger.Error("submit scheduled scrape", "error", err)
		return
	}
	s.logger.Info("scheduled scrape submitted",
		"id", id, "target_matches", cfg.Scheduler.TargetMatches, "max_sources", cfg.Scheduler.MaxSourcesPerRun)
}

// withinActiveHours reports whether t falls in [start, end) local hours.
// A window where start equals end (mod 24) covers the whole day; start past
// end wraps overnight.
func withinActiveHours(t time.Time, sc config.SchedulerConfig) bool {
	start, end := sc.ActiveHoursStart, sc.ActiveHoursEnd%24
	h := t.Hour()
	switch {
	case start == end:
		return true
	case start < end:
		return h >= start && h < end
	default:
		return h >= start || h < end
	}
}
