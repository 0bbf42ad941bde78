package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshotWith(sc config.SchedulerConfig) func() *config.Config {
	cfg := &config.Config{Scheduler: sc}
	return func() *config.Config { return cfg }
}

func at(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 30, hour, 15, 0, 0, time.Local)
	}
}

func TestRunOnceSubmitsScrape(t *testing.T) {
	s := store.NewMemoryStore()
	sched := New(s, snapshotWith(config.SchedulerConfig{
		Enabled: true, Cron: "@hourly",
		ActiveHoursStart: 8, ActiveHoursEnd: 22,
		TargetMatches: 5, MaxSourcesPerRun: 3,
	}), testLogger())
	sched.now = at(10)

	ctx := context.Background()
	sched.runOnce(ctx)

	pending, err := s.ListItems(ctx, model.StatusPending, model.EntityScrape, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("submitted %d scrape items, want 1", len(pending))
	}
	var p model.ScrapePayload
	if err := model.DecodePayload(pending[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.TargetMatches != 5 || p.MaxSources != 3 {
		t.Errorf("payload = %+v", p)
	}
}

func TestRunOnceSkipsOutsideActiveHours(t *testing.T) {
	s := store.NewMemoryStore()
	sched := New(s, snapshotWith(config.SchedulerConfig{
		Enabled: true, Cron: "@hourly", ActiveHoursStart: 8, ActiveHoursEnd: 22,
	}), testLogger())
	sched.now = at(3)

	sched.runOnce(context.Background())

	pending, _ := s.ListItems(context.Background(), model.StatusPending, model.EntityScrape, 10)
	if len(pending) != 0 {
		t.Errorf("submitted %d scrape items at 03:00, want 0", len(pending))
	}
}

func TestRunOnceSkipsWhileScrapeLive(t *testing.T) {
	s := store.NewMemoryStore()
	sched := New(s, snapshotWith(config.SchedulerConfig{
		Enabled: true, Cron: "@hourly", ActiveHoursStart: 0, ActiveHoursEnd: 24,
	}), testLogger())
	sched.now = at(12)

	ctx := context.Background()
	sched.runOnce(ctx)
	sched.runOnce(ctx)

	pending, _ := s.ListItems(ctx, model.StatusPending, model.EntityScrape, 10)
	if len(pending) != 1 {
		t.Errorf("have %d pending scrape items after double submission, want 1", len(pending))
	}
}

func TestWithinActiveHours(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		hour       int
		want       bool
	}{
		{"inside window", 8, 22, 12, true},
		{"at start", 8, 22, 8, true},
		{"at end", 8, 22, 22, false},
		{"before window", 8, 22, 3, false},
		{"full day", 0, 24, 3, true},
		{"overnight inside", 22, 6, 23, true},
		{"overnight after midnight", 22, 6, 2, true},
		{"overnight outside", 22, 6, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := config.SchedulerConfig{ActiveHoursStart: tt.start, ActiveHoursEnd: tt.end}
			if got := withinActiveHours(at(tt.hour)(), sc); got != tt.want {
				t.Errorf("withinActiveHours(hour=%d, [%d,%d)) = %v, want %v",
					tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}
