package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/pipeline"
)

// Worker is the single poll loop: claim a batch, dispatch each item in FIFO
// order, sleep, repeat. One worker per process; concurrency safety comes from
// the queue's guarded claims, not from goroutines here.
type Worker struct {
	queue      model.QueueStore
	dispatcher *pipeline.Dispatcher
	snapshot   func() *config.Config
	logger     *slog.Logger
	drain      bool
}

// Options tunes worker behavior.
type Options struct {
	// Drain makes Run return once the queue has no live items, instead of
	// polling forever.
	Drain bool
}

// New creates a worker. snapshot is called once per cycle so every item in a
// batch sees one consistent config.
func New(queue model.QueueStore, dispatcher *pipeline.Dispatcher, snapshot func() *config.Config, logger *slog.Logger, opts Options) *Worker {
	return &Worker{
		queue:      queue,
		dispatcher: dispatcher,
		snapshot:   snapshot,
		logger:     logger,
		drain:      opts.Drain,
	}
}

// Run polls until ctx is cancelled, or until the queue empties in drain mode.
// The first cycle runs immediately.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "drain", w.drain)
	for {
		cfg := w.snapshot()
		processed, err := w.poll(ctx, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("poll cycle failed", "error", err)
		}

		if w.drain && processed == 0 {
			idle, err := w.queueIdle(ctx)
			if err != nil {
				return err
			}
			if idle {
				w.logger.Info("queue drained")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Queue.PollInterval):
		}
	}
}

// poll claims one batch and dispatches it sequentially. Items advance through
// all their remaining stages inside Dispatch, so a batch of n items is at
// most n terminal transitions plus retries.
func (w *Worker) poll(ctx context.Context, cfg *config.Config) (int, error) {
	items, err := w.queue.ClaimBatch(ctx, cfg.Queue.BatchSize, cfg.Queue.ProcessingTimeout)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	w.logger.Debug("claimed batch", "items", len(items))

	env := pipeline.NewEnv(cfg)
	for _, item := range items {
		if ctx.Err() != nil {
			// Unfinished items stay processing; the lease reclaims them.
			return len(items), ctx.Err()
		}
		if err := w.dispatcher.Dispatch(ctx, item, env); err != nil {
			w.logger.Error("dispatch failed",
				"id", item.ID, "type", item.EntityType, "stage", item.Stage, "error", err)
		}
	}
	return len(items), nil
}

func (w *Worker) queueIdle(ctx context.Context) (bool, error) {
	stats, err := w.queue.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stats[model.StatusPending]+stats[model.StatusProcessing] == 0, nil
}
