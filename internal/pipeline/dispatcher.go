package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/filter"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/store"
)

// Env is the per-batch execution environment: a config snapshot and the
// filter engine built from it. The worker rebuilds it each poll cycle, so a
// config reload never changes behavior mid-item.
type Env struct {
	Cfg    *config.Config
	Engine *filter.Engine
}

// NewEnv builds an execution environment from a config snapshot.
func NewEnv(cfg *config.Config) *Env {
	return &Env{
		Cfg:    cfg,
		Engine: filter.NewEngine(cfg.StopList, cfg.Scoring),
	}
}

// HandlerFn executes one stage of one item and reports the transition.
type HandlerFn func(ctx context.Context, item *model.QueueItem, env *Env) Outcome

type handlerKey struct {
	entity model.EntityType
	stage  model.Stage
}

// Dispatcher routes claimed items to stage handlers and commits their
// outcomes. An item advances through its remaining stages inline within one
// Dispatch call; it only returns to the queue on retry or terminal state.
type Dispatcher struct {
	queue    model.QueueStore
	handlers map[handlerKey]HandlerFn
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given queue.
func NewDispatcher(queue model.QueueStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:    queue,
		handlers: make(map[handlerKey]HandlerFn),
		logger:   logger,
	}
}

// Register binds a handler to an (entity type, stage) pair.
func (d *Dispatcher) Register(t model.EntityType, s model.Stage, fn HandlerFn) {
	d.handlers[handlerKey{entity: t, stage: s}] = fn
}

// Dispatch runs a claimed item until it retries, finalizes, or loses its
// claim. The returned error is infrastructural (store failures); handler
// failures are absorbed into the item's own state.
func (d *Dispatcher) Dispatch(ctx context.Context, item *model.QueueItem, env *Env) error {
	for {
		completed, err := d.queue.CompletedStages(ctx, item.Key)
		if err != nil {
			return fmt.Errorf("load stage history for %s: %w", item.Key, err)
		}
		if reason, violated := orderViolation(item, completed); violated {
			d.logger.Error("stage order violation",
				"id", item.ID, "type", item.EntityType, "stage", item.Stage, "reason", reason)
			return d.finish(ctx, item, model.StatusFailed, reason, nil)
		}

		fn, ok := d.handlers[handlerKey{entity: item.EntityType, stage: item.Stage}]
		if !ok {
			return d.finish(ctx, item, model.StatusFailed,
				fmt.Sprintf("no handler registered for %s/%s", item.EntityType, item.Stage), nil)
		}

		out := fn(ctx, item, env)
		switch out.kind {
		case outcomeAdvance:
			next, ok := model.NextStage(item.EntityType, item.Stage)
			if !ok {
				return d.finish(ctx, item, model.StatusFailed,
					fmt.Sprintf("stage %s has no successor for %s", item.Stage, item.EntityType), nil)
			}
			if out.next != next {
				return d.finish(ctx, item, model.StatusFailed,
					fmt.Sprintf("handler advanced %s to %s, expected %s", item.Stage, out.next, next), nil)
			}
			raw, err := model.EncodePayload(out.payload)
			if err != nil {
				return d.finish(ctx, item, model.StatusFailed, err.Error(), nil)
			}
			if err := d.queue.CommitAdvance(ctx, item, next, raw, out.spawns); err != nil {
				if errors.Is(err, store.ErrStale) {
					d.logger.Warn("lost claim mid-stage, discarding work", "id", item.ID, "stage", item.Stage)
					return nil
				}
				return fmt.Errorf("commit advance for %s: %w", item.ID, err)
			}
			d.logger.Debug("stage complete",
				"id", item.ID, "type", item.EntityType, "next", next, "spawns", len(out.spawns))

		case outcomeTerminal:
			if out.payload != nil {
				if raw, err := model.EncodePayload(out.payload); err == nil {
					item.Payload = raw
				}
			}
			return d.finish(ctx, item, out.status, out.message, out.spawns)

		case outcomeRetry:
			return d.retry(ctx, item, env, out)
		}
	}
}

func (d *Dispatcher) finish(ctx context.Context, item *model.QueueItem, status model.Status, message string, spawns []*model.QueueItem) error {
	if err := d.queue.CommitTerminal(ctx, item, status, message, spawns); err != nil {
		if errors.Is(err, store.ErrStale) {
			d.logger.Warn("lost claim before finalize, discarding work", "id", item.ID)
			return nil
		}
		return fmt.Errorf("finalize %s: %w", item.ID, err)
	}
	d.logger.Info("item finished",
		"id", item.ID, "type", item.EntityType, "status", status,
		"message", message, "spawns", len(spawns))
	return nil
}

func (d *Dispatcher) retry(ctx context.Context, item *model.QueueItem, env *Env, out Outcome) error {
	attempt := item.RetryCount + 1
	if attempt >= env.Cfg.Queue.MaxRetries {
		item.RetryCount = attempt
		d.logger.Warn("retries exhausted",
			"id", item.ID, "stage", item.Stage, "attempts", attempt, "reason", out.reason)
		return d.finish(ctx, item, model.StatusFailed,
			fmt.Sprintf("%s (after %d attempts)", out.reason, attempt), nil)
	}

	delay := backoffDelay(env.Cfg.Queue.BackoffBase, attempt, out.cause)
	nextAttempt := time.Now().UTC().Add(delay)
	if err := d.queue.CommitRetry(ctx, item, attempt, out.reason, nextAttempt); err != nil {
		if errors.Is(err, store.ErrStale) {
			d.logger.Warn("lost claim before retry, discarding work", "id", item.ID)
			return nil
		}
		return fmt.Errorf("commit retry for %s: %w", item.ID, err)
	}
	d.logger.Warn("stage failed, will retry",
		"id", item.ID, "stage", item.Stage, "attempt", attempt,
		"delay", delay.Round(time.Second), "reason", out.reason)
	return nil
}

// orderViolation checks the item's current stage against the completed-stage
// history for its key: a stage may not run twice, and may not run before
// every stage preceding it has completed.
func orderViolation(item *model.QueueItem, completed []model.Stage) (string, bool) {
	order := model.StageOrder(item.EntityType)
	idx := -1
	for i, st := range order {
		if st == item.Stage {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Sprintf("unknown stage %q for %s", item.Stage, item.EntityType), true
	}

	done := make(map[model.Stage]bool, len(completed))
	for _, st := range completed {
		done[st] = true
	}
	if done[item.Stage] {
		return fmt.Sprintf("stage %s already completed for key %s", item.Stage, item.Key), true
	}
	for _, st := range order[:idx] {
		if !done[st] {
			return fmt.Sprintf("stage %s reached before %s completed for key %s", item.Stage, st, item.Key), true
		}
	}
	return "", false
}

// backoffDelay computes the wait before retry attempt n: base doubled per
// attempt with ±30% jitter so reclaimed batches do not thunder back in step.
// A server-provided Retry-After on the failure takes precedence.
func backoffDelay(base time.Duration, attempt int, cause error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(cause, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	if base <= 0 {
		base = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base << (attempt - 1)
	jitter := 0.7 + rand.Float64()*0.6
	return time.Duration(float64(delay) * jitter)
}
