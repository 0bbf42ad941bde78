package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/schedule"
	"github.com/rjoshi44/huntd/internal/store"
	"github.com/rjoshi44/huntd/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline worker",
	Long:  "Start the worker poll loop (and the scrape scheduler, if enabled); blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return runWorker(worker.Options{})
}

func runWorker(opts worker.Options) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"poll_interval", cfg.Queue.PollInterval.String(),
		"batch_size", cfg.Queue.BatchSize,
		"max_retries", cfg.Queue.MaxRetries,
		"sources", len(cfg.Sources),
		"ai_enabled", cfg.AI.Enabled,
		"scheduler_enabled", cfg.Scheduler.Enabled,
	)

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedSources(ctx, cfg, s, logger); err != nil {
		logger.Error("failed to seed sources", "error", err)
		os.Exit(1)
	}

	dispatcher := buildDispatcher(cfg, s, logger)
	snapshot := func() *config.Config { return cfg }

	if cfg.Scheduler.Enabled {
		sched := schedule.New(s, snapshot, logger)
		if err := sched.Start(); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	}

	w := worker.New(s, dispatcher, snapshot, logger, opts)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
