package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rjoshi44/huntd/internal/ai"
	"github.com/rjoshi44/huntd/internal/config"
	"github.com/rjoshi44/huntd/internal/fetch"
	"github.com/rjoshi44/huntd/internal/model"
	"github.com/rjoshi44/huntd/internal/notifier"
	"github.com/rjoshi44/huntd/internal/pipeline"
	"github.com/rjoshi44/huntd/internal/ratelimit"
	"github.com/rjoshi44/huntd/internal/source"
	"github.com/rjoshi44/huntd/internal/store"
)

const (
	userAgent = "huntd/1.0 (job pipeline)"

	// Minimum gap between requests to the same host. Career pages and
	// boards are other people's infrastructure; be polite.
	hostDelay = 2 * time.Second
)

var (
	cfgPath string
	dbPath  string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "huntd",
	Short: "Job-hunt pipeline daemon",
	Long:  "Huntd runs a durable work queue that discovers companies, scrapes their job boards, scores postings against your profile, and saves the matches.",
	// Default to `start` so that `huntd` with no args runs the daemon.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: HUNTD_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "huntd.db", "path to the sqlite database")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > HUNTD_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("HUNTD_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.MatchNotifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// buildDispatcher wires the stage handlers over the store.
func buildDispatcher(cfg *config.Config, s *store.SQLiteStore, logger *slog.Logger) *pipeline.Dispatcher {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	limiter := ratelimit.NewHostLimiter(hostDelay)

	var oracle pipeline.Oracle
	if cfg.AI.Enabled {
		provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, httpClient)
		oracle = ai.NewScorer(provider, ai.MatchPromptTemplate(), cfg.AI.Timeout, logger)
		logger.Info("scoring oracle enabled", "model", cfg.AI.Model)
	}

	d := pipeline.NewDispatcher(s, logger)
	pipeline.RegisterHandlers(d, pipeline.Deps{
		Fetcher:  fetch.NewFetcher(httpClient, limiter, userAgent),
		Boards:   source.NewJSONBoardClient(httpClient, limiter),
		Oracle:   oracle,
		Records:  s,
		Notifier: setupNotifier(cfg, httpClient, logger),
		Logger:   logger,
	})
	return d
}

// seedSources registers the boards listed in config so the first scrape run
// has something to rotate through.
func seedSources(ctx context.Context, cfg *config.Config, records model.RecordStore, logger *slog.Logger) error {
	for _, sc := range cfg.Sources {
		id, err := records.UpsertSource(ctx, &model.Source{
			Name:        sc.Name,
			Kind:        sc.Kind,
			BoardURL:    sc.BoardURL,
			CompanyName: sc.Company,
		})
		if err != nil {
			return err
		}
		logger.Debug("source seeded", "name", sc.Name, "id", id)
	}
	return nil
}
