package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the huntd pipeline. The worker takes a
// snapshot per poll cycle and passes it down explicitly; nothing reads this as
// a global.
type Config struct {
	Queue        QueueConfig
	StopList     StopListConfig
	Scoring      ScoringConfig
	AI           AIConfig
	Sources      []SourceConfig
	Scheduler    SchedulerConfig
	Notification NotificationConfig
}

// QueueConfig controls the worker loop and retry policy.
type QueueConfig struct {
	PollInterval      time.Duration // gap between polls
	BatchSize         int           // max items claimed per poll
	MaxRetries        int           // transient-failure cap before an item goes failed
	ProcessingTimeout time.Duration // lease length; stuck processing items older than this are reclaimed
	BackoffBase       time.Duration // first retry delay, doubled per retry
}

// StopListConfig holds the exclusion sets consulted before any paid analysis.
type StopListConfig struct {
	Companies []string `yaml:"companies"`
	Keywords  []string `yaml:"keywords"`
	Domains   []string `yaml:"domains"`
}

// AdjustmentRule is one deterministic scoring rule: if any keyword matches
// the entity text, Points are applied under Category.
type AdjustmentRule struct {
	Category string   `yaml:"category"`
	Reason   string   `yaml:"reason"`
	Keywords []string `yaml:"keywords"`
	Points   int      `yaml:"points"`
}

// ScoringConfig controls the rule-based score and the save/skip threshold.
type ScoringConfig struct {
	BaseScore     int              `yaml:"base_score"`
	MinMatchScore int              `yaml:"min_match_score"`
	Adjustments   []AdjustmentRule `yaml:"adjustments"`
}

// AIConfig controls the scoring oracle.
type AIConfig struct {
	Enabled bool
	BaseURL string        // defaults to https://api.openai.com/v1
	Model   string        // e.g. "gpt-4o-mini"
	APIKey  string        // expanded from env var by Load
	Profile string        // candidate profile text the oracle scores against
	Timeout time.Duration // per-request timeout
}

// SourceConfig seeds one scrapeable job board into the system of record.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // greenhouse, lever, ashby, workday
	BoardURL string `yaml:"board_url"`
	Company  string `yaml:"company"`
}

// SchedulerConfig controls automatic scrape submission.
type SchedulerConfig struct {
	Enabled          bool
	Cron             string // robfig/cron spec, e.g. "0 */2 * * *"
	ActiveHoursStart int    // local hour, inclusive
	ActiveHoursEnd   int    // local hour, exclusive
	TargetMatches    int
	MaxSourcesPerRun int
}

// NotificationConfig controls which notifier announces saved matches.
type NotificationConfig struct {
	Type       string `yaml:"type"`        // "log" or "slack"
	WebhookURL string `yaml:"webhook_url"` // required if type is "slack"
}

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Queue        rawQueueConfig     `yaml:"queue"`
	StopList     StopListConfig     `yaml:"stoplist"`
	Scoring      ScoringConfig      `yaml:"scoring"`
	AI           rawAIConfig        `yaml:"ai"`
	Sources      []SourceConfig     `yaml:"sources"`
	Scheduler    rawSchedulerConfig `yaml:"scheduler"`
	Notification NotificationConfig `yaml:"notification"`
}

type rawQueueConfig struct {
	PollInterval      string `yaml:"poll_interval"`
	BatchSize         int    `yaml:"batch_size"`
	MaxRetries        *int   `yaml:"max_retries"`
	ProcessingTimeout string `yaml:"processing_timeout"`
	BackoffBase       string `yaml:"backoff_base"`
}

type rawAIConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	Profile string `yaml:"profile"`
	Timeout string `yaml:"timeout"`
}

type rawSchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Cron             string `yaml:"cron"`
	ActiveHoursStart int    `yaml:"active_hours_start"`
	ActiveHoursEnd   int    `yaml:"active_hours_end"`
	TargetMatches    int    `yaml:"target_matches"`
	MaxSourcesPerRun int    `yaml:"max_sources_per_run"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	pollInterval := 30 * time.Second
	if raw.Queue.PollInterval != "" {
		pollInterval, err = time.ParseDuration(raw.Queue.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("parse queue.poll_interval %q: %w", raw.Queue.PollInterval, err)
		}
	}

	processingTimeout := 5 * time.Minute
	if raw.Queue.ProcessingTimeout != "" {
		processingTimeout, err = time.ParseDuration(raw.Queue.ProcessingTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse queue.processing_timeout %q: %w", raw.Queue.ProcessingTimeout, err)
		}
	}

	backoffBase := 30 * time.Second
	if raw.Queue.BackoffBase != "" {
		backoffBase, err = time.ParseDuration(raw.Queue.BackoffBase)
		if err != nil {
			return nil, fmt.Errorf("parse queue.backoff_base %q: %w", raw.Queue.BackoffBase, err)
		}
	}

	batchSize := raw.Queue.BatchSize
	if batchSize == 0 {
		batchSize = 10
	}

	maxRetries := 3
	if raw.Queue.MaxRetries != nil {
		maxRetries = *raw.Queue.MaxRetries
	}

	aiTimeout := 30 * time.Second
	if raw.AI.Timeout != "" {
		aiTimeout, err = time.ParseDuration(raw.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse ai.timeout %q: %w", raw.AI.Timeout, err)
		}
	}

	aiBaseURL := raw.AI.BaseURL
	if aiBaseURL == "" {
		aiBaseURL = defaultOpenAIBaseURL
	}

	scoring := raw.Scoring
	if scoring.BaseScore == 0 {
		scoring.BaseScore = 50
	}
	if scoring.MinMatchScore == 0 {
		scoring.MinMatchScore = 80
	}

	scheduler := SchedulerConfig{
		Enabled:          raw.Scheduler.Enabled,
		Cron:             raw.Scheduler.Cron,
		ActiveHoursStart: raw.Scheduler.ActiveHoursStart,
		ActiveHoursEnd:   raw.Scheduler.ActiveHoursEnd,
		TargetMatches:    raw.Scheduler.TargetMatches,
		MaxSourcesPerRun: raw.Scheduler.MaxSourcesPerRun,
	}
	if scheduler.ActiveHoursEnd == 0 {
		scheduler.ActiveHoursEnd = 24
	}

	cfg := &Config{
		Queue: QueueConfig{
			PollInterval:      pollInterval,
			BatchSize:         batchSize,
			MaxRetries:        maxRetries,
			ProcessingTimeout: processingTimeout,
			BackoffBase:       backoffBase,
		},
		StopList:  raw.StopList,
		Scoring:   scoring,
		Sources:   raw.Sources,
		Scheduler: scheduler,
		AI: AIConfig{
			Enabled: raw.AI.Enabled,
			BaseURL: aiBaseURL,
			Model:   raw.AI.Model,
			APIKey:  raw.AI.APIKey,
			Profile: raw.AI.Profile,
			Timeout: aiTimeout,
		},
		Notification: raw.Notification,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Queue.PollInterval <= 0 {
		return fmt.Errorf("queue.poll_interval must be positive, got %v", cfg.Queue.PollInterval)
	}
	if cfg.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must not be negative, got %d", cfg.Queue.MaxRetries)
	}
	if cfg.Queue.ProcessingTimeout < time.Minute {
		return fmt.Errorf("queue.processing_timeout must be at least 1m, got %v", cfg.Queue.ProcessingTimeout)
	}

	if cfg.Scoring.MinMatchScore < 0 || cfg.Scoring.MinMatchScore > 100 {
		return fmt.Errorf("scoring.min_match_score must be between 0 and 100, got %d", cfg.Scoring.MinMatchScore)
	}
	for i, rule := range cfg.Scoring.Adjustments {
		if rule.Category == "" {
			return fmt.Errorf("scoring.adjustments[%d]: category is required", i)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("scoring.adjustments[%d] (%s): at least one keyword is required", i, rule.Category)
		}
		if rule.Points == 0 {
			return fmt.Errorf("scoring.adjustments[%d] (%s): points must be non-zero", i, rule.Category)
		}
	}

	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if src.BoardURL == "" {
			return fmt.Errorf("sources[%d] (%s): board_url is required", i, src.Name)
		}
	}

	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.Cron == "" {
			return fmt.Errorf("scheduler.cron is required when scheduler.enabled is true")
		}
		if cfg.Scheduler.ActiveHoursStart < 0 || cfg.Scheduler.ActiveHoursStart > 23 {
			return fmt.Errorf("scheduler.active_hours_start must be between 0 and 23, got %d", cfg.Scheduler.ActiveHoursStart)
		}
		if cfg.Scheduler.ActiveHoursEnd < 1 || cfg.Scheduler.ActiveHoursEnd > 24 {
			return fmt.Errorf("scheduler.active_hours_end must be between 1 and 24, got %d", cfg.Scheduler.ActiveHoursEnd)
		}
	}

	if cfg.Notification.Type == "slack" {
		if cfg.Notification.WebhookURL == "" {
			return fmt.Errorf("notification.webhook_url is required when type is \"slack\"")
		}
	}

	if cfg.AI.Enabled {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("ai.api_key is required when ai.enabled is true")
		}
		if cfg.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
	}

	return nil
}
