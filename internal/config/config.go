// Package config provides configuration loading and validation for the
// API and worker processes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	// DatabaseURL is the Postgres connection string. The store relies on
	// row-level locking with SKIP LOCKED, so Postgres is required.
	DatabaseURL string

	// CheckerConcurrency is the per-worker ceiling on in-flight probes.
	CheckerConcurrency int

	// PollInterval is how long the worker sleeps when no targets are due.
	PollInterval time.Duration

	// LeaseTimeout is the lifetime of an acquired scheduler lease. A worker
	// that dies mid-probe loses the lease after this long and the target
	// becomes acquirable again.
	LeaseTimeout time.Duration

	// FetchBatchSize is the maximum number of due targets per acquire call.
	FetchBatchSize int

	// Telegram notifier settings. Token and chat id must be set together;
	// when both are empty the Telegram sender is disabled.
	TelegramBotToken  string
	TelegramChatID    string
	TelegramParseMode string

	// APIAddr is the listen address of the REST API process (e.g. ":8080").
	APIAddr string

	// LogLevel controls application logging: debug, info, warn, error.
	LogLevel string

	// ShutdownTimeout bounds graceful shutdown of either process.
	ShutdownTimeout time.Duration

	// RetentionDays is how long check results and terminal notification
	// events are kept before the janitor prunes them.
	RetentionDays int

	// PruneSchedule is the cron expression driving the janitor.
	PruneSchedule string

	// OutboxSweepInterval is how often the dispatcher re-scans for queued
	// notification events that were not delivered on the first attempt.
	OutboxSweepInterval time.Duration

	// MetricsCacheTTL bounds staleness of cached uptime reports on the REST
	// read path. Zero disables the cache.
	MetricsCacheTTL time.Duration
}

// Load reads configuration from environment variables, applies defaults and
// validates values. All invalid variables are reported in a single error.
func Load() (*Config, error) {
	var errs []string

	cfg := &Config{
		DatabaseURL:         strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CheckerConcurrency:  envInt("CHECKER_CONCURRENCY", 20, &errs),
		PollInterval:        envSeconds("POLL_INTERVAL_SEC", 1.0, &errs),
		LeaseTimeout:        envSeconds("LEASE_TIMEOUT_SEC", 30.0, &errs),
		FetchBatchSize:      envInt("FETCH_BATCH_SIZE", 100, &errs),
		TelegramBotToken:    strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:      strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		TelegramParseMode:   envStr("TELEGRAM_PARSE_MODE", "HTML"),
		APIAddr:             envStr("API_ADDR", ":8080"),
		LogLevel:            strings.ToLower(envStr("LOG_LEVEL", "info")),
		ShutdownTimeout:     envSeconds("SHUTDOWN_TIMEOUT_SEC", 10.0, &errs),
		RetentionDays:       envInt("RETENTION_DAYS", 30, &errs),
		PruneSchedule:       envStr("PRUNE_SCHEDULE", "0 3 * * *"),
		OutboxSweepInterval: envSeconds("OUTBOX_SWEEP_SEC", 30.0, &errs),
		MetricsCacheTTL:     envSeconds("METRICS_CACHE_TTL_SEC", 15.0, &errs),
	}

	if cfg.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if cfg.CheckerConcurrency < 1 {
		errs = append(errs, fmt.Sprintf("CHECKER_CONCURRENCY must be >= 1, got %d", cfg.CheckerConcurrency))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, "POLL_INTERVAL_SEC must be positive")
	}
	if cfg.LeaseTimeout <= 0 {
		errs = append(errs, "LEASE_TIMEOUT_SEC must be positive")
	}
	if cfg.FetchBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("FETCH_BATCH_SIZE must be >= 1, got %d", cfg.FetchBatchSize))
	}
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	switch cfg.TelegramParseMode {
	case "HTML", "Markdown", "MarkdownV2":
	default:
		errs = append(errs, fmt.Sprintf("TELEGRAM_PARSE_MODE: invalid value %q (allowed: HTML, Markdown, MarkdownV2)", cfg.TelegramParseMode))
	}
	if cfg.APIAddr == "" {
		errs = append(errs, "API_ADDR must not be empty")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL: invalid value %q (allowed: debug, info, warn, error)", cfg.LogLevel))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT_SEC must be positive")
	}
	if cfg.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("RETENTION_DAYS must be >= 1, got %d", cfg.RetentionDays))
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("PRUNE_SCHEDULE: invalid cron expression %q: %v", cfg.PruneSchedule, err))
	}
	if cfg.OutboxSweepInterval < time.Second {
		errs = append(errs, "OUTBOX_SWEEP_SEC must be >= 1")
	}
	if cfg.MetricsCacheTTL < 0 {
		errs = append(errs, "METRICS_CACHE_TTL_SEC must not be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// TelegramEnabled reports whether the env-configured Telegram notifier is on.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// Level maps LogLevel onto the slog level used by both processes.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, defaultVal string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return v
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

// envSeconds parses a float number of seconds (e.g. "1.5") into a Duration.
func envSeconds(key string, defaultVal float64, errs *[]string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Duration(defaultVal * float64(time.Second))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number of seconds %q", key, v))
		return time.Duration(defaultVal * float64(time.Second))
	}
	return time.Duration(f * float64(time.Second))
}
