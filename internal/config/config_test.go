package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/upmon_test")
	// ensure other envs unset
	t.Setenv("CHECKER_CONCURRENCY", "")
	t.Setenv("POLL_INTERVAL_SEC", "")
	t.Setenv("LEASE_TIMEOUT_SEC", "")
	t.Setenv("FETCH_BATCH_SIZE", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	t.Setenv("TELEGRAM_PARSE_MODE", "")
	t.Setenv("API_ADDR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.CheckerConcurrency != 20 {
		t.Fatalf("expected default CheckerConcurrency 20, got %d", cfg.CheckerConcurrency)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected default PollInterval 1s, got %v", cfg.PollInterval)
	}
	if cfg.LeaseTimeout != 30*time.Second {
		t.Fatalf("expected default LeaseTimeout 30s, got %v", cfg.LeaseTimeout)
	}
	if cfg.FetchBatchSize != 100 {
		t.Fatalf("expected default FetchBatchSize 100, got %d", cfg.FetchBatchSize)
	}
	if cfg.TelegramParseMode != "HTML" {
		t.Fatalf("expected default TelegramParseMode HTML, got %q", cfg.TelegramParseMode)
	}
	if cfg.APIAddr != ":8080" {
		t.Fatalf("expected default APIAddr :8080, got %q", cfg.APIAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default LogLevel info, got %q", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected default ShutdownTimeout 10s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.RetentionDays != 30 {
		t.Fatalf("expected default RetentionDays 30, got %d", cfg.RetentionDays)
	}
	if cfg.PruneSchedule != "0 3 * * *" {
		t.Fatalf("expected default PruneSchedule, got %q", cfg.PruneSchedule)
	}
	if cfg.TelegramEnabled() {
		t.Fatalf("expected Telegram disabled by default")
	}
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/upmon")
	t.Setenv("CHECKER_CONCURRENCY", "5")
	t.Setenv("POLL_INTERVAL_SEC", "0.25")
	t.Setenv("LEASE_TIMEOUT_SEC", "90")
	t.Setenv("FETCH_BATCH_SIZE", "10")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100200300")
	t.Setenv("TELEGRAM_PARSE_MODE", "MarkdownV2")
	t.Setenv("API_ADDR", "127.0.0.1:9090")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.CheckerConcurrency != 5 {
		t.Fatalf("expected CheckerConcurrency 5, got %d", cfg.CheckerConcurrency)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("expected PollInterval 250ms, got %v", cfg.PollInterval)
	}
	if cfg.LeaseTimeout != 90*time.Second {
		t.Fatalf("expected LeaseTimeout 90s, got %v", cfg.LeaseTimeout)
	}
	if cfg.FetchBatchSize != 10 {
		t.Fatalf("expected FetchBatchSize 10, got %d", cfg.FetchBatchSize)
	}
	if !cfg.TelegramEnabled() {
		t.Fatalf("expected Telegram enabled")
	}
	if cfg.TelegramParseMode != "MarkdownV2" {
		t.Fatalf("expected TelegramParseMode MarkdownV2, got %q", cfg.TelegramParseMode)
	}
	if cfg.APIAddr != "127.0.0.1:9090" {
		t.Fatalf("expected APIAddr 127.0.0.1:9090, got %q", cfg.APIAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel normalized to debug, got %q", cfg.LogLevel)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected slog debug level, got %v", cfg.Level())
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing, got nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("error does not mention DATABASE_URL: %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad concurrency", "CHECKER_CONCURRENCY", "zero", "CHECKER_CONCURRENCY"},
		{"zero concurrency", "CHECKER_CONCURRENCY", "0", "CHECKER_CONCURRENCY"},
		{"negative poll", "POLL_INTERVAL_SEC", "-1", "POLL_INTERVAL_SEC"},
		{"bad lease", "LEASE_TIMEOUT_SEC", "soon", "LEASE_TIMEOUT_SEC"},
		{"zero batch", "FETCH_BATCH_SIZE", "0", "FETCH_BATCH_SIZE"},
		{"bad parse mode", "TELEGRAM_PARSE_MODE", "BBCode", "TELEGRAM_PARSE_MODE"},
		{"bad log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"bad cron", "PRUNE_SCHEDULE", "every day", "PRUNE_SCHEDULE"},
		{"zero retention", "RETENTION_DAYS", "0", "RETENTION_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/upmon_test")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error does not mention %s; got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad_TelegramRequiresBothSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/upmon_test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error when only TELEGRAM_BOT_TOKEN is set, got nil")
	}
	if !strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID") {
		t.Fatalf("error does not mention telegram pairing; got: %v", err)
	}
}

func TestLoad_AggregatesAllErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CHECKER_CONCURRENCY", "-3")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	for _, want := range []string{"DATABASE_URL", "CHECKER_CONCURRENCY", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("aggregated error missing %s; got: %v", want, err)
		}
	}
}
