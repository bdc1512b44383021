package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	content := `
source:
  url: "https://giabac.phuquygroup.vn"
  timeout: 10s
  product_filter: "BẠC"
  primary_product: "BẠC 999 1KG"

poll:
  interval: 2m
  failure_threshold: 3
  backoff_step: 30s
  backoff_max: 5m

detect:
  threshold_pct: 2.0

telegram:
  bot_token: "test_token"
  group_chat_id: "-100123456"
  enabled: true

storage:
  db_path: "./data/test.db"
  max_snapshots: 100
  history_cap: 100

logging:
  level: "info"
  format: "text"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Poll.Interval != 2*time.Minute {
		t.Errorf("Unexpected poll interval: %v", cfg.Poll.Interval)
	}
	if cfg.Source.ProductFilter != "BẠC" {
		t.Errorf("Unexpected product filter: %q", cfg.Source.ProductFilter)
	}
	if cfg.Detect.ThresholdPct != 2.0 {
		t.Errorf("Unexpected threshold: %f", cfg.Detect.ThresholdPct)
	}
	if cfg.Telegram.GroupChatID != "-100123456" {
		t.Errorf("Unexpected group chat ID: %q", cfg.Telegram.GroupChatID)
	}

	// Defaults fill fields the file omits.
	if cfg.Source.Timezone != "Asia/Ho_Chi_Minh" {
		t.Errorf("Unexpected default timezone: %q", cfg.Source.Timezone)
	}
	if cfg.Source.MaxRetries != 3 {
		t.Errorf("Unexpected default max retries: %d", cfg.Source.MaxRetries)
	}
	if cfg.Telegram.RetryDelayBase != time.Second {
		t.Errorf("Unexpected default retry delay base: %v", cfg.Telegram.RetryDelayBase)
	}
	if !cfg.Schedule.Enabled {
		t.Error("Expected schedule enabled by default")
	}
	if len(cfg.Schedule.UpdateTimes) != 3 || cfg.Schedule.UpdateTimes[0] != "08:30" {
		t.Errorf("Unexpected default update times: %v", cfg.Schedule.UpdateTimes)
	}
	if cfg.Schedule.SummaryTime != "18:00" {
		t.Errorf("Unexpected default summary time: %q", cfg.Schedule.SummaryTime)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source: SourceConfig{
				URL:        "https://giabac.phuquygroup.vn",
				Timeout:    10 * time.Second,
				MaxRetries: 3,
				Timezone:   "Asia/Ho_Chi_Minh",
			},
			Poll: PollConfig{
				Interval:         time.Minute,
				FailureThreshold: 3,
				BackoffStep:      30 * time.Second,
				BackoffMax:       5 * time.Minute,
			},
			Detect: DetectConfig{ThresholdPct: 0},
			Telegram: TelegramConfig{
				BotToken:    "token",
				GroupChatID: "-100123",
				Enabled:     true,
			},
			Storage: StorageConfig{MaxSnapshots: 100, HistoryCap: 100},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("baseline config should be valid: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing url", func(c *Config) { c.Source.URL = "" }, "source.url"},
		{"short interval", func(c *Config) { c.Poll.Interval = time.Second }, "poll.interval"},
		{"zero threshold count", func(c *Config) { c.Poll.FailureThreshold = 0 }, "poll.failure_threshold"},
		{"backoff max below step", func(c *Config) { c.Poll.BackoffMax = time.Second }, "poll.backoff_max"},
		{"negative detect threshold", func(c *Config) { c.Detect.ThresholdPct = -1 }, "detect.threshold_pct"},
		{"bad update time", func(c *Config) {
			c.Schedule = ScheduleConfig{Enabled: true, UpdateTimes: []string{"25:99"}, SummaryTime: "18:00"}
		}, "schedule.update_times"},
		{"bad summary time", func(c *Config) {
			c.Schedule = ScheduleConfig{Enabled: true, SummaryTime: "evening"}
		}, "schedule.summary_time"},
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }, "telegram.bot_token"},
		{"missing group chat", func(c *Config) { c.Telegram.GroupChatID = "" }, "telegram.group_chat_id"},
		{"zero snapshots", func(c *Config) { c.Storage.MaxSnapshots = 0 }, "storage.max_snapshots"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTelegramDisabledSkipsCredentials(t *testing.T) {
	cfg := &Config{
		Source: SourceConfig{
			URL:        "https://giabac.phuquygroup.vn",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			Timezone:   "Asia/Ho_Chi_Minh",
		},
		Poll: PollConfig{
			Interval:         time.Minute,
			FailureThreshold: 3,
			BackoffMax:       5 * time.Minute,
		},
		Telegram: TelegramConfig{Enabled: false},
		Storage:  StorageConfig{MaxSnapshots: 100, HistoryCap: 100},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled telegram should not require credentials: %v", err)
	}
}
