package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Poll     PollConfig     `mapstructure:"poll"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Detect   DetectConfig   `mapstructure:"detect"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig holds price source configuration
type SourceConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	ProductFilter  string        `mapstructure:"product_filter"`
	PrimaryProduct string        `mapstructure:"primary_product"`
	Timezone       string        `mapstructure:"timezone"`
}

// PollConfig holds polling behavior configuration
type PollConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	BackoffStep      time.Duration `mapstructure:"backoff_step"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
}

// ScheduleConfig holds the fixed-time notification schedule:
// periodic group price updates plus the end-of-day summary, in the
// source timezone.
type ScheduleConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	UpdateTimes []string `mapstructure:"update_times"`
	SummaryTime string   `mapstructure:"summary_time"`
}

// DetectConfig holds change notification policy configuration.
// A threshold of 0 notifies on any buy price change.
type DetectConfig struct {
	ThresholdPct float64 `mapstructure:"threshold_pct"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	GroupChatID    string        `mapstructure:"group_chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath       string `mapstructure:"db_path"`
	MaxSnapshots int    `mapstructure:"max_snapshots"`
	HistoryCap   int    `mapstructure:"history_cap"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("SILVERWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.url", "https://giabac.phuquygroup.vn")
	v.SetDefault("source.timeout", "12s")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_delay_base", "2s")
	v.SetDefault("source.product_filter", "BẠC")
	v.SetDefault("source.primary_product", "BẠC 999 1KG")
	v.SetDefault("source.timezone", "Asia/Ho_Chi_Minh")

	// Poll defaults
	v.SetDefault("poll.interval", "1m")
	v.SetDefault("poll.failure_threshold", 3)
	v.SetDefault("poll.backoff_step", "30s")
	v.SetDefault("poll.backoff_max", "5m")

	// Schedule defaults: the fixed-time updates the service has always
	// shipped with
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.update_times", []string{"08:30", "12:00", "16:00"})
	v.SetDefault("schedule.summary_time", "18:00")

	// Detect defaults: 0 = notify on any buy price change
	v.SetDefault("detect.threshold_pct", 0.0)

	// Telegram defaults
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.max_snapshots", 100)
	v.SetDefault("storage.history_cap", 100)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if c.Source.Timeout < time.Second {
		return fmt.Errorf("source.timeout must be at least 1 second")
	}
	if c.Source.MaxRetries < 1 {
		return fmt.Errorf("source.max_retries must be at least 1")
	}
	if c.Source.Timezone == "" {
		return fmt.Errorf("source.timezone is required")
	}

	if c.Poll.Interval < 10*time.Second {
		return fmt.Errorf("poll.interval must be at least 10 seconds")
	}
	if c.Poll.FailureThreshold < 1 {
		return fmt.Errorf("poll.failure_threshold must be at least 1")
	}
	if c.Poll.BackoffStep < 0 {
		return fmt.Errorf("poll.backoff_step must not be negative")
	}
	if c.Poll.BackoffMax < c.Poll.BackoffStep {
		return fmt.Errorf("poll.backoff_max must be at least poll.backoff_step")
	}

	if c.Schedule.Enabled {
		for _, ts := range c.Schedule.UpdateTimes {
			if _, err := time.Parse("15:04", ts); err != nil {
				return fmt.Errorf("schedule.update_times entry %q must be HH:MM", ts)
			}
		}
		if _, err := time.Parse("15:04", c.Schedule.SummaryTime); err != nil {
			return fmt.Errorf("schedule.summary_time %q must be HH:MM", c.Schedule.SummaryTime)
		}
	}

	if c.Detect.ThresholdPct < 0 || c.Detect.ThresholdPct > 100 {
		return fmt.Errorf("detect.threshold_pct must be between 0 and 100")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.GroupChatID == "" {
			return fmt.Errorf("telegram.group_chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.MaxSnapshots < 1 {
		return fmt.Errorf("storage.max_snapshots must be at least 1")
	}
	if c.Storage.HistoryCap < 1 {
		return fmt.Errorf("storage.history_cap must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
