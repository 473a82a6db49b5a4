package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/logging"
	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// Environment overrides.
const (
	envDatabase     = "LOGMON_DB"
	envSlackWebhook = "LOGMON_SLACK_WEBHOOK_URL"
)

// Config represents the logmon configuration file.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Log      logging.Config `yaml:"log"`
	Notify   NotifyConfig   `yaml:"notify"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`         // SQLite file (default: db/monitor.db)
	BusyTimeout string `yaml:"busy_timeout"` // Lock wait (default: 30s)
}

// IngestConfig contains pipeline settings.
type IngestConfig struct {
	CommitEvery   int    `yaml:"commit_every"`   // Lines per transaction (default: 1000)
	AlertChannel  string `yaml:"alert_channel"`  // Channel alerts are queued for (default: slack)
	DefaultYear   int    `yaml:"default_year"`   // Year for syslog timestamps (0 = current)
	FlushInterval string `yaml:"flush_interval"` // Follow-mode commit interval (default: 2s)
}

// NotifyConfig contains alert delivery settings.
type NotifyConfig struct {
	Slack         SlackConfig `yaml:"slack"`
	Interval      string      `yaml:"interval"`        // Delivery pass interval (default: 30s)
	BatchSize     int         `yaml:"batch_size"`      // Alerts per pass (default: 50)
	RatePerMinute int         `yaml:"rate_per_minute"` // Per-channel limit (default: 20)
}

// SlackConfig contains Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// ViewerConfig contains viewer HTTP settings.
type ViewerConfig struct {
	Address string `yaml:"address"` // Listen address (default: :8000)
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // Listen address; empty disables the endpoint
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "db/monitor.db"
	}
	if c.Database.BusyTimeout == "" {
		c.Database.BusyTimeout = "30s"
	}
	if c.Ingest.CommitEvery == 0 {
		c.Ingest.CommitEvery = 1000
	}
	if c.Ingest.AlertChannel == "" {
		c.Ingest.AlertChannel = models.DefaultAlertChannel
	}
	if c.Ingest.FlushInterval == "" {
		c.Ingest.FlushInterval = "2s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Notify.Interval == "" {
		c.Notify.Interval = "30s"
	}
	if c.Notify.BatchSize == 0 {
		c.Notify.BatchSize = 50
	}
	if c.Notify.RatePerMinute == 0 {
		c.Notify.RatePerMinute = 20
	}
	if c.Viewer.Address == "" {
		c.Viewer.Address = ":8000"
	}
}

// applyEnv applies environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(envDatabase); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(envSlackWebhook); v != "" {
		c.Notify.Slack.WebhookURL = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := parsePositiveDuration(c.Database.BusyTimeout); err != nil {
		return fmt.Errorf("invalid database.busy_timeout: %w", err)
	}
	if c.Ingest.CommitEvery < 0 {
		return fmt.Errorf("ingest.commit_every must be positive")
	}
	if c.Ingest.DefaultYear < 0 {
		return fmt.Errorf("ingest.default_year must not be negative")
	}
	if _, err := parsePositiveDuration(c.Ingest.FlushInterval); err != nil {
		return fmt.Errorf("invalid ingest.flush_interval: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if _, err := parsePositiveDuration(c.Notify.Interval); err != nil {
		return fmt.Errorf("invalid notify.interval: %w", err)
	}
	if c.Notify.BatchSize < 0 {
		return fmt.Errorf("notify.batch_size must be positive")
	}
	if c.Notify.RatePerMinute < 0 {
		return fmt.Errorf("notify.rate_per_minute must be positive")
	}
	return nil
}

// BusyTimeout returns the parsed database busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := parsePositiveDuration(c.Database.BusyTimeout)
	return d
}

// FlushInterval returns the parsed follow-mode flush interval.
func (c *Config) FlushInterval() time.Duration {
	d, _ := parsePositiveDuration(c.Ingest.FlushInterval)
	return d
}

// NotifyInterval returns the parsed delivery interval.
func (c *Config) NotifyInterval() time.Duration {
	d, _ := parsePositiveDuration(c.Notify.Interval)
	return d
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
