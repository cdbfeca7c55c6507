package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Reference ReferenceConfig `yaml:"reference"`
	Models    ModelsConfig    `yaml:"models"`
	Batch     BatchConfig     `yaml:"batch"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Server    ServerConfig    `yaml:"server"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ReferenceConfig locates the baseline angle tables.
type ReferenceConfig struct {
	Dir        string     `yaml:"dir"`
	ZoneCenter ZoneCenter `yaml:"zone_center"`
}

// ZoneCenter is the plate location used when a pitch has none.
type ZoneCenter struct {
	Height float64 `yaml:"height"`
	Side   float64 `yaml:"side"`
}

// ModelsConfig holds one model per pitch category.
type ModelsConfig struct {
	Fastball ModelConfig `yaml:"fastball"`
	Breaking ModelConfig `yaml:"breaking"`
	Offspeed ModelConfig `yaml:"offspeed"`
}

// ModelConfig points at a serialized model and its league whiff rate.
type ModelConfig struct {
	Path         string  `yaml:"path"`
	AvgWhiffRate float64 `yaml:"avg_whiff_rate"`
}

// BatchConfig configures record qualification and scoring parallelism.
type BatchConfig struct {
	Level      string `yaml:"level"`
	Confidence string `yaml:"confidence"`
	Workers    int    `yaml:"workers"`
}

// ScheduleConfig configures the inbox watcher. Settle is how long a file must
// go unmodified before it is scored.
type ScheduleConfig struct {
	Inbox    string `yaml:"inbox"`
	Interval string `yaml:"interval"`
	Settle   string `yaml:"settle"`
}

// ParseInterval returns the inbox scan interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ParseSettle returns the settle window. Unset or invalid values fall back to
// the scan interval; "0s" scores files as soon as they appear.
func (s ScheduleConfig) ParseSettle() time.Duration {
	d, err := time.ParseDuration(s.Settle)
	if err != nil || d < 0 {
		return s.ParseInterval()
	}
	return d
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./stuffplus.db"},
		Reference: ReferenceConfig{
			Dir:        "./data/reference",
			ZoneCenter: ZoneCenter{Height: 2.5, Side: 0},
		},
		Models: ModelsConfig{
			Fastball: ModelConfig{Path: "./data/models/fastball.json", AvgWhiffRate: 0.2717},
			Breaking: ModelConfig{Path: "./data/models/breaking.json", AvgWhiffRate: 0.4273},
			Offspeed: ModelConfig{Path: "./data/models/offspeed.json", AvgWhiffRate: 0.4239},
		},
		Batch: BatchConfig{
			Level:      "D1",
			Confidence: "High",
			Workers:    4,
		},
		Schedule: ScheduleConfig{
			Inbox:    "./inbox",
			Interval: "5m",
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("STUFFPLUS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STUFFPLUS_REFERENCE_DIR"); v != "" {
		cfg.Reference.Dir = v
	}
	if v := os.Getenv("STUFFPLUS_FASTBALL_MODEL"); v != "" {
		cfg.Models.Fastball.Path = v
	}
	if v := os.Getenv("STUFFPLUS_BREAKING_MODEL"); v != "" {
		cfg.Models.Breaking.Path = v
	}
	if v := os.Getenv("STUFFPLUS_OFFSPEED_MODEL"); v != "" {
		cfg.Models.Offspeed.Path = v
	}
	if v := os.Getenv("STUFFPLUS_INBOX"); v != "" {
		cfg.Schedule.Inbox = v
	}
	if v := os.Getenv("STUFFPLUS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STUFFPLUS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STUFFPLUS_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("STUFFPLUS_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("STUFFPLUS_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("STUFFPLUS_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
	return nil
}
