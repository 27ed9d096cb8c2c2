package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address         string   `yaml:"address"`
		APIKeys         []string `yaml:"api_keys"`
		RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
		RateLimitBurst  int      `yaml:"rate_limit_burst"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// CMS switches the reservation repository to a Strapi-style REST API.
	CMS struct {
		Enabled         bool   `yaml:"enabled"`
		BaseURL         string `yaml:"base_url"`
		APIToken        string `yaml:"api_token"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"cms"`

	Catalog struct {
		Path                  string `yaml:"path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"catalog"`

	Telegram struct {
		Enabled             bool    `yaml:"enabled"`
		BotToken            string  `yaml:"bot_token"`
		Managers            []int64 `yaml:"managers"`
		ReportIntervalHours int     `yaml:"report_interval_hours"`
		// MonthlyAudit sends a dump of every table on the 1st of each month (SQLite mode).
		MonthlyAudit bool `yaml:"monthly_audit"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		MinAdvanceMinutes int    `yaml:"min_advance_minutes"`
		MaxAdvanceDays    int    `yaml:"max_advance_days"`
		SlotStepMinutes   int    `yaml:"slot_step_minutes"`
		LockTTLSeconds    int    `yaml:"lock_ttl_seconds"`
		Timezone          string `yaml:"timezone"` // wall clock of the spaces, e.g. Europe/Berlin
	} `yaml:"booking"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console, json
	} `yaml:"logging"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if _, err = time.LoadLocation(cfg.Booking.Timezone); err != nil {
		return nil, fmt.Errorf("booking.timezone: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/cowork.db"
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = "configs/catalog.yaml"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) BookingMinAdvance() time.Duration {
	if c.Booking.MinAdvanceMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Booking.MinAdvanceMinutes) * time.Minute
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}

func (c *Config) SlotStep() time.Duration {
	if c.Booking.SlotStepMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Booking.SlotStepMinutes) * time.Minute
}

func (c *Config) LockTTL() time.Duration {
	if c.Booking.LockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Booking.LockTTLSeconds) * time.Second
}

// Location returns the wall-clock zone of the spaces. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) CMSCacheTTL() time.Duration {
	return time.Duration(c.CMS.CacheTTLSeconds) * time.Second
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadIntervalSeconds) * time.Second
}
