/*
Package config centralizes server and campaign-default configuration.

PURPOSE:
  One place for every knob: an optional YAML file establishes the base,
  environment variables override it, and Validate() rejects nonsense
  before the server starts. Campaign defaults seed new campaigns created
  through the API; each campaign stores its own copy and can diverge.

PRECEDENCE:
  defaults < YAML file < environment variables

ENVIRONMENT:
  PORT, DB_PATH, TICK_INTERVAL, DISPATCH_TIMEOUT, SCHEDULER_ENABLED,
  CAMPAIGN_TIMEZONE, CAMPAIGN_DAILY_CAP, CAMPAIGN_BATCH_SIZE,
  CAMPAIGN_TARGET_PER_VARIANT, CAMPAIGN_ATTRIBUTION_WINDOW,
  CAMPAIGN_RECONTACT_REPLIED
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CampaignDefaults seed new campaigns. Values mirror the documented
// product defaults: 125 sends/day in batches of 25, 9-5 Mon-Fri, 625
// per arm, 48h attribution.
type CampaignDefaults struct {
	Timezone          string        `yaml:"timezone"`
	DailyCap          int           `yaml:"daily_cap"`
	BatchSize         int           `yaml:"batch_size"`
	TargetPerVariant  int           `yaml:"target_per_variant"`
	WindowStartHour   int           `yaml:"window_start_hour"`
	WindowEndHour     int           `yaml:"window_end_hour"`
	AttributionWindow time.Duration `yaml:"attribution_window"`
	RecontactReplied  bool          `yaml:"recontact_replied"`
}

// Config holds all configuration for the campaign server.
type Config struct {
	Port             int           `yaml:"port"`
	DBPath           string        `yaml:"db_path"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	SchedulerEnabled bool          `yaml:"scheduler_enabled"`

	Campaign CampaignDefaults `yaml:"campaign"`
}

// Default returns the baseline configuration before file/env overlays.
func Default() *Config {
	return &Config{
		Port:             8080,
		DBPath:           "campaigns.db",
		TickInterval:     30 * time.Minute,
		DispatchTimeout:  10 * time.Second,
		SchedulerEnabled: true,
		Campaign: CampaignDefaults{
			Timezone:          "America/New_York",
			DailyCap:          125,
			BatchSize:         25,
			TargetPerVariant:  625,
			WindowStartHour:   9,
			WindowEndHour:     17,
			AttributionWindow: 48 * time.Hour,
			RecontactReplied:  false,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.TickInterval = getEnvDuration("TICK_INTERVAL", c.TickInterval)
	c.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", c.DispatchTimeout)
	c.SchedulerEnabled = getEnvBool("SCHEDULER_ENABLED", c.SchedulerEnabled)

	c.Campaign.Timezone = getEnv("CAMPAIGN_TIMEZONE", c.Campaign.Timezone)
	c.Campaign.DailyCap = getEnvInt("CAMPAIGN_DAILY_CAP", c.Campaign.DailyCap)
	c.Campaign.BatchSize = getEnvInt("CAMPAIGN_BATCH_SIZE", c.Campaign.BatchSize)
	c.Campaign.TargetPerVariant = getEnvInt("CAMPAIGN_TARGET_PER_VARIANT", c.Campaign.TargetPerVariant)
	c.Campaign.AttributionWindow = getEnvDuration("CAMPAIGN_ATTRIBUTION_WINDOW", c.Campaign.AttributionWindow)
	c.Campaign.RecontactReplied = getEnvBool("CAMPAIGN_RECONTACT_REPLIED", c.Campaign.RecontactReplied)
}

// Validate rejects configurations that would misbehave silently.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", c.Port)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", c.TickInterval)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("dispatch_timeout must be positive, got %v", c.DispatchTimeout)
	}
	d := c.Campaign
	if d.DailyCap <= 0 {
		return fmt.Errorf("daily_cap must be positive, got %d", d.DailyCap)
	}
	if d.BatchSize <= 0 || d.BatchSize > d.DailyCap {
		return fmt.Errorf("batch_size must be in 1-%d, got %d", d.DailyCap, d.BatchSize)
	}
	if d.TargetPerVariant <= 0 {
		return fmt.Errorf("target_per_variant must be positive, got %d", d.TargetPerVariant)
	}
	if d.WindowStartHour < 0 || d.WindowEndHour > 24 || d.WindowStartHour >= d.WindowEndHour {
		return fmt.Errorf("send window %d-%d is invalid", d.WindowStartHour, d.WindowEndHour)
	}
	if d.AttributionWindow <= 0 {
		return fmt.Errorf("attribution_window must be positive, got %v", d.AttributionWindow)
	}
	if _, err := time.LoadLocation(d.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", d.Timezone, err)
	}
	return nil
}

// Environment helpers

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
