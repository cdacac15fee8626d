package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attackacrack/campaign-engine/config"
)

// =============================================================================
// DEFAULTS AND LAYERING TESTS
// =============================================================================

func TestConfig_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "campaigns.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.TickInterval)
	assert.Equal(t, 10*time.Second, cfg.DispatchTimeout)
	assert.True(t, cfg.SchedulerEnabled)

	assert.Equal(t, "America/New_York", cfg.Campaign.Timezone)
	assert.Equal(t, 125, cfg.Campaign.DailyCap)
	assert.Equal(t, 25, cfg.Campaign.BatchSize)
	assert.Equal(t, 625, cfg.Campaign.TargetPerVariant)
	assert.Equal(t, 9, cfg.Campaign.WindowStartHour)
	assert.Equal(t, 17, cfg.Campaign.WindowEndHour)
	assert.Equal(t, 48*time.Hour, cfg.Campaign.AttributionWindow)
	assert.False(t, cfg.Campaign.RecontactReplied)
}

func TestConfig_YAMLOverlay(t *testing.T) {
	// GIVEN: A YAML file overriding a few knobs
	// WHEN: Loading
	// THEN: Overridden knobs change, everything else keeps defaults

	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
tick_interval: 5m
campaign:
  timezone: America/Chicago
  daily_cap: 125
  batch_size: 25
  target_per_variant: 200
  window_start_hour: 9
  window_end_hour: 17
  attribution_window: 24h
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.TickInterval)
	assert.Equal(t, "America/Chicago", cfg.Campaign.Timezone)
	assert.Equal(t, 200, cfg.Campaign.TargetPerVariant)
	assert.Equal(t, 24*time.Hour, cfg.Campaign.AttributionWindow)
	assert.Equal(t, "campaigns.db", cfg.DBPath, "untouched knob keeps default")
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestConfig_EnvOverridesFile(t *testing.T) {
	// Environment has the last word over the YAML file.
	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o644))

	t.Setenv("PORT", "9100")
	t.Setenv("CAMPAIGN_DAILY_CAP", "50")
	t.Setenv("CAMPAIGN_BATCH_SIZE", "10")
	t.Setenv("CAMPAIGN_ATTRIBUTION_WINDOW", "72h")
	t.Setenv("SCHEDULER_ENABLED", "false")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 50, cfg.Campaign.DailyCap)
	assert.Equal(t, 10, cfg.Campaign.BatchSize)
	assert.Equal(t, 72*time.Hour, cfg.Campaign.AttributionWindow)
	assert.False(t, cfg.SchedulerEnabled)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	mutations := map[string]func(*config.Config){
		"port zero":         func(c *config.Config) { c.Port = 0 },
		"port too large":    func(c *config.Config) { c.Port = 70000 },
		"tick not positive": func(c *config.Config) { c.TickInterval = 0 },
		"batch exceeds cap": func(c *config.Config) { c.Campaign.BatchSize = c.Campaign.DailyCap + 1 },
		"zero daily cap":    func(c *config.Config) { c.Campaign.DailyCap = 0 },
		"zero target":       func(c *config.Config) { c.Campaign.TargetPerVariant = 0 },
		"inverted window":   func(c *config.Config) { c.Campaign.WindowStartHour = 18 },
		"zero attribution":  func(c *config.Config) { c.Campaign.AttributionWindow = 0 },
		"unknown timezone":  func(c *config.Config) { c.Campaign.Timezone = "Mars/Olympus" },
	}

	for name, mutate := range mutations {
		cfg := config.Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	assert.NoError(t, config.Default().Validate())
}
