package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teosibileau/grillgauge/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "grillgauge.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
listen = "0.0.0.0:9100"
database = "/tmp/registry.db"
health_interval = 15
connect_timeout = 20
subscribe_timeout = 8
backoff_base = 2
max_attempts = 3
discovery_timeout = 30
log_level = "debug"
`)
	t.Setenv("GRILLGAUGE_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9100", cfg.Listen, "Expected Listen 0.0.0.0:9100")
	assert.Equal(t, "/tmp/registry.db", cfg.Database, "Expected Database /tmp/registry.db")
	assert.Equal(t, 15, cfg.HealthInterval, "Expected HealthInterval 15")
	assert.Equal(t, 20, cfg.ConnectTimeout, "Expected ConnectTimeout 20")
	assert.Equal(t, 8, cfg.SubscribeTimeout, "Expected SubscribeTimeout 8")
	assert.Equal(t, 2, cfg.BackoffBase, "Expected BackoffBase 2")
	assert.Equal(t, 3, cfg.MaxAttempts, "Expected MaxAttempts 3")
	assert.Equal(t, 30, cfg.DiscoveryTimeout, "Expected DiscoveryTimeout 30")
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("GRILLGAUGE_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, "127.0.0.1:8000", cfg.Listen, "Expected default Listen 127.0.0.1:8000")
	assert.Equal(t, 30, cfg.HealthInterval, "Expected default HealthInterval 30")
	assert.Equal(t, 10, cfg.ConnectTimeout, "Expected default ConnectTimeout 10")
	assert.Equal(t, 5, cfg.SubscribeTimeout, "Expected default SubscribeTimeout 5")
	assert.Equal(t, 5, cfg.BackoffBase, "Expected default BackoffBase 5")
	assert.Equal(t, 5, cfg.MaxAttempts, "Expected default MaxAttempts 5")
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.False(t, cfg.Scan, "Expected default Scan false")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)
	t.Setenv("GRILLGAUGE_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "invalid"
`)
	t.Setenv("GRILLGAUGE_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestInvalidHealthInterval(t *testing.T) {
	configPath := writeConfigFile(t, `
health_interval = 0
`)
	t.Setenv("GRILLGAUGE_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_interval")
}

func TestLogLevelFlag(t *testing.T) {
	// Save original args and restore after test
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestEffectiveLogLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn"}
	assert.Equal(t, "warn", cfg.EffectiveLogLevel())

	cfg.Verbose = true
	assert.Equal(t, "info", cfg.EffectiveLogLevel())

	cfg.Debug = true
	assert.Equal(t, "debug", cfg.EffectiveLogLevel())
}
