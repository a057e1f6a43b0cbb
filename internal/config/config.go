// Package config loads the daemon configuration from a TOML file,
// environment and command-line flags, flags taking precedence.
package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/teosibileau/grillgauge/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultListen           = "127.0.0.1:8000"
	defaultDatabase         = "/var/lib/grillgauge/registry.db"
	defaultHealthInterval   = 30
	defaultConnectTimeout   = 10
	defaultSubscribeTimeout = 5
	defaultBackoffBase      = 5
	defaultMaxAttempts      = 5
	defaultDiscoveryTimeout = 10
)

type Config struct {
	Listen           string `mapstructure:"listen"`
	Database         string `mapstructure:"database"`
	HealthInterval   int    `mapstructure:"health_interval"`
	ConnectTimeout   int    `mapstructure:"connect_timeout"`
	SubscribeTimeout int    `mapstructure:"subscribe_timeout"`
	BackoffBase      int    `mapstructure:"backoff_base"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	DiscoveryTimeout int    `mapstructure:"discovery_timeout"`
	LogLevel         string `mapstructure:"log_level"`
	Debug            bool   `mapstructure:"debug"`
	Verbose          bool   `mapstructure:"verbose"`
	Scan             bool   `mapstructure:"scan"`
}

// Load reads the configuration. File lookup order: the file named by
// GRILLGAUGE_CONFIG, then grillgauge.toml in /etc and in the user's
// config dir. A missing file is fine; an unreadable one is not.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("grillgauge")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(dir + "/grillgauge")
	}

	v.SetDefault("listen", defaultListen)
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("health_interval", defaultHealthInterval)
	v.SetDefault("connect_timeout", defaultConnectTimeout)
	v.SetDefault("subscribe_timeout", defaultSubscribeTimeout)
	v.SetDefault("backoff_base", defaultBackoffBase)
	v.SetDefault("max_attempts", defaultMaxAttempts)
	v.SetDefault("discovery_timeout", defaultDiscoveryTimeout)
	v.SetDefault("log_level", DefaultLogLevel)

	fs := pflag.NewFlagSet("grillgauged", pflag.ContinueOnError)
	fs.String("listen", defaultListen, "Address for the metrics server")
	fs.String("database", defaultDatabase, "Path to the probe registry database")
	fs.Int("health-interval", defaultHealthInterval, "Seconds between connection health checks")
	fs.Int("discovery-timeout", defaultDiscoveryTimeout, "Seconds to scan for probes")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("scan", false, "Scan and classify BLE devices, then exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errors.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"listen":            "listen",
		"database":          "database",
		"health_interval":   "health-interval",
		"discovery_timeout": "discovery-timeout",
		"log_level":         "log-level",
		"debug":             "debug",
		"verbose":           "verbose",
		"scan":              "scan",
	}
	for key, flagName := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errors.Wrap(errors.ErrBindFlags, err)
		}
	}

	if path := os.Getenv("GRILLGAUGE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.ErrReadConfig, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.HealthInterval <= 0 {
		return errors.WithData(errors.ErrInvalidInterval, c.HealthInterval)
	}
	if c.MaxAttempts < 1 {
		return errors.WithData(errors.ErrInvalidArgument, c.MaxAttempts)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// EffectiveLogLevel resolves the --debug/--verbose shortcuts against
// the configured level.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	if c.Verbose && c.LogLevel != "debug" {
		return "info"
	}
	return c.LogLevel
}

func (c *Config) HealthIntervalDuration() time.Duration {
	return time.Duration(c.HealthInterval) * time.Second
}

func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

func (c *Config) SubscribeTimeoutDuration() time.Duration {
	return time.Duration(c.SubscribeTimeout) * time.Second
}

func (c *Config) BackoffBaseDuration() time.Duration {
	return time.Duration(c.BackoffBase) * time.Second
}

func (c *Config) DiscoveryTimeoutDuration() time.Duration {
	return time.Duration(c.DiscoveryTimeout) * time.Second
}
