// Package config loads subledger runtime configuration from a file and
// SUBLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/xraph/subledger"
)

// EnvPrefix prefixes every environment override, e.g. SUBLEDGER_STORE_DSN.
const EnvPrefix = "SUBLEDGER"

// Config holds the subledger configuration.
// Fields can be set programmatically or loaded from a YAML, TOML or JSON file.
type Config struct {
	Store   StoreConfig   `json:"store" mapstructure:"store" yaml:"store"`
	Billing BillingConfig `json:"billing" mapstructure:"billing" yaml:"billing"`
	Log     LogConfig     `json:"log" mapstructure:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`

	// Audit enables the slog-backed audit trail plugin.
	Audit bool `json:"audit" mapstructure:"audit" yaml:"audit"`
}

// StoreConfig selects and sizes the storage backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory" (default: "sqlite").
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the SQLite path or PostgreSQL connection string.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	MaxOpenConns    int           `json:"max_open_conns" mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// BillingConfig controls the background billing scheduler.
type BillingConfig struct {
	// Interval between billing cycles. Zero disables the scheduler.
	Interval time.Duration `json:"interval" mapstructure:"interval" yaml:"interval"`

	// Rate is the number of accounts charged per second. Zero means unlimited.
	Rate float64 `json:"rate" mapstructure:"rate" yaml:"rate"`

	// Burst is the rate limiter's bucket size (default: 1).
	Burst int `json:"burst" mapstructure:"burst" yaml:"burst"`

	// BatchSize is the page size used to scan accounts (default: 100).
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `json:"level" mapstructure:"level" yaml:"level"`

	// Format is "text" or "json" (default: text).
	Format string `json:"format" mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint served by `subledger serve`.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Path string `json:"path" mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "subledger.db",
		},
		Billing: BillingConfig{
			Burst:     1,
			BatchSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Load reads configuration into v. When path is empty, a file named
// subledger.{yaml,toml,json} is looked up in the working directory and
// ~/.subledger; a missing file is not an error. Environment variables
// override file values.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("subledger")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.subledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.max_open_conns", d.Store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", d.Store.MaxIdleConns)
	v.SetDefault("store.conn_max_lifetime", d.Store.ConnMaxLifetime)
	v.SetDefault("billing.interval", d.Billing.Interval)
	v.SetDefault("billing.rate", d.Billing.Rate)
	v.SetDefault("billing.burst", d.Billing.Burst)
	v.SetDefault("billing.batch_size", d.Billing.BatchSize)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("audit", d.Audit)
}

// Validate rejects configurations the ledger cannot run with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for driver %q", c.Store.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Billing.Interval < 0 {
		return errors.New("config: billing.interval must not be negative")
	}
	if c.Billing.Rate < 0 {
		return errors.New("config: billing.rate must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// LedgerOptions translates the billing settings into engine options.
func (c Config) LedgerOptions() []subledger.Option {
	limit := rate.Inf
	if c.Billing.Rate > 0 {
		limit = rate.Limit(c.Billing.Rate)
	}
	burst := c.Billing.Burst
	if burst <= 0 {
		burst = 1
	}

	return []subledger.Option{
		subledger.WithBillingInterval(c.Billing.Interval),
		subledger.WithBillingRate(limit, burst),
		subledger.WithBillingBatchSize(c.Billing.BatchSize),
	}
}
