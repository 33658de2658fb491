// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int   `mapstructure:"port"`
	MaxUploadBytes    int64 `mapstructure:"max_upload_bytes"`
	ShutdownTimeoutMs int   `mapstructure:"shutdown_timeout_ms"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the throttled, retrying source fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	Accept         string `mapstructure:"accept"`
	HostGapMs      int    `mapstructure:"host_gap_ms"`
	Attempts       int    `mapstructure:"attempts"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int    `mapstructure:"backoff_max_ms"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// DiscoveryConfig tunes source discovery.
type DiscoveryConfig struct {
	DefaultLimit      int      `mapstructure:"default_limit"`
	MaxLimit          int      `mapstructure:"max_limit"`
	TrustedDomains    []string `mapstructure:"trusted_domains"`
	BlockedDomains    []string `mapstructure:"blocked_domains"`
	Providers         []string `mapstructure:"providers"`
	SyntheticFallback bool     `mapstructure:"synthetic_fallback"`
}

// QualityConfig holds the table scoring and acceptance thresholds.
type QualityConfig struct {
	MinTableScore  float64 `mapstructure:"min_table_score"`
	MinAcceptRatio float64 `mapstructure:"min_accept_ratio"`
	MinAcceptRows  int     `mapstructure:"min_accept_rows"`
	RatioFloorRows int     `mapstructure:"ratio_floor_rows"`
}

// StorageConfig selects the job store and the raw payload archive.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	ArchiveBucket string `mapstructure:"archive_bucket"`
	ArchiveDir    string `mapstructure:"archive_dir"`
	ArchivePrefix string `mapstructure:"archive_prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Storage drivers understood by the application wiring.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_bytes", 25<<20)
	v.SetDefault("server.shutdown_timeout_ms", 10000)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; TenKingsSetOps/1.0; +https://collect.tenkings.co)")
	v.SetDefault("fetch.accept", "application/pdf,text/markdown,application/json,text/csv,text/html;q=0.9,*/*;q=0.8")
	v.SetDefault("fetch.host_gap_ms", 1200)
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.backoff_base_ms", 300)
	v.SetDefault("fetch.backoff_max_ms", 3000)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.max_body_bytes", 20<<20)
	v.SetDefault("discovery.default_limit", 12)
	v.SetDefault("discovery.max_limit", 30)
	v.SetDefault("discovery.trusted_domains", []string{
		"tcdb.com", "cardboardconnection.com", "beckett.com", "checklistinsider.com",
		"sportscardspro.com", "topps.com", "paniniamerica.net", "upperdeck.com",
	})
	v.SetDefault("discovery.blocked_domains", []string{
		"ebay.com", "amazon.com", "walmart.com", "facebook.com", "instagram.com",
		"pinterest.com", "reddit.com", "youtube.com", "tiktok.com", "twitter.com", "x.com",
	})
	v.SetDefault("discovery.providers", []string{"duckduckgo", "bing"})
	v.SetDefault("discovery.synthetic_fallback", true)
	v.SetDefault("quality.min_table_score", 20)
	v.SetDefault("quality.min_accept_ratio", 0.1)
	v.SetDefault("quality.min_accept_rows", 3)
	v.SetDefault("quality.ratio_floor_rows", 20)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.archive_prefix", "sources")
	v.SetDefault("pubsub.topic_name", "setops-ingestion-jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.Attempts <= 0 {
		return fmt.Errorf("fetch.attempts must be > 0")
	}
	if c.Fetch.HostGapMs < 0 {
		return fmt.Errorf("fetch.host_gap_ms must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Discovery.DefaultLimit <= 0 || c.Discovery.MaxLimit < c.Discovery.DefaultLimit {
		return fmt.Errorf("discovery limits must satisfy 0 < default_limit <= max_limit")
	}
	if c.Quality.MinAcceptRatio < 0 || c.Quality.MinAcceptRatio > 1 {
		return fmt.Errorf("quality.min_accept_ratio must be within [0,1]")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// HostGap returns the minimum delay between requests to one host.
func (c Config) HostGap() time.Duration {
	return time.Duration(c.Fetch.HostGapMs) * time.Millisecond
}

// RequestBudget converts the fetch timeout into the per-request deadline.
func (c Config) RequestBudget() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown window for the HTTP server.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMs) * time.Millisecond
}
