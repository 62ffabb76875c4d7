// Package config loads and validates service configuration from file and
// environment via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the BlackWolf backend.
type Config struct {
	DataPaths struct {
		// DataDir is the base data directory (BLACKWOLF_DATA_DIR).
		DataDir string `mapstructure:"data_dir"`
		// SQLitePath is the SQLite database file path; defaults under DataDir.
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"data_paths"`

	Storage struct {
		// EventsBackend selects the threat event store: "sqlite" (default)
		// or "clickhouse" for high-volume tenants.
		EventsBackend string `mapstructure:"events_backend"`
		ClickHouse    struct {
			Addr     string `mapstructure:"addr"`
			Database string `mapstructure:"database"`
			Username string `mapstructure:"username"`
			Password string `mapstructure:"password"`
		} `mapstructure:"clickhouse"`
	} `mapstructure:"storage"`

	API struct {
		Port           int      `mapstructure:"port"`
		TLS            bool     `mapstructure:"tls"`
		CertFile       string   `mapstructure:"cert_file"`
		KeyFile        string   `mapstructure:"key_file"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
		RateLimit      struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`

	Alerts struct {
		FromEmail          string `mapstructure:"from_email"`
		GlobalSlackWebhook string `mapstructure:"global_slack_webhook"`
		GlobalSlackEnabled bool   `mapstructure:"global_slack_enabled"`
	} `mapstructure:"alerts"`

	ThreatIntel struct {
		Enabled bool   `mapstructure:"enabled"`
		APIKey  string `mapstructure:"api_key"`
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"threat_intel"`

	Engine struct {
		// RuleCacheTTL bounds how stale the active correlation rule and
		// alert config snapshots may be. Short by design: rule edits must
		// take effect quickly across all tenants.
		RuleCacheTTL time.Duration `mapstructure:"rule_cache_ttl"`
	} `mapstructure:"engine"`

	Retention struct {
		// SweepInterval is how often expired blocked IPs and stale
		// enrichment rows are purged.
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
		// EnrichmentDays is how long unused enrichment rows are kept.
		EnrichmentDays int `mapstructure:"enrichment_days"`
	} `mapstructure:"retention"`

	Logging struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("data_paths.data_dir", "./data")
	viper.SetDefault("data_paths.sqlite_path", "")

	viper.SetDefault("storage.events_backend", "sqlite")
	viper.SetDefault("storage.clickhouse.addr", "localhost:9000")
	viper.SetDefault("storage.clickhouse.database", "blackwolf")
	viper.SetDefault("storage.clickhouse.username", "default")
	viper.SetDefault("storage.clickhouse.password", "")

	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.tls", false)
	viper.SetDefault("api.allowed_origins", []string{"*"})
	viper.SetDefault("api.rate_limit.requests_per_second", 50)
	viper.SetDefault("api.rate_limit.burst", 100)

	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)

	viper.SetDefault("alerts.from_email", "soc@blackwolf.io")
	viper.SetDefault("alerts.global_slack_webhook", "")
	viper.SetDefault("alerts.global_slack_enabled", false)

	viper.SetDefault("threat_intel.enabled", false)
	viper.SetDefault("threat_intel.api_key", "")
	viper.SetDefault("threat_intel.base_url", "https://api.abuseipdb.com/api/v2")

	viper.SetDefault("engine.rule_cache_ttl", 30*time.Second)

	viper.SetDefault("retention.sweep_interval", time.Hour)
	viper.SetDefault("retention.enrichment_days", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.development", false)
}

// Load reads configuration from config.yaml (working directory or /etc/blackwolf)
// plus BLACKWOLF_* environment overrides. A missing config file is fine;
// defaults cover every knob.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/blackwolf")

	viper.SetEnvPrefix("BLACKWOLF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataPaths.SQLitePath == "" {
		cfg.DataPaths.SQLitePath = cfg.DataPaths.DataDir + "/blackwolf.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port: %d", c.API.Port)
	}
	if c.API.TLS && (c.API.CertFile == "" || c.API.KeyFile == "") {
		return fmt.Errorf("api.tls requires cert_file and key_file")
	}
	switch c.Storage.EventsBackend {
	case "sqlite", "clickhouse":
	default:
		return fmt.Errorf("invalid storage.events_backend: %q", c.Storage.EventsBackend)
	}
	if c.ThreatIntel.Enabled && c.ThreatIntel.APIKey == "" {
		return fmt.Errorf("threat_intel.enabled requires api_key")
	}
	if c.Engine.RuleCacheTTL <= 0 {
		return fmt.Errorf("engine.rule_cache_ttl must be positive")
	}
	return nil
}
