package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.API.Port = 8080
	cfg.Storage.EventsBackend = "sqlite"
	cfg.Engine.RuleCacheTTL = 30 * time.Second
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "sqlite", cfg.Storage.EventsBackend)
	assert.Equal(t, "./data/blackwolf.db", cfg.DataPaths.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.Engine.RuleCacheTTL)
	assert.Equal(t, time.Hour, cfg.Retention.SweepInterval)
	assert.Equal(t, 30, cfg.Retention.EnrichmentDays)
	assert.Equal(t, []string{"*"}, cfg.API.AllowedOrigins)
	assert.False(t, cfg.ThreatIntel.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"clickhouse backend", func(c *Config) { c.Storage.EventsBackend = "clickhouse" }, false},
		{"port zero", func(c *Config) { c.API.Port = 0 }, true},
		{"port too high", func(c *Config) { c.API.Port = 70000 }, true},
		{"tls without certs", func(c *Config) { c.API.TLS = true }, true},
		{"tls with certs", func(c *Config) {
			c.API.TLS = true
			c.API.CertFile = "cert.pem"
			c.API.KeyFile = "key.pem"
		}, false},
		{"unknown backend", func(c *Config) { c.Storage.EventsBackend = "postgres" }, true},
		{"threat intel without key", func(c *Config) { c.ThreatIntel.Enabled = true }, true},
		{"threat intel with key", func(c *Config) {
			c.ThreatIntel.Enabled = true
			c.ThreatIntel.APIKey = "k"
		}, false},
		{"zero cache ttl", func(c *Config) { c.Engine.RuleCacheTTL = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
