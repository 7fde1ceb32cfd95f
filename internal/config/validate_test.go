// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Manifest.URL = "https://catalog.example.com/manifest.json"
	return cfg
}

func containsError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidate_MinimalValid(t *testing.T) {
	errs := validConfig().Validate()
	assert.Empty(t, errs, "expected no errors for minimal valid config")
}

func TestValidate_MissingManifestURL(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	assert.True(t, containsError(errs, "manifest.url: required"), "expected manifest error, got %v", errs)
}

func TestValidate_Table(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 99999 }, "server.port"},
		{"invalid log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "server.log_level"},
		{"non-http manifest", func(c *Config) { c.Manifest.URL = "ftp://origin/manifest.json" }, "manifest.url"},
		{"relative manifest", func(c *Config) { c.Manifest.URL = "manifest.json" }, "manifest.url"},
		{"negative timeout", func(c *Config) { c.Download.ReadTimeout = -time.Second }, "download.read_timeout"},
		{"artifact name with dir", func(c *Config) { c.Storage.ArtifactName = "sub/catalog.db" }, "storage.artifact_name"},
		{"check interval too short", func(c *Config) { c.Update.CheckInterval = 10 * time.Second }, "update.check_interval"},
		{"negative threshold", func(c *Config) { c.Update.ConfirmThresholdMB = -1 }, "update.confirm_threshold_mb"},
		{"negative retries", func(c *Config) { c.Update.RetryAttempts = -2 }, "update.retry_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			assert.True(t, containsError(errs, tt.field), "expected %s error, got %v", tt.field, errs)
		})
	}
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "DEBUG"
	assert.Empty(t, cfg.Validate())
}
