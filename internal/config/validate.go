package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	// Server validation
	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	// Manifest validation
	if c.Manifest.URL == "" {
		errs = append(errs, "manifest.url: required")
	} else if u, err := url.Parse(c.Manifest.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("manifest.url: must be an http(s) URL, got %q", c.Manifest.URL))
	}
	errs = append(errs, positive("manifest.connect_timeout", c.Manifest.ConnectTimeout)...)
	errs = append(errs, positive("manifest.read_timeout", c.Manifest.ReadTimeout)...)
	errs = append(errs, positive("download.connect_timeout", c.Download.ConnectTimeout)...)
	errs = append(errs, positive("download.read_timeout", c.Download.ReadTimeout)...)

	// Storage validation
	if strings.ContainsAny(c.Storage.ArtifactName, `/\`) {
		errs = append(errs, fmt.Sprintf("storage.artifact_name: must be a file name, got %q", c.Storage.ArtifactName))
	}

	// Update validation
	if c.Update.CheckInterval != 0 && c.Update.CheckInterval < time.Minute {
		errs = append(errs, fmt.Sprintf("update.check_interval: must be at least 1m, got %s", c.Update.CheckInterval))
	}
	if c.Update.ConfirmThresholdMB < 0 {
		errs = append(errs, fmt.Sprintf("update.confirm_threshold_mb: must not be negative, got %d", c.Update.ConfirmThresholdMB))
	}
	if c.Update.RetryAttempts < 0 {
		errs = append(errs, fmt.Sprintf("update.retry_attempts: must not be negative, got %d", c.Update.RetryAttempts))
	}

	// Log validation
	if c.Log.File != "" && c.Log.MaxSizeMB < 0 {
		errs = append(errs, fmt.Sprintf("log.max_size_mb: must not be negative, got %d", c.Log.MaxSizeMB))
	}

	return errs
}

func positive(field string, d time.Duration) []string {
	if d < 0 {
		return []string{fmt.Sprintf("%s: must be positive, got %s", field, d)}
	}
	return nil
}
