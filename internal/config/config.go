// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Manifest ManifestConfig `toml:"manifest"`
	Download DownloadConfig `toml:"download"`
	Storage  StorageConfig  `toml:"storage"`
	Update   UpdateConfig   `toml:"update"`
}

type ServerConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

// LogConfig enables rotated file logging in addition to stderr.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type ManifestConfig struct {
	URL            string        `toml:"url"`
	UserAgent      string        `toml:"user_agent"`
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
}

type DownloadConfig struct {
	ConnectTimeout time.Duration `toml:"connect_timeout"`
	ReadTimeout    time.Duration `toml:"read_timeout"`
}

type StorageConfig struct {
	DataDir      string `toml:"data_dir"`
	ArtifactName string `toml:"artifact_name"`
	StateDB      string `toml:"state_db"`
}

type UpdateConfig struct {
	CheckInterval      time.Duration `toml:"check_interval"`
	StrictSize         bool          `toml:"strict_size"`
	ConfirmThresholdMB int           `toml:"confirm_threshold_mb"`
	AutoInstall        bool          `toml:"auto_install"`
	TwoPhase           bool          `toml:"two_phase"`
	RetryAttempts      int           `toml:"retry_attempts"`
	RetryDelay         time.Duration `toml:"retry_delay"`
}

// ArtifactPath returns the active artifact path.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.ArtifactName)
}

// StatePath returns the update state database path.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.Storage.StateDB) {
		return c.Storage.StateDB
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.StateDB)
}

// ConfirmThresholdBytes returns the download size above which confirmation is required.
func (c *Config) ConfirmThresholdBytes() int64 {
	return int64(c.Update.ConfirmThresholdMB) << 20
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(toml.MetaData{})
	return &cfg
}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return cfg, nil
}

// LoadWithoutValidation reads and parses the configuration file, substituting
// environment variables and applying defaults. A relative storage.data_dir is
// resolved against the config file's directory.
func LoadWithoutValidation(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))
	if len(missing) > 0 {
		return nil, &ConfigError{Path: path, Missing: missing}
	}

	var cfg Config
	md, err := toml.Decode(content, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults(md)
	cfg.resolveDataDir(path)
	return &cfg, nil
}

func (c *Config) applyDefaults(md toml.MetaData) {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8686
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 28
	}

	if c.Manifest.UserAgent == "" {
		c.Manifest.UserAgent = "cinedb/1.0"
	}
	if c.Manifest.ConnectTimeout == 0 {
		c.Manifest.ConnectTimeout = 15 * time.Second
	}
	if c.Manifest.ReadTimeout == 0 {
		c.Manifest.ReadTimeout = 20 * time.Second
	}

	if c.Download.ConnectTimeout == 0 {
		c.Download.ConnectTimeout = 30 * time.Second
	}
	if c.Download.ReadTimeout == 0 {
		c.Download.ReadTimeout = 60 * time.Second
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.ArtifactName == "" {
		c.Storage.ArtifactName = "catalog.db"
	}
	if c.Storage.StateDB == "" {
		c.Storage.StateDB = "state.db"
	}

	if c.Update.CheckInterval == 0 {
		c.Update.CheckInterval = 6 * time.Hour
	}
	if !md.IsDefined("update", "confirm_threshold_mb") {
		c.Update.ConfirmThresholdMB = 50
	}
	if !md.IsDefined("update", "auto_install") {
		c.Update.AutoInstall = true
	}
	if c.Update.RetryAttempts == 0 {
		c.Update.RetryAttempts = 3
	}
	if c.Update.RetryDelay == 0 {
		c.Update.RetryDelay = 2 * time.Second
	}
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} with environment variable values.
// Unresolved variables are left in place and reported as missing; a
// ${VAR:?message} reference reports "VAR: message".
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	seen := make(map[string]bool)
	report := func(s string) {
		if !seen[s] {
			seen[s] = true
			missing = append(missing, s)
		}
	}

	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, op, arg := parts[1], parts[2], parts[3]
		value, ok := os.LookupEnv(name)

		switch op {
		case ":-":
			if value == "" {
				return arg
			}
			return value
		case ":?":
			if value == "" {
				report(name + ": " + arg)
				return match
			}
			return value
		}
		if !ok {
			report(name)
			return match
		}
		return value
	})
	return out, missing
}
