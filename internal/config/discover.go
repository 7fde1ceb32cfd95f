package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvConfig names the environment variable that overrides config discovery.
const EnvConfig = "CINEDB_CONFIG"

// ErrNotFound is returned by Discover when no config file exists.
var ErrNotFound = errors.New("config not found")

// DefaultPath returns $XDG_CONFIG_HOME/cinedb/config.toml, falling back to
// ~/.config and finally ./config.toml.
func DefaultPath() string {
	dir, ok := xdgDir("XDG_CONFIG_HOME", ".config")
	if !ok {
		return "./config.toml"
	}
	return filepath.Join(dir, "cinedb", "config.toml")
}

// DefaultDataDir returns where catalogs live when the config does not say:
// $XDG_DATA_HOME/cinedb, falling back to ~/.local/share/cinedb and ./data.
func DefaultDataDir() string {
	dir, ok := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if !ok {
		return "./data"
	}
	return filepath.Join(dir, "cinedb")
}

func xdgDir(env, fallback string) (string, bool) {
	if dir := os.Getenv(env); dir != "" {
		return dir, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, fallback), true
}

// Discover returns the config file to load. CINEDB_CONFIG wins and must
// exist; otherwise the first existing file among ./config.toml, DefaultPath
// and /etc/cinedb/config.toml is used.
func Discover() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvConfig, p, err)
		}
		return p, nil
	}

	paths := searchPaths()
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w, checked: %s", ErrNotFound, strings.Join(paths, ", "))
}

func searchPaths() []string {
	return []string{"./config.toml", DefaultPath(), "/etc/cinedb/config.toml"}
}

// resolveDataDir anchors a relative storage.data_dir at the directory holding
// the config file, so the catalog location does not depend on the working
// directory of whoever loads it.
func (c *Config) resolveDataDir(configPath string) {
	if c.Storage.DataDir == "" || filepath.IsAbs(c.Storage.DataDir) {
		return
	}
	c.Storage.DataDir = filepath.Join(filepath.Dir(configPath), c.Storage.DataDir)
}
