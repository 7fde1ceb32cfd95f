package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/BurntSushi/toml"
)

//go:embed default_config.toml
var defaultConfig string

var defaultTemplate = template.Must(template.New("config").Parse(defaultConfig))

// WriteDefault writes the commented example config to path. Its data_dir
// falls back to DefaultDataDir when CINEDB_DATA_DIR is unset.
func WriteDefault(path string) error {
	var buf bytes.Buffer
	err := defaultTemplate.Execute(&buf, struct{ DataDir string }{filepath.ToSlash(DefaultDataDir())})
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// Write encodes c as TOML and replaces path with it.
func (c *Config) Write(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// writeFile writes data beside path and renames it into place, so readers
// never see a partial config.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
