package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid matches every *ConfigError via errors.Is.
var ErrInvalid = errors.New("invalid config")

// ConfigError reports every problem found in one config file.
type ConfigError struct {
	Path    string
	Missing []string // unresolved ${VAR} references
	Errors  []string // failed validation rules, "field: problem"
}

func (e *ConfigError) Error() string {
	if !e.HasErrors() {
		return ""
	}

	var b strings.Builder
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "missing environment variables: %s (set them or add them to .env)",
			strings.Join(e.Missing, ", "))
	}
	if len(e.Errors) > 0 {
		if len(e.Missing) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("validation failed:")
		for _, msg := range e.Errors {
			b.WriteString("\n  - ")
			b.WriteString(msg)
		}
	}
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalid }

// HasErrors reports whether any problem was recorded.
func (e *ConfigError) HasErrors() bool {
	return len(e.Missing) > 0 || len(e.Errors) > 0
}
