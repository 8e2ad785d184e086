package config

import (
	"os"
	"strings"
)

// EnvironmentExpander expands environment variable placeholders within configuration data.
type EnvironmentExpander interface {
	// Expand replaces ${VAR} or $VAR placeholders in input.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands placeholders with os.Expand. Unset variables expand to
// the empty string, except that ${VAR:-default} falls back to default.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates and returns a new instance of OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

// Expand implements EnvironmentExpander.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	expanded := os.Expand(string(input), func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
	return []byte(expanded), nil
}
