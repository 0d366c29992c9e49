// Package config handles reading and writing the respec configuration file
// (~/.respec/config.toml) and resolving settings against the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/scbrown/respec/internal/failures"
)

// HistoryOff disables run history when used as the history_db value.
const HistoryOff = "off"

// Config holds respec configuration settings.
type Config struct {
	FailuresPath  string `toml:"failures_path,omitempty" json:"failures_path,omitempty"`
	DefaultDir    string `toml:"default_dir,omitempty" json:"default_dir,omitempty"`
	Engine        string `toml:"engine,omitempty" json:"engine,omitempty"`
	HistoryDB     string `toml:"history_db,omitempty" json:"history_db,omitempty"`
	DefaultFormat string `toml:"default_format,omitempty" json:"default_format,omitempty"`
}

// validKeys lists the allowed configuration keys.
var validKeys = map[string]bool{
	"default_dir":    true,
	"default_format": true,
	"engine":         true,
	"failures_path":  true,
	"history_db":     true,
}

// ValidKeys returns the sorted list of valid configuration keys.
func ValidKeys() []string {
	return []string{"default_dir", "default_format", "engine", "failures_path", "history_db"}
}

// Dir returns the respec state directory (~/.respec).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".respec")
	}
	return filepath.Join(home, ".respec")
}

// Path returns the default config file path (~/.respec/config.toml).
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// LoadFrom reads the config from a specific path. Returns an empty Config if
// the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// SaveTo writes the config to a specific path, creating parent directories as needed.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Get returns the string value of a configuration key.
func (c *Config) Get(key string) (string, error) {
	if !validKeys[key] {
		return "", unknownKey(key)
	}
	switch key {
	case "failures_path":
		return c.FailuresPath, nil
	case "default_dir":
		return c.DefaultDir, nil
	case "engine":
		return c.Engine, nil
	case "history_db":
		return c.HistoryDB, nil
	case "default_format":
		return c.DefaultFormat, nil
	default:
		return "", unknownKey(key)
	}
}

// Set assigns a value to a configuration key.
func (c *Config) Set(key, value string) error {
	if !validKeys[key] {
		return unknownKey(key)
	}
	switch key {
	case "failures_path":
		c.FailuresPath = value
	case "default_dir":
		c.DefaultDir = strings.TrimRight(value, "/")
	case "engine":
		if strings.ContainsAny(value, " \t") {
			return fmt.Errorf("engine must be a single command name, got %q", value)
		}
		c.Engine = value
	case "history_db":
		c.HistoryDB = value
	case "default_format":
		if value != "" && value != "table" && value != "json" {
			return fmt.Errorf("default_format must be \"table\" or \"json\", got %q", value)
		}
		c.DefaultFormat = value
	}
	return nil
}

// unknownKey builds the error for an unrecognized key, suggesting the
// closest valid key when it is only a typo away.
func unknownKey(key string) error {
	best, bestDist := "", 3
	for _, k := range ValidKeys() {
		if d := levenshtein.ComputeDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	if best != "" {
		return fmt.Errorf("unknown config key %q (did you mean %q?)", key, best)
	}
	return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
}

// ResolveFailuresPath returns the failure store path: the environment
// variable first, then failures_path, then the default location.
func (c *Config) ResolveFailuresPath(getenv func(string) string) string {
	if p := getenv(failures.EnvVar); p != "" {
		return p
	}
	if c.FailuresPath != "" {
		return expandHome(c.FailuresPath)
	}
	return failures.DefaultPath()
}

// ResolveHistoryPath returns the history database path, or "" when history
// is disabled.
func (c *Config) ResolveHistoryPath() string {
	switch c.HistoryDB {
	case HistoryOff:
		return ""
	case "":
		return filepath.Join(Dir(), "history.db")
	default:
		return expandHome(c.HistoryDB)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
