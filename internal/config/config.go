// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the engine daemon's configuration from a YAML file
// and the environment. Environment variables take precedence over the file;
// a missing file means defaults plus environment only.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/pkg/errors"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config is the complete daemon configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`

	// FeatureFlags are flag defaults applied before per-flag environment
	// overrides.
	FeatureFlags map[string]bool `yaml:"feature_flags,omitempty"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	// Environment: PLAYBOOK_BACKEND
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	// Environment: PLAYBOOK_SQLITE_PATH
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	// Environment: PLAYBOOK_METRICS_ADDR
	Addr string `yaml:"addr,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:    BackendMemory,
			SQLitePath: "playbook.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(log.FormatJSON),
		},
	}
}

// Load loads configuration from an optional YAML file and the environment.
// An empty path means defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, &errors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", path),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// applyDefaults fills zero values so minimal files work without repeating
// every field.
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = defaults.Store.SQLitePath
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PLAYBOOK_BACKEND"); val != "" {
		c.Store.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("PLAYBOOK_SQLITE_PATH"); val != "" {
		c.Store.SQLitePath = val
	}
	if val := os.Getenv("PLAYBOOK_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate checks the configuration for problems that would prevent startup.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return &errors.ConfigError{
			Key:    "store.backend",
			Reason: fmt.Sprintf("unknown backend %q, expected %q or %q", c.Store.Backend, BackendMemory, BackendSQLite),
		}
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLitePath == "" {
		return &errors.ConfigError{
			Key:    "store.sqlite_path",
			Reason: "sqlite backend requires a database path",
		}
	}
	switch c.Log.Format {
	case string(log.FormatJSON), string(log.FormatText):
	default:
		return &errors.ConfigError{
			Key:    "log.format",
			Reason: fmt.Sprintf("unknown format %q, expected json or text", c.Log.Format),
		}
	}
	return nil
}

// LogConfigFor converts the file/env log settings into the logger's own
// config type.
func (c *Config) LogConfigFor() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	return cfg
}
