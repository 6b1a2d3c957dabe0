// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/halyardhq/halyard/services/project/journal"
	"github.com/halyardhq/halyard/services/project/lock"
)

// ConfigFileName is the per-directory configuration file. Every field is
// optional; a missing file means defaults.
const ConfigFileName = ".halyard.yaml"

// Config mirrors .halyard.yaml.
type Config struct {
	// Project is the project file commands operate on. Overridden by
	// --project; when both are empty the current directory is searched
	// for a single *.hproj file.
	Project string `yaml:"project"`

	// LogLevel filters the structured log. Commands keep their stderr
	// quiet by default; "info" or "debug" opt into component logging.
	LogLevel string `yaml:"log_level"`

	// LogDir enables an additional JSON log file when set.
	LogDir string `yaml:"log_dir"`

	// Output forces the output mode: rich, plain, or machine.
	Output string `yaml:"output"`

	Journal JournalConfig `yaml:"journal"`
	Lock    LockConfig    `yaml:"lock"`
	Watch   WatchConfig   `yaml:"watch"`

	// Metrics toggles OpenTelemetry counters in the transaction layer.
	Metrics bool `yaml:"metrics"`

	// Tracing toggles OpenTelemetry spans in the transaction layer.
	Tracing bool `yaml:"tracing"`
}

// JournalConfig controls the mutation journal.
type JournalConfig struct {
	// Disabled turns off audit recording entirely.
	Disabled bool `yaml:"disabled"`

	// Dir is the journal location, relative to the project file's
	// directory unless absolute.
	Dir string `yaml:"dir"`
}

// LockConfig controls the advisory project file lock.
type LockConfig struct {
	// Disabled turns off cross-process locking.
	Disabled bool `yaml:"disabled"`

	// Dir is the lock directory, relative to the project file's
	// directory unless absolute.
	Dir string `yaml:"dir"`

	// TTL is how long a lock stays valid, as a duration string
	// ("10m", "30s").
	TTL string `yaml:"ttl"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is the change-batching window, as a duration string
	// ("250ms").
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the settings used when .halyard.yaml is absent.
func DefaultConfig() Config {
	return Config{
		LogLevel: "warn",
		Metrics:  true,
	}
}

// LoadConfig reads a configuration file. A missing file is not an error;
// an unreadable or malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// validate rejects values that would otherwise fail deep inside a command.
func (c Config) validate() error {
	if c.Lock.TTL != "" {
		if _, err := time.ParseDuration(c.Lock.TTL); err != nil {
			return fmt.Errorf("invalid lock.ttl %q: %w", c.Lock.TTL, err)
		}
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
		}
	}
	return nil
}

// JournalDir returns the journal directory for the given project file.
func (c Config) JournalDir(projectPath string) string {
	dir := c.Journal.Dir
	if dir == "" {
		dir = journal.DefaultDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(projectPath), dir)
}

// LockDir returns the lock directory for the given project file.
func (c Config) LockDir(projectPath string) string {
	dir := c.Lock.Dir
	if dir == "" {
		dir = lock.DefaultLockDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(filepath.Dir(projectPath), dir)
}

// LockTTL returns the configured lock lifetime. Values are validated at
// load time, so a parse failure here only happens for the empty default.
func (c Config) LockTTL() time.Duration {
	d, err := time.ParseDuration(c.Lock.TTL)
	if err != nil || d <= 0 {
		return lock.DefaultTTL
	}
	return d
}

// WatchDebounce returns the configured debounce window, or zero when the
// watcher's own default should apply.
func (c Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
