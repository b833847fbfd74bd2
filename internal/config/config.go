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

// Package config loads kernelkit settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/kernelkit/internal/connection"
	"github.com/tombee/kernelkit/internal/lifecycle"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/tracing"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Config represents the complete kernelkit configuration.
type Config struct {
	Launch LaunchConfig `yaml:"launch"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`

	// Tracing configures span export. Environment: KERNELKIT_TRACE_EXPORTER,
	// KERNELKIT_TRACE_ENDPOINT.
	Tracing tracing.Config `yaml:"tracing"`
}

// LaunchConfig controls how kernels are started.
type LaunchConfig struct {
	// StartupTimeout bounds the wait for the connection file.
	// Environment: KERNELKIT_STARTUP_TIMEOUT
	// Default: 60s
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// PollInterval is the stat interval for poll readiness.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// Readiness is "poll" or "watch".
	// Environment: KERNELKIT_READINESS
	// Default: poll
	Readiness string `yaml:"readiness"`

	// TerminateTimeout is how long a kernel gets after SIGTERM.
	// Default: 5s
	TerminateTimeout time.Duration `yaml:"terminate_timeout"`

	// ConfigDir is exported to kernels. Empty means a temporary directory
	// per launch.
	ConfigDir string `yaml:"config_dir,omitempty"`

	// ConfigDirEnv names the variable ConfigDir is exported as.
	// Default: KERNELKIT_DIR
	ConfigDirEnv string `yaml:"config_dir_env"`

	// Profile selects the descriptor subdirectory.
	// Default: profile_default
	Profile string `yaml:"profile"`

	// Journal is the launch event journal path. "-" disables it.
	// Default: $XDG_STATE_HOME/kernelkit/launch.jsonl
	Journal string `yaml:"journal,omitempty"`
}

// ClientConfig controls the kernel client.
type ClientConfig struct {
	// ReplyTimeout bounds each wait for a reply.
	// Default: 15s
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// DialTimeout bounds each channel dial.
	// Default: 10s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text on a terminal, json otherwise
	Format string `yaml:"format,omitempty"`

	// AddSource adds source file and line to log entries.
	// Environment: LOG_SOURCE
	AddSource bool `yaml:"add_source"`

	// Minilog mirrors log records into the per-process minilog file.
	// Environment: KERNELKIT_MINILOG
	Minilog bool `yaml:"minilog"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	opts := lifecycle.DefaultOptions()
	return &Config{
		Launch: LaunchConfig{
			StartupTimeout:   opts.StartupTimeout,
			PollInterval:     opts.PollInterval,
			Readiness:        string(opts.Readiness),
			TerminateTimeout: opts.TerminateTimeout,
			ConfigDirEnv:     connection.ConfigDirEnv,
			Profile:          connection.DefaultProfile,
		},
		Client: ClientConfig{
			ReplyTimeout: 15 * time.Second,
			DialTimeout:  10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads configuration from configPath, applies defaults and
// environment overrides, and validates the result. A missing file is not
// an error. If configPath is empty, only defaults and the environment
// are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &kkerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &kkerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values so partial files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Launch.StartupTimeout == 0 {
		c.Launch.StartupTimeout = defaults.Launch.StartupTimeout
	}
	if c.Launch.PollInterval == 0 {
		c.Launch.PollInterval = defaults.Launch.PollInterval
	}
	if c.Launch.Readiness == "" {
		c.Launch.Readiness = defaults.Launch.Readiness
	}
	if c.Launch.TerminateTimeout == 0 {
		c.Launch.TerminateTimeout = defaults.Launch.TerminateTimeout
	}
	if c.Launch.ConfigDirEnv == "" {
		c.Launch.ConfigDirEnv = defaults.Launch.ConfigDirEnv
	}
	if c.Launch.Profile == "" {
		c.Launch.Profile = defaults.Launch.Profile
	}

	if c.Client.ReplyTimeout == 0 {
		c.Client.ReplyTimeout = defaults.Client.ReplyTimeout
	}
	if c.Client.DialTimeout == 0 {
		c.Client.DialTimeout = defaults.Client.DialTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = defaults.Tracing.Exporter
	}
	c.Tracing.ServiceName = defaults.Tracing.ServiceName
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = defaults.Tracing.ServiceVersion
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return kkerrors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return kkerrors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// loadFromEnv applies environment overrides. Unlike the file, a malformed
// duration in the environment is reported rather than ignored.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("KERNELKIT_STARTUP_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return &kkerrors.ConfigError{Key: "KERNELKIT_STARTUP_TIMEOUT", Reason: "invalid duration", Cause: err}
		}
		c.Launch.StartupTimeout = d
	}
	if val := os.Getenv("KERNELKIT_READINESS"); val != "" {
		c.Launch.Readiness = strings.ToLower(val)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("KERNELKIT_MINILOG"); val != "" {
		c.Log.Minilog = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("KERNELKIT_TRACE_EXPORTER"); val != "" {
		c.Tracing.Exporter = strings.ToLower(val)
	}
	if val := os.Getenv("KERNELKIT_TRACE_ENDPOINT"); val != "" {
		c.Tracing.Endpoint = val
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Launch.StartupTimeout <= 0 {
		return &kkerrors.ValidationError{
			Field:   "launch.startup_timeout",
			Message: fmt.Sprintf("must be positive, got %v", c.Launch.StartupTimeout),
		}
	}
	if c.Launch.PollInterval <= 0 {
		return &kkerrors.ValidationError{
			Field:   "launch.poll_interval",
			Message: fmt.Sprintf("must be positive, got %v", c.Launch.PollInterval),
		}
	}
	if c.Launch.PollInterval > c.Launch.StartupTimeout {
		return &kkerrors.ValidationError{
			Field:      "launch.poll_interval",
			Message:    fmt.Sprintf("%v exceeds startup_timeout %v", c.Launch.PollInterval, c.Launch.StartupTimeout),
			Suggestion: "use a poll interval well below the startup timeout",
		}
	}
	if c.Client.ReplyTimeout <= 0 {
		return &kkerrors.ValidationError{
			Field:   "client.reply_timeout",
			Message: fmt.Sprintf("must be positive, got %v", c.Client.ReplyTimeout),
		}
	}
	if c.Client.DialTimeout <= 0 {
		return &kkerrors.ValidationError{
			Field:   "client.dial_timeout",
			Message: fmt.Sprintf("must be positive, got %v", c.Client.DialTimeout),
		}
	}

	if _, ok := internallog.ParseLevel(c.Log.Level); !ok {
		return &kkerrors.ValidationError{
			Field:      "log.level",
			Message:    fmt.Sprintf("unknown level %q", c.Log.Level),
			Suggestion: "use debug, info, warn or error",
		}
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return &kkerrors.ValidationError{
			Field:      "log.format",
			Message:    fmt.Sprintf("unknown format %q", c.Log.Format),
			Suggestion: "use json or text",
		}
	}

	if err := c.Tracing.Validate(); err != nil {
		return err
	}

	// Remaining launch fields share the launcher's own checks.
	return c.LaunchOptions().Validate()
}

// LaunchOptions converts the launch section into launcher options.
func (c *Config) LaunchOptions() lifecycle.Options {
	return lifecycle.Options{
		StartupTimeout:   c.Launch.StartupTimeout,
		PollInterval:     c.Launch.PollInterval,
		Readiness:        lifecycle.Readiness(c.Launch.Readiness),
		TerminateTimeout: c.Launch.TerminateTimeout,
		ConfigDir:        c.Launch.ConfigDir,
		ConfigDirEnv:     c.Launch.ConfigDirEnv,
		Profile:          c.Launch.Profile,
	}
}

// JournalPath resolves the launch journal location. It returns "" when
// the journal is disabled.
func (c *Config) JournalPath() (string, error) {
	switch c.Launch.Journal {
	case "-":
		return "", nil
	case "":
		dir, err := StateDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve state directory: %w", err)
		}
		return filepath.Join(dir, "launch.jsonl"), nil
	default:
		return c.Launch.Journal, nil
	}
}

// Write stores cfg at path as YAML with 0600 permissions.
func Write(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := append([]byte("# kernelkit configuration\n"), data...)
	if err := os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
