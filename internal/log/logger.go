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

// Package log configures the structured slog loggers used across kernelkit.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tombee/kernelkit/internal/minilog"
)

// Format is a log output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// LevelTrace sits below Debug and is used for individual protocol frames.
const LevelTrace = slog.Level(-8)

// Field keys shared by kernel-related log records.
const (
	PIDKey     = "pid"
	PathKey    = "connection_file"
	MsgIDKey   = "msg_id"
	MsgTypeKey = "msg_type"
)

var levels = map[string]slog.Level{
	"trace":   LevelTrace,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Config holds the logging configuration.
type Config struct {
	// Level is one of trace, debug, info, warn or error. Unknown values
	// fall back to info.
	Level string

	// Format defaults to JSON.
	Format Format

	// Output defaults to os.Stderr.
	Output io.Writer

	// AddSource adds source file and line to each record.
	AddSource bool

	// Mirror, when set, receives a copy of every record that passes
	// Level as a minilog entry.
	Mirror *minilog.Logger
}

// DefaultConfig returns info-level JSON logging to stderr.
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: FormatJSON, Output: os.Stderr}
}

// FromEnv builds a Config from the environment:
//   - KERNELKIT_DEBUG=true|1 forces debug level with source locations
//   - KERNELKIT_LOG_LEVEL, then LOG_LEVEL, set the level otherwise
//   - LOG_FORMAT selects json or text
//   - LOG_SOURCE=1 adds source locations
func FromEnv() *Config {
	cfg := DefaultConfig()

	switch os.Getenv("KERNELKIT_DEBUG") {
	case "true", "1":
		cfg.Level = "debug"
		cfg.AddSource = true
	case "":
		for _, key := range []string{"KERNELKIT_LOG_LEVEL", "LOG_LEVEL"} {
			if v := os.Getenv(key); v != "" {
				cfg.Level = strings.ToLower(v)
				break
			}
		}
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = Format(strings.ToLower(v))
	}
	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}
	return cfg
}

// ParseLevel maps a level name, case-insensitively, to its slog level.
func ParseLevel(name string) (slog.Level, bool) {
	level, ok := levels[strings.ToLower(name)]
	return level, ok
}

// New creates a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if cfg.Format == FormatText {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	if cfg.Mirror != nil {
		handler = newFanout(handler, minilog.NewHandler(cfg.Mirror, opts))
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(name string) slog.Level {
	if level, ok := ParseLevel(name); ok {
		return level
	}
	return slog.LevelInfo
}

// WithComponent tags records with the subsystem that produced them.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithKernel tags records with a kernel's pid and descriptor path.
func WithKernel(logger *slog.Logger, pid int, connectionFile string) *slog.Logger {
	return logger.With(slog.Int(PIDKey, pid), slog.String(PathKey, connectionFile))
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a "<key>_ms" attribute.
func Duration(key string, ms int64) slog.Attr {
	return slog.Int64(key+"_ms", ms)
}

// Trace logs at LevelTrace, skipping attribute work when disabled.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	ctx := context.Background()
	if logger.Enabled(ctx, LevelTrace) {
		logger.LogAttrs(ctx, LevelTrace, msg, attrs...)
	}
}
