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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/config"
	"github.com/tombee/kernelkit/internal/lifecycle"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/minilog"
	"github.com/tombee/kernelkit/internal/tracing"
)

// Runtime bundles what every command needs after flag parsing.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Minilog *minilog.Logger
	Tracing *tracing.Provider
}

// LoadRuntime loads configuration from --config (or the XDG default),
// then builds the logger and trace exporter. Logs and console spans go
// to logOut. The caller must Close the
// returned Runtime.
func LoadRuntime(logOut io.Writer) (*Runtime, error) {
	path := GetConfigPath()
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, NewConfigError("failed to locate config file", err)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}

	rt := &Runtime{Config: cfg}
	if GetMinilog() || cfg.Log.Minilog {
		ml, err := minilog.OpenDefault()
		if err != nil {
			return nil, err
		}
		rt.Minilog = ml
	}

	rt.Logger = internallog.New(logConfig(cfg.Log, logOut, rt.Minilog))

	tc := cfg.Tracing
	tc.ServiceVersion, _, _ = GetVersion()
	provider, err := tracing.NewProvider(context.Background(), tc, logOut)
	if err != nil {
		rt.Close()
		return nil, NewConfigError("failed to set up tracing", err)
	}
	rt.Tracing = provider
	return rt, nil
}

// logConfig maps the log section onto the logger. Without an explicit
// format, text is used on a terminal and JSON everywhere else.
func logConfig(c config.LogConfig, out io.Writer, mirror *minilog.Logger) *internallog.Config {
	level := c.Level
	if GetVerbose() {
		level = "debug"
	}

	format := internallog.Format(c.Format)
	if format == "" {
		format = internallog.FormatJSON
		if f, ok := out.(*os.File); ok && !IsNonInteractive() && isTerminal(f) {
			format = internallog.FormatText
		}
	}

	return &internallog.Config{
		Level:     level,
		Format:    format,
		Output:    out,
		AddSource: c.AddSource,
		Mirror:    mirror,
	}
}

// NewLauncher builds a launcher from the loaded configuration, with the
// launch journal and minilog mirror attached when enabled.
func (r *Runtime) NewLauncher() (*lifecycle.Launcher, error) {
	opts := r.Config.LaunchOptions()
	opts.ClientOptions = []client.Option{client.WithDialTimeout(r.Config.Client.DialTimeout)}

	extra := []lifecycle.LauncherOption{lifecycle.WithMinilog(r.Minilog)}
	journal, err := r.Config.JournalPath()
	if err != nil {
		return nil, NewConfigError("failed to resolve launch journal", err)
	}
	if journal != "" {
		extra = append(extra, lifecycle.WithEventLog(lifecycle.NewEventLog(journal)))
	}

	launcher, err := lifecycle.NewLauncher(opts, r.Logger, extra...)
	if err != nil {
		return nil, NewConfigError("invalid launch options", err)
	}
	return launcher, nil
}

// Close flushes pending spans and releases the minilog file.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}

	var errs []error
	if err := r.Tracing.Shutdown(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}
	if r.Minilog != nil {
		if err := r.Minilog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close minilog: %w", err))
		}
	}
	return errors.Join(errs...)
}
