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

package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/connection"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Readiness selects how the launcher notices the connection descriptor.
type Readiness string

const (
	// ReadinessPoll stats the descriptor path on a fixed interval.
	ReadinessPoll Readiness = "poll"

	// ReadinessWatch waits for filesystem events on the security directory.
	ReadinessWatch Readiness = "watch"
)

// Default launch settings.
const (
	DefaultStartupTimeout   = 60 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultTerminateTimeout = 5 * time.Second
)

// Command is the kernel process to start.
type Command struct {
	// Path is the executable to run
	Path string

	// Args are passed after Path
	Args []string

	// Env replaces the inherited environment when non-nil
	Env []string

	// Dir is the working directory; empty means the current one
	Dir string
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Options configures a Launcher.
type Options struct {
	// StartupTimeout bounds the wait for the connection descriptor
	StartupTimeout time.Duration

	// PollInterval is the stat interval for ReadinessPoll
	PollInterval time.Duration

	// Readiness selects the descriptor wait strategy
	Readiness Readiness

	// TerminateTimeout is how long a kernel gets to exit after SIGTERM
	// before it is killed
	TerminateTimeout time.Duration

	// ConfigDir is exported to the child. A fresh temporary directory is
	// created per launch when empty and removed when the kernel closes.
	ConfigDir string

	// ConfigDirEnv names the variable ConfigDir is exported as
	ConfigDirEnv string

	// Profile selects the descriptor subdirectory
	Profile string

	// ClientOptions are applied to the client bound to each kernel
	ClientOptions []client.Option
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	return Options{
		StartupTimeout:   DefaultStartupTimeout,
		PollInterval:     DefaultPollInterval,
		Readiness:        ReadinessPoll,
		TerminateTimeout: DefaultTerminateTimeout,
		ConfigDirEnv:     connection.ConfigDirEnv,
		Profile:          connection.DefaultProfile,
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.StartupTimeout == 0 {
		o.StartupTimeout = d.StartupTimeout
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Readiness == "" {
		o.Readiness = d.Readiness
	}
	if o.TerminateTimeout == 0 {
		o.TerminateTimeout = d.TerminateTimeout
	}
	if o.ConfigDirEnv == "" {
		o.ConfigDirEnv = d.ConfigDirEnv
	}
	if o.Profile == "" {
		o.Profile = d.Profile
	}
	return o
}

// Validate checks that the options are usable.
func (o Options) Validate() error {
	if o.StartupTimeout < 0 {
		return &kkerrors.ValidationError{
			Field:   "startup_timeout",
			Message: fmt.Sprintf("must not be negative, got %v", o.StartupTimeout),
		}
	}
	if o.PollInterval < 0 {
		return &kkerrors.ValidationError{
			Field:   "poll_interval",
			Message: fmt.Sprintf("must not be negative, got %v", o.PollInterval),
		}
	}
	if o.TerminateTimeout < 0 {
		return &kkerrors.ValidationError{
			Field:   "terminate_timeout",
			Message: fmt.Sprintf("must not be negative, got %v", o.TerminateTimeout),
		}
	}
	switch o.Readiness {
	case "", ReadinessPoll, ReadinessWatch:
	default:
		return &kkerrors.ValidationError{
			Field:      "readiness",
			Message:    fmt.Sprintf("unknown readiness strategy %q", o.Readiness),
			Suggestion: "use poll or watch",
		}
	}
	if strings.ContainsAny(o.ConfigDirEnv, "= ") {
		return &kkerrors.ValidationError{
			Field:   "config_dir_env",
			Message: fmt.Sprintf("invalid environment variable name %q", o.ConfigDirEnv),
		}
	}
	return nil
}
