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

package harness

import (
	"fmt"
	"time"

	"github.com/tombee/kernelkit/internal/lifecycle"
)

// Option configures a Harness.
type Option func(*Harness) error

// WithReplyTimeout bounds each Inspect and Execute call.
// Default is 15 seconds.
func WithReplyTimeout(d time.Duration) Option {
	return func(h *Harness) error {
		if d <= 0 {
			return fmt.Errorf("reply timeout must be positive, got %v", d)
		}
		h.replyTimeout = d
		return nil
	}
}

// WithStartupTimeout bounds the wait for each kernel's connection file.
// Default is 60 seconds.
func WithStartupTimeout(d time.Duration) Option {
	return func(h *Harness) error {
		h.launchOpts.StartupTimeout = d
		return nil
	}
}

// WithReadiness selects how the launcher detects the connection file.
//
// Example:
//
//	h := harness.New(t, harness.WithReadiness(lifecycle.ReadinessWatch))
func WithReadiness(r lifecycle.Readiness) Option {
	return func(h *Harness) error {
		h.launchOpts.Readiness = r
		return nil
	}
}

// WithTerminateTimeout sets how long kernels get to exit after SIGTERM.
func WithTerminateTimeout(d time.Duration) Option {
	return func(h *Harness) error {
		h.launchOpts.TerminateTimeout = d
		return nil
	}
}

// WithKernelCommand replaces the command LaunchStub runs. fn receives the
// name=value pairs passed to LaunchStub.
func WithKernelCommand(fn func(nsArgs ...string) lifecycle.Command) Option {
	return func(h *Harness) error {
		if fn == nil {
			return fmt.Errorf("kernel command cannot be nil")
		}
		h.command = fn
		return nil
	}
}
