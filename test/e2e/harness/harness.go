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

// Package harness provides testing utilities for end-to-end kernel tests.
//
// Each Harness owns a temporary config directory that is exported to the
// kernels it launches, and tears every kernel down through t.Cleanup.
package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/lifecycle"
	"github.com/tombee/kernelkit/internal/protocol"
)

// Default timeouts for end-to-end tests.
const (
	DefaultReplyTimeout   = 15 * time.Second
	DefaultStartupTimeout = 60 * time.Second
)

// Harness launches kernels into a per-test config directory.
type Harness struct {
	t            *testing.T
	configDir    string
	replyTimeout time.Duration
	launchOpts   lifecycle.Options
	command      func(nsArgs ...string) lifecycle.Command
	launcher     *lifecycle.Launcher
	journal      *lifecycle.EventLog
}

// New creates a harness. The config directory is removed when the test
// ends, after every kernel has been torn down.
//
// Example:
//
//	h := harness.New(t, harness.WithReadiness(lifecycle.ReadinessWatch))
//	k := h.LaunchStub("a=5")
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	dir := t.TempDir()
	h := &Harness{
		t:            t,
		configDir:    dir,
		replyTimeout: DefaultReplyTimeout,
		launchOpts: lifecycle.Options{
			StartupTimeout: DefaultStartupTimeout,
			ConfigDir:      dir,
		},
		command: StubCommand,
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			t.Fatalf("apply harness option: %v", err)
		}
	}

	h.journal = lifecycle.NewEventLog(filepath.Join(dir, "launch.jsonl"))
	launcher, err := lifecycle.NewLauncher(h.launchOpts, nil, lifecycle.WithEventLog(h.journal))
	if err != nil {
		t.Fatalf("create launcher: %v", err)
	}
	h.launcher = launcher

	return h
}

// ConfigDir returns the directory exported to launched kernels.
func (h *Harness) ConfigDir() string {
	return h.configDir
}

// Launcher returns the underlying launcher.
func (h *Harness) Launcher() *lifecycle.Launcher {
	return h.launcher
}

// Launch starts cmd and fails the test if the kernel does not become
// ready. The kernel is closed when the test ends.
func (h *Harness) Launch(cmd lifecycle.Command) *lifecycle.Kernel {
	h.t.Helper()

	k, err := h.LaunchExpectError(cmd)
	if err != nil {
		h.t.Fatalf("launch kernel: %v", err)
	}
	return k
}

// LaunchExpectError starts cmd and returns the launch error instead of
// failing the test. A kernel that does start is still cleaned up.
func (h *Harness) LaunchExpectError(cmd lifecycle.Command) (*lifecycle.Kernel, error) {
	h.t.Helper()

	k, err := h.launcher.Launch(context.Background(), cmd)
	if err != nil {
		return nil, err
	}
	h.t.Cleanup(func() {
		if err := k.Close(); err != nil {
			h.t.Logf("close kernel %d: %v", k.PID(), err)
		}
	})
	return k, nil
}

// LaunchStub launches the stub kernel seeded with name=value pairs.
func (h *Harness) LaunchStub(nsArgs ...string) *lifecycle.Kernel {
	h.t.Helper()
	return h.Launch(h.command(nsArgs...))
}

// Inspect asks k for object info on name.
func (h *Harness) Inspect(k *lifecycle.Kernel, name string) *protocol.ObjectInfoReply {
	h.t.Helper()

	reply, err := k.Client().Inspect(context.Background(), name, h.replyTimeout)
	if err != nil {
		h.t.Fatalf("inspect %s: %v", name, err)
	}
	return reply
}

// Execute runs code in k and returns the reply.
func (h *Harness) Execute(k *lifecycle.Kernel, code string) *protocol.ExecuteReply {
	h.t.Helper()

	reply, err := k.Client().Run(context.Background(), code, h.replyTimeout)
	if err != nil {
		h.t.Fatalf("execute %q: %v", code, err)
	}
	return reply
}

// Client returns the client bound to k.
func (h *Harness) Client(k *lifecycle.Kernel) *client.Client {
	return k.Client()
}

// Events returns the launch journal entries recorded so far.
func (h *Harness) Events() []lifecycle.LaunchEvent {
	h.t.Helper()

	data, err := os.ReadFile(h.journal.Path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		h.t.Fatalf("read launch journal: %v", err)
	}
	events, err := lifecycle.ParseEvents(data)
	if err != nil {
		h.t.Fatalf("parse launch journal: %v", err)
	}
	return events
}
