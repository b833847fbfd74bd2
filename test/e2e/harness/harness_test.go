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
	"os"
	"testing"
	"time"

	"github.com/tombee/kernelkit/internal/lifecycle"
)

func TestMain(m *testing.M) {
	RunIfKernel()
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "default options"},
		{
			name: "with timeouts",
			opts: []Option{
				WithReplyTimeout(5 * time.Second),
				WithStartupTimeout(10 * time.Second),
			},
		},
		{
			name: "with watch readiness",
			opts: []Option{WithReadiness(lifecycle.ReadinessWatch)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(t, tt.opts...)

			if h.launcher == nil {
				t.Fatal("launcher is nil")
			}
			if h.replyTimeout == 0 {
				t.Error("reply timeout not set")
			}
			if got := h.Launcher().Options().ConfigDir; got != h.ConfigDir() {
				t.Errorf("launcher config dir %q, want %q", got, h.ConfigDir())
			}
		})
	}
}

func TestOptions_Validation(t *testing.T) {
	h := &Harness{}
	if err := WithReplyTimeout(0)(h); err == nil {
		t.Error("expected error for zero reply timeout")
	}
	if err := WithKernelCommand(nil)(h); err == nil {
		t.Error("expected error for nil kernel command")
	}
}

func TestKernelCommand(t *testing.T) {
	cmd := KernelCommand(ModeCrash, "a=5")

	if cmd.Path != os.Args[0] {
		t.Errorf("expected test binary path, got %q", cmd.Path)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "--" || cmd.Args[1] != "a=5" {
		t.Errorf("unexpected args %v", cmd.Args)
	}
	if cmd.Env[len(cmd.Env)-1] != stubEnv+"="+ModeCrash {
		t.Errorf("expected mode in environment, got %q", cmd.Env[len(cmd.Env)-1])
	}
}

func TestLaunchStub(t *testing.T) {
	h := New(t)
	k := h.LaunchStub("a=5")

	AssertFound(t, h.Inspect(k, "a"), "5")
	AssertNotFound(t, h.Inspect(k, "zz"))
	h.AssertEvents(t, lifecycle.EventLaunch, lifecycle.EventReady)
}
