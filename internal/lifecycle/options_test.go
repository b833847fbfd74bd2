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
	"errors"
	"testing"
	"time"

	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.StartupTimeout != 60*time.Second {
		t.Errorf("StartupTimeout = %v, want 60s", opts.StartupTimeout)
	}
	if opts.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", opts.PollInterval)
	}
	if opts.Readiness != ReadinessPoll {
		t.Errorf("Readiness = %q, want poll", opts.Readiness)
	}
	if opts.ConfigDirEnv != "KERNELKIT_DIR" {
		t.Errorf("ConfigDirEnv = %q", opts.ConfigDirEnv)
	}
	if opts.Profile != "profile_default" {
		t.Errorf("Profile = %q", opts.Profile)
	}
}

func TestOptions_WithDefaultsKeepsOverrides(t *testing.T) {
	opts := Options{StartupTimeout: time.Second, Profile: "dev"}.withDefaults()
	if opts.StartupTimeout != time.Second {
		t.Errorf("StartupTimeout = %v, want 1s", opts.StartupTimeout)
	}
	if opts.Profile != "dev" {
		t.Errorf("Profile = %q, want dev", opts.Profile)
	}
	if opts.TerminateTimeout != DefaultTerminateTimeout {
		t.Errorf("TerminateTimeout = %v, want default", opts.TerminateTimeout)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"negative startup", Options{StartupTimeout: -1}, "startup_timeout"},
		{"negative poll", Options{PollInterval: -1}, "poll_interval"},
		{"negative terminate", Options{TerminateTimeout: -1}, "terminate_timeout"},
		{"unknown readiness", Options{Readiness: "psychic"}, "readiness"},
		{"bad env name", Options{ConfigDirEnv: "A=B"}, "config_dir_env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			var ve *kkerrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("DefaultOptions().Validate() = %v", err)
	}
}

func TestLauncher_DescriptorPath(t *testing.T) {
	l, err := NewLauncher(Options{ConfigDir: "/cfg"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := l.DescriptorPath(1234), "/cfg/profile_default/security/kernel-1234.json"; got != want {
		t.Errorf("DescriptorPath() = %q, want %q", got, want)
	}
}

func TestCommand_String(t *testing.T) {
	if got := (Command{Path: "python"}).String(); got != "python" {
		t.Errorf("String() = %q", got)
	}
	if got := (Command{Path: "python", Args: []string{"-c", "pass"}}).String(); got != "python -c pass" {
		t.Errorf("String() = %q", got)
	}
}
