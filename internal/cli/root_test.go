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

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/kernelkit/internal/commands/shared"
)

// newTestRoot returns a root command with a no-op child and resets the
// global flags after the test.
func newTestRoot(t *testing.T, args ...string) (*cobra.Command, *bool) {
	t.Helper()
	root := NewRootCommand()
	ran := false
	root.AddCommand(&cobra.Command{
		Use:  "noop",
		RunE: func(*cobra.Command, []string) error { ran = true; return nil },
	})
	root.SetArgs(args)
	t.Cleanup(func() {
		for _, name := range []string{"verbose", "json", "minilog"} {
			_ = root.PersistentFlags().Set(name, "false")
		}
		shared.SetConfigPathForTest("")
	})
	return root, &ran
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "kernelkit", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.True(t, cmd.SilenceErrors)
	for _, name := range []string{"verbose", "json", "config", "minilog"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestGlobalFlags(t *testing.T) {
	root, ran := newTestRoot(t, "noop", "-v", "--minilog", "--json")

	require.NoError(t, root.Execute())
	assert.True(t, *ran)
	assert.True(t, shared.GetVerbose())
	assert.True(t, shared.GetMinilog())
	assert.True(t, shared.GetJSON())
}

func TestExplicitConfigMustExist(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	root, ran := newTestRoot(t, "noop", "--config", missing)

	err := root.Execute()
	require.Error(t, err)
	assert.False(t, *ran)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
	assert.Contains(t, err.Error(), missing)
}

func TestExplicitConfigExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0600))
	root, ran := newTestRoot(t, "noop", "--config", path)

	require.NoError(t, root.Execute())
	assert.True(t, *ran)
	assert.Equal(t, path, shared.GetConfigPath())
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	t.Cleanup(func() { SetVersion("dev", "unknown", "unknown") })

	v, c, b := GetVersion()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "abc123", c)
	assert.Equal(t, "2025-12-22", b)
}
