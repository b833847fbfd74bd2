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

package stub

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/commands/shared"
	"github.com/tombee/kernelkit/internal/connection"
)

func useQuietConfig(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n  level: error\n"), 0600))
	shared.SetConfigPathForTest(path)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
}

func TestStubCommand_ServesUntilShutdown(t *testing.T) {
	useQuietConfig(t)
	dir := t.TempDir()

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", dir, "--profile", "profile_test", "--set", "a=5", "--set", `b="hi there"`})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()

	path := connection.Path(dir, "profile_test", os.Getpid())
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	c, err := client.FromFile(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.StartChannels(ctx))
	defer c.StopChannels()

	reply, err := c.Inspect(ctx, "b", 15*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply.StringForm)

	_, err = c.Shutdown(ctx, false)
	require.NoError(t, err)
	_, err = c.GetControlMsg(ctx, 15*time.Second)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stub command did not exit after shutdown")
	}
}

func TestStubCommand_InvalidSet(t *testing.T) {
	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--dir", t.TempDir(), "--set", "1bad=2"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestStubCommand_RequiresDir(t *testing.T) {
	useQuietConfig(t)
	t.Setenv(connection.ConfigDirEnv, "")

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), connection.ConfigDirEnv)
}
