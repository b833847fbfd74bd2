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

package lifecycle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/lifecycle"
	"github.com/tombee/kernelkit/internal/minilog"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

const replyTimeout = 15 * time.Second

func newLauncher(t *testing.T, opts lifecycle.Options, extra ...lifecycle.LauncherOption) *lifecycle.Launcher {
	t.Helper()
	if opts.ConfigDir == "" {
		opts.ConfigDir = t.TempDir()
	}
	l, err := lifecycle.NewLauncher(opts, nil, extra...)
	require.NoError(t, err)
	return l
}

func readJournal(t *testing.T, path string) []lifecycle.LaunchEvent {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	events, err := lifecycle.ParseEvents(data)
	require.NoError(t, err)
	return events
}

func eventNames(events []lifecycle.LaunchEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event
	}
	return names
}

func TestLaunch_Ready(t *testing.T) {
	journal := lifecycle.NewEventLog(filepath.Join(t.TempDir(), "launch.jsonl"))
	l := newLauncher(t, lifecycle.Options{}, lifecycle.WithEventLog(journal))

	k, err := l.Launch(context.Background(), helperCommand("stub", "a=5", `b="hi there"`))
	require.NoError(t, err)

	assert.Equal(t, l.DescriptorPath(k.PID()), k.DescriptorPath())
	assert.FileExists(t, k.DescriptorPath())
	assert.NotNil(t, k.Info())
	assert.True(t, lifecycle.IsProcessRunning(k.PID()))

	ctx := context.Background()
	got, err := k.Client().Inspect(ctx, "a", replyTimeout)
	require.NoError(t, err)
	assert.Equal(t, "5", got.StringForm)

	got, err = k.Client().Inspect(ctx, "b", replyTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hi there", got.StringForm)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	select {
	case <-k.Exited():
	default:
		t.Fatal("kernel still running after Close")
	}
	assert.Equal(t, []string{
		lifecycle.EventLaunch, lifecycle.EventReady, lifecycle.EventTerminate,
	}, eventNames(readJournal(t, journal.Path())))
}

func TestLaunch_WatchReadiness(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{Readiness: lifecycle.ReadinessWatch})

	k, err := l.Launch(context.Background(), helperCommand("stub", "a=1"))
	require.NoError(t, err)
	defer k.Close()

	got, err := k.Client().Inspect(context.Background(), "a", replyTimeout)
	require.NoError(t, err)
	assert.True(t, got.Found)
}

func TestLaunch_OwnsTemporaryConfigDir(t *testing.T) {
	l, err := lifecycle.NewLauncher(lifecycle.Options{}, nil)
	require.NoError(t, err)

	k, err := l.Launch(context.Background(), helperCommand("stub"))
	require.NoError(t, err)
	path := k.DescriptorPath()
	assert.FileExists(t, path)

	require.NoError(t, k.Close())
	assert.NoFileExists(t, path)
}

func TestLaunch_ProcessExitsFast(t *testing.T) {
	journal := lifecycle.NewEventLog(filepath.Join(t.TempDir(), "launch.jsonl"))
	l := newLauncher(t, lifecycle.Options{StartupTimeout: 30 * time.Second}, lifecycle.WithEventLog(journal))

	start := time.Now()
	_, err := l.Launch(context.Background(), helperCommand("crash"))
	elapsed := time.Since(start)

	require.Error(t, err)
	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok, "want StartupError, got %T: %v", err, err)
	assert.Equal(t, kkerrors.ReasonProcessExited, se.Reason)
	assert.Equal(t, 3, se.ExitCode)
	assert.Contains(t, se.Stderr, "boom")
	assert.Contains(t, err.Error(), "kernel failed to start")
	assert.Contains(t, err.Error(), "boom")
	assert.Less(t, elapsed, 10*time.Second, "exit must be noticed before the startup timeout")

	events := readJournal(t, journal.Path())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, lifecycle.EventStartupFailure, last.Event)
	assert.Equal(t, 3, last.ExitCode)
}

func TestLaunch_ProcessExitsSilently(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{StartupTimeout: 30 * time.Second})

	start := time.Now()
	_, err := l.Launch(context.Background(), helperCommand("silent"))
	elapsed := time.Since(start)

	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok, "want StartupError, got %T: %v", err, err)
	assert.Equal(t, kkerrors.ReasonProcessExited, se.Reason)
	assert.Equal(t, 0, se.ExitCode)
	assert.Empty(t, se.Stderr)
	assert.Contains(t, err.Error(), "exit code 0")
	assert.Less(t, elapsed, 10*time.Second, "exit must be noticed before the startup timeout")
}

func TestLaunch_DescriptorTimeout(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{StartupTimeout: 300 * time.Millisecond})

	_, err := l.Launch(context.Background(), helperCommand("hang"))
	require.Error(t, err)

	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok)
	assert.Equal(t, kkerrors.ReasonDescriptorTimeout, se.Reason)
	assert.Contains(t, err.Error(), "never arrived")
	assert.False(t, lifecycle.IsProcessRunning(se.PID), "child must be terminated")
}

// brokenWaiter fails immediately, as a watch does when inotify is exhausted.
type brokenWaiter struct{}

func (brokenWaiter) Wait(context.Context, string, <-chan struct{}) error {
	return errors.New("failed to create watcher: too many open files")
}

func TestLaunch_WaiterFailure(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{StartupTimeout: time.Minute}, lifecycle.WithWaiter(brokenWaiter{}))

	start := time.Now()
	_, err := l.Launch(context.Background(), helperCommand("hang"))
	elapsed := time.Since(start)

	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok, "want StartupError, got %T: %v", err, err)
	assert.Equal(t, kkerrors.ReasonWaitFailed, se.Reason)
	assert.Contains(t, err.Error(), "too many open files")
	assert.NotContains(t, err.Error(), "never arrived")
	assert.Less(t, elapsed, 30*time.Second, "a failed wait must not run to the startup timeout")
	assert.False(t, lifecycle.IsProcessRunning(se.PID), "child must be terminated")
}

func TestLaunch_KillsStubbornChild(t *testing.T) {
	journal := lifecycle.NewEventLog(filepath.Join(t.TempDir(), "launch.jsonl"))
	l := newLauncher(t, lifecycle.Options{
		StartupTimeout:   500 * time.Millisecond,
		TerminateTimeout: 200 * time.Millisecond,
	}, lifecycle.WithEventLog(journal))

	_, err := l.Launch(context.Background(), helperCommand("stubborn"))
	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok)
	assert.Equal(t, kkerrors.ReasonDescriptorTimeout, se.Reason)
	assert.False(t, lifecycle.IsProcessRunning(se.PID))

	var terminate *lifecycle.LaunchEvent
	for _, ev := range readJournal(t, journal.Path()) {
		if ev.Event == lifecycle.EventTerminate {
			terminate = &ev
		}
	}
	require.NotNil(t, terminate)
	assert.Contains(t, terminate.Message, "killed")
}

func TestLaunch_ClientFailed(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{}, lifecycle.WithEventLog(nil))

	_, err := l.Launch(context.Background(), helperCommand("dead-descriptor"))
	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok, "want StartupError, got %v", err)
	assert.Equal(t, kkerrors.ReasonClientFailed, se.Reason)
	assert.True(t, client.IsKernelNotRunning(err))
	assert.False(t, lifecycle.IsProcessRunning(se.PID))
}

func TestLaunch_SpawnFailed(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{})

	_, err := l.Launch(context.Background(), lifecycle.Command{Path: filepath.Join(t.TempDir(), "no-such-kernel")})
	se, ok := kkerrors.AsStartup(err)
	require.True(t, ok)
	assert.Equal(t, kkerrors.ReasonSpawnFailed, se.Reason)
	assert.Zero(t, se.PID)
}

func TestLaunch_Canceled(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{StartupTimeout: 30 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	_, err := l.Launch(ctx, helperCommand("hang"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestLaunch_MirrorsToMinilog(t *testing.T) {
	mini, err := minilog.Open(filepath.Join(t.TempDir(), "minilog.txt"))
	require.NoError(t, err)
	defer mini.Close()

	l := newLauncher(t, lifecycle.Options{}, lifecycle.WithMinilog(mini))
	k, err := l.Launch(context.Background(), helperCommand("stub"))
	require.NoError(t, err)
	require.NoError(t, k.Close())

	data, err := os.ReadFile(mini.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n----launcher----\nlaunched ")
	assert.Contains(t, string(data), "ready after")
	assert.Contains(t, string(data), "terminated kernel")
}

func TestWith_RunsAndTearsDown(t *testing.T) {
	journal := lifecycle.NewEventLog(filepath.Join(t.TempDir(), "launch.jsonl"))
	l := newLauncher(t, lifecycle.Options{}, lifecycle.WithEventLog(journal))

	var found bool
	err := l.With(context.Background(), helperCommand("stub", "a=5"), func(c *client.Client) error {
		got, err := c.Inspect(context.Background(), "a", replyTimeout)
		if err != nil {
			return err
		}
		found = got.Found
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, eventNames(readJournal(t, journal.Path())), lifecycle.EventTerminate)
}

func TestWith_PanicTearsDown(t *testing.T) {
	journal := lifecycle.NewEventLog(filepath.Join(t.TempDir(), "launch.jsonl"))
	l := newLauncher(t, lifecycle.Options{}, lifecycle.WithEventLog(journal))

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = l.With(context.Background(), helperCommand("stub"), func(c *client.Client) error {
			panic("kaboom")
		})
	})

	events := readJournal(t, journal.Path())
	require.Equal(t, lifecycle.EventTerminate, events[len(events)-1].Event)
	assert.False(t, lifecycle.IsProcessRunning(events[len(events)-1].PID))
}

func TestWith_ReturnsCallbackError(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{})

	err := l.With(context.Background(), helperCommand("stub"), func(c *client.Client) error {
		return os.ErrPermission
	})
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestWith_LaunchFailureSkipsCallback(t *testing.T) {
	l := newLauncher(t, lifecycle.Options{})

	called := false
	err := l.With(context.Background(), helperCommand("crash"), func(c *client.Client) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, strings.Contains(err.Error(), "exit code 3"))
}
