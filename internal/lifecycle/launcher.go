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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/connection"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/minilog"
	"github.com/tombee/kernelkit/internal/tracing"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Launcher starts kernels and waits for them to become ready.
type Launcher struct {
	opts   Options
	logger *slog.Logger
	mini   *minilog.Logger
	events *EventLog
	waiter Waiter
	tracer trace.Tracer
}

// LauncherOption configures optional Launcher collaborators.
type LauncherOption func(*Launcher)

// WithMinilog mirrors launch milestones into a minilog file.
func WithMinilog(l *minilog.Logger) LauncherOption {
	return func(lc *Launcher) {
		lc.mini = l
	}
}

// WithEventLog records launch events in a JSON-lines journal.
func WithEventLog(e *EventLog) LauncherOption {
	return func(lc *Launcher) {
		lc.events = e
	}
}

// WithWaiter overrides the readiness strategy chosen by Options.Readiness.
func WithWaiter(w Waiter) LauncherOption {
	return func(lc *Launcher) {
		lc.waiter = w
	}
}

// WithTracer sets the tracer used for launch spans.
func WithTracer(t trace.Tracer) LauncherOption {
	return func(lc *Launcher) {
		lc.tracer = t
	}
}

// NewLauncher creates a launcher. Zero-valued options take their defaults.
func NewLauncher(opts Options, logger *slog.Logger, extra ...LauncherOption) (*Launcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if logger == nil {
		logger = internallog.Discard()
	}

	l := &Launcher{
		opts:   opts,
		logger: internallog.WithComponent(logger, "launcher"),
		tracer: tracing.Tracer(),
	}
	for _, opt := range extra {
		opt(l)
	}
	if l.waiter == nil {
		l.waiter = waiterFor(opts)
	}
	return l, nil
}

// Options returns the effective options.
func (l *Launcher) Options() Options {
	return l.opts
}

// DescriptorPath returns where the kernel with pid publishes its
// descriptor under the configured directory.
func (l *Launcher) DescriptorPath(pid int) string {
	return connection.Path(l.opts.ConfigDir, l.opts.Profile, pid)
}

// note mirrors a milestone into the minilog file when one is configured.
func (l *Launcher) note(format string, args ...any) {
	if l.mini == nil {
		return
	}
	_ = l.mini.LogAs("launcher", fmt.Sprintf(format, args...))
}

// Launch starts cmd and blocks until its connection descriptor appears and
// a client is connected, the process exits, the startup timeout passes, or
// ctx is done. On any failure the process is terminated before returning.
func (l *Launcher) Launch(ctx context.Context, cmd Command) (*Kernel, error) {
	start := time.Now()
	ctx, span := tracing.StartLaunch(ctx, l.tracer, cmd.Path)
	defer span.End()

	k, err := l.launch(ctx, cmd, start, span)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return k, nil
}

func (l *Launcher) launch(ctx context.Context, cmd Command, start time.Time, span *tracing.Span) (*Kernel, error) {
	configDir := l.opts.ConfigDir
	ownedDir := ""
	if configDir == "" {
		dir, err := os.MkdirTemp("", "kernelkit-")
		if err != nil {
			recordLaunch("spawn_failed")
			return nil, &kkerrors.StartupError{Reason: kkerrors.ReasonSpawnFailed, Cause: err}
		}
		configDir, ownedDir = dir, dir
	}
	cleanupDir := func() {
		if ownedDir != "" {
			os.RemoveAll(ownedDir)
		}
	}

	if err := os.MkdirAll(connection.SecurityDir(configDir, l.opts.Profile), 0700); err != nil {
		cleanupDir()
		recordLaunch("spawn_failed")
		return nil, &kkerrors.StartupError{Reason: kkerrors.ReasonSpawnFailed, Cause: err}
	}

	k := &Kernel{
		launcher: l,
		stdout:   &tailBuffer{},
		stderr:   &tailBuffer{},
		exited:   make(chan struct{}),
		ownedDir: ownedDir,
	}

	ec := exec.Command(cmd.Path, cmd.Args...)
	env := cmd.Env
	if env == nil {
		env = os.Environ()
	}
	ec.Env = append(append([]string(nil), env...), l.opts.ConfigDirEnv+"="+configDir)
	ec.Dir = cmd.Dir
	ec.Stdout = k.stdout
	ec.Stderr = k.stderr
	// Grandchildren holding the output pipes must not block Wait forever.
	ec.WaitDelay = l.opts.TerminateTimeout

	if err := ec.Start(); err != nil {
		cleanupDir()
		recordLaunch("spawn_failed")
		l.logger.Error("failed to spawn kernel", slog.String("command", cmd.String()), internallog.Error(err))
		_ = l.events.LogStartupFailure(0, 0, err)
		return nil, &kkerrors.StartupError{Reason: kkerrors.ReasonSpawnFailed, Cause: err}
	}

	k.cmd = ec
	k.pid = ec.Process.Pid
	k.path = connection.Path(configDir, l.opts.Profile, k.pid)
	k.logger = internallog.WithKernel(l.logger, k.pid, k.path)
	activeKernels.Inc()

	go func() {
		k.waitErr = ec.Wait()
		close(k.exited)
	}()

	span.SetAttributes(map[string]any{"kernel.pid": k.pid, "kernel.connection_file": k.path})
	k.logger.Info("kernel spawned", slog.String("command", cmd.String()))
	l.note("launched %s as pid %d, waiting for %s", cmd.String(), k.pid, k.path)
	_ = l.events.LogLaunch(cmd, k.pid, k.path)

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.StartupTimeout)
	defer cancel()
	waitErr := l.waiter.Wait(waitCtx, k.path, k.exited)

	// A process that has exited is a failure even if it managed to publish
	// a descriptor first.
	select {
	case <-k.exited:
		return nil, l.fail(k, &kkerrors.StartupError{
			Reason:   kkerrors.ReasonProcessExited,
			PID:      k.pid,
			Path:     k.path,
			ExitCode: k.cmd.ProcessState.ExitCode(),
			Stderr:   k.Stderr(),
			Timeout:  l.opts.StartupTimeout,
		}, "exited")
	default:
	}

	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, l.fail(k, fmt.Errorf("kernel launch canceled: %w", ctx.Err()), "canceled")
		}
		if !errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, l.fail(k, &kkerrors.StartupError{
				Reason:  kkerrors.ReasonWaitFailed,
				PID:     k.pid,
				Path:    k.path,
				Stderr:  k.Stderr(),
				Timeout: l.opts.StartupTimeout,
				Cause:   waitErr,
			}, "wait_failed")
		}
		return nil, l.fail(k, &kkerrors.StartupError{
			Reason:  kkerrors.ReasonDescriptorTimeout,
			PID:     k.pid,
			Path:    k.path,
			Stderr:  k.Stderr(),
			Timeout: l.opts.StartupTimeout,
		}, "timeout")
	}
	span.AddEvent("descriptor", map[string]any{"path": k.path})

	info, err := l.loadDescriptor(waitCtx, k.path)
	if err == nil {
		k.info = info
		k.client, err = client.New(info, l.clientOptions()...)
	}
	if err == nil {
		err = k.client.StartChannels(ctx)
	}
	if err != nil {
		return nil, l.fail(k, &kkerrors.StartupError{
			Reason:  kkerrors.ReasonClientFailed,
			PID:     k.pid,
			Path:    k.path,
			Stderr:  k.Stderr(),
			Timeout: l.opts.StartupTimeout,
			Cause:   err,
		}, "client_failed")
	}

	elapsed := time.Since(start)
	recordLaunch("ready")
	startupDuration.Observe(elapsed.Seconds())
	k.logger.Info("kernel ready", internallog.Duration("startup", elapsed.Milliseconds()))
	l.note("kernel %d ready after %v", k.pid, elapsed)
	_ = l.events.LogReady(k.pid, k.path, elapsed)
	return k, nil
}

// clientOptions prepends the launcher's logger so callers can override it.
func (l *Launcher) clientOptions() []client.Option {
	opts := []client.Option{client.WithLogger(internallog.WithComponent(l.logger, "client"))}
	return append(opts, l.opts.ClientOptions...)
}

// loadDescriptor reads the descriptor, retrying briefly in case a kernel
// wrote it non-atomically and the first read sees a partial file.
func (l *Launcher) loadDescriptor(ctx context.Context, path string) (*connection.Info, error) {
	for {
		info, err := connection.Load(path)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, connection.ErrInvalidDescriptor) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(l.opts.PollInterval):
		}
	}
}

// fail tears down a kernel that never became ready and reports err.
func (l *Launcher) fail(k *Kernel, err error, outcome string) error {
	recordLaunch(outcome)

	if closeErr := k.Close(); closeErr != nil {
		k.logger.Warn("cleanup after failed launch", internallog.Error(closeErr))
	}

	exitCode := 0
	if se, ok := kkerrors.AsStartup(err); ok {
		exitCode = se.ExitCode
	}
	k.logger.Error("kernel failed to start", internallog.Error(err))
	l.note("kernel %d failed to start: %v", k.pid, err)
	_ = l.events.LogStartupFailure(k.pid, exitCode, err)
	return err
}

// With launches cmd, runs fn with the connected client and tears the
// kernel down on every exit path. A panic in fn is re-raised after
// teardown.
func (l *Launcher) With(ctx context.Context, cmd Command, fn func(*client.Client) error) (err error) {
	k, err := l.Launch(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := k.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(k.Client())
}
