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
	"bytes"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/connection"
	internallog "github.com/tombee/kernelkit/internal/log"
)

// maxCapturedOutput caps how much of each child stream is kept.
const maxCapturedOutput = 64 * 1024

// tailBuffer keeps the last maxCapturedOutput bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(p)
	if len(p) > maxCapturedOutput {
		p = p[len(p)-maxCapturedOutput:]
	}
	if over := b.buf.Len() + len(p) - maxCapturedOutput; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Kernel is a running kernel process with a connected client.
type Kernel struct {
	launcher *Launcher
	logger   *slog.Logger

	cmd    *exec.Cmd
	pid    int
	path   string
	info   *connection.Info
	client *client.Client

	stdout *tailBuffer
	stderr *tailBuffer

	exited  chan struct{}
	waitErr error

	// ownedDir is removed on Close when the launcher created it
	ownedDir string

	closeOnce sync.Once
	closeErr  error
}

// PID returns the kernel's process id.
func (k *Kernel) PID() int {
	return k.pid
}

// DescriptorPath returns the path of the kernel's connection file.
func (k *Kernel) DescriptorPath() string {
	return k.path
}

// Info returns the loaded connection descriptor.
func (k *Kernel) Info() *connection.Info {
	return k.info
}

// Client returns the client bound to the kernel, with channels started.
func (k *Kernel) Client() *client.Client {
	return k.client
}

// Stderr returns the captured tail of the kernel's standard error.
func (k *Kernel) Stderr() string {
	return k.stderr.String()
}

// Stdout returns the captured tail of the kernel's standard output.
func (k *Kernel) Stdout() string {
	return k.stdout.String()
}

// Exited is closed once the kernel process has been reaped.
func (k *Kernel) Exited() <-chan struct{} {
	return k.exited
}

// ExitCode returns the process exit code, or -1 while it is running or
// when it was killed by a signal.
func (k *Kernel) ExitCode() int {
	select {
	case <-k.exited:
		if k.cmd.ProcessState != nil {
			return k.cmd.ProcessState.ExitCode()
		}
	default:
	}
	return -1
}

// Close stops the client channels and terminates the kernel process. It is
// safe to call more than once; later calls return the first result.
func (k *Kernel) Close() error {
	k.closeOnce.Do(func() {
		var errs []error
		if k.client != nil {
			if err := k.client.StopChannels(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := k.terminate(); err != nil {
			errs = append(errs, err)
		}
		if k.ownedDir != "" {
			if err := os.RemoveAll(k.ownedDir); err != nil {
				errs = append(errs, err)
			}
		}
		activeKernels.Dec()
		k.closeErr = errors.Join(errs...)
	})
	return k.closeErr
}

// terminate sends SIGTERM, waits up to the terminate timeout, then kills.
func (k *Kernel) terminate() error {
	start := time.Now()

	select {
	case <-k.exited:
		k.logger.Debug("kernel already exited")
		return nil
	default:
	}

	// The process handle refuses to signal a child that was already reaped.
	err := k.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		k.logger.Warn("failed to signal kernel", internallog.Error(err))
	}

	forced := false
	timer := time.NewTimer(k.launcher.opts.TerminateTimeout)
	defer timer.Stop()

	select {
	case <-k.exited:
	case <-timer.C:
		forced = true
		k.logger.Warn("kernel ignored SIGTERM, killing",
			slog.Duration("timeout", k.launcher.opts.TerminateTimeout))
		if err := k.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-k.exited
	}

	method := "sigterm"
	if forced {
		method = "sigkill"
	}
	recordTermination(method)

	elapsed := time.Since(start)
	k.logger.Debug("kernel terminated",
		slog.String("method", method),
		internallog.Duration("elapsed", elapsed.Milliseconds()))
	k.launcher.note("terminated kernel %d (%s)", k.pid, method)
	_ = k.launcher.events.LogTerminate(k.pid, forced, elapsed)
	return nil
}
