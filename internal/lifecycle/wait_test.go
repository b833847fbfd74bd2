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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waiters() map[string]Waiter {
	return map[string]Waiter{
		"poll":    NewPollWaiter(10 * time.Millisecond),
		"backoff": NewPollWaiter(5*time.Millisecond).WithBackoff(40*time.Millisecond, 2),
		"watch":   &WatchWaiter{Fallback: 50 * time.Millisecond},
	}
}

func TestWaiter_FileAppears(t *testing.T) {
	for name, w := range waiters() {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kernel-1.json")
			time.AfterFunc(50*time.Millisecond, func() {
				tmp := path + ".tmp"
				os.WriteFile(tmp, []byte("{}"), 0600)
				os.Rename(tmp, path)
			})

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.Wait(ctx, path, make(chan struct{})); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		})
	}
}

func TestWaiter_FileAlreadyThere(t *testing.T) {
	for name, w := range waiters() {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "kernel-1.json")
			if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
				t.Fatal(err)
			}
			if err := w.Wait(context.Background(), path, make(chan struct{})); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		})
	}
}

func TestWaiter_ProcessExited(t *testing.T) {
	for name, w := range waiters() {
		t.Run(name, func(t *testing.T) {
			exited := make(chan struct{})
			time.AfterFunc(30*time.Millisecond, func() { close(exited) })

			err := w.Wait(context.Background(), filepath.Join(t.TempDir(), "kernel-1.json"), exited)
			if !errors.Is(err, ErrProcessExited) {
				t.Fatalf("Wait() error = %v, want ErrProcessExited", err)
			}
		})
	}
}

func TestWaiter_Timeout(t *testing.T) {
	for name, w := range waiters() {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			err := w.Wait(ctx, filepath.Join(t.TempDir(), "kernel-1.json"), make(chan struct{}))
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("Wait() error = %v, want DeadlineExceeded", err)
			}
		})
	}
}

func TestWatchWaiter_MissingDirectory(t *testing.T) {
	w := NewWatchWaiter()
	err := w.Wait(context.Background(), filepath.Join(t.TempDir(), "nope", "kernel-1.json"), make(chan struct{}))
	if err == nil {
		t.Fatal("Wait() on a missing directory succeeded, want error")
	}
}

func TestWaiterFor(t *testing.T) {
	if _, ok := waiterFor(Options{Readiness: ReadinessWatch}).(*WatchWaiter); !ok {
		t.Error("waiterFor(watch) is not a WatchWaiter")
	}
	pw, ok := waiterFor(Options{Readiness: ReadinessPoll, PollInterval: 7 * time.Millisecond}).(*PollWaiter)
	if !ok {
		t.Fatal("waiterFor(poll) is not a PollWaiter")
	}
	if pw.Interval != 7*time.Millisecond {
		t.Errorf("Interval = %v, want 7ms", pw.Interval)
	}
}
