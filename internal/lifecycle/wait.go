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
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrProcessExited is returned by a Waiter when the child exits before the
// descriptor appears.
var ErrProcessExited = errors.New("process exited before connection file appeared")

// Waiter blocks until the file at path exists, the exited channel closes,
// or ctx is done.
type Waiter interface {
	Wait(ctx context.Context, path string, exited <-chan struct{}) error
}

// PollWaiter stats the path on an interval. With a Multiplier above 1 the
// interval grows up to MaxInterval.
type PollWaiter struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
}

// NewPollWaiter creates a fixed-interval poller.
func NewPollWaiter(interval time.Duration) *PollWaiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollWaiter{Interval: interval, MaxInterval: interval, Multiplier: 1}
}

// WithBackoff configures exponential backoff parameters.
func (p *PollWaiter) WithBackoff(max time.Duration, multiplier float64) *PollWaiter {
	p.MaxInterval = max
	p.Multiplier = multiplier
	return p
}

// Wait implements Waiter.
func (p *PollWaiter) Wait(ctx context.Context, path string, exited <-chan struct{}) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempts := 1; ; attempts++ {
		select {
		case <-timer.C:
		case <-exited:
			return ErrProcessExited
		case <-ctx.Done():
			return fmt.Errorf("connection file not found after %d checks: %w", attempts-1, ctx.Err())
		}

		if fileExists(path) {
			return nil
		}

		timer.Reset(interval)
		if p.Multiplier > 1 {
			interval = time.Duration(float64(interval) * p.Multiplier)
			if p.MaxInterval > 0 && interval > p.MaxInterval {
				interval = p.MaxInterval
			}
		}
	}
}

// WatchWaiter waits for filesystem events on the descriptor's directory.
// A slow stat fallback covers filesystems that drop events.
type WatchWaiter struct {
	Fallback time.Duration
}

// NewWatchWaiter creates a watcher with a one second stat fallback.
func NewWatchWaiter() *WatchWaiter {
	return &WatchWaiter{Fallback: time.Second}
}

// Wait implements Waiter. The directory containing path must exist.
func (w *WatchWaiter) Wait(ctx context.Context, path string, exited <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	// The file may have been published before the watch was registered.
	if fileExists(path) {
		return nil
	}

	fallback := w.Fallback
	if fallback <= 0 {
		fallback = time.Second
	}
	ticker := time.NewTicker(fallback)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
				if fileExists(path) {
					return nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) && fileExists(path) {
				return nil
			}
		case <-ticker.C:
			if fileExists(path) {
				return nil
			}
		case <-exited:
			return ErrProcessExited
		case <-ctx.Done():
			return fmt.Errorf("connection file not found: %w", ctx.Err())
		}
	}
}

// waiterFor returns the Waiter matching opts.
func waiterFor(opts Options) Waiter {
	if opts.Readiness == ReadinessWatch {
		return NewWatchWaiter()
	}
	return NewPollWaiter(opts.PollInterval)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
