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

package minilog

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
)

// Logger serializes debug entries into a single file.
// It is safe for concurrent use. The lock is not reentrant, so a Logger
// must never be used from inside its own write path.
type Logger struct {
	path string

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// DefaultPath returns the per-process log path under the system temp dir.
func DefaultPath(pid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("minilog-%d.log", pid))
}

// OpenDefault opens the log at DefaultPath for the current process.
func OpenDefault() (*Logger, error) {
	return Open(DefaultPath(os.Getpid()))
}

// Open removes any stale file at path and opens a fresh append-mode handle.
// Removal is best-effort; only the open itself can fail.
func Open(path string) (*Logger, error) {
	_ = os.Remove(path)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open minilog: %w", err)
	}

	return &Logger{
		path: path,
		file: f,
		w:    bufio.NewWriter(f),
	}, nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Log appends msg under a header naming the calling goroutine.
func (l *Logger) Log(msg string) error {
	return l.LogAs(GoroutineName(), msg)
}

// Logf formats according to a format specifier and appends the result.
func (l *Logger) Logf(format string, args ...any) error {
	return l.LogAs(GoroutineName(), fmt.Sprintf(format, args...))
}

// LogAs appends msg under a header with the given name.
// Header, body and flush happen under one lock so entries never interleave.
func (l *Logger) LogAs(name, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}

	if _, err := l.w.WriteString("\n----" + name + "----\n"); err != nil {
		return err
	}
	if _, err := l.w.WriteString(msg); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the underlying file. Later writes return
// os.ErrClosed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	flushErr := l.w.Flush()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// GoroutineName identifies the calling goroutine as "goroutine-<id>".
// Go has no thread names; the runtime goroutine id is the closest
// stable identity for the duration of a call.
func GoroutineName() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 18 [running]:..."
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(field[:i]), 10, 64); err == nil {
			return "goroutine-" + strconv.FormatUint(id, 10)
		}
	}
	return "goroutine-unknown"
}
