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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPath(t *testing.T) {
	path := DefaultPath(4242)
	assert.Equal(t, os.TempDir(), filepath.Dir(path))
	assert.Equal(t, "minilog-4242.log", filepath.Base(path))
}

func TestOpen_RemovesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minilog-1.log")
	require.NoError(t, os.WriteFile(path, []byte("left over from a previous run"), 0600))

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOpen_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.log")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, path, l.Path())
	assert.FileExists(t, path)
}

func TestOpen_UnwritableDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}

func TestLogAs_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fmt.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.LogAs("MainThread", "setup kernel"))
	require.NoError(t, l.LogAs("worker", "not anymore"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n----MainThread----\nsetup kernel\n----worker----\nnot anymore", string(data))
}

func TestLog_UsesGoroutineName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Logf("value=%d", 7))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\n----goroutine-\d+----\nvalue=7$`), string(data))
}

func TestGoroutineName_DiffersAcrossGoroutines(t *testing.T) {
	here := GoroutineName()
	there := make(chan string)
	go func() { there <- GoroutineName() }()

	assert.NotEqual(t, here, <-there)
	assert.True(t, strings.HasPrefix(here, "goroutine-"))
	assert.NotEqual(t, "goroutine-unknown", here)
}

func TestLog_ConcurrentEntriesNeverInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	const writers = 16
	const perWriter = 50
	body := strings.Repeat("x", 512)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("writer-%d", w)
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, l.LogAs(name, fmt.Sprintf("%s|%d|%s", name, i, body)))
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Each entry is "\n----<name>----\n<name>|<i>|<body>"; the header name
	// must match the name embedded in the body that follows it.
	entries := strings.Split(string(data), "\n----")
	require.Equal(t, "", entries[0])
	entries = entries[1:]
	require.Len(t, entries, writers*perWriter)

	for _, e := range entries {
		header, payload, ok := strings.Cut(e, "----\n")
		require.True(t, ok, "malformed entry %q", e)
		parts := strings.Split(payload, "|")
		require.Len(t, parts, 3)
		assert.Equal(t, header, parts[0])
		assert.Equal(t, body, parts[2])
	}
}

func TestClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "closed.log"))
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Log("too late"), os.ErrClosed)
}

func TestNewHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slog.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	logger := slog.New(NewHandler(l, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.With("component", "lifecycle").Debug("waiting for connection file", "pid", 99)
	logger.Info("ready")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Equal(t, 2, strings.Count(text, "\n----goroutine-"))
	assert.Contains(t, text, `level=DEBUG msg="waiting for connection file" component=lifecycle pid=99`)
	assert.Contains(t, text, "level=INFO msg=ready")
	assert.False(t, strings.HasSuffix(text, "\n"))
}
