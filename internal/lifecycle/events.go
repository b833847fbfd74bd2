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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event names written to the journal.
const (
	EventLaunch         = "launch"
	EventReady          = "ready"
	EventStartupFailure = "startup_failure"
	EventTerminate      = "terminate"
)

// LaunchEvent is one line of the launch journal.
type LaunchEvent struct {
	Timestamp      time.Time         `json:"timestamp"`
	Event          string            `json:"event"`
	PID            int               `json:"pid,omitempty"`
	Command        string            `json:"command,omitempty"`
	Flags          map[string]string `json:"flags,omitempty"`
	ConnectionFile string            `json:"connection_file,omitempty"`
	DurationMS     int64             `json:"duration_ms,omitempty"`
	ExitCode       int               `json:"exit_code,omitempty"`
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// EventLog appends launch events to a JSON-lines file.
// A nil *EventLog discards everything.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog creates a journal at path. The file is created on first write.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the journal location.
func (l *EventLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogLaunch records that a kernel process was started.
func (l *EventLog) LogLaunch(cmd Command, pid int, connectionFile string) error {
	return l.writeEvent(LaunchEvent{
		Event:          EventLaunch,
		PID:            pid,
		Command:        cmd.Path,
		Flags:          parseFlags(cmd.Args),
		ConnectionFile: connectionFile,
		Success:        true,
		Message:        "Kernel process started",
	})
}

// LogReady records that the kernel published its descriptor and a client
// connected.
func (l *EventLog) LogReady(pid int, connectionFile string, duration time.Duration) error {
	return l.writeEvent(LaunchEvent{
		Event:          EventReady,
		PID:            pid,
		ConnectionFile: connectionFile,
		DurationMS:     duration.Milliseconds(),
		Success:        true,
		Message:        fmt.Sprintf("Kernel ready (duration: %v)", duration),
	})
}

// LogStartupFailure records a failed launch.
func (l *EventLog) LogStartupFailure(pid int, exitCode int, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return l.writeEvent(LaunchEvent{
		Event:    EventStartupFailure,
		PID:      pid,
		ExitCode: exitCode,
		Success:  false,
		Message:  "Kernel failed to start",
		Error:    errMsg,
	})
}

// LogTerminate records that a kernel was stopped.
func (l *EventLog) LogTerminate(pid int, forced bool, duration time.Duration) error {
	message := "Kernel terminated"
	if forced {
		message = "Kernel killed after terminate timeout"
	}
	return l.writeEvent(LaunchEvent{
		Event:      EventTerminate,
		PID:        pid,
		DurationMS: duration.Milliseconds(),
		Success:    true,
		Message:    message,
	})
}

// writeEvent appends one event to the journal.
func (l *EventLog) writeEvent(event LaunchEvent) error {
	if l == nil || l.path == "" {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open launch journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// ParseEvents decodes a journal. Blank lines are skipped.
func ParseEvents(data []byte) ([]LaunchEvent, error) {
	var events []LaunchEvent
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var ev LaunchEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// parseFlags converts kernel arguments to a map of flags for the journal.
func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}

		key := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}

		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[key] = args[i+1]
			i++
		} else {
			flags[key] = "true"
		}
	}

	if len(flags) == 0 {
		return nil
	}
	return flags
}
