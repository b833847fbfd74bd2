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

package errors

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for invalid configuration values, malformed descriptors, or
// bad command-line input.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable implements ErrorClassifier.
func (e *ValidationError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "launch.startup_timeout")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when a blocking wait exceeds its configured timeout, such as
// waiting for a kernel reply.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "shell reply")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return false }

// StartupReason identifies why a kernel launch failed.
type StartupReason string

const (
	// ReasonSpawnFailed means the child process could not be started at all.
	ReasonSpawnFailed StartupReason = "spawn_failed"

	// ReasonProcessExited means the child exited before publishing its
	// connection descriptor.
	ReasonProcessExited StartupReason = "process_exited"

	// ReasonDescriptorTimeout means the descriptor never appeared within the
	// startup timeout while the child was still alive.
	ReasonDescriptorTimeout StartupReason = "descriptor_timeout"

	// ReasonWaitFailed means the readiness check itself failed before the
	// descriptor appeared, for example a file watch could not be set up.
	ReasonWaitFailed StartupReason = "wait_failed"

	// ReasonClientFailed means the descriptor appeared but a client could
	// not be bound to it.
	ReasonClientFailed StartupReason = "client_failed"
)

// StartupError is returned when a launched kernel never becomes ready.
// Startup errors are terminal: callers must not retry automatically.
type StartupError struct {
	// Reason classifies the failure
	Reason StartupReason

	// PID is the child process id (0 when spawning failed)
	PID int

	// Path is the connection descriptor path that was awaited
	Path string

	// ExitCode is the child's exit code when Reason is ReasonProcessExited
	ExitCode int

	// Stderr holds the child's captured standard error output
	Stderr string

	// Timeout is the startup timeout in effect
	Timeout time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StartupError) Error() string {
	var msg string
	switch e.Reason {
	case ReasonProcessExited:
		msg = fmt.Sprintf("kernel failed to start (pid %d, exit code %d)", e.PID, e.ExitCode)
	case ReasonDescriptorTimeout:
		msg = fmt.Sprintf("connection file %q never arrived within %v", e.Path, e.Timeout)
	case ReasonWaitFailed:
		msg = fmt.Sprintf("could not wait for connection file %q", e.Path)
	case ReasonClientFailed:
		msg = fmt.Sprintf("kernel started but client could not connect using %q", e.Path)
	case ReasonSpawnFailed:
		msg = "kernel process could not be spawned"
	default:
		msg = "kernel failed to start"
	}

	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg = fmt.Sprintf("%s:\n%s", msg, stderr)
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StartupError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *StartupError) ErrorType() string { return "startup" }

// IsRetryable implements ErrorClassifier. Startup failures are never retried.
func (e *StartupError) IsRetryable() bool { return false }
