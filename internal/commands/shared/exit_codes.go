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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Exit codes for kernelkit commands
const (
	ExitSuccess       = 0
	ExitFailed        = 1
	ExitInvalidConfig = 2
	ExitStartupFailed = 3
	ExitRequestFailed = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for unusable configuration.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidConfig, Message: msg, Cause: cause}
}

// NewRequestError creates an error for a failed or timed out request.
func NewRequestError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitRequestFailed, Message: msg, Cause: cause}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if _, ok := kkerrors.AsStartup(err); ok {
		return ExitStartupFailed
	}
	return ExitFailed
}

// HandleExitError prints err and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and any guidance found in its chain to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err.Error())
	printGuidance(w, err)
}

type guidedError interface {
	Guidance() string
}

// printGuidance walks the error chain for an error that carries
// remediation text and prints it.
func printGuidance(w io.Writer, err error) {
	var g guidedError
	if errors.As(err, &g) {
		if text := g.Guidance(); text != "" {
			fmt.Fprintf(w, "\nSuggestion: %s\n", text)
		}
	}
}
