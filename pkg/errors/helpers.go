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
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
//
// Usage:
//
//	if err := connection.Write(path, info); err != nil {
//	    return errors.Wrap(err, "failed to publish descriptor")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// AsStartup extracts a *StartupError from err's chain.
//
// Usage:
//
//	if se, ok := errors.AsStartup(err); ok {
//	    fmt.Fprintln(os.Stderr, se.Stderr)
//	}
func AsStartup(err error) (*StartupError, bool) {
	var se *StartupError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsTimeout reports whether err's chain contains a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsRetryable reports whether the first ErrorClassifier in err's chain
// allows a retry. Errors that do not classify themselves are not retryable.
func IsRetryable(err error) bool {
	var ec ErrorClassifier
	if errors.As(err, &ec) {
		return ec.IsRetryable()
	}
	return false
}
