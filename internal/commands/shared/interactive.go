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
	"os"

	"golang.org/x/term"
)

// ciMarkers are environment variables set by common CI systems. A value
// of "" means any non-empty value counts.
var ciMarkers = map[string]string{
	"CI":             "true",
	"GITHUB_ACTIONS": "true",
	"GITLAB_CI":      "true",
	"CIRCLECI":       "true",
	"JENKINS_HOME":   "",
}

// IsNonInteractive reports whether output is going to a machine rather
// than a person: KERNELKIT_NON_INTERACTIVE=true, a CI environment, or a
// stderr that is not a terminal.
func IsNonInteractive() bool {
	if os.Getenv("KERNELKIT_NON_INTERACTIVE") == "true" {
		return true
	}
	return isCIEnvironment() || !isTerminal(os.Stderr)
}

func isCIEnvironment() bool {
	for name, want := range ciMarkers {
		value := os.Getenv(name)
		switch {
		case value == "":
		case want == "":
			return true
		case value == want || value == "1":
			return true
		}
	}
	return false
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
