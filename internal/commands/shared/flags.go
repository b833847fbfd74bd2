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

// globals holds the persistent flag values bound by the root command.
var globals struct {
	verbose bool
	json    bool
	config  string
	minilog bool
}

// build is stamped by main from ldflags.
var build = struct{ version, commit, date string }{"dev", "unknown", "unknown"}

// RegisterFlagPointers returns the storage the root command binds its
// persistent flags to.
func RegisterFlagPointers() (verbose, json *bool, config *string, minilog *bool) {
	return &globals.verbose, &globals.json, &globals.config, &globals.minilog
}

// SetVersion records build information.
func SetVersion(v, c, b string) {
	build.version, build.commit, build.date = v, c, b
}

// GetVersion returns version, commit and build date.
func GetVersion() (string, string, string) {
	return build.version, build.commit, build.date
}

func GetVerbose() bool      { return globals.verbose }
func GetJSON() bool         { return globals.json }
func GetConfigPath() string { return globals.config }
func GetMinilog() bool      { return globals.minilog }

// SetConfigPathForTest overrides --config.
func SetConfigPathForTest(path string) { globals.config = path }

// SetJSONForTest overrides --json.
func SetJSONForTest(v bool) { globals.json = v }
