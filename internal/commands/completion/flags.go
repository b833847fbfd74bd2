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

package completion

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tombee/kernelkit/internal/connection"
)

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteProfiles lists profile directories under the config directory
// given by --dir or $KERNELKIT_DIR. Only directories holding a security
// subdirectory count as profiles.
func CompleteProfiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		dir := os.Getenv(connection.ConfigDirEnv)
		if f := cmd.Flags().Lookup("dir"); f != nil && f.Value.String() != "" {
			dir = f.Value.String()
		}
		if dir == "" {
			return []string{connection.DefaultProfile}, cobra.ShellCompDirectiveNoFileComp
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		var profiles []string
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if info, err := os.Stat(connection.SecurityDir(dir, e.Name())); err == nil && info.IsDir() {
				profiles = append(profiles, e.Name())
			}
		}
		sort.Strings(profiles)
		return profiles, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteReadiness provides completion for readiness strategy values.
func CompleteReadiness(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"poll\tStat the connection file on an interval",
			"watch\tWatch the security directory for the connection file",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
