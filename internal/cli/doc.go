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

/*
Package cli provides the root command for kernelkit.

This package creates the root Cobra command and handles global concerns like
version information, persistent flags, and exit codes. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	kernelkit
	├── launch       Launch a kernel and send it requests
	├── stub         Run the built-in stub kernel
	├── completion   Generate shell completion scripts
	└── version      Show version

# Usage

From main.go:

	cli.SetVersion(version, commit, buildDate)
	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(launch.NewCommand())
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable debug logging
	--json           Output in JSON format
	--config         Path to config file (must exist when given)
	--minilog        Mirror logs into the per-process minilog file
*/
package cli
