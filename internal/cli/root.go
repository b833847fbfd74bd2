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

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/kernelkit/internal/commands/shared"
)

// SetVersion records build information for the version command.
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the kernelkit root command with its persistent
// flags. Subcommands are added by the caller.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kernelkit",
		Short: "Launch and drive kernel processes",
		Long: `kernelkit starts kernel processes, waits for them to publish a
connection file and talks to them over signed shell and control channels.

Run 'kernelkit launch --inspect a -- kernelkit stub --set a=5' for a quick
round trip against the built-in stub kernel.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: checkConfigFlag,
	}

	verbose, json, config, minilog := shared.RegisterFlagPointers()

	flags := cmd.PersistentFlags()
	flags.BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(json, "json", false, "Output in JSON format")
	flags.StringVar(config, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/kernelkit/config.yaml)")
	flags.BoolVar(minilog, "minilog", false, "Mirror logs to the per-process minilog file in the temp dir")
	_ = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")

	return cmd
}

// checkConfigFlag rejects an explicit --config that does not exist. The
// default location may be absent; an explicit path may not.
func checkConfigFlag(cmd *cobra.Command, args []string) error {
	path := shared.GetConfigPath()
	if path == "" || !cmd.Flags().Changed("config") {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return shared.NewConfigError(fmt.Sprintf("config file %s", path), err)
	}
	return nil
}

// GetVersion returns the recorded build information.
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err and exits with its mapped code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
