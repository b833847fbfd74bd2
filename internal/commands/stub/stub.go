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

// Package stub implements the stub command, which runs the built-in stub
// kernel in the foreground.
package stub

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/kernelkit/internal/commands/completion"
	"github.com/tombee/kernelkit/internal/commands/shared"
	"github.com/tombee/kernelkit/internal/connection"
	"github.com/tombee/kernelkit/internal/stubkernel"
)

type options struct {
	sets      []string
	profile   string
	configDir string
	ip        string
	key       string
}

// NewCommand creates the stub command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run the stub kernel",
		Long: `Run the stub kernel in the foreground.

The kernel listens on loopback, writes its connection file to
<dir>/<profile>/security/kernel-<pid>.json and serves until it receives a
shutdown request, SIGINT or SIGTERM. The directory defaults to $` + connection.ConfigDirEnv + `,
which the launcher sets for every kernel it starts.`,
		Example: `  kernelkit stub --set a=5 --set 'b="hi there"'
  kernelkit launch --inspect a -- kernelkit stub --set a=5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Seed the namespace with name=value (repeatable)")
	cmd.Flags().StringVar(&opts.profile, "profile", connection.DefaultProfile, "Profile directory for the connection file")
	_ = cmd.RegisterFlagCompletionFunc("profile", completion.CompleteProfiles)
	cmd.Flags().StringVar(&opts.configDir, "dir", "", "Config directory (default: $"+connection.ConfigDirEnv+")")
	cmd.Flags().StringVar(&opts.ip, "ip", "127.0.0.1", "Address to listen on")
	cmd.Flags().StringVar(&opts.key, "key", "", "Signing key (default: random)")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	ns, err := stubkernel.ParseAssignments(opts.sets)
	if err != nil {
		return shared.NewConfigError("invalid --set", err)
	}

	rt, err := shared.LoadRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return stubkernel.Run(ctx, stubkernel.Options{
		Namespace: ns,
		Key:       opts.key,
		IP:        opts.ip,
		Logger:    rt.Logger,
		ConfigDir: opts.configDir,
		Profile:   opts.profile,
	})
}
