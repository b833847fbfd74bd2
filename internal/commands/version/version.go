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

// Package version implements the version command.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tombee/kernelkit/internal/commands/shared"
	"github.com/tombee/kernelkit/internal/protocol"
)

// Info is the version report printed by the command.
type Info struct {
	shared.JSONResponse
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Protocol  string `json:"protocol_version"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the kernelkit build, the kernel message protocol version it
speaks and the Go toolchain it was built with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return write(cmd, current())
		},
	}
}

func current() Info {
	v, c, b := shared.GetVersion()
	return Info{
		JSONResponse: shared.JSONResponse{Version: "1.0", Command: "version", Success: true},
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		Protocol:     protocol.ProtocolVersion,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func write(cmd *cobra.Command, info Info) error {
	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, info); err != nil {
			return fmt.Errorf("failed to encode version info: %w", err)
		}
		return nil
	}

	fmt.Fprintf(out, "kernelkit %s (%s, built %s)\n", info.Version, info.Commit, info.BuildDate)
	fmt.Fprintf(out, "protocol %s, %s %s\n", info.Protocol, info.GoVersion, info.Platform)
	return nil
}
