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

// Package launch implements the launch command: start a kernel, wait for
// it to become ready, run a sequence of requests and tear it down.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/kernelkit/internal/client"
	"github.com/tombee/kernelkit/internal/commands/completion"
	"github.com/tombee/kernelkit/internal/commands/shared"
	"github.com/tombee/kernelkit/internal/lifecycle"
	"github.com/tombee/kernelkit/internal/protocol"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Request kinds accepted on the command line.
const (
	KindInspect = "inspect"
	KindExecute = "execute"
)

// Request is one --inspect or --execute flag, kept in command-line order.
type Request struct {
	Kind string `json:"kind"`
	Arg  string `json:"arg"`
}

// requestFlag appends to a shared list so --inspect and --execute keep
// their relative order.
type requestFlag struct {
	kind string
	list *[]Request
}

func (f *requestFlag) String() string { return "" }
func (f *requestFlag) Type() string   { return "string" }

func (f *requestFlag) Set(v string) error {
	*f.list = append(*f.list, Request{Kind: f.kind, Arg: v})
	return nil
}

type options struct {
	requests       []Request
	timeout        time.Duration
	startupTimeout time.Duration
	readiness      string
	dir            string
	env            []string
}

// Result is the JSON document printed with --json.
type Result struct {
	shared.JSONResponse
	PID            int       `json:"pid"`
	ConnectionFile string    `json:"connection_file"`
	Replies        []Outcome `json:"replies"`
}

// Outcome pairs a request with its decoded reply.
type Outcome struct {
	Request
	Inspect *protocol.ObjectInfoReply `json:"inspect,omitempty"`
	Execute *protocol.ExecuteReply    `json:"execute,omitempty"`
}

// NewCommand creates the launch command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "launch [flags] -- <command> [args...]",
		Short: "Launch a kernel and send it requests",
		Long: `Launch a kernel process, wait for its connection file and connect to it.

Requests given with --inspect and --execute run in command-line order once
the kernel is ready. The kernel is terminated afterwards, whether or not
the requests succeed.

Exit codes:
  0  all requests succeeded
  2  invalid configuration
  3  the kernel never became ready
  4  a request failed or timed out`,
		Example: `  kernelkit launch --inspect a -- kernelkit stub --set a=5
  kernelkit launch --execute 'c = a*2' --inspect c --json -- kernelkit stub --set a=5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().Var(&requestFlag{kind: KindInspect, list: &opts.requests}, "inspect", "Inspect a name in the kernel namespace (repeatable)")
	cmd.Flags().Var(&requestFlag{kind: KindExecute, list: &opts.requests}, "execute", "Execute code in the kernel (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Reply timeout per request (default: client.reply_timeout)")
	cmd.Flags().DurationVar(&opts.startupTimeout, "startup-timeout", 0, "How long to wait for the connection file (default: launch.startup_timeout)")
	cmd.Flags().StringVar(&opts.readiness, "readiness", "", "Readiness strategy: poll or watch (default: launch.readiness)")
	_ = cmd.RegisterFlagCompletionFunc("readiness", completion.CompleteReadiness)
	cmd.Flags().StringVar(&opts.dir, "cwd", "", "Working directory for the kernel process")
	cmd.Flags().StringArrayVar(&opts.env, "env", nil, "Extra KEY=VALUE for the kernel environment (repeatable)")

	return cmd
}

func run(cmd *cobra.Command, args []string, opts options) (err error) {
	rt, err := shared.LoadRuntime(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.startupTimeout > 0 {
		rt.Config.Launch.StartupTimeout = opts.startupTimeout
	}
	if opts.readiness != "" {
		rt.Config.Launch.Readiness = opts.readiness
	}

	launcher, err := rt.NewLauncher()
	if err != nil {
		return err
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = rt.Config.Client.ReplyTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kc := lifecycle.Command{Path: args[0], Args: args[1:], Dir: opts.dir}
	if len(opts.env) > 0 {
		kc.Env = append(os.Environ(), opts.env...)
	}

	k, err := launcher.Launch(ctx, kc)
	if err != nil {
		if shared.GetJSON() {
			_ = shared.EmitJSONError(cmd.OutOrStdout(), "launch", []shared.JSONError{launchError(err)})
		}
		return err
	}
	defer func() {
		if closeErr := k.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	out := cmd.OutOrStdout()
	asJSON := shared.GetJSON()
	if !asJSON {
		fmt.Fprintf(out, "kernel ready (pid %d)\n", k.PID())
		fmt.Fprintf(out, "connection file: %s\n", k.DescriptorPath())
	}

	outcomes, err := Send(ctx, k.Client(), opts.requests, timeout)
	if err != nil {
		return shared.NewRequestError("request failed", err)
	}

	if asJSON {
		err = shared.EmitJSON(out, Result{
			JSONResponse:   shared.JSONResponse{Version: "1.0", Command: "launch", Success: !anyFailed(outcomes)},
			PID:            k.PID(),
			ConnectionFile: k.DescriptorPath(),
			Replies:        outcomes,
		})
		if err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			printOutcome(out, o)
		}
	}

	if anyFailed(outcomes) {
		return &shared.ExitError{Code: shared.ExitRequestFailed, Message: "one or more requests failed"}
	}
	return nil
}

// launchError describes a failed launch for JSON output.
func launchError(err error) shared.JSONError {
	je := shared.JSONError{Code: "launch_failed", Message: err.Error()}
	if se, ok := kkerrors.AsStartup(err); ok {
		je.Code = string(se.Reason)
		je.Message = se.Error()
		je.Stderr = se.Stderr
	}
	return je
}

// Send runs requests against c in order, stopping at the first transport
// error or timeout.
func Send(ctx context.Context, c *client.Client, requests []Request, timeout time.Duration) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(requests))
	for _, req := range requests {
		o := Outcome{Request: req}
		switch req.Kind {
		case KindInspect:
			reply, err := c.Inspect(ctx, req.Arg, timeout)
			if err != nil {
				return outcomes, fmt.Errorf("inspect %s: %w", req.Arg, err)
			}
			o.Inspect = reply
		case KindExecute:
			reply, err := c.Run(ctx, req.Arg, timeout)
			if err != nil {
				return outcomes, fmt.Errorf("execute %q: %w", req.Arg, err)
			}
			o.Execute = reply
		default:
			return outcomes, errors.New("unknown request kind " + req.Kind)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func anyFailed(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Execute != nil && o.Execute.Status != protocol.StatusOK {
			return true
		}
	}
	return false
}

func printOutcome(w io.Writer, o Outcome) {
	switch {
	case o.Inspect != nil && o.Inspect.Found:
		fmt.Fprintf(w, "%s = %s (%s)\n", o.Inspect.Name, o.Inspect.StringForm, o.Inspect.TypeName)
	case o.Inspect != nil:
		fmt.Fprintf(w, "%s: not found\n", o.Arg)
	case o.Execute != nil && o.Execute.Status == protocol.StatusOK:
		fmt.Fprintf(w, "[%d] ok: %s\n", o.Execute.ExecutionCount, o.Arg)
	case o.Execute != nil:
		fmt.Fprintf(w, "[%d] %s: %s: %s\n", o.Execute.ExecutionCount, o.Execute.Status, o.Execute.Ename, o.Execute.Evalue)
	}
}
