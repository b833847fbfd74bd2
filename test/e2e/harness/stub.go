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

package harness

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/kernelkit/internal/lifecycle"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/stubkernel"
)

const (
	// stubEnv marks a re-executed test binary that should serve as a kernel.
	stubEnv = "KERNELKIT_E2E_KERNEL"

	// Kernel modes understood by RunIfKernel.
	ModeStub  = "stub"
	ModeCrash = "crash"
	ModeHang  = "hang"

	// ModeSilent exits 0 at once without writing anything.
	ModeSilent = "silent"
)

// StubCommand re-executes the test binary as a stub kernel seeded with
// nsArgs. The test package's TestMain must call RunIfKernel first.
func StubCommand(nsArgs ...string) lifecycle.Command {
	return KernelCommand(ModeStub, nsArgs...)
}

// KernelCommand re-executes the test binary in the given kernel mode.
func KernelCommand(mode string, nsArgs ...string) lifecycle.Command {
	return lifecycle.Command{
		Path: os.Args[0],
		Args: append([]string{"--"}, nsArgs...),
		Env:  append(os.Environ(), stubEnv+"="+mode),
	}
}

// RunIfKernel turns the current process into a kernel when it was started
// by KernelCommand, and never returns in that case. Call it at the top of
// TestMain.
func RunIfKernel() {
	mode := os.Getenv(stubEnv)
	if mode == "" {
		return
	}

	args := os.Args[1:]
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	os.Exit(runKernel(mode, args))
}

func runKernel(mode string, args []string) int {
	switch mode {
	case ModeCrash:
		fmt.Fprintln(os.Stderr, "kernel crashed before publishing its connection file")
		return 3
	case ModeSilent:
		return 0
	case ModeHang:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return 0
	case ModeStub:
	default:
		fmt.Fprintf(os.Stderr, "unknown kernel mode %q\n", mode)
		return 2
	}

	ns, err := stubkernel.ParseAssignments(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()
	if err := stubkernel.Run(ctx, stubkernel.Options{
		Namespace: ns,
		Logger:    internallog.New(internallog.FromEnv()),
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
