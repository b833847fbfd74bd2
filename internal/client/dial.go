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

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/tombee/kernelkit/internal/connection"
)

// DefaultDialTimeout bounds each channel dial.
const DefaultDialTimeout = 10 * time.Second

// KernelNotRunningError indicates nothing is listening on a kernel socket.
type KernelNotRunningError struct {
	Channel connection.Channel
	Address string
	Err     error
}

func (e *KernelNotRunningError) Error() string {
	return fmt.Sprintf("kernel is not accepting %s connections (address: %s)", e.Channel, e.Address)
}

func (e *KernelNotRunningError) Unwrap() error {
	return e.Err
}

// Guidance returns user-friendly guidance for a stale descriptor.
func (e *KernelNotRunningError) Guidance() string {
	return `The kernel named by this connection file is not running.

The connection file may be left over from a kernel that has exited.
Start a new kernel with:
  kernelkit launch -- <kernel command>`
}

// IsKernelNotRunning checks if an error indicates the kernel is gone.
func IsKernelNotRunning(err error) bool {
	if err == nil {
		return false
	}
	var knr *KernelNotRunningError
	if errors.As(err, &knr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// dialChannel opens a connection to one kernel channel.
func dialChannel(ctx context.Context, info *connection.Info, ch connection.Channel, timeout time.Duration) (net.Conn, error) {
	network, addr, err := info.Endpoint(ch)
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
			return nil, &KernelNotRunningError{Channel: ch, Address: addr, Err: err}
		}
		return nil, fmt.Errorf("failed to dial %s channel at %s: %w", ch, addr, err)
	}
	return conn, nil
}
