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

// Package connection reads and writes kernel connection descriptors.
//
// A descriptor is a small JSON file the kernel writes once it is ready to
// accept connections. Its path is keyed by the kernel's process id:
//
//	<config dir>/<profile>/security/kernel-<pid>.json
package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor is malformed.
	ErrInvalidDescriptor = errors.New("connection: invalid descriptor")

	// ErrUnknownChannel is returned for a channel name the descriptor cannot resolve.
	ErrUnknownChannel = errors.New("connection: unknown channel")
)

// DefaultProfile is the profile directory kernels use when none is given.
const DefaultProfile = "profile_default"

// ConfigDirEnv names the environment variable a launched kernel reads to
// find the config directory it publishes descriptors under.
const ConfigDirEnv = "KERNELKIT_DIR"

// Channel names one of the kernel's sockets.
type Channel string

const (
	ChannelShell   Channel = "shell"
	ChannelControl Channel = "control"
	ChannelIOPub   Channel = "iopub"
	ChannelStdin   Channel = "stdin"
	ChannelHB      Channel = "hb"
)

// Transport values understood by Endpoint.
const (
	TransportTCP = "tcp"
	TransportIPC = "ipc"
)

// SchemeHMACSHA256 is the only supported signature scheme.
const SchemeHMACSHA256 = "hmac-sha256"

// Info is the decoded connection descriptor.
type Info struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// SecurityDir returns the directory descriptors are written to.
func SecurityDir(configDir, profile string) string {
	if profile == "" {
		profile = DefaultProfile
	}
	return filepath.Join(configDir, profile, "security")
}

// Path returns the descriptor path for the kernel with the given pid.
func Path(configDir, profile string, pid int) string {
	return filepath.Join(SecurityDir(configDir, profile), fmt.Sprintf("kernel-%d.json", pid))
}

// Load reads and validates the descriptor at path.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection file: %w", err)
	}
	info, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// Parse decodes and validates a descriptor.
func Parse(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// Write stores the descriptor at path atomically: readers either see no
// file or the complete file, never a partial write.
func Write(path string, info *Info) error {
	if err := info.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create descriptor directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".kernel-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp descriptor: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close descriptor: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish descriptor: %w", err)
	}
	return nil
}

// Validate checks that the descriptor is usable by a client.
func (i *Info) Validate() error {
	switch i.Transport {
	case TransportTCP:
		if net.ParseIP(i.IP) == nil {
			return fmt.Errorf("%w: invalid ip %q", ErrInvalidDescriptor, i.IP)
		}
	case TransportIPC:
		if i.IP == "" {
			return fmt.Errorf("%w: ipc transport needs a socket path prefix in ip", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: unsupported transport %q", ErrInvalidDescriptor, i.Transport)
	}

	if i.ShellPort <= 0 || i.ControlPort <= 0 {
		return fmt.Errorf("%w: shell and control ports are required", ErrInvalidDescriptor)
	}

	switch i.SignatureScheme {
	case "", SchemeHMACSHA256:
	default:
		return fmt.Errorf("%w: unsupported signature scheme %q", ErrInvalidDescriptor, i.SignatureScheme)
	}

	return nil
}

// Port returns the port number assigned to channel.
func (i *Info) Port(ch Channel) (int, error) {
	var port int
	switch ch {
	case ChannelShell:
		port = i.ShellPort
	case ChannelControl:
		port = i.ControlPort
	case ChannelIOPub:
		port = i.IOPubPort
	case ChannelStdin:
		port = i.StdinPort
	case ChannelHB:
		port = i.HBPort
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	if port <= 0 {
		return 0, fmt.Errorf("%w: %q has no port", ErrUnknownChannel, ch)
	}
	return port, nil
}

// Endpoint returns the network and address to dial for channel.
// For ipc transports the address is "<ip>-<port>", a unix socket path.
func (i *Info) Endpoint(ch Channel) (network, address string, err error) {
	port, err := i.Port(ch)
	if err != nil {
		return "", "", err
	}

	if i.Transport == TransportIPC {
		return "unix", i.IP + "-" + strconv.Itoa(port), nil
	}
	return "tcp", net.JoinHostPort(i.IP, strconv.Itoa(port)), nil
}
