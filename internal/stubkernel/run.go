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

package stubkernel

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tombee/kernelkit/internal/connection"
	internallog "github.com/tombee/kernelkit/internal/log"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// Run starts a kernel, publishes its descriptor for the current process
// and serves until a shutdown request arrives or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	dir := opts.ConfigDir
	if dir == "" {
		dir = os.Getenv(connection.ConfigDirEnv)
	}
	if dir == "" {
		return &kkerrors.ConfigError{
			Key:    connection.ConfigDirEnv,
			Reason: "config directory is not set",
		}
	}

	k := New(opts)
	info, err := k.Start(ctx)
	if err != nil {
		return err
	}
	defer k.Close()

	path := connection.Path(dir, opts.Profile, os.Getpid())
	if err := connection.Write(path, info); err != nil {
		return kkerrors.Wrap(err, "failed to publish descriptor")
	}
	internallog.WithKernel(k.logger, os.Getpid(), path).Info("kernel ready")

	select {
	case <-ctx.Done():
		k.logger.Info("kernel interrupted")
	case <-k.ShutdownRequested():
		k.logger.Info("kernel shutdown requested")
	}
	return k.Close()
}

// ParseAssignments turns "name=value" pairs into a namespace. Values are
// literals: integers or quoted strings. Unquoted non-numeric values are
// taken as plain strings.
func ParseAssignments(pairs []string) (map[string]any, error) {
	ns := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || !isIdent(name) {
			return nil, &kkerrors.ValidationError{
				Field:      "set",
				Message:    fmt.Sprintf("invalid assignment %q", pair),
				Suggestion: "use name=value, for example a=5 or b='hi there'",
			}
		}
		v, err := ParseValue(value)
		if err != nil {
			v = strings.TrimSpace(value)
		}
		ns[name] = v
	}
	return ns, nil
}
