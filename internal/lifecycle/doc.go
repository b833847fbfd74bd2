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
Package lifecycle launches kernel processes and waits for them to become
ready.

A kernel signals readiness by writing a connection descriptor to

	<config dir>/<profile>/security/kernel-<pid>.json

The launcher exports the config directory to the child, spawns it with
its output captured, and waits for that file. The wait ends when the file
appears, when the child exits, or when the startup timeout passes. Only
the first outcome is success; the other two terminate the child and
return a *errors.StartupError carrying the captured stderr. There are no
retries.

# Launching

	launcher, err := lifecycle.NewLauncher(lifecycle.Options{
	    StartupTimeout: 60 * time.Second,
	}, logger)
	if err != nil {
	    return err
	}

	k, err := launcher.Launch(ctx, lifecycle.Command{
	    Path: "kernelkit",
	    Args: []string{"stub", "--set", "a=5"},
	})
	if err != nil {
	    return err
	}
	defer k.Close()

# Scoped Use

With guarantees teardown on every exit path, including a panic:

	err := launcher.With(ctx, cmd, func(c *client.Client) error {
	    info, err := c.Inspect(ctx, "a", 15*time.Second)
	    ...
	})

# Readiness

The default PollWaiter stats the descriptor path every 100ms. The
WatchWaiter waits on filesystem events for the security directory and
falls back to a slow stat.

# Journal

An EventLog records launch, ready, startup_failure and terminate events
as JSON lines for later inspection.
*/
package lifecycle
