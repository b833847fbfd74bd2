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
Package minilog is a tiny append-only debug log shared by every goroutine
of a process.

Each entry is written as a header naming the calling goroutine followed by
the message body:

	----goroutine-18----
	setup kernel, waiting for connection file: /tmp/kk/profile_default/security/kernel-4242.json

A Logger owns its file handle and its lock; construct one and pass it to
whatever needs it:

	ml, err := minilog.OpenDefault()
	if err != nil {
	    return err
	}
	ml.Log("about to yield client")

Opening a Logger removes any file already at the path, so every process
starts with an empty log. There is no rotation and no size bound.
*/
package minilog
