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
Package client is a blocking client for a running kernel.

A Client is bound to one connection descriptor. StartChannels dials the
shell and control sockets and starts one reader goroutine per channel;
replies are queued until a caller collects them.

# Basic Usage

	c, err := client.FromFile(path)
	if err != nil {
	    return err
	}
	if err := c.StartChannels(ctx); err != nil {
	    return err
	}
	defer c.StopChannels()

	if _, err := c.ObjectInfo(ctx, "a"); err != nil {
	    return err
	}
	reply, err := c.GetShellMsg(ctx, 15*time.Second)

Request methods return the id of the sent message. GetShellMsg and
GetControlMsg return the next queued reply in arrival order, so callers
that interleave requests should match replies with Message.IsReplyTo.
Call does both for the common one-request-one-reply case.

# Signatures

Replies are verified against the descriptor's key. Replies that fail
verification are dropped, logged and counted; they never reach a caller.
*/
package client
