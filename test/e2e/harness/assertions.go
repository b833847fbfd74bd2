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
	"testing"

	"github.com/tombee/kernelkit/internal/protocol"
)

// AssertFound asserts that reply describes a defined name whose string
// form is want.
func AssertFound(t *testing.T, reply *protocol.ObjectInfoReply, want string) {
	t.Helper()

	if reply == nil {
		t.Fatal("reply is nil")
	}
	if !reply.Found {
		t.Fatalf("expected %q to be found", reply.Name)
	}
	if reply.StringForm != want {
		t.Errorf("%s: expected string form %q, got %q", reply.Name, want, reply.StringForm)
	}
}

// AssertNotFound asserts that reply describes an undefined name.
func AssertNotFound(t *testing.T, reply *protocol.ObjectInfoReply) {
	t.Helper()

	if reply == nil {
		t.Fatal("reply is nil")
	}
	if reply.Found {
		t.Errorf("expected %q to be undefined, got %q", reply.Name, reply.StringForm)
	}
}

// AssertExecuteOK asserts that an execute request succeeded.
func AssertExecuteOK(t *testing.T, reply *protocol.ExecuteReply) {
	t.Helper()

	if reply == nil {
		t.Fatal("reply is nil")
	}
	if reply.Status != protocol.StatusOK {
		t.Errorf("expected status ok, got %s (%s: %s)", reply.Status, reply.Ename, reply.Evalue)
	}
}

// AssertExecuteError asserts that an execute request failed with ename.
func AssertExecuteError(t *testing.T, reply *protocol.ExecuteReply, ename string) {
	t.Helper()

	if reply == nil {
		t.Fatal("reply is nil")
	}
	if reply.Status != protocol.StatusError {
		t.Fatalf("expected status error, got %s", reply.Status)
	}
	if reply.Ename != ename {
		t.Errorf("expected %s, got %s: %s", ename, reply.Ename, reply.Evalue)
	}
}

// AssertEvents asserts that the launch journal recorded exactly the given
// event names in order.
func (h *Harness) AssertEvents(t *testing.T, want ...string) {
	t.Helper()

	events := h.Events()
	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = ev.Event
	}

	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}
