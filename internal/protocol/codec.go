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

package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Codec frames messages as newline-delimited JSON over a stream.
// Encode is safe for concurrent use; Decode must be called from a single
// reader goroutine.
type Codec struct {
	signer *Signer

	r *bufio.Reader

	mu sync.Mutex
	w  io.Writer
}

// NewCodec wraps rw. signer may be nil for unsigned streams.
func NewCodec(rw io.ReadWriter, signer *Signer) *Codec {
	return &Codec{
		signer: signer,
		r:      bufio.NewReader(rw),
		w:      rw,
	}
}

// Encode signs m and writes it as a single line.
func (c *Codec) Encode(m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := c.signer.Sign(m); err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// Decode reads the next message and verifies its signature. It returns
// io.EOF when the stream ends cleanly between messages.
func (c *Codec) Decode() (*Message, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF && len(line) == 0 {
			return nil, io.EOF
		}
		if err != io.EOF {
			return nil, err
		}
	}

	msg, err := ParseMessage(line)
	if err != nil {
		return nil, err
	}
	if err := c.signer.Verify(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
