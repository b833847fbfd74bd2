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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
)

// Signer computes and checks message signatures. A Signer with an empty key
// signs nothing and accepts everything.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Enabled reports whether messages are signed.
func (s *Signer) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Sign sets m.Signature.
func (s *Signer) Sign(m *Message) error {
	if !s.Enabled() {
		m.Signature = ""
		return nil
	}
	sig, err := s.digest(m)
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks m.Signature, returning ErrBadSignature on mismatch.
func (s *Signer) Verify(m *Message) error {
	if !s.Enabled() {
		return nil
	}
	want, err := s.digest(m)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(want), []byte(m.Signature)) {
		return fmt.Errorf("%w: msg_id %s", ErrBadSignature, m.Header.MsgID)
	}
	return nil
}

func (s *Signer) digest(m *Message) (string, error) {
	mac := hmac.New(sha256.New, s.key)

	for _, part := range []interface{}{m.Header, m.ParentHeader} {
		data, err := json.Marshal(part)
		if err != nil {
			return "", fmt.Errorf("failed to marshal header: %w", err)
		}
		mac.Write(data)
	}
	for _, raw := range []json.RawMessage{m.Metadata, m.Content} {
		if err := writeCompact(mac, raw); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// writeCompact feeds raw to h in compact form so that signatures match
// regardless of how the JSON was indented on the wire.
func writeCompact(h hash.Hash, raw json.RawMessage) error {
	if len(raw) == 0 {
		h.Write([]byte("{}"))
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	h.Write(buf.Bytes())
	return nil
}
