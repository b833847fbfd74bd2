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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the message protocol version stamped on every header.
const ProtocolVersion = "4.1"

var (
	// ErrInvalidMessage is returned when a message cannot be parsed.
	ErrInvalidMessage = errors.New("protocol: invalid message format")

	// ErrBadSignature is returned when a message signature does not verify.
	ErrBadSignature = errors.New("protocol: bad message signature")
)

// Message types.
const (
	MsgExecuteRequest    = "execute_request"
	MsgExecuteReply      = "execute_reply"
	MsgObjectInfoRequest = "object_info_request"
	MsgObjectInfoReply   = "object_info_reply"
	MsgKernelInfoRequest = "kernel_info_request"
	MsgKernelInfoReply   = "kernel_info_reply"
	MsgShutdownRequest   = "shutdown_request"
	MsgShutdownReply     = "shutdown_reply"
)

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusAbort = "abort"
)

// Header identifies a message and its sender.
type Header struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Message is the envelope exchanged on every channel.
type Message struct {
	// Header describes this message
	Header Header `json:"header"`

	// ParentHeader is the header of the request a reply answers (zero for requests)
	ParentHeader Header `json:"parent_header"`

	// Metadata is free-form and usually empty
	Metadata json.RawMessage `json:"metadata"`

	// Content holds the type-specific payload
	Content json.RawMessage `json:"content"`

	// Signature is the hex HMAC of header, parent header, metadata and content
	Signature string `json:"signature,omitempty"`
}

// ExecuteRequest asks the kernel to run code.
type ExecuteRequest struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent"`
	StoreHistory bool   `json:"store_history"`
	AllowStdin   bool   `json:"allow_stdin"`
}

// ExecuteReply reports the outcome of an ExecuteRequest.
type ExecuteReply struct {
	Status         string   `json:"status"`
	ExecutionCount int      `json:"execution_count"`
	Ename          string   `json:"ename,omitempty"`
	Evalue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
}

// ObjectInfoRequest asks the kernel to describe a name in its namespace.
type ObjectInfoRequest struct {
	Oname       string `json:"oname"`
	DetailLevel int    `json:"detail_level"`
}

// ObjectInfoReply describes a name. StringForm is only set when Found.
type ObjectInfoReply struct {
	Name       string `json:"name"`
	Found      bool   `json:"found"`
	StringForm string `json:"string_form,omitempty"`
	TypeName   string `json:"type_name,omitempty"`
}

// KernelInfoReply identifies the kernel implementation.
type KernelInfoReply struct {
	ProtocolVersion       string `json:"protocol_version"`
	Implementation        string `json:"implementation"`
	ImplementationVersion string `json:"implementation_version"`
	Language              string `json:"language"`
}

// ShutdownRequest asks the kernel to exit, optionally restarting.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// ShutdownReply acknowledges a ShutdownRequest.
type ShutdownReply struct {
	Restart bool `json:"restart"`
}

// NewRequest creates a request with a fresh message id.
func NewRequest(session, username, msgType string, content interface{}) (*Message, error) {
	return newMessage(Header{}, session, username, msgType, content)
}

// NewReply creates a reply to parent. The reply shares the parent's session.
func NewReply(parent *Message, msgType string, content interface{}) (*Message, error) {
	return newMessage(parent.Header, parent.Header.Session, "kernel", msgType, content)
}

func newMessage(parent Header, session, username, msgType string, content interface{}) (*Message, error) {
	contentJSON := json.RawMessage("{}")
	if content != nil {
		data, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content: %w", err)
		}
		contentJSON = data
	}

	return &Message{
		Header: Header{
			MsgID:    uuid.New().String(),
			Session:  session,
			Username: username,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			MsgType:  msgType,
			Version:  ProtocolVersion,
		},
		ParentHeader: parent,
		Metadata:     json.RawMessage("{}"),
		Content:      contentJSON,
	}, nil
}

// ReplyType maps a request type to its reply type.
func ReplyType(requestType string) string {
	return strings.TrimSuffix(requestType, "_request") + "_reply"
}

// IsReplyTo reports whether m answers the request with the given id.
func (m *Message) IsReplyTo(msgID string) bool {
	return m.ParentHeader.MsgID != "" && m.ParentHeader.MsgID == msgID
}

// Validate checks if the message is well-formed.
func (m *Message) Validate() error {
	if m.Header.MsgID == "" {
		return fmt.Errorf("%w: missing msg_id", ErrInvalidMessage)
	}
	if m.Header.MsgType == "" {
		return fmt.Errorf("%w: missing msg_type", ErrInvalidMessage)
	}
	return nil
}

// UnmarshalContent unmarshals the content field into v.
func (m *Message) UnmarshalContent(v interface{}) error {
	if len(m.Content) == 0 {
		return nil
	}
	return json.Unmarshal(m.Content, v)
}

// ParseMessage parses a JSON message without verifying its signature.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
