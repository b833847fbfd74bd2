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
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/kernelkit/internal/connection"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/protocol"
	"github.com/tombee/kernelkit/internal/tracing"
	kkerrors "github.com/tombee/kernelkit/pkg/errors"
)

// replyQueueSize is the number of replies buffered per channel.
const replyQueueSize = 64

var (
	// ErrNotStarted is returned by requests made before StartChannels.
	ErrNotStarted = errors.New("client: channels not started")

	// ErrAlreadyStarted is returned when StartChannels is called twice.
	ErrAlreadyStarted = errors.New("client: channels already started")

	// ErrChannelClosed is returned when a channel's connection has gone away.
	ErrChannelClosed = errors.New("client: channel closed")
)

// Client talks to one kernel over its shell and control channels.
type Client struct {
	info        *connection.Info
	signer      *protocol.Signer
	session     string
	username    string
	dialTimeout time.Duration
	logger      *slog.Logger
	tracer      trace.Tracer

	mu       sync.Mutex
	channels map[connection.Channel]*channel
	group    *errgroup.Group
	done     chan struct{}
}

// channel is one dialed kernel socket with its reply queue.
type channel struct {
	name    connection.Channel
	conn    net.Conn
	codec   *protocol.Codec
	replies chan *protocol.Message
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger used for connection and drop events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithDialTimeout bounds each channel dial.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return &kkerrors.ValidationError{
				Field:   "dial_timeout",
				Message: fmt.Sprintf("must be positive, got %v", d),
			}
		}
		c.dialTimeout = d
		return nil
	}
}

// WithSession sets the session id stamped on every request.
func WithSession(session string) Option {
	return func(c *Client) error {
		c.session = session
		return nil
	}
}

// WithUsername sets the username stamped on every request.
func WithUsername(username string) Option {
	return func(c *Client) error {
		c.username = username
		return nil
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) error {
		c.tracer = tracer
		return nil
	}
}

// New creates a client for the kernel described by info. No connections
// are made until StartChannels.
func New(info *connection.Info, opts ...Option) (*Client, error) {
	if info == nil {
		return nil, errors.New("connection info cannot be nil")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		info:        info,
		signer:      protocol.NewSigner(info.Key),
		session:     uuid.New().String(),
		username:    "kernelkit",
		dialTimeout: DefaultDialTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:      tracing.Tracer(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// FromFile loads a connection descriptor and creates a client for it.
func FromFile(path string, opts ...Option) (*Client, error) {
	info, err := connection.Load(path)
	if err != nil {
		return nil, err
	}
	return New(info, opts...)
}

// Info returns the descriptor the client is bound to.
func (c *Client) Info() *connection.Info {
	return c.info
}

// Session returns the session id stamped on requests.
func (c *Client) Session() string {
	return c.session
}

// StartChannels dials the shell and control channels and starts reading
// replies. If any dial fails, connections already made are closed.
func (c *Client) StartChannels(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channels != nil {
		return ErrAlreadyStarted
	}

	channels := make(map[connection.Channel]*channel, 2)
	for _, name := range []connection.Channel{connection.ChannelShell, connection.ChannelControl} {
		conn, err := dialChannel(ctx, c.info, name, c.dialTimeout)
		if err != nil {
			for _, ch := range channels {
				ch.conn.Close()
			}
			return err
		}
		channels[name] = &channel{
			name:    name,
			conn:    conn,
			codec:   protocol.NewCodec(conn, c.signer),
			replies: make(chan *protocol.Message, replyQueueSize),
		}
	}

	c.channels = channels
	c.done = make(chan struct{})
	c.group = new(errgroup.Group)
	for _, ch := range channels {
		c.group.Go(func() error { return c.readLoop(ch) })
	}

	c.logger.Debug("channels started",
		slog.Int("shell_port", c.info.ShellPort),
		slog.Int("control_port", c.info.ControlPort))
	return nil
}

// StopChannels closes all connections and waits for the readers to exit.
// It is safe to call more than once.
func (c *Client) StopChannels() error {
	c.mu.Lock()
	if c.channels == nil {
		c.mu.Unlock()
		return nil
	}
	close(c.done)
	for _, ch := range c.channels {
		ch.conn.Close()
	}
	group := c.group
	c.channels = nil
	c.mu.Unlock()

	err := group.Wait()
	c.logger.Debug("channels stopped")
	return err
}

// readLoop decodes replies until the connection closes. Replies with bad
// signatures or malformed envelopes are dropped.
func (c *Client) readLoop(ch *channel) error {
	defer close(ch.replies)

	for {
		msg, err := ch.codec.Decode()
		if err != nil {
			switch {
			case errors.Is(err, protocol.ErrBadSignature):
				recordDropped(string(ch.name), "bad_signature")
				c.logger.Warn("dropping reply with bad signature", slog.String("channel", string(ch.name)))
				continue
			case errors.Is(err, protocol.ErrInvalidMessage):
				recordDropped(string(ch.name), "invalid")
				c.logger.Warn("dropping malformed reply",
					slog.String("channel", string(ch.name)),
					slog.Any("error", err))
				continue
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				return nil
			}

			select {
			case <-c.done:
				return nil
			default:
			}
			return fmt.Errorf("%s channel: %w", ch.name, err)
		}

		internallog.Trace(c.logger, "reply received",
			slog.String("channel", string(ch.name)),
			slog.String(internallog.MsgTypeKey, msg.Header.MsgType),
			slog.String(internallog.MsgIDKey, msg.ParentHeader.MsgID))

		select {
		case ch.replies <- msg:
		case <-c.done:
			return nil
		}
	}
}

func (c *Client) channel(name connection.Channel) (*channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels == nil {
		return nil, ErrNotStarted
	}
	return c.channels[name], nil
}

// send builds, signs and writes a request, returning its message id.
func (c *Client) send(ctx context.Context, name connection.Channel, msgType string, content any) (string, error) {
	ch, err := c.channel(name)
	if err != nil {
		return "", err
	}

	_, span := tracing.StartRequest(ctx, c.tracer, string(name), msgType)
	defer span.End()

	msg, err := protocol.NewRequest(c.session, c.username, msgType, content)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(map[string]any{"kernel.msg_id": msg.Header.MsgID})

	if deadline, ok := ctx.Deadline(); ok {
		_ = ch.conn.SetWriteDeadline(deadline)
		defer ch.conn.SetWriteDeadline(time.Time{})
	}

	if err := ch.codec.Encode(msg); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to send %s: %w", msgType, err)
	}

	recordRequest(string(name), msgType)
	c.logger.Debug("request sent",
		slog.String("channel", string(name)),
		slog.String(internallog.MsgTypeKey, msgType),
		slog.String(internallog.MsgIDKey, msg.Header.MsgID))
	return msg.Header.MsgID, nil
}

// ObjectInfo asks the kernel to describe name.
func (c *Client) ObjectInfo(ctx context.Context, name string) (string, error) {
	return c.send(ctx, connection.ChannelShell, protocol.MsgObjectInfoRequest, protocol.ObjectInfoRequest{Oname: name})
}

// Execute asks the kernel to run code.
func (c *Client) Execute(ctx context.Context, code string) (string, error) {
	return c.send(ctx, connection.ChannelShell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{
		Code:         code,
		StoreHistory: true,
	})
}

// KernelInfo asks the kernel to identify itself.
func (c *Client) KernelInfo(ctx context.Context) (string, error) {
	return c.send(ctx, connection.ChannelShell, protocol.MsgKernelInfoRequest, nil)
}

// Shutdown asks the kernel to exit over the control channel.
func (c *Client) Shutdown(ctx context.Context, restart bool) (string, error) {
	return c.send(ctx, connection.ChannelControl, protocol.MsgShutdownRequest, protocol.ShutdownRequest{Restart: restart})
}

// GetShellMsg blocks for the next shell reply. A timeout of zero or less
// waits until ctx is done.
func (c *Client) GetShellMsg(ctx context.Context, timeout time.Duration) (*protocol.Message, error) {
	return c.next(ctx, connection.ChannelShell, timeout)
}

// GetControlMsg blocks for the next control reply.
func (c *Client) GetControlMsg(ctx context.Context, timeout time.Duration) (*protocol.Message, error) {
	return c.next(ctx, connection.ChannelControl, timeout)
}

func (c *Client) next(ctx context.Context, name connection.Channel, timeout time.Duration) (*protocol.Message, error) {
	ch, err := c.channel(name)
	if err != nil {
		return nil, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	start := time.Now()
	select {
	case msg, ok := <-ch.replies:
		if !ok {
			observeReplyWait(string(name), "closed", time.Since(start).Seconds())
			return nil, ErrChannelClosed
		}
		observeReplyWait(string(name), "ok", time.Since(start).Seconds())
		return msg, nil
	case <-expired:
		observeReplyWait(string(name), "timeout", time.Since(start).Seconds())
		return nil, &kkerrors.TimeoutError{Operation: string(name) + " reply", Duration: timeout}
	case <-ctx.Done():
		observeReplyWait(string(name), "canceled", time.Since(start).Seconds())
		return nil, ctx.Err()
	}
}

// Call sends a request and waits for its reply, discarding replies to
// other requests. It must not be mixed with concurrent GetShellMsg or
// GetControlMsg callers on the same channel.
func (c *Client) Call(ctx context.Context, name connection.Channel, msgType string, content any, timeout time.Duration) (*protocol.Message, error) {
	msgID, err := c.send(ctx, name, msgType, content)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := time.Duration(0)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, &kkerrors.TimeoutError{Operation: msgType, Duration: timeout}
			}
		}

		msg, err := c.next(ctx, name, remaining)
		if err != nil {
			var te *kkerrors.TimeoutError
			if errors.As(err, &te) {
				te.Operation = msgType
				te.Duration = timeout
			}
			return nil, err
		}
		if msg.IsReplyTo(msgID) {
			return msg, nil
		}
		recordDropped(string(name), "unmatched")
		c.logger.Debug("discarding unmatched reply",
			slog.String("msg_type", msg.Header.MsgType),
			slog.String("parent_msg_id", msg.ParentHeader.MsgID))
	}
}

// Inspect looks up name in the kernel namespace.
func (c *Client) Inspect(ctx context.Context, name string, timeout time.Duration) (*protocol.ObjectInfoReply, error) {
	msg, err := c.Call(ctx, connection.ChannelShell, protocol.MsgObjectInfoRequest, protocol.ObjectInfoRequest{Oname: name}, timeout)
	if err != nil {
		return nil, err
	}
	var reply protocol.ObjectInfoReply
	if err := msg.UnmarshalContent(&reply); err != nil {
		return nil, kkerrors.Wrapf(err, "failed to decode %s", msg.Header.MsgType)
	}
	return &reply, nil
}

// Run executes code and returns the execute reply. A reply with an error
// status is returned as-is, not as a Go error.
func (c *Client) Run(ctx context.Context, code string, timeout time.Duration) (*protocol.ExecuteReply, error) {
	msg, err := c.Call(ctx, connection.ChannelShell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{
		Code:         code,
		StoreHistory: true,
	}, timeout)
	if err != nil {
		return nil, err
	}
	var reply protocol.ExecuteReply
	if err := msg.UnmarshalContent(&reply); err != nil {
		return nil, kkerrors.Wrapf(err, "failed to decode %s", msg.Header.MsgType)
	}
	return &reply, nil
}
