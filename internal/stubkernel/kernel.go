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

// Package stubkernel is a small in-process kernel that speaks the message
// protocol over loopback TCP. It exists so the launcher and client can be
// driven end to end without a real interactive shell.
package stubkernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/kernelkit/internal/connection"
	internallog "github.com/tombee/kernelkit/internal/log"
	"github.com/tombee/kernelkit/internal/protocol"
)

// Implementation is reported in kernel_info replies.
const Implementation = "kernelkit-stub"

// Version is reported in kernel_info replies.
const Version = "0.1.0"

// ReentryCounter is the namespace entry bumped every time a statement asks
// the embedded loop to exit and the loop is re-entered.
const ReentryCounter = "count"

// Options configures a Kernel.
type Options struct {
	// Namespace is the initial set of names visible to requests.
	Namespace map[string]any

	// Key signs messages. A random key is generated when empty.
	Key string

	// IP is the loopback address to listen on. Defaults to 127.0.0.1.
	IP string

	// KernelName is written to the descriptor.
	KernelName string

	// Logger receives request logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// ConfigDir is where Run publishes the descriptor. Defaults to the
	// directory named by connection.ConfigDirEnv.
	ConfigDir string

	// Profile selects the descriptor subdirectory. Defaults to
	// connection.DefaultProfile.
	Profile string
}

// Kernel serves shell and control requests against a namespace.
type Kernel struct {
	opts   Options
	signer *protocol.Signer
	logger *slog.Logger

	info      *connection.Info
	listeners []net.Listener

	mu        sync.Mutex
	ns        map[string]any
	execCount int
	conns     map[net.Conn]struct{}

	group    *errgroup.Group
	shutdown chan struct{}
	once     sync.Once
	closed   bool
}

// New creates a kernel. Call Start to begin serving.
func New(opts Options) *Kernel {
	if opts.IP == "" {
		opts.IP = "127.0.0.1"
	}
	if opts.Key == "" {
		opts.Key = uuid.New().String()
	}
	if opts.KernelName == "" {
		opts.KernelName = "stub"
	}
	logger := opts.Logger
	if logger == nil {
		logger = internallog.Discard()
	}

	ns := make(map[string]any, len(opts.Namespace)+1)
	for k, v := range opts.Namespace {
		ns[k] = normalize(v)
	}
	if _, ok := ns[ReentryCounter]; !ok {
		ns[ReentryCounter] = int64(0)
	}

	return &Kernel{
		opts:     opts,
		signer:   protocol.NewSigner(opts.Key),
		logger:   internallog.WithComponent(logger, "stubkernel"),
		ns:       ns,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// normalize converts Go integer types to the evaluator's int64.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	default:
		return v
	}
}

// Start opens the shell and control listeners and returns the descriptor
// a client needs to reach them.
func (k *Kernel) Start(ctx context.Context) (*connection.Info, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.info != nil {
		return nil, errors.New("stubkernel: already started")
	}

	var lc net.ListenConfig
	addr := net.JoinHostPort(k.opts.IP, "0")

	shell, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for shell: %w", err)
	}
	control, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		shell.Close()
		return nil, fmt.Errorf("failed to listen for control: %w", err)
	}
	k.listeners = []net.Listener{shell, control}

	k.info = &connection.Info{
		Transport:       connection.TransportTCP,
		IP:              k.opts.IP,
		ShellPort:       shell.Addr().(*net.TCPAddr).Port,
		ControlPort:     control.Addr().(*net.TCPAddr).Port,
		Key:             k.opts.Key,
		SignatureScheme: connection.SchemeHMACSHA256,
		KernelName:      k.opts.KernelName,
	}

	k.group = new(errgroup.Group)
	k.group.Go(func() error { return k.accept(shell, connection.ChannelShell) })
	k.group.Go(func() error { return k.accept(control, connection.ChannelControl) })

	k.logger.Debug("stub kernel listening",
		slog.Int("shell_port", k.info.ShellPort),
		slog.Int("control_port", k.info.ControlPort))

	return k.info, nil
}

// Info returns the descriptor, or nil before Start.
func (k *Kernel) Info() *connection.Info {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.info
}

// ShutdownRequested is closed once a shutdown request has been answered.
func (k *Kernel) ShutdownRequested() <-chan struct{} {
	return k.shutdown
}

// Lookup returns the current value bound to name.
func (k *Kernel) Lookup(name string) (any, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.ns[name]
	return v, ok
}

// Close stops the listeners, drops open connections and waits for all
// serving goroutines to return.
func (k *Kernel) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	for _, l := range k.listeners {
		l.Close()
	}
	for c := range k.conns {
		c.Close()
	}
	group := k.group
	k.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}

func (k *Kernel) accept(l net.Listener, ch connection.Channel) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s accept: %w", ch, err)
		}

		k.mu.Lock()
		if k.closed {
			k.mu.Unlock()
			conn.Close()
			return nil
		}
		k.conns[conn] = struct{}{}
		k.mu.Unlock()

		k.group.Go(func() error {
			k.serve(conn, ch)
			return nil
		})
	}
}

func (k *Kernel) serve(conn net.Conn, ch connection.Channel) {
	defer func() {
		k.mu.Lock()
		delete(k.conns, conn)
		k.mu.Unlock()
		conn.Close()
	}()

	codec := protocol.NewCodec(conn, k.signer)
	for {
		req, err := codec.Decode()
		if err != nil {
			if errors.Is(err, protocol.ErrBadSignature) || errors.Is(err, protocol.ErrInvalidMessage) {
				k.logger.Warn("dropping request", slog.String("channel", string(ch)), slog.Any("error", err))
				continue
			}
			return
		}

		reply, err := k.handle(req)
		if err != nil {
			k.logger.Warn("request failed",
				slog.String("msg_type", req.Header.MsgType),
				slog.Any("error", err))
			continue
		}
		if err := codec.Encode(reply); err != nil {
			return
		}

		if reply.Header.MsgType == protocol.MsgShutdownReply {
			k.once.Do(func() { close(k.shutdown) })
		}
	}
}

func (k *Kernel) handle(req *protocol.Message) (*protocol.Message, error) {
	k.logger.Debug("request",
		slog.String("msg_type", req.Header.MsgType),
		slog.String("msg_id", req.Header.MsgID))

	switch req.Header.MsgType {
	case protocol.MsgObjectInfoRequest:
		var content protocol.ObjectInfoRequest
		if err := req.UnmarshalContent(&content); err != nil {
			return nil, err
		}
		return protocol.NewReply(req, protocol.MsgObjectInfoReply, k.objectInfo(content.Oname))

	case protocol.MsgExecuteRequest:
		var content protocol.ExecuteRequest
		if err := req.UnmarshalContent(&content); err != nil {
			return nil, err
		}
		return protocol.NewReply(req, protocol.MsgExecuteReply, k.execute(content))

	case protocol.MsgKernelInfoRequest:
		return protocol.NewReply(req, protocol.MsgKernelInfoReply, protocol.KernelInfoReply{
			ProtocolVersion:       protocol.ProtocolVersion,
			Implementation:        Implementation,
			ImplementationVersion: Version,
			Language:              "python",
		})

	case protocol.MsgShutdownRequest:
		var content protocol.ShutdownRequest
		if err := req.UnmarshalContent(&content); err != nil {
			return nil, err
		}
		return protocol.NewReply(req, protocol.MsgShutdownReply, protocol.ShutdownReply{Restart: content.Restart})

	default:
		return nil, fmt.Errorf("unsupported message type %q", req.Header.MsgType)
	}
}

func (k *Kernel) objectInfo(name string) protocol.ObjectInfoReply {
	reply := protocol.ObjectInfoReply{Name: name}
	if v, ok := k.Lookup(name); ok {
		reply.Found = true
		reply.StringForm = StringForm(v)
		reply.TypeName = TypeName(v)
	}
	return reply
}

func (k *Kernel) execute(req protocol.ExecuteRequest) protocol.ExecuteReply {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !req.Silent {
		k.execCount++
	}
	reply := protocol.ExecuteReply{Status: protocol.StatusOK, ExecutionCount: k.execCount}

	for _, stmt := range splitStatements(req.Code) {
		if err := k.exec(stmt); err != nil {
			reply.Status = protocol.StatusError
			var evalErr *EvalError
			if errors.As(err, &evalErr) {
				reply.Ename = evalErr.Name
				reply.Evalue = evalErr.Value
			} else {
				reply.Ename = "Exception"
				reply.Evalue = err.Error()
			}
			reply.Traceback = []string{fmt.Sprintf("line %q", stmt), err.Error()}
			break
		}
	}
	return reply
}

// exec runs one statement. Caller holds k.mu.
func (k *Kernel) exec(stmt string) error {
	target, expr, ok := splitAssignment(stmt)
	if !ok {
		_, err := evalExpr(stmt, k.ns)
		return err
	}

	// Attribute targets such as shell.exit_now only matter for the
	// loop exit flag.
	if target == "exit_now" || strings.HasSuffix(target, ".exit_now") {
		v, err := evalExpr(expr, k.ns)
		if err != nil {
			return err
		}
		if b, ok := v.(bool); ok && b {
			n, _ := k.ns[ReentryCounter].(int64)
			k.ns[ReentryCounter] = n + 1
		}
		return nil
	}

	if !isIdent(target) {
		return syntaxError("cannot assign to %q", target)
	}
	v, err := evalExpr(expr, k.ns)
	if err != nil {
		return err
	}
	k.ns[target] = v
	return nil
}

// Names returns the namespace as sorted "name=value" pairs.
func (k *Kernel) Names() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]string, 0, len(k.ns))
	for name, v := range k.ns {
		if s, ok := v.(string); ok {
			out = append(out, name+"="+strconv.Quote(s))
			continue
		}
		out = append(out, name+"="+StringForm(v))
	}
	sort.Strings(out)
	return out
}
