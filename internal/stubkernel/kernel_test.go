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
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/kernelkit/internal/connection"
	"github.com/tombee/kernelkit/internal/protocol"
)

// dial opens a signed codec to one of the kernel's channels.
func dial(t *testing.T, info *connection.Info, ch connection.Channel) *protocol.Codec {
	t.Helper()
	network, addr, err := info.Endpoint(ch)
	require.NoError(t, err)
	conn, err := net.DialTimeout(network, addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return protocol.NewCodec(conn, protocol.NewSigner(info.Key))
}

func roundTrip(t *testing.T, codec *protocol.Codec, msgType string, content any) *protocol.Message {
	t.Helper()
	req, err := protocol.NewRequest("session", "tester", msgType, content)
	require.NoError(t, err)
	require.NoError(t, codec.Encode(req))

	reply, err := codec.Decode()
	require.NoError(t, err)
	assert.True(t, reply.IsReplyTo(req.Header.MsgID))
	assert.Equal(t, protocol.ReplyType(msgType), reply.Header.MsgType)
	return reply
}

func startKernel(t *testing.T, opts Options) (*Kernel, *connection.Info) {
	t.Helper()
	k := New(opts)
	info, err := k.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { k.Close() })
	return k, info
}

func TestKernel_ObjectInfo(t *testing.T) {
	_, info := startKernel(t, Options{Namespace: map[string]any{"a": 5, "b": "hi there"}})
	shell := dial(t, info, connection.ChannelShell)

	var got protocol.ObjectInfoReply
	reply := roundTrip(t, shell, protocol.MsgObjectInfoRequest, protocol.ObjectInfoRequest{Oname: "a"})
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.True(t, got.Found)
	assert.Equal(t, "5", got.StringForm)
	assert.Equal(t, "int", got.TypeName)

	reply = roundTrip(t, shell, protocol.MsgObjectInfoRequest, protocol.ObjectInfoRequest{Oname: "b"})
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.Equal(t, "hi there", got.StringForm)

	got = protocol.ObjectInfoReply{}
	reply = roundTrip(t, shell, protocol.MsgObjectInfoRequest, protocol.ObjectInfoRequest{Oname: "nope"})
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.False(t, got.Found)
	assert.Empty(t, got.StringForm)
}

func TestKernel_Execute(t *testing.T) {
	k, info := startKernel(t, Options{Namespace: map[string]any{"a": 5}})
	shell := dial(t, info, connection.ChannelShell)

	var got protocol.ExecuteReply
	reply := roundTrip(t, shell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{Code: "c = a * 2"})
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.Equal(t, protocol.StatusOK, got.Status)
	assert.Equal(t, 1, got.ExecutionCount)

	v, ok := k.Lookup("c")
	require.True(t, ok)
	assert.Equal(t, int64(10), v)

	reply = roundTrip(t, shell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{Code: "d = missing"})
	got = protocol.ExecuteReply{}
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.Equal(t, protocol.StatusError, got.Status)
	assert.Equal(t, "NameError", got.Ename)
	assert.Equal(t, 2, got.ExecutionCount)
}

func TestKernel_ExitNowBumpsCounter(t *testing.T) {
	k, info := startKernel(t, Options{})
	shell := dial(t, info, connection.ChannelShell)

	for i := 0; i < 3; i++ {
		roundTrip(t, shell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{Code: "shell.exit_now = True"})
	}
	roundTrip(t, shell, protocol.MsgExecuteRequest, protocol.ExecuteRequest{Code: "exit_now = False"})

	v, ok := k.Lookup(ReentryCounter)
	require.True(t, ok)
	assert.Equal(t, int64(3), v)
}

func TestKernel_ShutdownOnControl(t *testing.T) {
	k, info := startKernel(t, Options{})
	control := dial(t, info, connection.ChannelControl)

	var got protocol.ShutdownReply
	reply := roundTrip(t, control, protocol.MsgShutdownRequest, protocol.ShutdownRequest{Restart: true})
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.True(t, got.Restart)

	select {
	case <-k.ShutdownRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown was not signalled")
	}
}

func TestKernel_DropsBadSignature(t *testing.T) {
	_, info := startKernel(t, Options{})

	network, addr, err := info.Endpoint(connection.ChannelShell)
	require.NoError(t, err)
	conn, err := net.DialTimeout(network, addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	forged := protocol.NewCodec(conn, protocol.NewSigner("wrong key"))
	req, err := protocol.NewRequest("s", "u", protocol.MsgKernelInfoRequest, nil)
	require.NoError(t, err)
	require.NoError(t, forged.Encode(req))

	good := protocol.NewCodec(conn, protocol.NewSigner(info.Key))
	reply := roundTrip(t, good, protocol.MsgKernelInfoRequest, nil)

	var got protocol.KernelInfoReply
	require.NoError(t, reply.UnmarshalContent(&got))
	assert.Equal(t, Implementation, got.Implementation)
}

func TestRun_PublishesDescriptor(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{ConfigDir: dir, Profile: "p"})
	}()

	path := connection.Path(dir, "p", os.Getpid())
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	info, err := connection.Load(path)
	require.NoError(t, err)
	assert.Equal(t, connection.SchemeHMACSHA256, info.SignatureScheme)
	assert.NotEmpty(t, info.Key)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RequiresConfigDir(t *testing.T) {
	t.Setenv(connection.ConfigDirEnv, "")
	err := Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), connection.ConfigDirEnv)
}
