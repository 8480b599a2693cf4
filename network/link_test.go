package network

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MixinNetwork/tcpipc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkLoopback(t *testing.T) {
	require := require.New(t)

	server := NewLink(nil)
	wait := make(chan error, 1)
	go func() {
		wait <- server.Open(context.Background(), RoleServer, "", 9100)
	}()

	client := NewLink(nil)
	var err error
	for i := 0; i < 100; i++ {
		err = client.Open(context.Background(), RoleClient, "127.0.0.1", 9100)
		if err == nil {
			break
		}
		var se *SetupError
		require.True(errors.As(err, &se))
		require.Equal("connect", se.Step)
		time.Sleep(20 * time.Millisecond)
	}
	require.Nil(err)
	require.Nil(<-wait)
	defer server.Close()
	defer client.Close()
	require.Equal(RoleServer, server.Role())
	require.Equal(RoleClient, client.Role())
	require.NotNil(server.RemoteAddr())
	require.True(server.Running())

	err = client.Send(&Message{Id: 1, Payload: []byte{7, 9}})
	require.Nil(err)

	var m *Message
	for i := 0; i < 1000 && m == nil; i++ {
		m = server.Receive()
		if m == nil {
			time.Sleep(time.Millisecond)
		}
	}
	require.NotNil(m)
	require.Equal(uint8(1), m.Id)
	require.Equal(2, m.Len())
	require.Equal([]byte{7, 9}, m.Payload)
	require.Nil(server.Receive())

	err = server.Send(&Message{Id: 2})
	require.Nil(err)
	m, err = client.ReceiveWait(timeoutContext(t))
	require.Nil(err)
	require.True(m.Equal(&Message{Id: 2}))
}

func TestLinkQueueFullDrop(t *testing.T) {
	require := require.New(t)

	custom := config.DefaultCustom()
	require.Equal(10, custom.Link.QueueCapacity)
	server, client := openLinkPair(t, custom)
	defer server.Close()
	defer client.Close()

	for i := 0; i < 15; i++ {
		err := server.Send(&Message{Id: uint8(i), Payload: []byte{byte(i), byte(i * 2)}})
		require.Nil(err)
	}
	waitFor(t, func() bool {
		return client.Metrics().Snapshot().FramesReceived == 15
	})

	for i := 0; i < 10; i++ {
		m := client.Receive()
		require.NotNil(m)
		require.Equal(uint8(i), m.Id)
		require.Equal([]byte{byte(i), byte(i * 2)}, m.Payload)
	}
	require.Nil(client.Receive())

	snap := client.Metrics().Snapshot()
	require.Equal(uint64(10), snap.FramesEnqueued)
	require.Equal(uint64(5), snap.FramesDropped)
	require.Equal(uint64(15*4), snap.BytesRead)
	require.Equal(uint64(15), server.Metrics().Snapshot().FramesSent)
	require.True(client.Running())

	err := server.Send(&Message{Id: 99})
	require.Nil(err)
	m, err := client.ReceiveWait(timeoutContext(t))
	require.Nil(err)
	require.Equal(uint8(99), m.Id)
}

func TestLinkCloseThenOperate(t *testing.T) {
	require := require.New(t)

	server, client := openLinkPair(t, nil)
	defer server.Close()

	err := server.Send(&Message{Id: 3, Payload: []byte{1}})
	require.Nil(err)
	waitFor(t, func() bool {
		n, _ := client.QueueStats()
		return n == 1
	})

	err = client.Close()
	require.Nil(err)
	require.Nil(client.Receive())
	require.False(client.Running())
	select {
	case <-client.Done():
	default:
		t.Fatal("receive loop still running after close")
	}

	closed := make(chan error, 1)
	go func() {
		closed <- client.Close()
	}()
	select {
	case err = <-closed:
		require.Nil(err)
	case <-time.After(time.Second):
		t.Fatal("second close hangs")
	}

	require.Equal(ErrClosed, client.Send(&Message{Id: 1}))
	_, err = client.ReceiveWait(context.Background())
	require.Equal(ErrClosed, err)
	require.Equal(ErrClosed, client.Err())
	err = client.Open(context.Background(), RoleClient, "127.0.0.1", 1)
	require.Equal(ErrClosed, err)
}

func TestLinkCloseNeverOpened(t *testing.T) {
	assert := assert.New(t)

	link := NewLink(nil)
	assert.Nil(link.Receive())
	assert.Equal(ErrNotOpen, link.Send(&Message{Id: 1}))
	_, err := link.ReceiveWait(context.Background())
	assert.Equal(ErrNotOpen, err)
	n, c := link.QueueStats()
	assert.Equal(0, n)
	assert.Equal(config.QueueCapacity, c)
	assert.Nil(link.RemoteAddr())

	assert.Nil(link.Close())
	assert.Nil(link.Close())
	<-link.Done()
	_, err = link.ReceiveWait(context.Background())
	assert.Equal(ErrClosed, err)
}

func TestLinkPeerClosed(t *testing.T) {
	require := require.New(t)

	server, client := openLinkPair(t, nil)
	defer server.Close()

	for i := 0; i < 3; i++ {
		err := client.Send(&Message{Id: uint8(i + 1)})
		require.Nil(err)
	}
	waitFor(t, func() bool {
		return server.Metrics().Snapshot().FramesEnqueued == 3
	})
	err := client.Close()
	require.Nil(err)

	select {
	case <-server.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("receive loop did not stop on peer close")
	}
	require.False(server.Running())
	require.Equal(ErrPeerClosed, server.Err())

	for i := 0; i < 3; i++ {
		m, err := server.ReceiveWait(context.Background())
		require.Nil(err)
		require.Equal(uint8(i+1), m.Id)
	}
	_, err = server.ReceiveWait(context.Background())
	require.Equal(ErrPeerClosed, err)
	require.Nil(server.Receive())

	for i := 0; i < 100; i++ {
		err = server.Send(&Message{Id: 9})
		if err != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(err)
	require.Equal(uint64(1), server.Metrics().Snapshot().SendErrors)
	require.Nil(server.Close())
}

func TestLinkOversizedSend(t *testing.T) {
	require := require.New(t)

	server, client := openLinkPair(t, nil)
	defer server.Close()
	defer client.Close()

	err := client.Send(&Message{Id: 1, Payload: make([]byte, 256)})
	require.True(errors.Is(err, ErrPayloadTooLarge))
	snap := client.Metrics().Snapshot()
	require.Equal(uint64(0), snap.FramesSent)
	require.Equal(uint64(0), snap.SendErrors)

	err = client.Send(&Message{Id: 2, Payload: make([]byte, 255)})
	require.Nil(err)
	m, err := server.ReceiveWait(timeoutContext(t))
	require.Nil(err)
	require.Equal(uint8(2), m.Id)
	require.Equal(255, m.Len())
	require.Nil(server.Receive())
}

func TestLinkReceiveWait(t *testing.T) {
	require := require.New(t)

	server, client := openLinkPair(t, nil)
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := server.ReceiveWait(ctx)
	require.Equal(context.DeadlineExceeded, err)

	result := make(chan *Message, 1)
	go func() {
		m, err := server.ReceiveWait(context.Background())
		if err != nil {
			m = nil
		}
		result <- m
	}()
	time.Sleep(20 * time.Millisecond)
	err = client.Send(&Message{Id: 7, Payload: []byte("pad")})
	require.Nil(err)
	select {
	case m := <-result:
		require.NotNil(m)
		require.Equal([]byte("pad"), m.Payload)
	case <-time.After(3 * time.Second):
		t.Fatal("receive wait not woken")
	}
}

func TestLinkSplitFrames(t *testing.T) {
	require := require.New(t)

	ts := NewTcpServer(0, 0)
	require.Nil(ts.Listen())
	addr := ts.Addr().String()

	var hooked int64
	server := NewLink(nil)
	server.OnReceive = func(m *Message) {
		atomic.AddInt64(&hooked, 1)
	}
	wait := make(chan error, 1)
	go func() {
		wait <- server.OpenTransport(context.Background(), RoleServer, ts)
	}()
	conn, err := net.Dial("tcp4", addr)
	require.Nil(err)
	defer conn.Close()
	require.Nil(<-wait)
	defer server.Close()
	require.Nil(ts.Addr())

	var stream []byte
	messages := []*Message{
		{Id: 1, Payload: []byte{7, 9}},
		{Id: 2},
		{Id: 3, Payload: make([]byte, 255)},
		{Id: 4, Payload: []byte{1, 2, 3, 4}},
	}
	for _, m := range messages {
		stream, err = AppendFrame(stream, m)
		require.Nil(err)
	}
	for i, b := range stream {
		_, err := conn.Write([]byte{b})
		require.Nil(err)
		if i%16 == 0 {
			time.Sleep(time.Millisecond)
		}
	}

	for _, m := range messages {
		res, err := server.ReceiveWait(timeoutContext(t))
		require.Nil(err)
		require.True(m.Equal(res), m.String())
	}
	require.Equal(int64(len(messages)), atomic.LoadInt64(&hooked))
	require.Equal(uint64(len(stream)), server.Metrics().Snapshot().BytesRead)
}

func TestLinkSetupErrors(t *testing.T) {
	require := require.New(t)

	l, err := net.Listen("tcp4", "0.0.0.0:0")
	require.Nil(err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	client := NewLink(nil)
	err = client.Open(context.Background(), RoleClient, "127.0.0.1", port)
	var se *SetupError
	require.True(errors.As(err, &se))
	require.Equal("connect", se.Step)
	require.False(client.Running())
	require.Nil(client.Receive())
	require.Nil(client.Close())

	busy, err := net.Listen("tcp4", "0.0.0.0:0")
	require.Nil(err)
	defer busy.Close()
	server := NewLink(nil)
	err = server.Open(context.Background(), RoleServer, "", busy.Addr().(*net.TCPAddr).Port)
	require.True(errors.As(err, &se))
	require.Equal("bind", se.Step)
	require.Nil(server.Close())

	server = NewLink(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = server.Open(ctx, RoleServer, "", 0)
	require.True(errors.As(err, &se))
	require.Equal("accept", se.Step)
	require.True(errors.Is(err, context.DeadlineExceeded))
	require.False(server.Running())

	err = server.Open(context.Background(), RoleNone, "", 0)
	require.NotNil(err)
	require.Nil(server.Close())

	_, err = NewTcpServer(0, 0).Accept(context.Background())
	require.True(errors.Is(err, ErrNotListening))
}

func TestLinkAlreadyOpen(t *testing.T) {
	require := require.New(t)

	server, client := openLinkPair(t, nil)
	defer server.Close()
	defer client.Close()

	err := client.Open(context.Background(), RoleClient, "127.0.0.1", 1)
	require.Equal(ErrAlreadyOpen, err)
	require.True(client.Running())
}

func TestLinkUnix(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "link.sock")
	st := NewUnixServer(path, 0)
	require.Nil(st.Listen())

	server := NewLink(nil)
	wait := make(chan error, 1)
	go func() {
		wait <- server.OpenTransport(context.Background(), RoleServer, st)
	}()
	client := NewLink(nil)
	err := client.OpenTransport(context.Background(), RoleClient, NewUnixClient(path, time.Second))
	require.Nil(err)
	require.Nil(<-wait)
	defer server.Close()
	defer client.Close()

	err = client.Send(&Message{Id: 4, Payload: []byte{28, 42}})
	require.Nil(err)
	m, err := server.ReceiveWait(timeoutContext(t))
	require.Nil(err)
	require.Equal([]byte{28, 42}, m.Payload)

	stale := NewUnixServer(path, 0)
	require.Nil(stale.Listen())
	require.Nil(stale.Close())
}

func TestTcpTransportAddrWhileAccepting(t *testing.T) {
	require := require.New(t)

	ts := NewTcpServer(0, 0)
	require.Nil(ts.Listen())
	addr := ts.Addr().String()

	server := NewLink(nil)
	wait := make(chan error, 1)
	go func() {
		wait <- server.OpenTransport(context.Background(), RoleServer, ts)
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			ts.Addr()
		}
	}()
	conn, err := net.Dial("tcp4", addr)
	require.Nil(err)
	defer conn.Close()
	require.Nil(<-wait)
	defer server.Close()
	<-done
	require.Nil(ts.Addr())
}

func TestParseRole(t *testing.T) {
	assert := assert.New(t)

	r, err := ParseRole("server")
	assert.Nil(err)
	assert.Equal(RoleServer, r)
	assert.Equal("server", r.String())
	r, err = ParseRole("client")
	assert.Nil(err)
	assert.Equal("client", r.String())
	_, err = ParseRole("peer")
	assert.NotNil(err)
	assert.Equal("none", RoleNone.String())
}

func openLinkPair(t *testing.T, custom *config.Custom) (*Link, *Link) {
	require := require.New(t)

	ts := NewTcpServer(0, 0)
	require.Nil(ts.Listen())
	port := ts.Addr().(*net.TCPAddr).Port

	server := NewLink(custom)
	wait := make(chan error, 1)
	go func() {
		wait <- server.OpenTransport(context.Background(), RoleServer, ts)
	}()
	client := NewLink(custom)
	err := client.Open(context.Background(), RoleClient, "127.0.0.1", port)
	require.Nil(err)
	require.Nil(<-wait)
	return server, client
}

func waitFor(t *testing.T, cond func() bool) {
	for i := 0; i < 300; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func timeoutContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
