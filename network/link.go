package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/MixinNetwork/tcpipc/config"
	"github.com/MixinNetwork/tcpipc/logger"
	"github.com/MixinNetwork/tcpipc/util"
	"github.com/gofrs/uuid"
)

var (
	ErrClosed      = errors.New("link closed")
	ErrNotOpen     = errors.New("link not open")
	ErrAlreadyOpen = errors.New("link already open")
	ErrPeerClosed  = errors.New("peer closed the connection")
)

type Role int

const (
	RoleNone Role = iota
	RoleServer
	RoleClient
)

func ParseRole(s string) (Role, error) {
	switch s {
	case "server":
		return RoleServer, nil
	case "client":
		return RoleClient, nil
	}
	return RoleNone, fmt.Errorf("invalid link role %s", s)
}

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "none"
}

// Link is one point to point message connection. Send, Receive and Close
// run on the caller's goroutine, a single receive loop started by Open
// decodes frames into a bounded queue. Messages arriving while the queue is
// full are dropped.
type Link struct {
	// OnReceive, when set before Open, sees every decoded message on the
	// receive loop before it is queued. It must not keep or modify the payload.
	OnReceive func(*Message)

	id      string
	custom  *config.Custom
	metrics *MetricPool

	mutex   sync.Mutex
	role    Role
	client  Client
	queue   *util.RingBuffer[*Message]
	opening bool
	closed  bool
	err     error
	running atomic.Bool
	done    chan struct{}
}

func NewLink(custom *config.Custom) *Link {
	if custom == nil {
		custom = config.DefaultCustom()
	}
	return &Link{
		id:      uuid.Must(uuid.NewV4()).String(),
		custom:  custom,
		metrics: &MetricPool{},
		done:    make(chan struct{}),
	}
}

func (l *Link) Id() string {
	return l.id
}

func (l *Link) Role() Role {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.role
}

func (l *Link) RemoteAddr() net.Addr {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.client == nil {
		return nil
	}
	return l.client.RemoteAddr()
}

func (l *Link) Metrics() *MetricPool {
	return l.metrics
}

// Running reports whether the receive loop is still reading.
func (l *Link) Running() bool {
	return l.running.Load()
}

// Done is closed once the receive loop has exited.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns why the receive loop stopped, nil while it runs.
func (l *Link) Err() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.err
}

// QueueStats returns the queued message count and the queue capacity.
func (l *Link) QueueStats() (int, int) {
	queue := l.getQueue()
	if queue == nil {
		return 0, l.custom.Link.QueueCapacity
	}
	return queue.Len(), queue.Cap()
}

// Open connects over TCP, a server accepts exactly one peer on
// 0.0.0.0:port and a client connects to the IPv4 address:port.
func (l *Link) Open(ctx context.Context, role Role, address string, port int) error {
	var t Transport
	switch role {
	case RoleServer:
		t = NewTcpServer(port, l.custom.WriteDeadline())
	case RoleClient:
		t = NewTcpClient(address, port, l.custom.WriteDeadline())
	default:
		return fmt.Errorf("invalid link role %d", role)
	}
	return l.OpenTransport(ctx, role, t)
}

// OpenTransport establishes the connection through t and starts the receive
// loop. Nothing is started when establishment fails.
func (l *Link) OpenTransport(ctx context.Context, role Role, t Transport) error {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return ErrClosed
	}
	if l.opening || l.client != nil {
		l.mutex.Unlock()
		return ErrAlreadyOpen
	}
	l.opening = true
	l.mutex.Unlock()

	client, err := establish(ctx, role, t)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.opening = false
	if err != nil {
		logger.Printf("LINK %s %s SETUP ERROR %s\n", l.id, role, err.Error())
		return err
	}
	if l.closed {
		client.Close()
		return ErrClosed
	}
	l.role = role
	l.client = client
	l.queue = util.NewRingBuffer[*Message](l.custom.Link.QueueCapacity)
	l.running.Store(true)
	go l.receiveLoop(client, l.queue)
	logger.Printf("LINK %s %s CONNECTED %s\n", l.id, role, client.RemoteAddr())
	return nil
}

func establish(ctx context.Context, role Role, t Transport) (Client, error) {
	switch role {
	case RoleServer:
		err := t.Listen()
		if err != nil {
			return nil, err
		}
		defer t.Close()
		return t.Accept(ctx)
	case RoleClient:
		return t.Dial(ctx)
	}
	return nil, fmt.Errorf("invalid link role %d", role)
}

// Send encodes m and writes the whole frame before returning. Oversized
// payloads are rejected before anything is written.
func (l *Link) Send(m *Message) error {
	frame, err := EncodeFrame(m)
	if err != nil {
		return err
	}

	l.mutex.Lock()
	client, closed := l.client, l.closed
	l.mutex.Unlock()
	if closed {
		return ErrClosed
	}
	if client == nil {
		return ErrNotOpen
	}

	err = client.Send(frame)
	l.metrics.sent(len(frame), err)
	if err != nil {
		logger.Verbosef("LINK %s SEND %d ERROR %s\n", l.id, m.Id, err.Error())
		return fmt.Errorf("link send: %w", err)
	}
	logger.Debugf("LINK %s SEND %s\n", l.id, m)
	return nil
}

// Receive returns the oldest queued message, or nil if there is none now.
// The caller owns the returned message.
func (l *Link) Receive() *Message {
	queue := l.getQueue()
	if queue == nil {
		return nil
	}
	m, ok := queue.Poll()
	if !ok {
		return nil
	}
	return m
}

// ReceiveWait blocks until a message is queued. Queued messages are still
// delivered after the receive loop stops, after that it returns Err.
func (l *Link) ReceiveWait(ctx context.Context) (*Message, error) {
	queue := l.getQueue()
	if queue == nil {
		if l.isClosed() {
			return nil, ErrClosed
		}
		return nil, ErrNotOpen
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	m, err := queue.Wait(wctx)
	switch {
	case err == nil:
		return m, nil
	case errors.Is(err, util.ErrRingDisposed):
		return nil, ErrClosed
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	if m := l.Receive(); m != nil {
		return m, nil
	}
	if err := l.Err(); err != nil {
		return nil, err
	}
	return nil, ErrClosed
}

// Close stops the receive loop, waits for it, releases queued messages and
// closes the connection. Calling it again is a no-op.
func (l *Link) Close() error {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return nil
	}
	l.closed = true
	client, queue := l.client, l.queue
	l.mutex.Unlock()

	l.running.Store(false)
	if client == nil {
		close(l.done)
		return nil
	}

	var forced bool
	err := client.Shutdown()
	if err != nil {
		logger.Verbosef("LINK %s SHUTDOWN ERROR %s\n", l.id, err.Error())
	}
	timer := util.NewTimer(config.ShutdownTimeout)
	if !timer.Wait(l.done) {
		logger.Printf("LINK %s RECEIVE LOOP BLOCKED AFTER %s\n", l.id, config.ShutdownTimeout)
		forced = true
		client.Close()
		<-l.done
	}
	timer.Stop()

	released := queue.Dispose()
	if !forced {
		err = client.Close()
	}
	logger.Printf("LINK %s CLOSED RELEASED %d\n", l.id, released)
	return err
}

func (l *Link) receiveLoop(client Client, queue *util.RingBuffer[*Message]) {
	defer close(l.done)
	defer l.running.Store(false)

	buf := make([]byte, l.custom.Link.ReadBufferSize)
	decoder := NewFrameDecoder(len(buf))
	for l.running.Load() {
		n, err := client.Receive(buf)
		if n > 0 {
			l.metrics.read(n)
			decoder.Feed(buf[:n])
			l.dispatch(decoder, queue)
		}
		if err == nil {
			continue
		}
		switch {
		case !l.running.Load():
			l.stop(ErrClosed)
		case errors.Is(err, io.EOF):
			logger.Printf("LINK %s PEER CLOSED\n", l.id)
			l.stop(ErrPeerClosed)
		case errors.Is(err, os.ErrDeadlineExceeded):
			l.stop(ErrClosed)
		default:
			logger.Printf("LINK %s RECEIVE ERROR %s\n", l.id, err.Error())
			l.stop(fmt.Errorf("link receive: %w", err))
		}
		return
	}
	l.stop(ErrClosed)
}

func (l *Link) dispatch(decoder *FrameDecoder, queue *util.RingBuffer[*Message]) {
	for {
		m, err := decoder.Next()
		if err != nil {
			return
		}
		if l.OnReceive != nil {
			l.OnReceive(m)
		}
		ok, _ := queue.Offer(m)
		l.metrics.received(ok)
		if ok {
			logger.Debugf("LINK %s RECEIVE %s\n", l.id, m)
		} else {
			logger.Verbosef("LINK %s QUEUE FULL DROP %d\n", l.id, m.Id)
		}
	}
}

func (l *Link) stop(err error) {
	l.running.Store(false)
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.err == nil {
		l.err = err
	}
}

func (l *Link) getQueue() *util.RingBuffer[*Message] {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.queue
}

func (l *Link) isClosed() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return l.closed
}
