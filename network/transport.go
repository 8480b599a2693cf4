package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var (
	ErrNotListening = errors.New("transport not listening")
)

// Client is the connected stream of a link, read only by the receive loop and
// written only by the caller.
type Client interface {
	RemoteAddr() net.Addr
	Receive(buf []byte) (int, error)
	Send(frame []byte) error
	Shutdown() error
	Close() error
}

// Transport establishes exactly one Client, a server transport with
// Listen and Accept, a client transport with Dial.
type Transport interface {
	Listen() error
	Dial(ctx context.Context) (Client, error)
	Accept(ctx context.Context) (Client, error)
	Close() error
}

// SetupError reports which step of connection establishment failed.
type SetupError struct {
	Step    string
	Address string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Step, e.Address, e.Err.Error())
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

type StreamClient struct {
	conn          net.Conn
	writeDeadline time.Duration
}

func NewStreamClient(conn net.Conn, writeDeadline time.Duration) *StreamClient {
	return &StreamClient{
		conn:          conn,
		writeDeadline: writeDeadline,
	}
}

func (c *StreamClient) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *StreamClient) Receive(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

// Send writes the whole frame in one call, a short write is an error and
// nothing is retried.
func (c *StreamClient) Send(frame []byte) error {
	if c.writeDeadline > 0 {
		err := c.conn.SetWriteDeadline(time.Now().Add(c.writeDeadline))
		if err != nil {
			return err
		}
	}
	n, err := c.conn.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("%w %d %d", io.ErrShortWrite, n, len(frame))
	}
	return nil
}

// Shutdown wakes up a pending Receive without releasing the descriptor.
func (c *StreamClient) Shutdown() error {
	return c.conn.SetReadDeadline(time.Now())
}

func (c *StreamClient) Close() error {
	return c.conn.Close()
}

func acceptContext(ctx context.Context, l net.Listener) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	conn, err := l.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}
