package network

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"time"
)

type UnixTransport struct {
	addr          string
	writeDeadline time.Duration
	listener      net.Listener
}

func NewUnixServer(path string, writeDeadline time.Duration) *UnixTransport {
	return &UnixTransport{
		addr:          path,
		writeDeadline: writeDeadline,
	}
}

func NewUnixClient(path string, writeDeadline time.Duration) *UnixTransport {
	return &UnixTransport{
		addr:          path,
		writeDeadline: writeDeadline,
	}
}

func (t *UnixTransport) Dial(ctx context.Context) (Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.addr)
	if err != nil {
		return nil, &SetupError{Step: "connect", Address: t.addr, Err: err}
	}
	return NewStreamClient(conn, t.writeDeadline), nil
}

// Listen removes a stale socket file left by a previous server before
// binding the path.
func (t *UnixTransport) Listen() error {
	if t.listener != nil {
		return nil
	}
	info, err := os.Lstat(t.addr)
	if err == nil && info.Mode()&fs.ModeSocket != 0 {
		err = os.Remove(t.addr)
		if err != nil {
			return &SetupError{Step: "unlink", Address: t.addr, Err: err}
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &SetupError{Step: "stat", Address: t.addr, Err: err}
	}

	l, err := net.Listen("unix", t.addr)
	if err != nil {
		return &SetupError{Step: "listen", Address: t.addr, Err: err}
	}
	t.listener = l
	return nil
}

func (t *UnixTransport) Accept(ctx context.Context) (Client, error) {
	if t.listener == nil {
		return nil, &SetupError{Step: "accept", Address: t.addr, Err: ErrNotListening}
	}
	conn, err := acceptContext(ctx, t.listener)
	if err != nil {
		return nil, &SetupError{Step: "accept", Address: t.addr, Err: err}
	}
	return NewStreamClient(conn, t.writeDeadline), nil
}

func (t *UnixTransport) Close() error {
	if t.listener == nil {
		return nil
	}
	err := t.listener.Close()
	t.listener = nil
	return err
}
