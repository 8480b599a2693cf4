package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/MixinNetwork/tcpipc/config"
)

type TcpTransport struct {
	addr          string
	port          int
	writeDeadline time.Duration

	mutex    sync.Mutex
	listener net.Listener
}

// NewTcpServer binds 0.0.0.0:port when listening, port 0 picks a free port.
func NewTcpServer(port int, writeDeadline time.Duration) *TcpTransport {
	return &TcpTransport{
		addr:          fmt.Sprintf("0.0.0.0:%d", port),
		port:          port,
		writeDeadline: writeDeadline,
	}
}

func NewTcpClient(address string, port int, writeDeadline time.Duration) *TcpTransport {
	return &TcpTransport{
		addr:          net.JoinHostPort(address, fmt.Sprint(port)),
		port:          port,
		writeDeadline: writeDeadline,
	}
}

// Addr returns the bound address while listening, nil once the single peer
// is accepted or the transport is closed.
func (t *TcpTransport) Addr() net.Addr {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TcpTransport) Dial(ctx context.Context) (Client, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", t.addr)
	if err != nil {
		return nil, &SetupError{Step: "resolve", Address: t.addr, Err: err}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp4", tcpAddr.String())
	if err != nil {
		return nil, &SetupError{Step: "connect", Address: t.addr, Err: err}
	}
	return NewStreamClient(conn, t.writeDeadline), nil
}

func (t *TcpTransport) Listen() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.listener != nil {
		return nil
	}
	l, err := listenTCP(t.port, config.ListenBacklog)
	if err != nil {
		return err
	}
	t.listener = l
	return nil
}

func (t *TcpTransport) Accept(ctx context.Context) (Client, error) {
	t.mutex.Lock()
	l := t.listener
	t.mutex.Unlock()
	if l == nil {
		return nil, &SetupError{Step: "accept", Address: t.addr, Err: ErrNotListening}
	}
	conn, err := acceptContext(ctx, l)
	if err != nil {
		return nil, &SetupError{Step: "accept", Address: t.addr, Err: err}
	}
	return NewStreamClient(conn, t.writeDeadline), nil
}

func (t *TcpTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.listener == nil {
		return nil
	}
	err := t.listener.Close()
	t.listener = nil
	return err
}
