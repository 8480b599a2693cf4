//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package network

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// listenTCP sets up the listening socket step by step so the address reuse
// options and the backlog are exactly what the link needs.
func listenTCP(port, backlog int) (net.Listener, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, &SetupError{Step: "socket", Address: addr, Err: err}
	}
	unix.CloseOnExec(fd)

	fail := func(step string, err error) (net.Listener, error) {
		unix.Close(fd)
		return nil, &SetupError{Step: step, Address: addr, Err: err}
	}
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err != nil {
		return fail("setsockopt", err)
	}
	err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	if err != nil {
		return fail("setsockopt", err)
	}
	err = unix.Bind(fd, &unix.SockaddrInet4{Port: port})
	if err != nil {
		return fail("bind", err)
	}
	err = unix.Listen(fd, backlog)
	if err != nil {
		return fail("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tcp:"+addr)
	defer f.Close()
	l, err := net.FileListener(f)
	if err != nil {
		return nil, &SetupError{Step: "listen", Address: addr, Err: err}
	}
	return l, nil
}
