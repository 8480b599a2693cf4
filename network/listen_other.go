//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package network

import (
	"fmt"
	"net"
)

// listenTCP falls back to the runtime listener where raw socket options are
// unavailable, the system default backlog applies.
func listenTCP(port, backlog int) (net.Listener, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	l, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, &SetupError{Step: "listen", Address: addr, Err: err}
	}
	return l, nil
}
