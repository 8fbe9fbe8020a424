//go:build !windows

package endpoint

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr is the net.ListenConfig.Control hook TcpServer's acceptor
// installs so a restarted server can rebind a recently-closed port
// instead of waiting out TIME_WAIT. net.ListenConfig has no portable
// SO_REUSEADDR knob, so this reaches through rawConn.Control to the
// syscall directly.
func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
