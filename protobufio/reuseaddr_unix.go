//go:build !windows

package protobufio

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr mirrors endpoint's acceptor setup: Receive's address-reuse
// acceptor needs SO_REUSEADDR, which net.ListenConfig has no portable
// knob for.
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
