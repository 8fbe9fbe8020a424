//go:build windows

package endpoint

import "syscall"

// setReuseAddr is a no-op on Windows: SO_REUSEADDR there permits
// multiple concurrent binds to the same address, a different (and here
// unwanted) semantic than POSIX's "skip TIME_WAIT" behavior, so TcpServer
// leaves the platform default alone.
func setReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
