//go:build windows

package protobufio

import "syscall"

func setReuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
